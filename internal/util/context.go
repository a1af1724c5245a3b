package util

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/models"
)

// Context keys set by the auth middleware
const (
	ContextUserIDKey  = "user_id"
	ContextProfileKey = "profile"
)

// GetProfileFromContext extracts the authenticated profile from the Gin context.
// If the request is not authenticated, it responds with 401 and returns false.
func GetProfileFromContext(c *gin.Context) (*models.Profile, bool) {
	value, exists := c.Get(ContextProfileKey)
	if !exists {
		RespondWithAPIError(c, errors.AuthRequired("user not authenticated"))
		return nil, false
	}
	profile, ok := value.(*models.Profile)
	if !ok {
		RespondWithAPIError(c, errors.InternalError("invalid profile data in context"))
		return nil, false
	}
	return profile, true
}

// GetUserIDFromContext extracts the user ID from the Gin context.
// If the request is not authenticated, it responds with 401 and returns false.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID := OptionalUserID(c)
	if userID == "" {
		RespondWithAPIError(c, errors.AuthRequired("unauthorized"))
		return "", false
	}
	return userID, true
}

// OptionalUserID returns the caller's ID, or "" for anonymous requests
func OptionalUserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}
