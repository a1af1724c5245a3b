package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/util"
)

// TokenFromRequest returns the bearer token from the Authorization header,
// or the token query parameter browsers use for websocket upgrades
func TokenFromRequest(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

// RequireAuth rejects requests without a valid token and stores the
// profile in the context
func RequireAuth(svc AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			util.RespondWithAPIError(c, errors.AuthRequired("no token provided"))
			c.Abort()
			return
		}

		profile, err := svc.ValidateToken(c.Request.Context(), token)
		if err != nil {
			util.RespondWithAPIError(c, errors.Normalize("validate token", err))
			c.Abort()
			return
		}
		setProfile(c, profile)
		c.Next()
	}
}

// OptionalAuth resolves a token when one is sent; anonymous requests pass
// through, bad tokens are still rejected
func OptionalAuth(svc AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			c.Next()
			return
		}
		profile, err := svc.ValidateToken(c.Request.Context(), token)
		if err != nil {
			util.RespondWithAPIError(c, errors.Normalize("validate token", err))
			c.Abort()
			return
		}
		setProfile(c, profile)
		c.Next()
	}
}

func setProfile(c *gin.Context, profile *models.Profile) {
	c.Set(util.ContextUserIDKey, profile.ID)
	c.Set(util.ContextProfileKey, profile)
}
