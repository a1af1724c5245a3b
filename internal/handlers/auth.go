package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/util"
)

// bindJSON decodes the request body into v. Malformed JSON is a 400 and a
// failed binding rule a 422.
func bindJSON(c *gin.Context, v interface{}) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.Is(err, io.EOF):
		util.RespondBadRequest(c, "request body is required")
	case stderrors.As(err, &syntaxErr), stderrors.As(err, &typeErr):
		util.RespondBadRequest(c, "invalid JSON: "+err.Error())
	default:
		util.RespondWithAPIError(c, errors.ValidationError("body", err.Error()))
	}
	return false
}

// SignUp registers a profile with email and password
// POST /api/v1/auth/signup
func (h *Handlers) SignUp(c *gin.Context) {
	var req dto.SignUpRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.auth.SignUp(c.Request.Context(), req)
	if err != nil {
		util.RespondError(c, "sign up", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// SignIn exchanges email and password for a token
// POST /api/v1/auth/signin
func (h *Handlers) SignIn(c *gin.Context) {
	var req dto.SignInRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.auth.SignIn(c.Request.Context(), req)
	if err != nil {
		util.RespondError(c, "sign in", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the signed-in profile including private fields
// GET /api/v1/me
func (h *Handlers) Me(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.ToProfileDetailResponse(profile))
}

// GetProfile returns a public profile
// GET /api/v1/profiles/:id
func (h *Handlers) GetProfile(c *gin.Context) {
	profile, err := h.profiles.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, "get profile", err)
		return
	}
	c.JSON(http.StatusOK, dto.ToProfileResponse(profile))
}
