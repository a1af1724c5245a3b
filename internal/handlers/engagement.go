package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/util"
	"go.uber.org/zap"
)

// SetReaction sets, switches or clears (empty kind) the caller's reaction
// PUT /api/v1/posts/:id/reaction
func (h *Handlers) SetReaction(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req dto.ReactionRequest
	if !bindJSON(c, &req) {
		return
	}
	postID := c.Param("id")

	result, err := h.engagement.SetReaction(c.Request.Context(), postID, userID, req.Kind)
	if err != nil {
		util.RespondError(c, "set reaction", err)
		return
	}
	logger.Log.Debug("Reaction set",
		logger.WithUserID(userID),
		logger.WithPostID(postID),
		zap.String("kind", string(req.Kind)),
	)

	h.publishRefreshed(c.Request.Context(), postID, req.Origin, &models.Reaction{
		PostID: postID,
		UserID: userID,
		Kind:   result.Kind,
	})
	c.JSON(http.StatusOK, result)
}

// CastVote records the caller's poll vote and returns every option's tally
// POST /api/v1/posts/:id/votes
func (h *Handlers) CastVote(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req dto.VoteRequest
	if !bindJSON(c, &req) {
		return
	}
	postID := c.Param("id")

	result, err := h.engagement.CastVote(c.Request.Context(), postID, userID, req.OptionIndex)
	if err != nil {
		util.RespondError(c, "cast vote", err)
		return
	}

	h.publishRefreshed(c.Request.Context(), postID, req.Origin, nil)
	c.JSON(http.StatusOK, result)
}

// ListComments returns a post's comments oldest first
// GET /api/v1/posts/:id/comments
func (h *Handlers) ListComments(c *gin.Context) {
	postID := c.Param("id")
	post, err := h.posts.GetPost(c.Request.Context(), postID)
	if err != nil {
		util.RespondError(c, "list comments", err)
		return
	}
	if !canView(post, util.OptionalUserID(c)) {
		util.RespondNotFound(c, "post")
		return
	}

	comments, err := h.engagement.ListComments(c.Request.Context(), postID)
	if err != nil {
		util.RespondError(c, "list comments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// AddComment adds a comment or a reply
// POST /api/v1/posts/:id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req dto.CommentRequest
	if !bindJSON(c, &req) {
		return
	}
	postID := c.Param("id")

	comment, err := h.engagement.AddComment(c.Request.Context(), postID, userID, req)
	if err != nil {
		util.RespondError(c, "add comment", err)
		return
	}

	h.publishRefreshed(c.Request.Context(), postID, req.Origin, nil)
	c.JSON(http.StatusCreated, comment)
}

// SharePost re-shares a post
// POST /api/v1/posts/:id/shares
func (h *Handlers) SharePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req dto.ShareRequest
	// The body is optional
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	postID := c.Param("id")

	result, err := h.engagement.SharePost(c.Request.Context(), postID, userID, req.Message)
	if err != nil {
		util.RespondError(c, "share post", err)
		return
	}

	h.publishRefreshed(c.Request.Context(), postID, req.Origin, nil)
	c.JSON(http.StatusCreated, result)
}
