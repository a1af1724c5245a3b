package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"github.com/zfogg/sparkfeed/internal/util"
)

// pageQueryFromRequest reads the feed filters and paging parameters.
// kind may repeat or be comma separated.
func pageQueryFromRequest(c *gin.Context) (dto.PageQuery, error) {
	q := dto.PageQuery{
		PostFilters: dto.PostFilters{
			Owner:  dto.OwnerScope(c.Query("owner")),
			UserID: c.Query("user_id"),
		},
		Limit:  util.QueryInt(c, "limit", 0),
		Cursor: c.Query("cursor"),
	}
	for _, k := range util.QueryList(c, "kind") {
		q.Kinds = append(q.Kinds, models.PostKind(k))
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return q, errors.ValidationError("since", "since must be an RFC3339 timestamp")
		}
		q.Since = &t
	}
	// A user_id alone selects that author
	if q.Owner == "" && q.UserID != "" {
		q.Owner = dto.OwnerUser
	}
	return q, nil
}

// ListPosts returns one page of the feed, newest first
// GET /api/v1/posts?owner=&user_id=&kind=&since=&limit=&cursor=
func (h *Handlers) ListPosts(c *gin.Context) {
	q, err := pageQueryFromRequest(c)
	if err != nil {
		util.RespondError(c, "list posts", err)
		return
	}
	page, err := h.posts.ListPosts(c.Request.Context(), util.OptionalUserID(c), q)
	if err != nil {
		util.RespondError(c, "list posts", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetPost returns one post the caller may see
// GET /api/v1/posts/:id
func (h *Handlers) GetPost(c *gin.Context) {
	post, err := h.posts.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, "get post", err)
		return
	}
	if !canView(post, util.OptionalUserID(c)) {
		util.RespondNotFound(c, "post")
		return
	}
	c.JSON(http.StatusOK, post)
}

// CreatePost publishes a new post and announces it with the caller's origin
// POST /api/v1/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req dto.CreatePostRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := feed.ValidateDraft(feed.DraftFromRequest(req)); err != nil {
		util.RespondError(c, "create post", err)
		return
	}

	post, err := h.posts.CreatePost(c.Request.Context(), userID, req)
	if err != nil {
		util.RespondError(c, "create post", err)
		return
	}
	logger.Log.Info("Post created",
		logger.WithUserID(userID),
		logger.WithPostID(post.ID),
		logger.WithOrigin(req.Origin),
	)

	h.publish(c.Request.Context(), realtime.NewInsert(*post, req.Origin))
	c.JSON(http.StatusCreated, post)
}

// DeletePost removes the caller's own post
// DELETE /api/v1/posts/:id?origin=
func (h *Handlers) DeletePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")
	if err := h.posts.DeletePost(c.Request.Context(), userID, postID); err != nil {
		util.RespondError(c, "delete post", err)
		return
	}
	logger.Log.Info("Post deleted", logger.WithUserID(userID), logger.WithPostID(postID))

	h.publish(c.Request.Context(), realtime.NewDelete(postID, c.Query("origin")))
	c.Status(http.StatusNoContent)
}
