// Package handlers implements the sparkfeed HTTP API on gin.
package handlers

import (
	"context"
	"time"

	"github.com/zfogg/sparkfeed/internal/auth"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"github.com/zfogg/sparkfeed/internal/repository"
	"github.com/zfogg/sparkfeed/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// publishTimeout bounds how long a request waits on the change fan-out
const publishTimeout = 2 * time.Second

// Deps are the collaborators the handlers need
type Deps struct {
	DB         *gorm.DB
	Posts      repository.PostRepository
	Engagement repository.EngagementRepository
	Sparks     repository.SparkRepository
	Profiles   repository.ProfileRepository
	Auth       auth.AuthServiceInterface
	Blobs      storage.BlobStore

	// Publisher receives a change event for every committed post write.
	// It may be nil.
	Publisher realtime.Publisher
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	db         *gorm.DB
	posts      repository.PostRepository
	engagement repository.EngagementRepository
	sparks     repository.SparkRepository
	profiles   repository.ProfileRepository
	auth       auth.AuthServiceInterface
	blobs      storage.BlobStore
	publisher  realtime.Publisher
}

// NewHandlers creates a new handlers instance. Repositories left nil are
// built on deps.DB.
func NewHandlers(deps Deps) *Handlers {
	h := &Handlers{
		db:         deps.DB,
		posts:      deps.Posts,
		engagement: deps.Engagement,
		sparks:     deps.Sparks,
		profiles:   deps.Profiles,
		auth:       deps.Auth,
		blobs:      deps.Blobs,
		publisher:  deps.Publisher,
	}
	if h.posts == nil {
		h.posts = repository.NewPostRepository(deps.DB)
	}
	if h.engagement == nil {
		h.engagement = repository.NewEngagementRepository(deps.DB)
	}
	if h.sparks == nil {
		h.sparks = repository.NewSparkRepository(deps.DB)
	}
	if h.profiles == nil {
		h.profiles = repository.NewProfileRepository(deps.DB)
	}
	return h
}

// publish sends ev without failing the request; the write already
// committed, subscribers that miss it catch up on their next page load
func (h *Handlers) publish(ctx context.Context, ev realtime.ChangeEvent) {
	if h.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := h.publisher.Publish(ctx, ev); err != nil {
		logger.Log.Warn("Failed to publish change event",
			zap.String("op", string(ev.Op)),
			logger.WithPostID(ev.ID()),
			logger.WithOrigin(ev.Origin),
			zap.Error(err),
		)
	}
}

// publishRefreshed re-reads a post whose counts changed and publishes the
// update. A non-nil reaction names the change that caused it.
func (h *Handlers) publishRefreshed(ctx context.Context, postID, origin string, reaction *models.Reaction) {
	if h.publisher == nil {
		return
	}
	post, err := h.posts.GetPost(ctx, postID)
	if err != nil {
		logger.Log.Warn("Failed to reload post for change event", logger.WithPostID(postID), zap.Error(err))
		return
	}
	ev := realtime.NewUpdate(*post, origin)
	ev.Reaction = reaction
	h.publish(ctx, ev)
}

// canView applies post visibility for viewerID ("" when anonymous)
func canView(post *models.Post, viewerID string) bool {
	switch post.Visibility {
	case models.VisibilityPrivate:
		return post.UserID == viewerID
	case models.VisibilityFollowers:
		return viewerID != ""
	default:
		return true
	}
}
