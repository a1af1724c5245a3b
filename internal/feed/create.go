package feed

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/metrics"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/telemetry"
	"go.uber.org/zap"
)

const (
	MaxContentLength = 10000
	MaxPollOptions   = 10
	MaxMediaItems    = 10
	tempIDPrefix     = "tmp-"
)

// ValidateDraft checks a draft before any optimistic state is created. The
// primary content depends on the kind: text for text, event and spark posts,
// media for image and video posts, a URL for links and options for polls.
func ValidateDraft(d Draft) error {
	kind := d.Kind
	if kind == "" {
		kind = models.KindText
	}
	if !kind.Valid() {
		return errors.ValidationError("kind", "unknown post kind")
	}
	if d.Visibility != "" && !d.Visibility.Valid() {
		return errors.ValidationError("visibility", "unknown visibility")
	}
	if len([]rune(d.Content)) > MaxContentLength {
		return errors.ValidationError("content", "content is too long")
	}
	if len(d.Media) > MaxMediaItems {
		return errors.ValidationError("media", "too many media items")
	}

	switch kind {
	case models.KindImage, models.KindVideo:
		if len(d.Media) == 0 {
			return errors.ValidationError("media", "media is required")
		}
	case models.KindLink:
		if strings.TrimSpace(d.LinkURL) == "" {
			return errors.ValidationError("link_url", "link is required")
		}
	case models.KindPoll:
		if d.Poll == nil || strings.TrimSpace(d.Poll.Question) == "" {
			return errors.ValidationError("poll", "poll question is required")
		}
		options := 0
		for _, opt := range d.Poll.Options {
			if strings.TrimSpace(opt) == "" {
				return errors.ValidationError("poll", "poll options must not be empty")
			}
			options++
		}
		if options < 2 || options > MaxPollOptions {
			return errors.ValidationError("poll", "polls need between 2 and 10 options")
		}
	case models.KindEvent:
		if strings.TrimSpace(d.Content) == "" {
			return errors.ValidationError("content", "content is required")
		}
		if d.EventAt == nil {
			return errors.ValidationError("event_at", "event time is required")
		}
	default:
		if strings.TrimSpace(d.Content) == "" {
			return errors.ValidationError("content", "content is required")
		}
	}
	return nil
}

// Create publishes a new post. The post appears at the top of the feed with
// a temporary id before the server answers; on success it is swapped in
// place for the server record, on failure it is removed.
func (s *Store) Create(ctx context.Context, d Draft) (Record, error) {
	const action = "create"
	started := time.Now()

	if err := ValidateDraft(d); err != nil {
		s.settle(action, "", started, metrics.OutcomeRejected, err)
		return Record{}, err
	}
	user, err := s.currentUser()
	if err != nil {
		s.settle(action, "", started, metrics.OutcomeRejected, err)
		return Record{}, err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Record{}, errors.ServiceUnavailable("feed store")
	}
	origin := s.nextOriginLocked()
	tempID := tempIDPrefix + uuid.NewString()
	temp := Record{
		State:  StateOptimistic,
		TempID: tempID,
		Origin: origin,
		Post:   draftPost(d, user, s.now()),
	}
	s.items = append([]Record{temp}, s.items...)
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	ctx, span := s.events.TraceStoreAction(ctx, action, tempID)
	server, err := s.mutations.CreatePost(ctx, createRequest(d, origin))

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		telemetry.EndStoreAction(span, metrics.OutcomeStale, nil)
		if err != nil {
			return Record{}, errors.Normalize("create post", err)
		}
		return Record{State: StateConfirmed, ID: server.ID, Origin: origin, Post: *server}, nil
	}

	if err != nil {
		apiErr := errors.Normalize("create post", err)
		if i := s.indexByTempID(tempID); i >= 0 {
			s.removeAt(i)
			s.changedLocked()
		}
		s.mu.Unlock()
		s.notify()
		s.settle(action, tempID, started, metrics.OutcomeRolledBack, apiErr)
		telemetry.EndStoreAction(span, metrics.OutcomeRolledBack, apiErr)
		return Record{}, apiErr
	}

	s.reconcileLocked(tempID, *server)
	var confirmed Record
	if i := s.indexByID(server.ID); i >= 0 {
		confirmed = s.items[i].Clone()
	} else {
		// Deleted remotely before our confirmation arrived
		confirmed = Record{State: StateConfirmed, ID: server.ID, Origin: origin, Post: server.Clone()}
	}
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	s.appMetrics.PostsCreated.WithLabelValues(string(server.Kind), string(server.Visibility)).Inc()
	s.settle(action, server.ID, started, metrics.OutcomeConfirmed, nil)
	telemetry.EndStoreAction(span, metrics.OutcomeConfirmed, nil)
	logger.Log.Debug("Post confirmed",
		logger.WithTempID(tempID),
		logger.WithPostID(server.ID),
		logger.WithOrigin(origin),
	)
	return confirmed, nil
}

// UploadMedia stores bytes under the acting user's media prefix and returns
// the public URL to put in Draft.Media
func (s *Store) UploadMedia(ctx context.Context, filename string, data []byte) (string, error) {
	user, err := s.currentUser()
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.ValidationError("file", "file is empty")
	}
	if s.blobs == nil {
		return "", errors.ServiceUnavailable("media storage")
	}

	path := MediaPath(user.ID, filename)
	ctx, span := s.events.TraceExternalAPI(ctx, "blobstore", "upload")
	defer span.End()

	url, err := s.blobs.Upload(ctx, path, data)
	if err != nil {
		apiErr := errors.Normalize("upload media", err)
		logger.Log.Warn("Media upload failed",
			logger.WithUserID(user.ID),
			zap.String("path", path),
			zap.Error(apiErr),
		)
		return "", apiErr
	}
	return url, nil
}

// MediaPath returns the owner-scoped object path for an upload
func MediaPath(userID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return "media/" + userID + "/" + uuid.NewString() + ext
}

func draftPost(d Draft, user *models.Identity, now time.Time) models.Post {
	kind := d.Kind
	if kind == "" {
		kind = models.KindText
	}
	visibility := d.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	post := models.Post{
		UserID: user.ID,
		Author: &models.Profile{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarRef,
		},
		Kind:       kind,
		Title:      d.Title,
		Content:    d.Content,
		Media:      append([]string(nil), d.Media...),
		Visibility: visibility,
		LinkURL:    d.LinkURL,
		EventAt:    d.EventAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if d.Poll != nil {
		poll := &models.Poll{Question: d.Poll.Question}
		for _, opt := range d.Poll.Options {
			poll.Options = append(poll.Options, models.PollOption{Text: opt})
		}
		post.Poll = poll
	}
	return post
}

// DraftFromRequest maps a create request back onto a draft so the server can
// apply the same validation as the store
func DraftFromRequest(req dto.CreatePostRequest) Draft {
	return Draft{
		Kind:       req.Kind,
		Title:      req.Title,
		Content:    req.Content,
		Media:      req.Media,
		Visibility: req.Visibility,
		LinkURL:    req.LinkURL,
		EventAt:    req.EventAt,
		Poll:       req.Poll,
	}
}

func createRequest(d Draft, origin string) dto.CreatePostRequest {
	req := dto.CreatePostRequest{
		Kind:       d.Kind,
		Title:      d.Title,
		Content:    d.Content,
		Media:      d.Media,
		Visibility: d.Visibility,
		LinkURL:    d.LinkURL,
		EventAt:    d.EventAt,
		Origin:     origin,
	}
	if d.Poll != nil {
		poll := *d.Poll
		req.Poll = &poll
	}
	return req
}
