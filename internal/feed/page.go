package feed

import (
	"context"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/telemetry"
	"go.uber.org/zap"
)

// LoadPage fetches the next feed page. With reset the filters are replaced
// and the confirmed records are swapped for the first page; records still
// awaiting confirmation stay on top. Without reset the page is appended,
// skipping records already present. A call made while another page load is
// in flight does nothing, as does appending when there is no more data.
func (s *Store) LoadPage(ctx context.Context, filters dto.PostFilters, reset bool) error {
	if !filters.Owner.Valid() {
		return errors.ValidationError("owner", "unknown owner scope")
	}
	if filters.Owner == dto.OwnerUser && filters.UserID == "" {
		return errors.ValidationError("user_id", "user id is required for the user scope")
	}

	mode := "append"
	if reset {
		mode = "reset"
	}

	s.mu.Lock()
	if s.disposed || s.loading || (!reset && !s.hasMore) {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	query := dto.PageQuery{Limit: s.pageSize}
	if reset {
		query.PostFilters = filters.Clone()
	} else {
		query.PostFilters = s.filters.Clone()
		query.Cursor = s.cursor
	}
	if query.Owner == dto.OwnerMine || query.Owner == dto.OwnerOthers {
		if _, err := s.currentUser(); err != nil {
			s.loading = false
			s.mu.Unlock()
			return err
		}
	}
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	ctx, span := s.events.TracePageLoad(ctx, reset, query.Limit)
	page, err := s.query.ListPosts(ctx, query)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		span.End()
		return nil
	}
	s.loading = false

	if err != nil {
		apiErr := errors.Normalize("list posts", err)
		s.changedLocked()
		s.mu.Unlock()
		s.notify()

		s.appMetrics.PageLoadsTotal.WithLabelValues(mode, "error").Inc()
		telemetry.RecordExternalAPIError(span, apiErr, apiErr.Retryable())
		span.End()
		logger.Log.Warn("Feed page load failed", zap.String("mode", mode), zap.Error(apiErr))
		return apiErr
	}

	viewerID := ""
	if user := s.currentUserOrNil(); user != nil {
		viewerID = user.ID
	}

	if reset {
		next := make([]Record, 0, len(page.Items))
		for _, rec := range s.items {
			if rec.Pending() {
				next = append(next, rec)
			}
		}
		s.items = next
		s.filters = query.PostFilters
	}
	seen := make(map[string]bool, len(s.items)+len(page.Items))
	for _, rec := range s.items {
		if rec.State == StateConfirmed {
			seen[rec.ID] = true
		}
	}
	added := 0
	for _, item := range page.Items {
		if seen[item.Post.ID] {
			continue
		}
		seen[item.Post.ID] = true
		s.items = append(s.items, confirmedRecord(item, viewerID))
		added++
	}
	s.cursor = page.NextCursor
	s.hasMore = page.HasMore && page.NextCursor != ""
	hasMore := s.hasMore
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	s.appMetrics.PageLoadsTotal.WithLabelValues(mode, "ok").Inc()
	span.End()
	logger.Log.Debug("Feed page loaded",
		zap.String("mode", mode),
		zap.Int("received", len(page.Items)),
		zap.Int("added", added),
		zap.Bool("has_more", hasMore),
	)
	return nil
}

// HasMore reports whether another page can be appended
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Filters returns the filters of the last page load
func (s *Store) Filters() dto.PostFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Clone()
}

func (s *Store) currentUserOrNil() *models.Identity {
	user, err := s.currentUser()
	if err != nil {
		return nil
	}
	return user
}
