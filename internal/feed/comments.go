package feed

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/metrics"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/telemetry"
)

// MaxCommentLength bounds comment content in runes
const MaxCommentLength = 2000

// AddComment posts a comment, optionally as a reply. Replies nest one
// level: replying to a reply attaches to that reply's top-level comment.
// A parent that is not a cached comment of the same post is sent as given;
// Thread shows such a comment top-level.
func (s *Store) AddComment(ctx context.Context, targetID, content string, parentID *string) (CommentRecord, error) {
	const action = "comment"
	started := time.Now()

	content = strings.TrimSpace(content)
	if content == "" {
		return CommentRecord{}, errors.ValidationError("content", "comment is required")
	}
	if len([]rune(content)) > MaxCommentLength {
		return CommentRecord{}, errors.ValidationError("content", "comment is too long")
	}
	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	user, err := s.currentUser()
	if err != nil {
		return CommentRecord{}, err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return CommentRecord{}, errors.ServiceUnavailable("feed store")
	}
	if targetID == "" || s.indexByTempID(targetID) >= 0 {
		s.mu.Unlock()
		err := errors.ValidationError("target_id", "post is not published yet")
		s.settle(action, targetID, started, metrics.OutcomeRejected, err)
		return CommentRecord{}, err
	}

	parentID, err = s.flattenParentLocked(targetID, parentID)
	if err != nil {
		s.mu.Unlock()
		s.settle(action, targetID, started, metrics.OutcomeRejected, err)
		return CommentRecord{}, err
	}
	origin := s.nextOriginLocked()
	tempID := tempIDPrefix + uuid.NewString()
	now := s.now()
	temp := CommentRecord{
		State:  StateOptimistic,
		TempID: tempID,
		Origin: origin,
		Comment: models.Comment{
			PostID:    targetID,
			UserID:    user.ID,
			Author:    &models.Profile{ID: user.ID, DisplayName: user.DisplayName, AvatarURL: user.AvatarRef},
			Content:   content,
			ParentID:  parentID,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	s.comments[targetID] = append(s.comments[targetID], temp)
	if i := s.indexByID(targetID); i >= 0 {
		s.items[i].Post.CommentCount++
	}
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	ctx, span := s.events.TraceStoreAction(ctx, action, targetID)
	server, callErr := s.mutations.AddComment(ctx, targetID, dto.CommentRequest{
		Content:  content,
		ParentID: parentID,
		Origin:   origin,
	})

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		telemetry.EndStoreAction(span, metrics.OutcomeStale, nil)
		if callErr != nil {
			return CommentRecord{}, errors.Normalize("add comment", callErr)
		}
		return CommentRecord{State: StateConfirmed, Origin: origin, Comment: *server}, nil
	}

	list := s.comments[targetID]
	pos := -1
	for i, c := range list {
		if c.State == StateOptimistic && c.TempID == tempID {
			pos = i
			break
		}
	}

	if callErr != nil {
		apiErr := errors.Normalize("add comment", callErr)
		if pos >= 0 {
			s.comments[targetID] = append(list[:pos], list[pos+1:]...)
			if i := s.indexByID(targetID); i >= 0 {
				s.items[i].Post.CommentCount = max(0, s.items[i].Post.CommentCount-1)
			}
			s.changedLocked()
		}
		s.mu.Unlock()
		s.notify()
		telemetry.EndStoreAction(span, metrics.OutcomeRolledBack, apiErr)
		s.settle(action, targetID, started, metrics.OutcomeRolledBack, apiErr)
		return CommentRecord{}, apiErr
	}

	confirmed := CommentRecord{State: StateConfirmed, Origin: origin, Comment: server.Clone()}
	// A reload may have fetched the server copy while the call was in flight
	if dup := confirmedCommentIndex(list, server.ID); dup >= 0 {
		if pos < 0 {
			pos = dup
		} else {
			list = append(list[:dup], list[dup+1:]...)
			if dup < pos {
				pos--
			}
		}
	}
	if pos >= 0 {
		list[pos] = confirmed
		s.comments[targetID] = list
	} else {
		s.comments[targetID] = append(list, confirmed)
	}
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	telemetry.EndStoreAction(span, metrics.OutcomeConfirmed, nil)
	s.settle(action, targetID, started, metrics.OutcomeConfirmed, nil)
	return confirmed, nil
}

// flattenParentLocked re-points a reply-to-a-reply at the top-level
// comment. A parent still awaiting confirmation has no server id to send.
func (s *Store) flattenParentLocked(postID string, parentID *string) (*string, error) {
	if parentID == nil {
		return nil, nil
	}
	if strings.HasPrefix(*parentID, tempIDPrefix) {
		return nil, errors.ValidationError("parent_id", "comment is not published yet")
	}
	for _, c := range s.comments[postID] {
		if c.Key() != *parentID {
			continue
		}
		if c.State == StateOptimistic {
			return nil, errors.ValidationError("parent_id", "comment is not published yet")
		}
		if c.Comment.ParentID != nil {
			top := *c.Comment.ParentID
			return &top, nil
		}
		break
	}
	id := *parentID
	return &id, nil
}

func confirmedCommentIndex(list []CommentRecord, id string) int {
	if id == "" {
		return -1
	}
	for i, c := range list {
		if c.State == StateConfirmed && c.Comment.ID == id {
			return i
		}
	}
	return -1
}

// LoadComments fetches a post's comments, replacing the confirmed ones in
// the cache and keeping comments still awaiting confirmation. A pending
// comment the server already reports is dropped; its call confirms it
// when it returns.
func (s *Store) LoadComments(ctx context.Context, postID string) ([]CommentRecord, error) {
	if postID == "" {
		return nil, errors.ValidationError("post_id", "post id is required")
	}
	comments, err := s.query.ListComments(ctx, postID)
	if err != nil {
		return nil, errors.Normalize("list comments", err)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, nil
	}
	next := make([]CommentRecord, 0, len(comments))
	for _, c := range comments {
		next = append(next, CommentRecord{State: StateConfirmed, Comment: c.Clone()})
	}
	claimed := make([]bool, len(comments))
	for _, c := range s.comments[postID] {
		if c.State == StateOptimistic && !claimPersisted(comments, claimed, c.Comment) {
			next = append(next, c)
		}
	}
	s.comments[postID] = next
	s.changedLocked()
	s.mu.Unlock()
	s.notify()

	return s.Comments(postID), nil
}

// claimPersisted reports whether a loaded comment matches the pending one
// by author, parent and content. Each loaded comment is claimed at most once.
func claimPersisted(loaded []models.Comment, claimed []bool, pending models.Comment) bool {
	for i, c := range loaded {
		if claimed[i] || c.UserID != pending.UserID || c.Content != pending.Content {
			continue
		}
		if !sameParent(c.ParentID, pending.ParentID) {
			continue
		}
		claimed[i] = true
		return true
	}
	return false
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
