package feed

import (
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
)

// ApplyRemoteInsert merges a post created elsewhere. A post carrying one of
// this store's origins confirms the matching optimistic record instead of
// being added again. Other posts go to the top of the confirmed records,
// below any still-pending ones, when the current filters would have
// returned them. It reports whether the store changed.
func (s *Store) ApplyRemoteInsert(post models.Post, origin string) bool {
	s.mu.Lock()
	if s.disposed || post.ID == "" {
		s.mu.Unlock()
		return false
	}

	if s.IsLocalOrigin(origin) {
		i := s.indexByOrigin(origin)
		if i < 0 {
			// Our own confirmation already landed
			s.mu.Unlock()
			return false
		}
		s.reconcileLocked(s.items[i].TempID, post)
		s.changedLocked()
		s.mu.Unlock()
		s.notify()
		logger.Log.Debug("Remote insert confirmed local record",
			logger.WithPostID(post.ID),
			logger.WithOrigin(origin),
		)
		return true
	}

	if s.indexByID(post.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	viewerID := ""
	if user := s.currentUserOrNil(); user != nil {
		viewerID = user.ID
	}
	if !s.filters.Matches(post, viewerID) {
		s.mu.Unlock()
		return false
	}

	rec := Record{State: StateConfirmed, ID: post.ID, Origin: origin, Post: post.Clone()}
	// Keep optimistic records above remote arrivals
	at := 0
	for at < len(s.items) && s.items[at].Pending() {
		at++
	}
	s.items = append(s.items, Record{})
	copy(s.items[at+1:], s.items[at:])
	s.items[at] = rec
	s.changedLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// ApplyRemoteDelete removes a post by id. Deleting an absent post is a no-op.
func (s *Store) ApplyRemoteDelete(id string) bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false
	}
	i := s.indexByID(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.removeAt(i)
	delete(s.comments, id)
	delete(s.saved, id)
	s.changedLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// ApplyRemoteUpdate merges server-side changes to a cached post: counters,
// poll tallies and spark content. Fields with a local action still in
// flight are left alone, and spark content only moves forward in version.
func (s *Store) ApplyRemoteUpdate(post models.Post, origin string) bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false
	}
	i := s.indexByID(post.ID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	rec := &s.items[i]

	if idle(s.reactions, post.ID) {
		rec.Post.ReactionCounts = post.ReactionCounts.Clone()
		rec.Post.ReactionCount = post.ReactionCount
	}
	if idle(s.shares, post.ID) {
		rec.Post.ShareCount = post.ShareCount
	}
	if idle(s.votes, post.ID) && post.Poll != nil && rec.Post.Poll != nil {
		rec.Post.Poll.ApplyTallies(post.Poll.Tallies())
	}
	if !s.hasPendingCommentsLocked(post.ID) {
		rec.Post.CommentCount = post.CommentCount
	}
	if idle(s.edits, post.ID) && post.Version > rec.Post.Version {
		rec.Post.Content = post.Content
		rec.Post.Version = post.Version
	}
	if post.Title != "" {
		rec.Post.Title = post.Title
	}
	rec.Post.UpdatedAt = post.UpdatedAt
	s.changedLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// ApplyRemoteReaction records a reaction change made elsewhere by the
// signed-in user, such as on another device. Counters arrive with the
// update itself. Reactions by other users and posts with a local reaction
// in flight are left alone.
func (s *Store) ApplyRemoteReaction(r models.Reaction) bool {
	s.mu.Lock()
	user := s.currentUserOrNil()
	if s.disposed || user == nil || r.UserID != user.ID || !idle(s.reactions, r.PostID) {
		s.mu.Unlock()
		return false
	}
	i := s.indexByID(r.PostID)
	if i < 0 || s.items[i].ReactionOf(r.UserID) == r.Kind {
		s.mu.Unlock()
		return false
	}
	rec := &s.items[i]
	entries := make([]models.Reaction, 0, len(rec.Reactions)+1)
	for _, existing := range rec.Reactions {
		if existing.UserID != r.UserID {
			entries = append(entries, existing)
		}
	}
	if r.Kind != models.ReactionNone {
		entries = append(entries, models.Reaction{PostID: r.PostID, UserID: r.UserID, Kind: r.Kind})
	}
	rec.Reactions = entries
	s.changedLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Store) hasPendingCommentsLocked(postID string) bool {
	for _, c := range s.comments[postID] {
		if c.State == StateOptimistic {
			return true
		}
	}
	return false
}

func idle[S any](guards map[string]*guard[S], key string) bool {
	g, ok := guards[key]
	return !ok || g.idle()
}

// AuthorOf returns the cached author profile for userID, if any record
// carries one
func (s *Store) AuthorOf(userID string) (*models.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.items {
		if rec.Post.UserID == userID && rec.Post.Author != nil && rec.Post.Author.DisplayName != "" {
			author := *rec.Post.Author
			return &author, true
		}
	}
	return nil, false
}
