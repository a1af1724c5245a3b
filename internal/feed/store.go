// Package feed is the client-side cache of feed records. It is the only
// place optimistic mutations run: each action applies its change locally,
// calls the server, then reconciles the record with the server's answer or
// rolls it back.
package feed

import (
	"fmt"
	"strings"
	"sync"
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

// DefaultPageSize is the number of posts requested per page
const DefaultPageSize = 20

// Deps are the collaborators a Store is built from
type Deps struct {
	Query     Query
	Mutations Mutations
	Identity  IdentityProvider
	Blobs     BlobStore

	PageSize int
	Clock    func() time.Time
}

type listener struct {
	id int
	fn func(Snapshot)
}

// Store holds the records a feed renders. Build one with New, pass it to
// its consumers, and Dispose it when the feed goes away.
type Store struct {
	mu sync.Mutex

	query     Query
	mutations Mutations
	identity  IdentityProvider
	blobs     BlobStore
	pageSize  int
	now       func() time.Time

	// session prefixes every origin this store issues
	session string
	opSeq   uint64

	items    []Record
	loading  bool
	hasMore  bool
	filters  dto.PostFilters
	cursor   string
	saved    map[string]bool
	comments map[string][]CommentRecord

	reactions map[string]*guard[reactionState]
	votes     map[string]*guard[voteState]
	shares    map[string]*guard[int]
	edits     map[string]*guard[sparkState]
	lanes     map[string]*lane

	version   uint64
	disposed  bool
	listeners []listener
	nextID    int

	notifyMu      sync.Mutex
	delivering    bool
	notifyPending bool
	delivered     uint64

	appMetrics *metrics.ApplicationMetrics
	events     *telemetry.BusinessEvents
}

// New builds a store. Query and Mutations are required; Identity and
// Blobs may be nil, in which case actions needing them fail.
func New(deps Deps) *Store {
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		query:      deps.Query,
		mutations:  deps.Mutations,
		identity:   deps.Identity,
		blobs:      deps.Blobs,
		pageSize:   pageSize,
		now:        clock,
		session:    uuid.NewString(),
		hasMore:    true,
		saved:      make(map[string]bool),
		comments:   make(map[string][]CommentRecord),
		reactions:  make(map[string]*guard[reactionState]),
		votes:      make(map[string]*guard[voteState]),
		shares:     make(map[string]*guard[int]),
		edits:      make(map[string]*guard[sparkState]),
		lanes:      make(map[string]*lane),
		appMetrics: metrics.App(),
		events:     telemetry.GetBusinessEvents(),
	}
}

// Dispose drops all listeners and state. Calls still in flight settle
// without touching the store.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.listeners = nil
	s.items = nil
	s.comments = make(map[string][]CommentRecord)
	s.appMetrics.StoreRecords.Set(0)
}

// Disposed reports whether Dispose has been called
func (s *Store) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	items := make([]Record, len(s.items))
	for i, rec := range s.items {
		items[i] = rec.Clone()
		if rec.State == StateConfirmed {
			items[i].Saved = s.saved[rec.ID]
		}
	}
	return Snapshot{
		Version: s.version,
		Items:   items,
		Loading: s.loading,
		HasMore: s.hasMore,
		Filters: s.filters.Clone(),
	}
}

// Subscribe registers fn to receive snapshots after every change, in update
// order. Rapid changes may be coalesced into one snapshot. fn may call back
// into the store.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// changedLocked marks a state change; callers notify after unlocking
func (s *Store) changedLocked() {
	s.version++
	s.appMetrics.StoreRecords.Set(float64(len(s.items)))
}

// notify delivers the latest snapshot to listeners. Only one goroutine
// delivers at a time; calls arriving meanwhile make it loop once more.
func (s *Store) notify() {
	s.notifyMu.Lock()
	if s.delivering {
		s.notifyPending = true
		s.notifyMu.Unlock()
		return
	}
	s.delivering = true
	for {
		s.notifyPending = false
		s.notifyMu.Unlock()

		s.deliver()

		s.notifyMu.Lock()
		if !s.notifyPending {
			s.delivering = false
			s.notifyMu.Unlock()
			return
		}
	}
}

func (s *Store) deliver() {
	s.mu.Lock()
	if s.disposed || len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	listeners := append([]listener(nil), s.listeners...)
	s.mu.Unlock()

	if snap.Version <= s.delivered {
		return
	}
	s.delivered = snap.Version
	for _, l := range listeners {
		l.fn(snap)
	}
}

// nextOriginLocked issues a new local operation id
func (s *Store) nextOriginLocked() string {
	s.opSeq++
	return fmt.Sprintf("%s:%d", s.session, s.opSeq)
}

// IsLocalOrigin reports whether origin was issued by this store
func (s *Store) IsLocalOrigin(origin string) bool {
	return origin != "" && strings.HasPrefix(origin, s.session+":")
}

// Session returns the prefix shared by every origin this store issues
func (s *Store) Session() string {
	return s.session
}

func (s *Store) currentUser() (*models.Identity, error) {
	if s.identity == nil {
		return nil, errors.AuthRequired("")
	}
	user := s.identity.CurrentUser()
	if user == nil || user.ID == "" {
		return nil, errors.AuthRequired("")
	}
	return user, nil
}

func (s *Store) indexByID(id string) int {
	for i, rec := range s.items {
		if rec.State == StateConfirmed && rec.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByTempID(tempID string) int {
	for i, rec := range s.items {
		if rec.State == StateOptimistic && rec.TempID == tempID {
			return i
		}
	}
	return -1
}

func (s *Store) indexByOrigin(origin string) int {
	for i, rec := range s.items {
		if rec.State == StateOptimistic && rec.Origin == origin {
			return i
		}
	}
	return -1
}

// confirmedTargetLocked finds the record an engagement action applies to.
// Optimistic records cannot be reacted to until the server assigns an id.
func (s *Store) confirmedTargetLocked(targetID string) (int, error) {
	if targetID == "" {
		return -1, errors.ValidationError("target_id", "target id is required")
	}
	if i := s.indexByTempID(targetID); i >= 0 {
		return -1, errors.ValidationError("target_id", "post is still being published")
	}
	i := s.indexByID(targetID)
	if i < 0 {
		return -1, errors.NotFound("post")
	}
	return i, nil
}

// reconcileLocked swaps the optimistic record tempID for the server record
// in place. It reports false when the temp record is already gone.
func (s *Store) reconcileLocked(tempID string, server models.Post) bool {
	i := s.indexByTempID(tempID)
	if i < 0 {
		return false
	}
	origin := s.items[i].Origin

	// A realtime insert may have delivered the server record first
	if dup := s.indexByID(server.ID); dup >= 0 {
		s.items = append(s.items[:dup], s.items[dup+1:]...)
		if dup < i {
			i--
		}
	}

	s.items[i] = Record{
		State:  StateConfirmed,
		ID:     server.ID,
		Origin: origin,
		Post:   server.Clone(),
	}
	return true
}

func (s *Store) removeAt(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}

// lane serializes the network calls for one target. users counts the
// callers holding or waiting for it.
type lane struct {
	ch    chan struct{}
	users int
}

func (s *Store) acquireLaneLocked(key string) *lane {
	l, ok := s.lanes[key]
	if !ok {
		l = &lane{ch: make(chan struct{}, 1)}
		s.lanes[key] = l
	}
	l.users++
	return l
}

// releaseLane drops the caller's claim on l and forgets it once unused
func (s *Store) releaseLane(key string, l *lane) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.users--
	if l.users == 0 && s.lanes[key] == l {
		delete(s.lanes, key)
	}
}

// Comments returns the cached comments for a post in insertion order
func (s *Store) Comments(postID string) []CommentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CommentRecord, len(s.comments[postID]))
	for i, c := range s.comments[postID] {
		out[i] = c
		out[i].Comment = c.Comment.Clone()
	}
	return out
}

// Thread groups a post's cached comments one level deep. A reply whose
// parent is not a top-level comment of the same post is shown top-level.
func (s *Store) Thread(postID string) []Thread {
	comments := s.Comments(postID)

	topLevel := make(map[string]bool)
	for _, c := range comments {
		if c.Comment.ParentID == nil && c.Comment.ID != "" {
			topLevel[c.Comment.ID] = true
		}
	}
	isReply := func(c CommentRecord) bool {
		return c.Comment.ParentID != nil && topLevel[*c.Comment.ParentID]
	}

	index := make(map[string]int)
	var threads []Thread
	for _, c := range comments {
		if isReply(c) {
			continue
		}
		if c.Comment.ID != "" {
			index[c.Comment.ID] = len(threads)
		}
		threads = append(threads, Thread{Comment: c})
	}
	for _, c := range comments {
		if isReply(c) {
			i := index[*c.Comment.ParentID]
			threads[i].Replies = append(threads[i].Replies, c)
		}
	}
	return threads
}

// settle logs and counts the end of an action
func (s *Store) settle(action, target string, started time.Time, outcome string, err error) {
	s.appMetrics.StoreActionsTotal.WithLabelValues(action, outcome).Inc()
	s.appMetrics.StoreActionDuration.WithLabelValues(action).Observe(time.Since(started).Seconds())

	switch outcome {
	case metrics.OutcomeRolledBack:
		logger.Log.Warn("Optimistic action rolled back",
			logger.WithAction(action),
			logger.WithPostID(target),
			zap.Error(err),
		)
	case metrics.OutcomeStale:
		logger.Log.Debug("Discarded superseded response",
			logger.WithAction(action),
			logger.WithPostID(target),
		)
	}
}
