package realtime

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

var ctx = context.Background()

func textPost(id, userID, content string) models.Post {
	return models.Post{
		ID:         id,
		UserID:     userID,
		Kind:       models.KindText,
		Content:    content,
		Visibility: models.VisibilityPublic,
	}
}

func pageOf(posts ...models.Post) *dto.PostPage {
	items := make([]dto.FeedItem, len(posts))
	for i, p := range posts {
		items[i] = dto.FeedItem{Post: p}
	}
	return &dto.PostPage{Items: items}
}

func newStore(t *testing.T, filters dto.PostFilters, posts ...models.Post) (*feed.Store, *feed.MockBackend) {
	t.Helper()
	mock := feed.NewMockBackend(&models.Identity{ID: "u1", DisplayName: "Ada"})
	store := feed.New(mock.Deps())
	t.Cleanup(store.Dispose)

	mock.ListPostsFunc = func(ctx context.Context, q dto.PageQuery) (*dto.PostPage, error) {
		return pageOf(posts...), nil
	}
	require.NoError(t, store.LoadPage(ctx, filters, true))
	mock.ListPostsFunc = nil
	return store, mock
}

func keys(store *feed.Store) []string {
	snap := store.Snapshot()
	out := make([]string, len(snap.Items))
	for i, rec := range snap.Items {
		out[i] = rec.Key()
	}
	return out
}

// fakeStream hands out subscriptions the test controls
type fakeStream struct {
	mu      sync.Mutex
	filters []Filter
	subs    []*fakeSub
}

type fakeSub struct {
	ch   chan ChangeEvent
	once sync.Once
}

func (f *fakeStream) Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{ch: make(chan ChangeEvent, 8)}
	f.filters = append(f.filters, filter)
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeStream) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeStream) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func (s *fakeSub) Events() <-chan ChangeEvent { return s.ch }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

func TestBridgeInsertAttachesAuthorFromSource(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{}, textPost("p0", "u2", "older"))
	mock.GetProfileFunc = func(ctx context.Context, id string) (*models.Profile, error) {
		return &models.Profile{ID: id, DisplayName: "Grace", Email: "grace@example.com"}, nil
	}

	stream := NewMemoryStream()
	bridge := NewBridge(store, stream, NewAuthorCache(mock, nil, time.Minute), mock)
	require.NoError(t, bridge.Ensure(ctx))
	t.Cleanup(func() { _ = bridge.Close() })

	require.NoError(t, stream.Publish(ctx, NewInsert(textPost("p1", "u3", "new"), "other:1")))

	require.Eventually(t, func() bool {
		return len(store.Snapshot().Items) == 2
	}, time.Second, 5*time.Millisecond)

	rec, ok := store.Snapshot().Find("p1")
	require.True(t, ok)
	require.NotNil(t, rec.Post.Author)
	assert.Equal(t, "Grace", rec.Post.Author.DisplayName)
	assert.Empty(t, rec.Post.Author.Email)
	assert.Equal(t, []string{"p1", "p0"}, keys(store))
}

func TestBridgeInsertPrefersAuthorsAlreadyInStore(t *testing.T) {
	known := textPost("p0", "u2", "older")
	known.Author = &models.Profile{ID: "u2", DisplayName: "Grace"}
	store, mock := newStore(t, dto.PostFilters{}, known)
	mock.GetProfileFunc = func(ctx context.Context, id string) (*models.Profile, error) {
		t.Errorf("unexpected profile fetch for %s", id)
		return nil, errors.NotFound("profile")
	}

	bridge := NewBridge(store, NewMemoryStream(), NewAuthorCache(mock, nil, time.Minute), mock)
	assert.Equal(t, ResultInserted, bridge.Apply(ctx, NewInsert(textPost("p1", "u2", "again"), "other:1")))

	rec, ok := store.Snapshot().Find("p1")
	require.True(t, ok)
	assert.Equal(t, "Grace", rec.Post.Author.DisplayName)
}

func TestBridgeInsertFallsBackToPlaceholderAuthor(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{})
	mock.GetProfileFunc = func(ctx context.Context, id string) (*models.Profile, error) {
		return nil, errors.TransientNetwork("profile", context.DeadlineExceeded)
	}

	bridge := NewBridge(store, NewMemoryStream(), NewAuthorCache(mock, nil, time.Minute), mock)
	assert.Equal(t, ResultInserted, bridge.Apply(ctx, NewInsert(textPost("p1", "u3", "hi"), "other:1")))

	rec, ok := store.Snapshot().Find("p1")
	require.True(t, ok)
	require.NotNil(t, rec.Post.Author)
	assert.Equal(t, "u3", rec.Post.Author.ID)
}

func TestBridgeIgnoresOwnInsertWithoutOrigin(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{}, textPost("p0", "u2", "older"))
	bridge := NewBridge(store, NewMemoryStream(), nil, mock)

	assert.Equal(t, ResultOwn, bridge.Apply(ctx, NewInsert(textPost("p1", "u1", "mine"), "")))
	assert.Equal(t, []string{"p0"}, keys(store))

	// The same user posting from another session is a remote insert
	assert.Equal(t, ResultInserted, bridge.Apply(ctx, NewInsert(textPost("p2", "u1", "phone"), "phone:1")))
	assert.Equal(t, []string{"p2", "p0"}, keys(store))
}

func TestBridgeLocalOriginReconcilesPendingRecord(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{}, textPost("p0", "u2", "older"))
	bridge := NewBridge(store, NewMemoryStream(), nil, mock)

	mock.CreatePostFunc = func(ctx context.Context, req dto.CreatePostRequest) (*models.Post, error) {
		post := textPost("p9", "u1", "mine")
		assert.Equal(t, ResultReconciled, bridge.Apply(ctx, NewInsert(post, req.Origin)))
		return &post, nil
	}

	rec, err := store.Create(ctx, feed.Draft{Content: "mine"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p9", "p0"}, keys(store))

	// A late echo is not a duplicate
	assert.Equal(t, ResultIgnored, bridge.Apply(ctx, NewInsert(textPost("p9", "u1", "mine"), rec.Origin)))
	assert.Equal(t, []string{"p9", "p0"}, keys(store))
}

func TestBridgeDeleteAndUpdate(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{}, textPost("p0", "u2", "a"), textPost("p1", "u2", "b"))
	bridge := NewBridge(store, NewMemoryStream(), nil, mock)

	update := textPost("p1", "u2", "b")
	update.ShareCount = 4
	assert.Equal(t, ResultUpdated, bridge.Apply(ctx, NewUpdate(update, "")))
	rec, ok := store.Snapshot().Find("p1")
	require.True(t, ok)
	assert.Equal(t, 4, rec.Post.ShareCount)

	assert.Equal(t, ResultDeleted, bridge.Apply(ctx, NewDelete("p0", "")))
	assert.Equal(t, ResultIgnored, bridge.Apply(ctx, NewDelete("p0", "")))
	assert.Equal(t, []string{"p1"}, keys(store))

	assert.Equal(t, ResultIgnored, bridge.Apply(ctx, NewUpdate(textPost("gone", "u2", ""), "")))
}

func TestBridgeUpdateCarriesViewerReaction(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{}, textPost("p1", "u2", "b"))
	bridge := NewBridge(store, NewMemoryStream(), nil, mock)

	// The signed-in user reacted from another device
	update := textPost("p1", "u2", "b")
	update.ReactionCounts = models.ReactionCounts{models.ReactionLove: 1}
	update.ReactionCount = 1
	ev := NewUpdate(update, "other-device:3")
	ev.Reaction = &models.Reaction{PostID: "p1", UserID: "u1", Kind: models.ReactionLove}
	assert.Equal(t, ResultUpdated, bridge.Apply(ctx, ev))

	rec, ok := store.Snapshot().Find("p1")
	require.True(t, ok)
	assert.Equal(t, models.ReactionLove, rec.ReactionOf("u1"))
	assert.Equal(t, 1, rec.Post.ReactionCount)

	// Someone else's reaction only moves the counters
	update.ReactionCounts = models.ReactionCounts{models.ReactionLove: 1, models.ReactionLike: 1}
	update.ReactionCount = 2
	ev = NewUpdate(update, "")
	ev.Reaction = &models.Reaction{PostID: "p1", UserID: "u3", Kind: models.ReactionLike}
	assert.Equal(t, ResultUpdated, bridge.Apply(ctx, ev))

	rec, _ = store.Snapshot().Find("p1")
	assert.Equal(t, models.ReactionLove, rec.ReactionOf("u1"))
	assert.Equal(t, models.ReactionNone, rec.ReactionOf("u3"))
	assert.Equal(t, 2, rec.Post.ReactionCount)
}

func TestBridgeRejectsInvalidEvents(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{})
	bridge := NewBridge(store, NewMemoryStream(), nil, mock)

	assert.Equal(t, ResultInvalid, bridge.Apply(ctx, ChangeEvent{Op: "upsert", RecordID: "p1"}))
	assert.Equal(t, ResultInvalid, bridge.Apply(ctx, ChangeEvent{Op: OpInsert}))

	other := NewInsert(textPost("c1", "u2", "comment"), "")
	other.Collection = "comments"
	assert.Equal(t, ResultIgnored, bridge.Apply(ctx, other))
	assert.Empty(t, store.Snapshot().Items)
}

func TestBridgeEnsureIsIdempotentAndClosable(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{})
	stream := NewMemoryStream()
	bridge := NewBridge(store, stream, nil, mock)

	require.NoError(t, bridge.Ensure(ctx))
	require.NoError(t, bridge.Ensure(ctx))
	assert.Equal(t, 1, stream.Subscribers())
	assert.True(t, bridge.Subscribed())

	require.NoError(t, bridge.Close())
	assert.Equal(t, 0, stream.Subscribers())
	assert.False(t, bridge.Subscribed())
	require.NoError(t, bridge.Close())

	require.NoError(t, bridge.Ensure(ctx))
	assert.Equal(t, 1, stream.Subscribers())
	require.NoError(t, bridge.Close())
}

func TestBridgeResubscribesAfterSourceEnds(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{})
	stream := &fakeStream{}
	bridge := NewBridge(store, stream, nil, mock)

	require.NoError(t, bridge.Ensure(ctx))
	require.NoError(t, stream.last().Close())

	require.Eventually(t, func() bool { return !bridge.Subscribed() }, time.Second, 5*time.Millisecond)
	require.NoError(t, bridge.Ensure(ctx))
	assert.Equal(t, 2, stream.count())
	require.NoError(t, bridge.Close())
}

func TestBridgeFilterFollowsStoreAndSetFilter(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{Owner: dto.OwnerMine, Kinds: []models.PostKind{models.KindPoll}})
	stream := &fakeStream{}
	bridge := NewBridge(store, stream, nil, mock)

	require.NoError(t, bridge.Ensure(ctx))
	assert.Equal(t, Filter{UserID: "u1", Kinds: []models.PostKind{models.KindPoll}}, stream.filters[0])

	require.NoError(t, bridge.SetFilter(ctx, Filter{UserID: "u9"}))
	require.Equal(t, 2, stream.count())
	assert.Equal(t, Filter{UserID: "u9"}, stream.filters[1])
	require.NoError(t, bridge.Close())
}

func TestBridgeEnsureAfterDispose(t *testing.T) {
	store, mock := newStore(t, dto.PostFilters{})
	bridge := NewBridge(store, NewMemoryStream(), nil, mock)
	store.Dispose()

	err := bridge.Ensure(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
	assert.False(t, bridge.Subscribed())
}
