package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/models"
)

func TestApplyRemoteInsertPlacesPostBelowPendingRecords(t *testing.T) {
	store, mock := newTestStore(t, textPost("p0", "u2", "older"))

	g := newGate()
	mock.CreatePostFunc = func(ctx context.Context, req dto.CreatePostRequest) (*models.Post, error) {
		g.wait()
		post := textPost("p9", "u1", "mine")
		return &post, nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := store.Create(ctx, Draft{Content: "mine"})
		done <- err
	}()
	<-g.started

	assert.True(t, store.ApplyRemoteInsert(textPost("p5", "u3", "elsewhere"), "other-session:1"))
	snap := store.Snapshot()
	require.Len(t, snap.Items, 3)
	assert.True(t, snap.Items[0].Pending())
	assert.Equal(t, "p5", snap.Items[1].ID)
	assert.Equal(t, "p0", snap.Items[2].ID)

	close(g.release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"p9", "p5", "p0"}, ids(store.Snapshot()))
}

func TestApplyRemoteInsertWithLocalOriginConfirmsPendingRecord(t *testing.T) {
	store, mock := newTestStore(t, textPost("p0", "u2", "older"))

	mock.CreatePostFunc = func(ctx context.Context, req dto.CreatePostRequest) (*models.Post, error) {
		post := textPost("p9", "u1", "mine")
		// The change event outruns the response
		assert.True(t, store.ApplyRemoteInsert(post, req.Origin))
		assert.Equal(t, []string{"p9", "p0"}, ids(store.Snapshot()))
		return &post, nil
	}

	rec, err := store.Create(ctx, Draft{Content: "mine"})
	require.NoError(t, err)
	assert.Equal(t, "p9", rec.ID)
	assert.Equal(t, []string{"p9", "p0"}, ids(store.Snapshot()))

	// A late echo of our own insert changes nothing
	assert.False(t, store.ApplyRemoteInsert(textPost("p9", "u1", "mine"), rec.Origin))
}

func TestApplyRemoteInsertHonoursFilters(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ListPostsFunc = func(ctx context.Context, q dto.PageQuery) (*dto.PostPage, error) {
		return pageOf(pollPost("p1", 0, 0)), nil
	}
	require.NoError(t, store.LoadPage(ctx, dto.PostFilters{Kinds: []models.PostKind{models.KindPoll}}, true))

	assert.False(t, store.ApplyRemoteInsert(textPost("p2", "u2", "text"), "x:1"))
	assert.True(t, store.ApplyRemoteInsert(pollPost("p3", 0, 0), "x:2"))
	assert.False(t, store.ApplyRemoteInsert(pollPost("p3", 0, 0), "x:3"))
	assert.Equal(t, []string{"p3", "p1"}, ids(store.Snapshot()))
}

func TestApplyRemoteInsertMineScope(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ListPostsFunc = func(ctx context.Context, q dto.PageQuery) (*dto.PostPage, error) {
		return pageOf(), nil
	}
	require.NoError(t, store.LoadPage(ctx, dto.PostFilters{Owner: dto.OwnerMine}, true))

	assert.False(t, store.ApplyRemoteInsert(textPost("p1", "u2", "theirs"), "x:1"))
	assert.True(t, store.ApplyRemoteInsert(textPost("p2", "u1", "mine from another device"), "x:2"))
}

func TestApplyRemoteDelete(t *testing.T) {
	store, _ := newTestStore(t, textPost("p1", "u2", "a"), textPost("p2", "u2", "b"))
	_, err := store.ToggleSave("p1")
	require.NoError(t, err)

	assert.True(t, store.ApplyRemoteDelete("p1"))
	assert.False(t, store.ApplyRemoteDelete("p1"))
	assert.Equal(t, []string{"p2"}, ids(store.Snapshot()))

	// Saved state does not resurrect with a reinsert
	assert.True(t, store.ApplyRemoteInsert(textPost("p1", "u2", "a"), "x:1"))
	assert.False(t, find(t, store, "p1").Saved)
}

func TestApplyRemoteUpdateMergesCounters(t *testing.T) {
	store, _ := newTestStore(t, pollPost("p1", 1, 1))

	update := pollPost("p1", 4, 2)
	update.ReactionCounts = models.ReactionCounts{models.ReactionLike: 3}
	update.ReactionCount = 3
	update.CommentCount = 2
	update.ShareCount = 7

	assert.True(t, store.ApplyRemoteUpdate(update, "x:1"))
	rec := find(t, store, "p1")
	assert.Equal(t, []int{4, 2}, rec.Post.Poll.Tallies())
	assert.Equal(t, 67, rec.Post.Poll.Options[0].Percent)
	assert.Equal(t, models.ReactionCounts{models.ReactionLike: 3}, rec.Post.ReactionCounts)
	assert.Equal(t, 2, rec.Post.CommentCount)
	assert.Equal(t, 7, rec.Post.ShareCount)

	assert.False(t, store.ApplyRemoteUpdate(textPost("missing", "u2", ""), "x:2"))
}

func TestApplyRemoteUpdateKeepsSparkVersionsMonotonic(t *testing.T) {
	store, _ := newTestStore(t, sparkPost("s1", "hello", 3))

	older := sparkPost("s1", "hel", 2)
	store.ApplyRemoteUpdate(older, "x:1")
	assert.Equal(t, "hello", find(t, store, "s1").Post.Content)

	newer := sparkPost("s1", "hello there", 4)
	store.ApplyRemoteUpdate(newer, "x:2")
	rec := find(t, store, "s1")
	assert.Equal(t, "hello there", rec.Post.Content)
	assert.Equal(t, 4, rec.Post.Version)
}

func TestApplyRemoteUpdateLeavesInFlightFieldsAlone(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	g := newGate()
	mock.SetReactionFunc = func(ctx context.Context, postID string, req dto.ReactionRequest) (*dto.ReactionResult, error) {
		g.wait()
		return &dto.ReactionResult{
			PostID:         postID,
			Kind:           req.Kind,
			ReactionCounts: models.ReactionCounts{models.ReactionLike: 1, models.ReactionFunny: 10},
			ReactionCount:  11,
		}, nil
	}
	done := make(chan error, 1)
	go func() { done <- store.ToggleReaction(ctx, "p1", models.ReactionLike) }()
	<-g.started

	update := textPost("p1", "u2", "hi")
	update.ReactionCounts = models.ReactionCounts{models.ReactionFunny: 10}
	update.ReactionCount = 10
	update.ShareCount = 2
	require.True(t, store.ApplyRemoteUpdate(update, "x:1"))

	rec := find(t, store, "p1")
	assert.Equal(t, models.ReactionCounts{models.ReactionLike: 1}, rec.Post.ReactionCounts)
	assert.Equal(t, 2, rec.Post.ShareCount)

	close(g.release)
	require.NoError(t, <-done)
	rec = find(t, store, "p1")
	assert.Equal(t, 11, rec.Post.ReactionCount)
	assert.Equal(t, models.ReactionLike, rec.ReactionOf("u1"))
}

func TestAuthorOf(t *testing.T) {
	post := textPost("p1", "u2", "hi")
	post.Author = &models.Profile{ID: "u2", DisplayName: "Grace"}
	store, _ := newTestStore(t, post)

	author, ok := store.AuthorOf("u2")
	require.True(t, ok)
	assert.Equal(t, "Grace", author.DisplayName)

	_, ok = store.AuthorOf("u3")
	assert.False(t, ok)
}

func TestApplyRemoteReactionTracksViewerAcrossDevices(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	assert.True(t, store.ApplyRemoteReaction(models.Reaction{PostID: "p1", UserID: "u1", Kind: models.ReactionLike}))
	assert.Equal(t, models.ReactionLike, find(t, store, "p1").ReactionOf("u1"))
	assert.False(t, store.ApplyRemoteReaction(models.Reaction{PostID: "p1", UserID: "u1", Kind: models.ReactionLike}))

	assert.False(t, store.ApplyRemoteReaction(models.Reaction{PostID: "p1", UserID: "u2", Kind: models.ReactionLove}))
	assert.False(t, store.ApplyRemoteReaction(models.Reaction{PostID: "missing", UserID: "u1", Kind: models.ReactionLove}))

	assert.True(t, store.ApplyRemoteReaction(models.Reaction{PostID: "p1", UserID: "u1"}))
	assert.Equal(t, models.ReactionNone, find(t, store, "p1").ReactionOf("u1"))

	// A local toggle in flight wins over the remote report
	g := newGate()
	mock.SetReactionFunc = func(ctx context.Context, postID string, req dto.ReactionRequest) (*dto.ReactionResult, error) {
		g.wait()
		return &dto.ReactionResult{PostID: postID, Kind: req.Kind, ReactionCounts: models.ReactionCounts{req.Kind: 1}, ReactionCount: 1}, nil
	}
	done := make(chan error, 1)
	go func() { done <- store.ToggleReaction(ctx, "p1", models.ReactionFunny) }()
	<-g.started

	assert.False(t, store.ApplyRemoteReaction(models.Reaction{PostID: "p1", UserID: "u1", Kind: models.ReactionLike}))
	close(g.release)
	require.NoError(t, <-done)
	assert.Equal(t, models.ReactionFunny, find(t, store, "p1").ReactionOf("u1"))
}
