package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/models"
)

func strPtr(s string) *string { return &s }

func TestAddCommentFlattensRepliesToReplies(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	top, err := store.AddComment(ctx, "p1", "first!", nil)
	require.NoError(t, err)
	reply, err := store.AddComment(ctx, "p1", "agreed", &top.Comment.ID)
	require.NoError(t, err)
	deeper, err := store.AddComment(ctx, "p1", "me too", &reply.Comment.ID)
	require.NoError(t, err)

	require.NotNil(t, deeper.Comment.ParentID)
	assert.Equal(t, top.Comment.ID, *deeper.Comment.ParentID)

	calls := mock.GetCallsForMethod("AddComment")
	require.Len(t, calls, 3)
	req := calls[2].Args[1].(dto.CommentRequest)
	assert.Equal(t, top.Comment.ID, *req.ParentID)

	threads := store.Thread("p1")
	require.Len(t, threads, 1)
	assert.Equal(t, top.Comment.ID, threads[0].Comment.Comment.ID)
	require.Len(t, threads[0].Replies, 2)
	assert.Equal(t, "agreed", threads[0].Replies[0].Comment.Content)
	assert.Equal(t, "me too", threads[0].Replies[1].Comment.Content)

	assert.Equal(t, 3, find(t, store, "p1").Post.CommentCount)
}

func TestAddCommentShowsOptimisticComment(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	mock.AddCommentFunc = func(ctx context.Context, postID string, req dto.CommentRequest) (*models.Comment, error) {
		comments := store.Comments(postID)
		require.Len(t, comments, 1)
		assert.Equal(t, StateOptimistic, comments[0].State)
		assert.Equal(t, req.Origin, comments[0].Origin)
		assert.Equal(t, "Ada", comments[0].Comment.Author.DisplayName)
		assert.Equal(t, 1, find(t, store, "p1").Post.CommentCount)
		return &models.Comment{ID: "c1", PostID: postID, UserID: "u1", Content: req.Content}, nil
	}

	rec, err := store.AddComment(ctx, "p1", "  nice  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "c1", rec.Key())

	comments := store.Comments("p1")
	require.Len(t, comments, 1)
	assert.Equal(t, StateConfirmed, comments[0].State)
	assert.Equal(t, "nice", comments[0].Comment.Content)
}

func TestAddCommentFailureRollsBack(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))
	mock.DefaultError = errors.ServiceUnavailable("api")

	_, err := store.AddComment(ctx, "p1", "hello", nil)
	require.Error(t, err)
	assert.Empty(t, store.Comments("p1"))
	assert.Equal(t, 0, find(t, store, "p1").Post.CommentCount)
}

func TestAddCommentValidation(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	_, err := store.AddComment(ctx, "p1", "   ", nil)
	assert.ErrorIs(t, err, errors.ErrValidationSentinel)

	long := make([]rune, MaxCommentLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = store.AddComment(ctx, "p1", string(long), nil)
	assert.ErrorIs(t, err, errors.ErrValidationSentinel)

	_, err = store.AddComment(ctx, "", "hello", nil)
	assert.ErrorIs(t, err, errors.ErrValidationSentinel)

	mock.User = nil
	_, err = store.AddComment(ctx, "p1", "hello", nil)
	assert.ErrorIs(t, err, errors.ErrAuthRequiredSentinel)

	assert.Empty(t, mock.GetCallsForMethod("AddComment"))
}

func TestAddCommentEmptyParentIsTopLevel(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	_, err := store.AddComment(ctx, "p1", "hello", strPtr(""))
	require.NoError(t, err)

	req := mock.GetCallsForMethod("AddComment")[0].Args[1].(dto.CommentRequest)
	assert.Nil(t, req.ParentID)
}

func TestThreadShowsOrphanRepliesTopLevel(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))
	mock.ListCommentsFunc = func(ctx context.Context, postID string) ([]models.Comment, error) {
		return []models.Comment{
			{ID: "c1", PostID: postID, Content: "top"},
			{ID: "c2", PostID: postID, Content: "orphan", ParentID: strPtr("deleted")},
			{ID: "c3", PostID: postID, Content: "reply", ParentID: strPtr("c1")},
		}, nil
	}

	comments, err := store.LoadComments(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, comments, 3)

	threads := store.Thread("p1")
	require.Len(t, threads, 2)
	assert.Equal(t, "c1", threads[0].Comment.Key())
	require.Len(t, threads[0].Replies, 1)
	assert.Equal(t, "c3", threads[0].Replies[0].Key())
	assert.Equal(t, "c2", threads[1].Comment.Key())
	assert.Empty(t, threads[1].Replies)
}

func TestLoadCommentsKeepsPendingComments(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	g := newGate()
	mock.AddCommentFunc = func(ctx context.Context, postID string, req dto.CommentRequest) (*models.Comment, error) {
		g.wait()
		return &models.Comment{ID: "c9", PostID: postID, Content: req.Content}, nil
	}
	mock.ListCommentsFunc = func(ctx context.Context, postID string) ([]models.Comment, error) {
		return []models.Comment{{ID: "c1", PostID: postID, Content: "older"}}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := store.AddComment(ctx, "p1", "mine", nil)
		done <- err
	}()
	<-g.started

	comments, err := store.LoadComments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c1", comments[0].Key())
	assert.Equal(t, StateOptimistic, comments[1].State)

	close(g.release)
	require.NoError(t, <-done)

	comments = store.Comments("p1")
	require.Len(t, comments, 2)
	assert.Equal(t, "c9", comments[1].Key())
}

func TestLoadCommentsNormalizesErrors(t *testing.T) {
	store, mock := newTestStore(t)
	mock.DefaultError = context.DeadlineExceeded

	_, err := store.LoadComments(ctx, "p1")
	assert.True(t, errors.HasCode(err, errors.ErrTimeout))
}

func TestLoadCommentsDuringAddCommentKeepsOneCopy(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	g := newGate()
	mock.AddCommentFunc = func(ctx context.Context, postID string, req dto.CommentRequest) (*models.Comment, error) {
		g.wait()
		return &models.Comment{ID: "c-1", PostID: postID, UserID: "u1", Content: req.Content}, nil
	}
	mock.ListCommentsFunc = func(ctx context.Context, postID string) ([]models.Comment, error) {
		return []models.Comment{{ID: "c-1", PostID: postID, UserID: "u1", Content: "mine"}}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := store.AddComment(ctx, "p1", "mine", nil)
		done <- err
	}()
	<-g.started

	comments, err := store.LoadComments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "c-1", comments[0].Key())

	close(g.release)
	require.NoError(t, <-done)

	comments = store.Comments("p1")
	require.Len(t, comments, 1)
	assert.Equal(t, "c-1", comments[0].Key())
	assert.Equal(t, StateConfirmed, comments[0].State)
	assert.NotEmpty(t, comments[0].Origin)
	assert.Equal(t, 1, find(t, store, "p1").Post.CommentCount)
}

func TestAddCommentConfirmReplacesReloadedCopy(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	g := newGate()
	mock.AddCommentFunc = func(ctx context.Context, postID string, req dto.CommentRequest) (*models.Comment, error) {
		g.wait()
		return &models.Comment{ID: "c-1", PostID: postID, UserID: "u1", Content: req.Content}, nil
	}
	// The listing does not carry the author, so the pending comment stays
	mock.ListCommentsFunc = func(ctx context.Context, postID string) ([]models.Comment, error) {
		return []models.Comment{
			{ID: "c-0", PostID: postID, UserID: "u2", Content: "first"},
			{ID: "c-1", PostID: postID, Content: "mine"},
		}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := store.AddComment(ctx, "p1", "mine", nil)
		done <- err
	}()
	<-g.started

	comments, err := store.LoadComments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, comments, 3)

	close(g.release)
	require.NoError(t, <-done)

	comments = store.Comments("p1")
	require.Len(t, comments, 2)
	assert.Equal(t, "c-0", comments[0].Key())
	assert.Equal(t, "c-1", comments[1].Key())
	assert.Equal(t, StateConfirmed, comments[1].State)
	assert.Equal(t, 1, find(t, store, "p1").Post.CommentCount)
}

func TestAddCommentRejectsUnpublishedParent(t *testing.T) {
	store, mock := newTestStore(t, textPost("p1", "u2", "hi"))

	g := newGate()
	mock.AddCommentFunc = func(ctx context.Context, postID string, req dto.CommentRequest) (*models.Comment, error) {
		g.wait()
		return &models.Comment{ID: "c1", PostID: postID, UserID: "u1", Content: req.Content}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := store.AddComment(ctx, "p1", "top", nil)
		done <- err
	}()
	<-g.started

	pending := store.Comments("p1")
	require.Len(t, pending, 1)
	_, err := store.AddComment(ctx, "p1", "reply", strPtr(pending[0].Key()))
	assert.ErrorIs(t, err, errors.ErrValidationSentinel)
	assert.Len(t, store.Comments("p1"), 1)

	close(g.release)
	require.NoError(t, <-done)
	assert.Len(t, mock.GetCallsForMethod("AddComment"), 1)
	assert.Equal(t, 1, find(t, store, "p1").Post.CommentCount)
}
