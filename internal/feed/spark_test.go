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

func sparkPost(id, content string, version int) models.Post {
	return models.Post{
		ID:         id,
		UserID:     "u2",
		Kind:       models.KindSpark,
		Content:    content,
		Version:    version,
		Visibility: models.VisibilityPublic,
	}
}

func TestEditSparkAdoptsServerContent(t *testing.T) {
	store, mock := newTestStore(t, sparkPost("s1", "hello", 3))

	mock.EditSparkFunc = func(ctx context.Context, postID string, req dto.SparkEditRequest) (*dto.SparkEditResult, error) {
		assert.Equal(t, 3, req.BaseVersion)
		assert.Equal(t, "hello world", find(t, store, "s1").Post.Content)
		// Someone else appended "!" first; the server transformed our edit
		return &dto.SparkEditResult{PostID: postID, Content: "hello world!", Version: 5}, nil
	}

	rec, err := store.EditSpark(ctx, "s1", SparkEdit{Op: "insert", Position: 5, Text: " world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world!", rec.Post.Content)
	assert.Equal(t, 5, rec.Post.Version)

	cached := find(t, store, "s1")
	assert.Equal(t, "hello world!", cached.Post.Content)
	assert.Equal(t, 5, cached.Post.Version)
}

func TestEditSparkConflictRollsBack(t *testing.T) {
	store, mock := newTestStore(t, sparkPost("s1", "hello", 3))
	mock.DefaultError = errors.Conflict("spark was replaced concurrently")

	_, err := store.EditSpark(ctx, "s1", SparkEdit{Op: "delete", Position: 0, Length: 2})
	assert.ErrorIs(t, err, errors.ErrConflictSentinel)

	cached := find(t, store, "s1")
	assert.Equal(t, "hello", cached.Post.Content)
	assert.Equal(t, 3, cached.Post.Version)
}

func TestEditSparkSerializesEditsPerSpark(t *testing.T) {
	store, mock := newTestStore(t, sparkPost("s1", "hello", 3))

	g := newGate()
	mock.EditSparkFunc = func(ctx context.Context, postID string, req dto.SparkEditRequest) (*dto.SparkEditResult, error) {
		if req.Text == " world" {
			g.wait()
			return &dto.SparkEditResult{PostID: postID, Content: "hello world", Version: 4}, nil
		}
		return &dto.SparkEditResult{PostID: postID, Content: "hello world!", Version: 5}, nil
	}

	first := make(chan error, 1)
	go func() {
		_, err := store.EditSpark(ctx, "s1", SparkEdit{Op: "insert", Position: 5, Text: " world"})
		first <- err
	}()
	<-g.started

	second := make(chan error, 1)
	go func() {
		_, err := store.EditSpark(ctx, "s1", SparkEdit{Op: "insert", Position: 11, Text: "!"})
		second <- err
	}()

	close(g.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	calls := mock.GetCallsForMethod("EditSpark")
	require.Len(t, calls, 2)
	assert.Equal(t, 3, calls[0].Args[1].(dto.SparkEditRequest).BaseVersion)
	assert.Equal(t, 4, calls[1].Args[1].(dto.SparkEditRequest).BaseVersion)

	cached := find(t, store, "s1")
	assert.Equal(t, "hello world!", cached.Post.Content)
	assert.Equal(t, 5, cached.Post.Version)
}

func TestEditSparkRejectsInvalidEdits(t *testing.T) {
	store, mock := newTestStore(t, sparkPost("s1", "hello", 3), textPost("p1", "u2", "plain"))

	_, err := store.EditSpark(ctx, "s1", SparkEdit{Op: "rotate", Position: 0})
	assert.ErrorIs(t, err, errors.ErrValidationSentinel)

	_, err = store.EditSpark(ctx, "s1", SparkEdit{Op: "insert", Position: 99, Text: "x"})
	assert.ErrorIs(t, err, errors.ErrValidationSentinel)

	_, err = store.EditSpark(ctx, "p1", SparkEdit{Op: "insert", Position: 0, Text: "x"})
	assert.ErrorIs(t, err, errors.ErrValidationSentinel)

	_, err = store.EditSpark(ctx, "missing", SparkEdit{Op: "insert", Position: 0, Text: "x"})
	assert.ErrorIs(t, err, errors.ErrNotFoundSentinel)

	assert.Empty(t, mock.GetCallsForMethod("EditSpark"))
	assert.Equal(t, "hello", find(t, store, "s1").Post.Content)
}
