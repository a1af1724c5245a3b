package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNetErr struct{ timeout bool }

func (e fakeNetErr) Error() string   { return "net" }
func (e fakeNetErr) Timeout() bool   { return e.timeout }
func (e fakeNetErr) Temporary() bool { return true }

func TestNormalize(t *testing.T) {
	conflict := Conflict("only the author may replace")

	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"api error passes through", conflict, ErrConflict},
		{"wrapped api error", fmt.Errorf("calling: %w", conflict), ErrConflict},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"canceled", fmt.Errorf("x: %w", context.Canceled), ErrTransientNetwork},
		{"net timeout", fakeNetErr{timeout: true}, ErrTimeout},
		{"net failure", fakeNetErr{}, ErrTransientNetwork},
		{"op error", &net.OpError{Op: "dial", Err: stderrors.New("refused")}, ErrTransientNetwork},
		{"anything else", stderrors.New("boom"), ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize("createPost", tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
		})
	}

	assert.Nil(t, Normalize("noop", nil))
	assert.Same(t, conflict, Normalize("x", conflict))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ValidationError("content", "content is required"))

	assert.True(t, stderrors.Is(err, ErrValidationSentinel))
	assert.False(t, stderrors.Is(err, ErrConflictSentinel))
	assert.True(t, HasCode(err, ErrValidation))
	assert.False(t, HasCode(stderrors.New("plain"), ErrValidation))
}

func TestTransientWrapsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := TransientNetwork("setReaction", cause)

	assert.True(t, IsTransient(err))
	assert.True(t, stderrors.Is(err, cause))
	assert.False(t, IsTransient(Conflict("no")))
	assert.Equal(t, http.StatusBadGateway, err.Status)
}

func TestFromStatus(t *testing.T) {
	err := FromStatus(http.StatusConflict, "", "")
	assert.Equal(t, ErrConflict, err.Code)
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Contains(t, err.Message, "409")

	// A known server code wins over the status mapping
	err = FromStatus(http.StatusBadRequest, string(ErrValidation), "bad")
	assert.Equal(t, ErrValidation, err.Code)
	assert.Equal(t, "bad", err.Message)

	err = FromStatus(http.StatusTeapot, "SOMETHING_NEW", "")
	assert.Equal(t, ErrInternalError, err.Code)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "VALIDATION_ERROR: empty (field: content)", ValidationError("content", "empty").Error())
	assert.Equal(t, "NOT_FOUND: post not found", NotFound("post").Error())
}
