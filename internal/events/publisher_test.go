package events

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/realtime"
)

type recordingSink struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, ev realtime.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func samplePost() models.Post {
	return models.Post{ID: "p1", UserID: "u1", Kind: models.KindText, Content: "hi", Version: 1}
}

func TestPublisherFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	mem := realtime.NewMemoryStream()
	sub, err := mem.Subscribe(context.Background(), realtime.CollectionPosts, realtime.Filter{})
	require.NoError(t, err)
	defer sub.Close()

	p := NewPublisher(
		Sink{Name: "a", Publisher: a},
		Sink{Name: "redis", Publisher: nil},
		Sink{Name: "b", Publisher: b},
		Sink{Name: "memory", Publisher: mem},
	)
	assert.Equal(t, []string{"a", "b", "memory"}, p.Sinks())

	require.NoError(t, p.PostCreated(context.Background(), samplePost(), "s:1"))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	select {
	case ev := <-sub.Events():
		assert.Equal(t, realtime.OpInsert, ev.Op)
		assert.Equal(t, "s:1", ev.Origin)
		assert.Equal(t, "p1", ev.ID())
	case <-time.After(time.Second):
		t.Fatal("memory subscriber got nothing")
	}
}

func TestPublisherJoinsSinkErrors(t *testing.T) {
	boom := stderrors.New("boom")
	failing, ok := &recordingSink{err: boom}, &recordingSink{}
	p := NewPublisher(Sink{Name: "failing", Publisher: failing}, Sink{Name: "ok", Publisher: ok})

	err := p.PostDeleted(context.Background(), "p1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, 1, ok.count(), "healthy sinks still receive the event")
}

func TestPublisherRejectsInvalidEvent(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(Sink{Name: "sink", Publisher: sink})

	err := p.Publish(context.Background(), realtime.ChangeEvent{Op: realtime.OpDelete, Collection: realtime.CollectionPosts})
	assert.Error(t, err)
	assert.Equal(t, 0, sink.count())
}

func TestPublisherUpdateCarriesVersion(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(Sink{Name: "sink", Publisher: sink})

	post := samplePost()
	post.Version = 4
	require.NoError(t, p.PostUpdated(context.Background(), post, ""))
	require.Equal(t, 1, sink.count())
	assert.Equal(t, realtime.OpUpdate, sink.events[0].Op)
	assert.Equal(t, 4, sink.events[0].Version)
}
