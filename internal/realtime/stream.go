package realtime

import (
	"context"
	"sync"

	"github.com/zfogg/sparkfeed/internal/logger"
	"go.uber.org/zap"
)

// ChangeStream is a source of change events
type ChangeStream interface {
	Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error)
}

// Subscription is one open stream. Events is closed once the subscription
// ends, whether through Close or because the source went away.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Publisher fans a change event out to subscribers
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

var (
	_ ChangeStream = (*MemoryStream)(nil)
	_ Publisher    = (*MemoryStream)(nil)
	_ ChangeStream = (*RedisStream)(nil)
	_ Publisher    = (*RedisStream)(nil)
	_ ChangeStream = (*WSStream)(nil)
)

// subscriberBuffer bounds how far a subscriber may fall behind before it is
// dropped
const subscriberBuffer = 64

// MemoryStream is an in-process ChangeStream and Publisher
type MemoryStream struct {
	mu     sync.Mutex
	subs   map[int]*memorySub
	nextID int
}

// NewMemoryStream creates an empty stream
func NewMemoryStream() *MemoryStream {
	return &MemoryStream{subs: make(map[int]*memorySub)}
}

type memorySub struct {
	stream     *MemoryStream
	id         int
	collection string
	filter     Filter
	ch         chan ChangeEvent
	once       sync.Once
}

// Subscribe opens a subscription on collection
func (m *MemoryStream) Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub := &memorySub{
		stream:     m,
		id:         m.nextID,
		collection: collection,
		filter:     filter,
		ch:         make(chan ChangeEvent, subscriberBuffer),
	}
	m.subs[sub.id] = sub
	return sub, nil
}

// Publish delivers ev to every matching subscriber. A subscriber whose
// buffer is full is closed rather than allowed to block the publisher.
func (m *MemoryStream) Publish(ctx context.Context, ev ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sub := range m.subs {
		if sub.collection != ev.Collection || !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			logger.Log.Warn("Dropping slow change subscriber",
				zap.Int("subscriber", id),
				zap.String("collection", sub.collection),
			)
			delete(m.subs, id)
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	return nil
}

// Subscribers returns the number of open subscriptions
func (m *MemoryStream) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (s *memorySub) Events() <-chan ChangeEvent {
	return s.ch
}

func (s *memorySub) Close() error {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	delete(s.stream.subs, s.id)
	s.once.Do(func() { close(s.ch) })
	return nil
}
