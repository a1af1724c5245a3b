package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/zfogg/sparkfeed/internal/cache"
	"github.com/zfogg/sparkfeed/internal/logger"
	"go.uber.org/zap"
)

// RedisStream relays change events over Redis Pub/Sub, one channel per
// collection, so every server instance sees every change
type RedisStream struct {
	rc *cache.RedisClient
}

// NewRedisStream wraps a connected Redis client
func NewRedisStream(rc *cache.RedisClient) *RedisStream {
	return &RedisStream{rc: rc}
}

// Publish sends ev on its collection's channel
func (r *RedisStream) Publish(ctx context.Context, ev ChangeEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	return r.rc.Publish(ctx, Channel(ev.Collection), raw)
}

// Subscribe listens on collection's channel until Close or ctx ends
func (r *RedisStream) Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error) {
	ps := r.rc.Subscribe(ctx, Channel(collection))
	// The first reply confirms the subscription
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	sub := &redisSub{
		ps:   ps,
		ch:   make(chan ChangeEvent, subscriberBuffer),
		done: make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.run(filter)
	return sub, nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan ChangeEvent
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *redisSub) run(filter Filter) {
	defer s.wg.Done()
	defer close(s.ch)

	for msg := range s.ps.Channel() {
		var ev ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Log.Warn("Discarding malformed change event",
				zap.String("channel", msg.Channel),
				zap.Error(err),
			)
			continue
		}
		if !filter.Matches(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) Events() <-chan ChangeEvent {
	return s.ch
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		s.wg.Wait()
	})
	return err
}
