// Package events fans post change events out to every realtime transport the
// server runs: the local websocket hub, Redis Pub/Sub for other instances,
// and in-process subscribers.
package events

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/metrics"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"github.com/zfogg/sparkfeed/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink is a named publisher the fan-out writes to
type Sink struct {
	Name      string
	Publisher realtime.Publisher
}

// Publisher delivers each change event to all sinks concurrently. A failing
// sink does not stop the others.
type Publisher struct {
	sinks []Sink
}

var _ realtime.Publisher = (*Publisher)(nil)

// NewPublisher creates a fan-out over sinks. Sinks with a nil publisher are
// skipped so optional transports can be passed unconditionally.
func NewPublisher(sinks ...Sink) *Publisher {
	p := &Publisher{}
	for _, s := range sinks {
		if s.Publisher != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

// Sinks returns the names of the configured sinks
func (p *Publisher) Sinks() []string {
	names := make([]string, len(p.sinks))
	for i, s := range p.sinks {
		names[i] = s.Name
	}
	return names
}

// Publish sends ev to every sink and joins their errors
func (p *Publisher) Publish(ctx context.Context, ev realtime.ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	ctx, span := telemetry.GetBusinessEvents().TracePublish(ctx, ev.Collection, string(ev.Op))
	defer span.End()

	errs := make([]error, len(p.sinks))
	var g errgroup.Group
	for i, s := range p.sinks {
		g.Go(func() error {
			if err := s.Publisher.Publish(ctx, ev); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name, err)
				logger.Log.Warn("Change event publish failed",
					zap.String("sink", s.Name),
					logger.WithPostID(ev.ID()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.Get().RealtimeEventsPublished.WithLabelValues(ev.Collection, string(ev.Op)).Inc()

	err := stderrors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
	}
	return err
}

// PostCreated publishes an insert for post tagged with the writer's origin
func (p *Publisher) PostCreated(ctx context.Context, post models.Post, origin string) error {
	return p.Publish(ctx, realtime.NewInsert(post, origin))
}

// PostUpdated publishes an update for post
func (p *Publisher) PostUpdated(ctx context.Context, post models.Post, origin string) error {
	return p.Publish(ctx, realtime.NewUpdate(post, origin))
}

// PostDeleted publishes a delete for the post id
func (p *Publisher) PostDeleted(ctx context.Context, id, origin string) error {
	return p.Publish(ctx, realtime.NewDelete(id, origin))
}
