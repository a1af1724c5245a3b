package events

import (
	"context"
	"fmt"

	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"go.uber.org/zap"
)

// Relay forwards every event from stream's collection into to until ctx is
// done or the subscription closes. Servers sharing Redis publish only to
// Redis and relay it into their local hub, so each hub sees every
// instance's writes exactly once.
func Relay(ctx context.Context, stream realtime.ChangeStream, collection string, to realtime.Publisher) error {
	sub, err := stream.Subscribe(ctx, collection, realtime.Filter{})
	if err != nil {
		return fmt.Errorf("subscribe %s relay: %w", collection, err)
	}
	defer sub.Close()
	logger.Log.Info("Realtime relay started", zap.String("collection", collection))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := to.Publish(ctx, ev); err != nil {
				logger.Log.Warn("Relay publish failed",
					logger.WithPostID(ev.ID()),
					zap.String("op", string(ev.Op)),
					zap.Error(err),
				)
			}
		}
	}
}
