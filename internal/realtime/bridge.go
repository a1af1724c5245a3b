package realtime

import (
	"context"
	"sync"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/metrics"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/telemetry"
	"go.uber.org/zap"
)

// Bridge applies a change stream to one feed store. The subscription is
// opened by Ensure and torn down by Close; a bridge is never shared between
// stores.
type Bridge struct {
	store    *feed.Store
	stream   ChangeStream
	authors  *AuthorCache
	identity feed.IdentityProvider

	mu        sync.Mutex
	sub       Subscription
	done      chan struct{}
	cancel    context.CancelFunc
	filter    Filter
	filterSet bool

	appMetrics *metrics.ApplicationMetrics
	events     *telemetry.BusinessEvents
}

// NewBridge wires store to stream. authors and identity may be nil.
func NewBridge(store *feed.Store, stream ChangeStream, authors *AuthorCache, identity feed.IdentityProvider) *Bridge {
	return &Bridge{
		store:      store,
		stream:     stream,
		authors:    authors,
		identity:   identity,
		appMetrics: metrics.App(),
		events:     telemetry.GetBusinessEvents(),
	}
}

// Ensure opens the subscription if it is not already open. Calling it
// again while subscribed does nothing.
func (b *Bridge) Ensure(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return nil
	}
	if b.store.Disposed() {
		return errors.BadRequest("feed store is disposed")
	}

	filter := b.filter
	if !b.filterSet {
		filter = b.filterFromStore()
	}
	sub, err := b.stream.Subscribe(ctx, CollectionPosts, filter)
	if err != nil {
		return errors.Normalize("realtime.subscribe", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	b.sub, b.done, b.cancel = sub, done, cancel
	go b.run(runCtx, sub, done)

	logger.Log.Debug("Realtime subscription opened",
		zap.String("collection", CollectionPosts),
		zap.String("filter_user", filter.UserID),
		zap.Int("filter_kinds", len(filter.Kinds)),
	)
	return nil
}

// Subscribed reports whether a subscription is open
func (b *Bridge) Subscribed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub != nil
}

// Close tears the subscription down and waits for in-flight events to
// finish applying. Ensure may be called again afterwards.
func (b *Bridge) Close() error {
	b.mu.Lock()
	sub, done, cancel := b.sub, b.done, b.cancel
	b.sub, b.done, b.cancel = nil, nil, nil
	b.mu.Unlock()
	if sub == nil {
		return nil
	}
	err := sub.Close()
	cancel()
	<-done
	return err
}

// SetFilter replaces the subscription filter. An open subscription is
// reopened with the new filter.
func (b *Bridge) SetFilter(ctx context.Context, f Filter) error {
	b.mu.Lock()
	b.filter = f
	b.filterSet = true
	active := b.sub != nil
	b.mu.Unlock()
	if !active {
		return nil
	}
	if err := b.Close(); err != nil {
		logger.Log.Warn("Closing realtime subscription failed", zap.Error(err))
	}
	return b.Ensure(ctx)
}

func (b *Bridge) filterFromStore() Filter {
	pf := b.store.Filters()
	f := Filter{Kinds: pf.Kinds}
	switch pf.Owner {
	case dto.OwnerUser:
		f.UserID = pf.UserID
	case dto.OwnerMine:
		f.UserID = b.currentUserID()
	}
	return f
}

func (b *Bridge) run(ctx context.Context, sub Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.Events() {
		b.Apply(ctx, ev)
	}

	// The source ended on its own; let a later Ensure resubscribe
	b.mu.Lock()
	if b.sub == sub {
		b.sub, b.done = nil, nil
		if b.cancel != nil {
			b.cancel()
			b.cancel = nil
		}
		logger.Log.Info("Realtime subscription ended by source",
			zap.String("collection", CollectionPosts),
		)
	}
	b.mu.Unlock()
}

// Apply merges one event into the store and returns what was done with it
func (b *Bridge) Apply(ctx context.Context, ev ChangeEvent) string {
	ctx, span := b.events.TraceChangeEvent(ctx, ev.Collection, string(ev.Op), ev.ID())
	defer span.End()

	result := b.apply(ctx, ev)
	b.appMetrics.RealtimeEventsTotal.WithLabelValues(string(ev.Op), result).Inc()
	logger.Log.Debug("Applied change event",
		zap.String("op", string(ev.Op)),
		logger.WithPostID(ev.ID()),
		logger.WithOrigin(ev.Origin),
		zap.String("result", result),
	)
	return result
}

// Results reported by Apply
const (
	ResultInserted   = "inserted"
	ResultReconciled = "reconciled"
	ResultUpdated    = "updated"
	ResultDeleted    = "deleted"
	ResultIgnored    = "ignored"
	ResultOwn        = "own"
	ResultInvalid    = "invalid"
)

func (b *Bridge) apply(ctx context.Context, ev ChangeEvent) string {
	if err := ev.Validate(); err != nil {
		logger.Log.Warn("Discarding invalid change event", zap.Error(err))
		return ResultInvalid
	}
	if ev.Collection != "" && ev.Collection != CollectionPosts {
		return ResultIgnored
	}

	switch ev.Op {
	case OpInsert:
		if b.store.IsLocalOrigin(ev.Origin) {
			if b.store.ApplyRemoteInsert(ev.Record, ev.Origin) {
				return ResultReconciled
			}
			return ResultIgnored
		}
		// Without an origin the only signal is authorship; our own posts
		// arrive through the optimistic path
		if ev.Origin == "" && ev.Record.UserID != "" && ev.Record.UserID == b.currentUserID() {
			return ResultOwn
		}
		post := ev.Record.Clone()
		b.attachAuthor(ctx, &post)
		if b.store.ApplyRemoteInsert(post, ev.Origin) {
			return ResultInserted
		}
		return ResultIgnored

	case OpUpdate:
		updated := b.store.ApplyRemoteUpdate(ev.Record, ev.Origin)
		if ev.Reaction != nil && b.store.ApplyRemoteReaction(*ev.Reaction) {
			updated = true
		}
		if updated {
			return ResultUpdated
		}
		return ResultIgnored

	case OpDelete:
		if b.store.ApplyRemoteDelete(ev.ID()) {
			return ResultDeleted
		}
		return ResultIgnored
	}
	return ResultInvalid
}

// attachAuthor fills post.Author from the store's records, then the author
// cache. A lookup failure leaves a placeholder so the post still renders.
func (b *Bridge) attachAuthor(ctx context.Context, post *models.Post) {
	if post.Author != nil && post.Author.DisplayName != "" {
		if b.authors != nil {
			b.authors.Put(*post.Author)
		}
		return
	}
	if author, ok := b.store.AuthorOf(post.UserID); ok {
		b.appMetrics.AuthorCacheLookups.WithLabelValues("store").Inc()
		post.Author = author
		return
	}
	if b.authors != nil {
		author, err := b.authors.Get(ctx, post.UserID)
		if err == nil {
			post.Author = author
			return
		}
		logger.Log.Warn("Author lookup failed",
			logger.WithUserID(post.UserID),
			logger.WithPostID(post.ID),
			zap.Error(err),
		)
	}
	post.Author = &models.Profile{ID: post.UserID}
}

func (b *Bridge) currentUserID() string {
	if b.identity == nil {
		return ""
	}
	if user := b.identity.CurrentUser(); user != nil {
		return user.ID
	}
	return ""
}
