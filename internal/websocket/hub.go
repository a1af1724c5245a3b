// Package websocket serves realtime change events to connected feed
// clients over github.com/coder/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/metrics"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"go.uber.org/zap"
)

// Hub maintains the set of subscribed clients and fans change events out to
// the ones whose filter matches.
type Hub struct {
	// Subscribed clients by collection
	clients map[string]map[*Client]struct{}

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Change events to fan out
	broadcast chan realtime.ChangeEvent

	// Mutex for client map access
	mu sync.RWMutex

	// Metrics
	metrics *Metrics

	// Shutdown handling
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Rate limiter config
	rateLimitConfig RateLimitConfig
}

// Metrics tracks WebSocket statistics
type Metrics struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig defines rate limiting parameters for client messages
type RateLimitConfig struct {
	// MaxMessagesPerSecond per client
	MaxMessagesPerSecond int
	// BurstSize allows short bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
	}
}

var _ realtime.Publisher = (*Hub)(nil)

// NewHub creates a new Hub instance
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		register:        make(chan *Client, 256),
		unregister:      make(chan *Client, 256),
		broadcast:       make(chan realtime.ChangeEvent, 256),
		metrics:         &Metrics{},
		ctx:             ctx,
		cancel:          cancel,
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// Start runs the hub's event loop in a goroutine
func (h *Hub) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.Run()
	}()
}

// Run is the hub's main event loop; it returns after Shutdown
func (h *Hub) Run() {
	logger.Log.Info("WebSocket hub starting")

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.broadcast:
			h.broadcastChange(ev)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.Collection] == nil {
		h.clients[client.Collection] = make(map[*Client]struct{})
	}
	h.clients[client.Collection][client] = struct{}{}

	h.metrics.TotalConnections.Add(1)
	h.metrics.ActiveConnections.Add(1)
	metrics.Get().RealtimeSubscribers.WithLabelValues(client.Collection).Inc()

	logger.Log.Info("Realtime subscriber connected",
		logger.WithUserID(client.UserID),
		zap.String("collection", client.Collection),
		zap.Int64("active", h.metrics.ActiveConnections.Load()),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.Collection]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.Collection)
	}

	// Close the client's send channel
	close(client.send)

	h.metrics.ActiveConnections.Add(-1)
	metrics.Get().RealtimeSubscribers.WithLabelValues(client.Collection).Dec()

	logger.Log.Info("Realtime subscriber disconnected",
		logger.WithUserID(client.UserID),
		zap.String("collection", client.Collection),
		zap.Int64("active", h.metrics.ActiveConnections.Load()),
	)
}

// broadcastChange sends ev to every client on its collection whose filter
// matches. A client whose buffer is full is dropped.
func (h *Hub) broadcastChange(ev realtime.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.clients[ev.Collection]
	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(NewChangeMessage(ev))
	if err != nil {
		logger.Log.Error("Failed to marshal change event", zap.String("record_id", ev.ID()), zap.Error(err))
		return
	}

	for client := range clients {
		if !client.Filter.Matches(ev) || !visibleTo(ev, client.UserID) {
			continue
		}
		select {
		case client.send <- data:
			h.metrics.MessagesSent.Add(1)
		default:
			h.metrics.ConnectionsDropped.Add(1)
			logger.Log.Warn("Dropping slow realtime subscriber", logger.WithUserID(client.UserID))
			go h.Unregister(client)
		}
	}
}

// visibleTo applies post visibility to the change stream. Every socket is
// signed in, so only private posts are withheld from non-authors.
func visibleTo(ev realtime.ChangeEvent, userID string) bool {
	if ev.Op == realtime.OpDelete {
		return true
	}
	return ev.Record.Visibility != models.VisibilityPrivate || ev.Record.UserID == userID
}

// Publish queues ev for delivery to subscribers
func (h *Hub) Publish(ctx context.Context, ev realtime.ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.ctx.Done():
		return fmt.Errorf("hub is shut down")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// SubscriberCount returns the number of clients on collection
func (h *Hub) SubscriberCount(collection string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[collection])
}

// GetMetrics returns current WebSocket metrics
func (h *Hub) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:   h.metrics.TotalConnections.Load(),
		ActiveConnections:  h.metrics.ActiveConnections.Load(),
		MessagesReceived:   h.metrics.MessagesReceived.Load(),
		MessagesSent:       h.metrics.MessagesSent.Load(),
		Errors:             h.metrics.Errors.Load(),
		ConnectionsDropped: h.metrics.ConnectionsDropped.Load(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

// String implements Stringer for MetricsSnapshot
func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		m.ActiveConnections, m.TotalConnections,
		m.MessagesReceived, m.MessagesSent,
		m.Errors, m.ConnectionsDropped,
	)
}

// Shutdown stops the event loop and closes every client
func (h *Hub) Shutdown(ctx context.Context) error {
	logger.Log.Info("Initiating WebSocket hub shutdown")
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, _ := json.Marshal(NewMessage(MessageTypeSystem, SystemPayload{Event: "server_shutdown"}))

	closed := 0
	for collection, clients := range h.clients {
		for client := range clients {
			select {
			case client.send <- data:
			default:
			}
			close(client.send)
			closed++
		}
		metrics.Get().RealtimeSubscribers.WithLabelValues(collection).Sub(float64(len(clients)))
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.metrics.ActiveConnections.Store(0)

	logger.Log.Info("WebSocket hub shut down", zap.Int("closed", closed), zap.Time("at", time.Now().UTC()))
}

// SetRateLimitConfig updates the rate limiting configuration
func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimitConfig = config
}

// GetRateLimitConfig returns the current rate limit configuration
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}
