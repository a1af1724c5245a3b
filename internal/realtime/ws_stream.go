package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/zfogg/sparkfeed/internal/logger"
	"go.uber.org/zap"
)

// maxFrameSize bounds a single change envelope
const maxFrameSize = 512 * 1024

// WSStream subscribes to the server's realtime endpoint over a websocket
type WSStream struct {
	// URL is the endpoint, e.g. ws://localhost:8787/api/v1/realtime
	URL string

	// Token returns the bearer token to present; nil or "" connects
	// anonymously
	Token func() string

	HTTPClient *http.Client
}

// NewWSStream builds a stream for endpoint
func NewWSStream(endpoint string, token func() string) *WSStream {
	return &WSStream{URL: endpoint, Token: token}
}

// Subscribe dials the endpoint with the filter encoded as query parameters
func (w *WSStream) Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error) {
	u, err := url.Parse(w.URL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("collection", collection)
	if filter.UserID != "" {
		q.Set("user_id", filter.UserID)
	}
	for _, k := range filter.Kinds {
		q.Add("kind", string(k))
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if w.Token != nil {
		if token := w.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: w.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &wsSub{
		conn:   conn,
		ch:     make(chan ChangeEvent, subscriberBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(readCtx, filter)
	return sub, nil
}

type wsSub struct {
	conn   *websocket.Conn
	ch     chan ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *wsSub) run(ctx context.Context, filter Filter) {
	defer close(s.done)
	defer close(s.ch)

	for {
		var env Envelope
		if err := wsjson.Read(ctx, s.conn, &env); err != nil {
			status := websocket.CloseStatus(err)
			if ctx.Err() == nil && status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				logger.Log.Warn("Realtime connection lost", zap.Error(err))
			}
			return
		}
		if env.Type != WireTypeChange {
			continue
		}
		var ev ChangeEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			logger.Log.Warn("Discarding malformed change event", zap.Error(err))
			continue
		}
		if !filter.Matches(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *wsSub) Events() <-chan ChangeEvent {
	return s.ch
}

func (s *wsSub) Close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close(websocket.StatusNormalClosure, "unsubscribe")
		s.cancel()
		<-s.done
	})
	return err
}
