package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zfogg/sparkfeed/internal/client"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"go.uber.org/zap"
)

var (
	signInEmail    string
	signInPassword string
)

// session is a signed-in client with a feed store over it
type session struct {
	client  *client.Client
	store   *feed.Store
	authors *realtime.AuthorCache
}

// newSession connects to the API. --email and --password sign in; otherwise
// a --token is resumed, and with neither the session is anonymous.
func newSession(ctx context.Context) (*session, error) {
	c := client.New(client.Options{BaseURL: apiURL, Token: authToken})

	switch {
	case signInEmail != "":
		if _, err := c.SignIn(ctx, signInEmail, signInPassword); err != nil {
			return nil, fmt.Errorf("sign in: %w", err)
		}
	case c.Token() != "":
		if _, err := c.Me(ctx); err != nil {
			return nil, fmt.Errorf("resume session: %w", err)
		}
	}
	if u := c.CurrentUser(); u != nil {
		logger.Log.Debug("Session ready", logger.WithUserID(u.ID), zap.String("api", apiURL))
	}

	store := feed.New(feed.Deps{
		Query:     c,
		Mutations: c,
		Identity:  c,
		Blobs:     c,
	})
	return &session{
		client:  c,
		store:   store,
		authors: realtime.NewAuthorCache(c, nil, realtime.DefaultAuthorTTL),
	}, nil
}

func (s *session) Close() {
	s.store.Dispose()
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
	}
}
