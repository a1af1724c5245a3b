// Package realtime carries change notifications from the server to feed
// stores. A ChangeStream delivers ChangeEvents; a Bridge applies them to one
// feed.Store without fighting its optimistic state.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zfogg/sparkfeed/internal/models"
)

// Op is the kind of change an event describes
type Op string

const (
	OpInsert Op = "insert"
	OpDelete Op = "delete"
	OpUpdate Op = "update"
)

// CollectionPosts is the only collection feeds subscribe to today
const CollectionPosts = "posts"

// WireTypeChange is the websocket envelope type carrying a ChangeEvent
const WireTypeChange = "change"

// ChangeEvent is one change to a record. Record is populated for inserts and
// updates; deletes carry only RecordID.
type ChangeEvent struct {
	Op         Op          `json:"op"`
	Collection string      `json:"collection"`
	Record     models.Post `json:"record"`
	RecordID   string      `json:"record_id"`

	// Origin echoes the local operation id of the request that caused the
	// change, when the client sent one
	Origin  string    `json:"origin,omitempty"`
	Version int       `json:"version,omitempty"`
	At      time.Time `json:"at"`

	// Reaction is set on updates caused by a reaction change. Kind is empty
	// when the reaction was removed.
	Reaction *models.Reaction `json:"reaction,omitempty"`
}

// ID returns the id of the changed record
func (e ChangeEvent) ID() string {
	if e.RecordID != "" {
		return e.RecordID
	}
	return e.Record.ID
}

// Validate rejects events a subscriber cannot apply
func (e ChangeEvent) Validate() error {
	switch e.Op {
	case OpInsert, OpUpdate:
		if e.Record.ID == "" {
			return fmt.Errorf("%s event without a record", e.Op)
		}
	case OpDelete:
		if e.ID() == "" {
			return fmt.Errorf("delete event without a record id")
		}
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}
	return nil
}

// NewInsert builds an insert event for post
func NewInsert(post models.Post, origin string) ChangeEvent {
	return ChangeEvent{
		Op:         OpInsert,
		Collection: CollectionPosts,
		Record:     post,
		RecordID:   post.ID,
		Origin:     origin,
		Version:    post.Version,
		At:         time.Now().UTC(),
	}
}

// NewUpdate builds an update event for post
func NewUpdate(post models.Post, origin string) ChangeEvent {
	ev := NewInsert(post, origin)
	ev.Op = OpUpdate
	return ev
}

// NewDelete builds a delete event for a post id
func NewDelete(id, origin string) ChangeEvent {
	return ChangeEvent{
		Op:         OpDelete,
		Collection: CollectionPosts,
		RecordID:   id,
		Origin:     origin,
		At:         time.Now().UTC(),
	}
}

// Filter narrows a subscription. The zero Filter matches everything.
type Filter struct {
	UserID string            `json:"user_id,omitempty"`
	Kinds  []models.PostKind `json:"kinds,omitempty"`
}

// Matches reports whether ev passes the filter. Deletes always pass since
// the deleted record's fields are not known.
func (f Filter) Matches(ev ChangeEvent) bool {
	if ev.Op == OpDelete {
		return true
	}
	if f.UserID != "" && ev.Record.UserID != f.UserID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == ev.Record.Kind {
			return true
		}
	}
	return false
}

// Channel returns the Pub/Sub channel name for a collection
func Channel(collection string) string {
	return "changes:" + collection
}

// Envelope is the websocket frame the server writes to subscribers
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
