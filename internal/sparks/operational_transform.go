// Package sparks implements the edit model for Knowledge Sparks: documents
// that several users edit concurrently. Edits are expressed against a base
// version and transformed over everything committed since, so two people
// typing into the same spark both land their changes.
package sparks

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// OpType is the kind of edit
type OpType string

const (
	OpInsert  OpType = "insert"
	OpDelete  OpType = "delete"
	OpReplace OpType = "replace" // rewrites the whole document; author only
)

var (
	// ErrReplaceNotAuthor is returned when someone other than the author replaces a spark
	ErrReplaceNotAuthor = errors.New("only the original author may replace a spark")

	// ErrReplacedConcurrently is returned when an edit's base was superseded by a replace
	ErrReplacedConcurrently = errors.New("spark was replaced since the edit's base version")

	// ErrOutOfRange is returned when an edit addresses text outside the document
	ErrOutOfRange = errors.New("edit range out of bounds")

	// ErrInvalidOp is returned for malformed operations
	ErrInvalidOp = errors.New("invalid spark operation")
)

// Operation is a single edit. Position and Length count runes, not bytes.
type Operation struct {
	Type        OpType `json:"op"`
	EditorID    string `json:"editor_id,omitempty"`
	Position    int    `json:"position"`
	Length      int    `json:"length,omitempty"`
	Text        string `json:"text,omitempty"`
	BaseVersion int    `json:"base_version"`

	// Version is assigned when the server commits the operation
	Version int `json:"version,omitempty"`
}

// Validate checks an operation's shape without looking at any document
func Validate(op Operation) error {
	switch op.Type {
	case OpInsert:
		if op.Text == "" {
			return fmt.Errorf("%w: insert needs text", ErrInvalidOp)
		}
	case OpDelete:
		if op.Length <= 0 {
			return fmt.Errorf("%w: delete needs a positive length", ErrInvalidOp)
		}
	case OpReplace:
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOp, op.Type)
	}
	if op.Position < 0 {
		return fmt.Errorf("%w: negative position", ErrInvalidOp)
	}
	if op.BaseVersion < 0 {
		return fmt.Errorf("%w: negative base version", ErrInvalidOp)
	}
	return nil
}

// Authorize enforces that only the author may replace a document
func Authorize(op Operation, authorID string) error {
	if op.Type == OpReplace && op.EditorID != authorID {
		return ErrReplaceNotAuthor
	}
	return nil
}

// Apply returns content with op applied
func Apply(content string, op Operation) (string, error) {
	if err := Validate(op); err != nil {
		return "", err
	}
	if op.Type == OpReplace {
		return op.Text, nil
	}

	runes := []rune(content)
	switch op.Type {
	case OpInsert:
		if op.Position > len(runes) {
			return "", fmt.Errorf("%w: insert at %d in document of length %d", ErrOutOfRange, op.Position, len(runes))
		}
		out := make([]rune, 0, len(runes)+utf8.RuneCountInString(op.Text))
		out = append(out, runes[:op.Position]...)
		out = append(out, []rune(op.Text)...)
		out = append(out, runes[op.Position:]...)
		return string(out), nil

	default: // OpDelete
		end := op.Position + op.Length
		if end > len(runes) {
			return "", fmt.Errorf("%w: delete [%d:%d] in document of length %d", ErrOutOfRange, op.Position, end, len(runes))
		}
		out := make([]rune, 0, len(runes)-op.Length)
		out = append(out, runes[:op.Position]...)
		out = append(out, runes[end:]...)
		return string(out), nil
	}
}

// Transform rewrites op so it applies on top of committed, an operation that
// was committed after op's base version. At equal insert positions the
// committed text stays first.
func Transform(op, committed Operation) (Operation, error) {
	if committed.Type == OpReplace {
		return op, ErrReplacedConcurrently
	}
	if op.Type == OpReplace {
		return op, nil
	}

	out := op
	committedLen := utf8.RuneCountInString(committed.Text)

	switch {
	case op.Type == OpInsert && committed.Type == OpInsert:
		if committed.Position <= op.Position {
			out.Position += committedLen
		}

	case op.Type == OpInsert && committed.Type == OpDelete:
		switch {
		case op.Position <= committed.Position:
		case op.Position >= committed.Position+committed.Length:
			out.Position -= committed.Length
		default:
			// Insert point was deleted; land at the start of the gap
			out.Position = committed.Position
		}

	case op.Type == OpDelete && committed.Type == OpInsert:
		switch {
		case committed.Position <= op.Position:
			out.Position += committedLen
		case committed.Position < op.Position+op.Length:
			// Text inserted inside the range is deleted with it
			out.Length += committedLen
		}

	case op.Type == OpDelete && committed.Type == OpDelete:
		opEnd := op.Position + op.Length
		committedEnd := committed.Position + committed.Length
		before := max(0, min(op.Position, committedEnd)-committed.Position)
		overlap := max(0, min(opEnd, committedEnd)-max(op.Position, committed.Position))
		out.Position -= before
		out.Length -= overlap
	}

	if out.Position < 0 {
		out.Position = 0
	}
	return out, nil
}

// Rebase transforms op over every operation in history committed after its
// base version. History must be ordered by Version.
func Rebase(op Operation, history []Operation) (Operation, error) {
	out := op
	for _, committed := range history {
		if committed.Version <= op.BaseVersion {
			continue
		}
		var err error
		out, err = Transform(out, committed)
		if err != nil {
			return op, err
		}
	}
	return out, nil
}

// Noop reports whether op no longer changes anything, e.g. a delete whose
// whole range was already deleted concurrently
func Noop(op Operation) bool {
	return op.Type == OpDelete && op.Length <= 0
}
