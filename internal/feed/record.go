package feed

import (
	"time"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/models"
)

// RecordState distinguishes unconfirmed local records from server records
type RecordState string

const (
	StateOptimistic RecordState = "optimistic"
	StateConfirmed  RecordState = "confirmed"
)

// Record is one cached feed entry. An optimistic record is addressed by
// TempID and has no ID; a confirmed record is addressed by the server ID.
type Record struct {
	State  RecordState `json:"state"`
	TempID string      `json:"temp_id,omitempty"`
	ID     string      `json:"id,omitempty"`

	// Origin is the local operation id that created the record, matched
	// against the origin tag on change events
	Origin string `json:"origin,omitempty"`

	Post models.Post `json:"post"`

	// Reactions known to this session, at most one per user
	Reactions []models.Reaction `json:"reactions,omitempty"`
	MyVote    *int              `json:"my_vote,omitempty"`
	Saved     bool              `json:"saved"`
}

// Key returns the identifier the record is currently addressed by
func (r Record) Key() string {
	if r.State == StateOptimistic {
		return r.TempID
	}
	return r.ID
}

// Pending reports whether the record still awaits server confirmation
func (r Record) Pending() bool {
	return r.State == StateOptimistic
}

// ReactionOf returns userID's reaction on the record
func (r Record) ReactionOf(userID string) models.ReactionKind {
	for _, reaction := range r.Reactions {
		if reaction.UserID == userID {
			return reaction.Kind
		}
	}
	return models.ReactionNone
}

// Clone returns a deep copy
func (r Record) Clone() Record {
	out := r
	out.Post = r.Post.Clone()
	out.Reactions = cloneReactions(r.Reactions)
	if r.MyVote != nil {
		vote := *r.MyVote
		out.MyVote = &vote
	}
	return out
}

func cloneReactions(in []models.Reaction) []models.Reaction {
	if in == nil {
		return nil
	}
	return append([]models.Reaction(nil), in...)
}

// confirmedRecord builds a cached record from a feed page item
func confirmedRecord(item dto.FeedItem, viewerID string) Record {
	rec := Record{
		State: StateConfirmed,
		ID:    item.Post.ID,
		Post:  item.Post.Clone(),
	}
	if item.MyReaction.Valid() && viewerID != "" {
		rec.Reactions = []models.Reaction{{
			PostID: item.Post.ID,
			UserID: viewerID,
			Kind:   item.MyReaction,
		}}
	}
	if item.MyVote != nil {
		vote := *item.MyVote
		rec.MyVote = &vote
	}
	return rec
}

// Draft is the input to Create
type Draft struct {
	Kind       models.PostKind
	Title      string
	Content    string
	Media      []string
	Visibility models.Visibility
	LinkURL    string
	EventAt    *time.Time
	Poll       *dto.PollDraft
}

// SparkEdit is an edit to a Knowledge Spark, positioned against the content
// the caller currently sees
type SparkEdit struct {
	Op       string
	Position int
	Length   int
	Text     string
}

// CommentRecord is a cached comment, optimistic until the server confirms it
type CommentRecord struct {
	State   RecordState    `json:"state"`
	TempID  string         `json:"temp_id,omitempty"`
	Origin  string         `json:"origin,omitempty"`
	Comment models.Comment `json:"comment"`
}

// Key returns the identifier the comment is currently addressed by
func (c CommentRecord) Key() string {
	if c.State == StateOptimistic {
		return c.TempID
	}
	return c.Comment.ID
}

// Thread is a top-level comment and its replies, in insertion order
type Thread struct {
	Comment CommentRecord   `json:"comment"`
	Replies []CommentRecord `json:"replies,omitempty"`
}

// Snapshot is an immutable view of the store handed to readers
type Snapshot struct {
	Version uint64          `json:"version"`
	Items   []Record        `json:"items"`
	Loading bool            `json:"loading"`
	HasMore bool            `json:"has_more"`
	Filters dto.PostFilters `json:"filters"`
}

// Find returns the record addressed by key (server or temporary id)
func (s Snapshot) Find(key string) (Record, bool) {
	for _, rec := range s.Items {
		if rec.Key() == key {
			return rec, true
		}
	}
	return Record{}, false
}
