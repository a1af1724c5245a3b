package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostKind classifies the primary content of a post
type PostKind string

const (
	KindText  PostKind = "text"
	KindImage PostKind = "image"
	KindVideo PostKind = "video"
	KindPoll  PostKind = "poll"
	KindEvent PostKind = "event"
	KindLink  PostKind = "link"
	KindSpark PostKind = "spark" // Knowledge Spark: collaboratively edited document
)

// AllKinds lists every post kind the feed understands
var AllKinds = []PostKind{KindText, KindImage, KindVideo, KindPoll, KindEvent, KindLink, KindSpark}

// Valid reports whether k is a known kind
func (k PostKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Visibility controls who can see a post
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFollowers, VisibilityPrivate:
		return true
	}
	return false
}

// ReactionCounts maps reaction kind to the number of users who chose it
type ReactionCounts map[ReactionKind]int

// Clone returns an independent copy
func (rc ReactionCounts) Clone() ReactionCounts {
	if rc == nil {
		return nil
	}
	out := make(ReactionCounts, len(rc))
	for k, v := range rc {
		out[k] = v
	}
	return out
}

// Total sums all reaction kinds
func (rc ReactionCounts) Total() int {
	total := 0
	for _, v := range rc {
		total += v
	}
	return total
}

// Post is a feed record: text, media, poll, event, link or Knowledge Spark
type Post struct {
	ID     string   `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID string   `gorm:"not null;index" json:"user_id"`
	Author *Profile `gorm:"foreignKey:UserID" json:"author,omitempty"`

	Kind       PostKind   `gorm:"not null;index;default:text" json:"kind"`
	Title      string     `json:"title,omitempty"`
	Content    string     `gorm:"type:text" json:"content"`
	Media      []string   `gorm:"type:text;serializer:json" json:"media,omitempty"`
	Visibility Visibility `gorm:"not null;default:public" json:"visibility"`
	LinkURL    string     `json:"link_url,omitempty"`
	EventAt    *time.Time `json:"event_at,omitempty"`
	Poll       *Poll      `gorm:"type:text;serializer:json" json:"poll,omitempty"`

	// Engagement counters; the server values are authoritative
	ReactionCount  int            `gorm:"default:0" json:"reaction_count"`
	ReactionCounts ReactionCounts `gorm:"type:text;serializer:json" json:"reaction_counts,omitempty"`
	CommentCount   int            `gorm:"default:0" json:"comment_count"`
	ShareCount     int            `gorm:"default:0" json:"share_count"`

	// Spark document version, bumped by every accepted edit
	Version int `gorm:"default:0" json:"version"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Clone returns a deep copy so snapshots never share mutable state
func (p Post) Clone() Post {
	out := p
	if p.Author != nil {
		author := *p.Author
		out.Author = &author
	}
	if p.Media != nil {
		out.Media = append([]string(nil), p.Media...)
	}
	if p.EventAt != nil {
		at := *p.EventAt
		out.EventAt = &at
	}
	if p.Poll != nil {
		poll := p.Poll.Clone()
		out.Poll = &poll
	}
	out.ReactionCounts = p.ReactionCounts.Clone()
	return out
}

// BeforeCreate hooks for GORM
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	if p.Visibility == "" {
		p.Visibility = VisibilityPublic
	}
	return nil
}

// Share records a user re-sharing a post
type Share struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID    string    `gorm:"not null;index" json:"post_id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	Message   string    `gorm:"type:text" json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Share) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = generateUUID()
	}
	return nil
}

// Helper function for UUID generation
func generateUUID() string {
	return uuid.New().String()
}
