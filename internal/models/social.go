package models

import (
	"time"

	"gorm.io/gorm"
)

// ReactionKind identifies which reaction a user picked
type ReactionKind string

const (
	ReactionNone       ReactionKind = ""
	ReactionLike       ReactionKind = "like"
	ReactionLove       ReactionKind = "love"
	ReactionCelebrate  ReactionKind = "celebrate"
	ReactionInsightful ReactionKind = "insightful"
	ReactionFunny      ReactionKind = "funny"
	ReactionSupport    ReactionKind = "support"
)

// Valid reports whether k is a selectable reaction. ReactionNone is not.
func (k ReactionKind) Valid() bool {
	switch k {
	case ReactionLike, ReactionLove, ReactionCelebrate, ReactionInsightful, ReactionFunny, ReactionSupport:
		return true
	}
	return false
}

// Reaction is one user's reaction on one post; (post_id, user_id) is unique
type Reaction struct {
	ID        string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID    string       `gorm:"not null;uniqueIndex:idx_reactions_post_user" json:"post_id"`
	UserID    string       `gorm:"not null;uniqueIndex:idx_reactions_post_user" json:"user_id"`
	Kind      ReactionKind `gorm:"not null" json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (r *Reaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	return nil
}

// Comment is a comment on a post. ParentID is nil for top-level comments;
// only one level of nesting is displayed.
type Comment struct {
	ID      string   `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID  string   `gorm:"not null;index" json:"post_id"`
	UserID  string   `gorm:"not null;index" json:"user_id"`
	Author  *Profile `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Content string   `gorm:"type:text;not null" json:"content"`

	ParentID *string `gorm:"type:varchar(36);index" json:"parent_id,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Clone returns a deep copy
func (c Comment) Clone() Comment {
	out := c
	if c.Author != nil {
		author := *c.Author
		out.Author = &author
	}
	if c.ParentID != nil {
		parent := *c.ParentID
		out.ParentID = &parent
	}
	return out
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

// SparkVersion is one accepted edit in a Knowledge Spark's history
type SparkVersion struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID   string `gorm:"not null;uniqueIndex:idx_spark_versions_post_version" json:"post_id"`
	Version  int    `gorm:"not null;uniqueIndex:idx_spark_versions_post_version" json:"version"`
	EditorID string `gorm:"not null" json:"editor_id"`
	OpType   string `gorm:"not null" json:"op_type"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
	Text     string `gorm:"type:text" json:"text,omitempty"`
	Content  string `gorm:"type:text" json:"content"`

	CreatedAt time.Time `json:"created_at"`
}

func (v *SparkVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = generateUUID()
	}
	return nil
}
