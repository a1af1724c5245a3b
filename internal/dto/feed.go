package dto

import (
	"time"

	"github.com/zfogg/sparkfeed/internal/models"
)

// OwnerScope restricts a feed page by author
type OwnerScope string

const (
	OwnerAll    OwnerScope = "all"
	OwnerMine   OwnerScope = "mine"
	OwnerOthers OwnerScope = "others"
	OwnerUser   OwnerScope = "user" // a specific author, see PostFilters.UserID
)

// Valid reports whether s is a known scope. The empty scope means all.
func (s OwnerScope) Valid() bool {
	switch s {
	case "", OwnerAll, OwnerMine, OwnerOthers, OwnerUser:
		return true
	}
	return false
}

// PostFilters selects which posts a feed page holds
type PostFilters struct {
	Owner  OwnerScope        `form:"owner" json:"owner,omitempty"`
	UserID string            `form:"user_id" json:"user_id,omitempty"`
	Kinds  []models.PostKind `form:"kind" json:"kinds,omitempty"`
	Since  *time.Time        `form:"since" time_format:"2006-01-02T15:04:05Z07:00" json:"since,omitempty"`
}

// Matches reports whether post belongs in a feed using these filters, as
// seen by viewerID. It mirrors the repository's SQL filtering so realtime
// inserts land only in feeds that would have returned them.
func (f PostFilters) Matches(post models.Post, viewerID string) bool {
	switch f.Owner {
	case OwnerMine:
		if post.UserID != viewerID {
			return false
		}
	case OwnerOthers:
		if post.UserID == viewerID {
			return false
		}
	case OwnerUser:
		if post.UserID != f.UserID {
			return false
		}
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if k == post.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && post.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Clone returns a copy that shares no slices with f
func (f PostFilters) Clone() PostFilters {
	out := f
	if f.Kinds != nil {
		out.Kinds = append([]models.PostKind(nil), f.Kinds...)
	}
	if f.Since != nil {
		since := *f.Since
		out.Since = &since
	}
	return out
}

// PageQuery is one request against the feed query surface
type PageQuery struct {
	PostFilters
	Limit  int    `form:"limit" json:"limit,omitempty"`
	Cursor string `form:"cursor" json:"cursor,omitempty"`
}

// FeedItem is a post plus the viewer's own engagement with it
type FeedItem struct {
	Post       models.Post         `json:"post"`
	MyReaction models.ReactionKind `json:"my_reaction,omitempty"`
	MyVote     *int                `json:"my_vote,omitempty"`
}

// PostPage is one page of feed items
type PostPage struct {
	Items      []FeedItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

// PollDraft is the poll part of a new post
type PollDraft struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// CreatePostRequest creates a post. Origin is the creator's local operation
// id, echoed on the resulting change event.
type CreatePostRequest struct {
	Kind       models.PostKind   `json:"kind"`
	Title      string            `json:"title,omitempty"`
	Content    string            `json:"content"`
	Media      []string          `json:"media,omitempty"`
	Visibility models.Visibility `json:"visibility,omitempty"`
	LinkURL    string            `json:"link_url,omitempty"`
	EventAt    *time.Time        `json:"event_at,omitempty"`
	Poll       *PollDraft        `json:"poll,omitempty"`
	Origin     string            `json:"origin,omitempty"`
}

// ReactionRequest sets the caller's reaction; an empty kind removes it
type ReactionRequest struct {
	Kind   models.ReactionKind `json:"kind"`
	Origin string              `json:"origin,omitempty"`
}

// ReactionResult is the server's view after a reaction change
type ReactionResult struct {
	PostID         string                `json:"post_id"`
	Kind           models.ReactionKind   `json:"kind,omitempty"`
	Reaction       *models.Reaction      `json:"reaction,omitempty"`
	ReactionCounts models.ReactionCounts `json:"reaction_counts"`
	ReactionCount  int                   `json:"reaction_count"`
}

// VoteRequest casts or changes the caller's poll vote
type VoteRequest struct {
	OptionIndex int    `json:"option_index"`
	Origin      string `json:"origin,omitempty"`
}

// VoteResult carries the authoritative tallies after a vote
type VoteResult struct {
	PostID      string `json:"post_id"`
	OptionIndex int    `json:"option_index"`
	Tallies     []int  `json:"tallies"`
}

// CommentRequest adds a comment; ParentID makes it a reply
type CommentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id,omitempty"`
	Origin   string  `json:"origin,omitempty"`
}

// ShareRequest re-shares a post with an optional message
type ShareRequest struct {
	Message string `json:"message,omitempty"`
	Origin  string `json:"origin,omitempty"`
}

// ShareResult returns the share and the post's new share count
type ShareResult struct {
	Share      models.Share `json:"share"`
	ShareCount int          `json:"share_count"`
}

// SparkEditRequest is one operation against a Knowledge Spark document,
// expressed against BaseVersion
type SparkEditRequest struct {
	Op          string `json:"op"`
	Position    int    `json:"position"`
	Length      int    `json:"length,omitempty"`
	Text        string `json:"text,omitempty"`
	BaseVersion int    `json:"base_version"`
	Origin      string `json:"origin,omitempty"`
}

// SparkEditResult is the document after the edit was applied
type SparkEditResult struct {
	PostID  string `json:"post_id"`
	Content string `json:"content"`
	Version int    `json:"version"`
}

// UploadResponse is returned by the media upload endpoint
type UploadResponse struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}
