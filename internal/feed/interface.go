package feed

import (
	"context"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/models"
)

// Query is the read side of the persistence service
type Query interface {
	ListPosts(ctx context.Context, q dto.PageQuery) (*dto.PostPage, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// Mutations are the server endpoints, one per domain action
type Mutations interface {
	CreatePost(ctx context.Context, req dto.CreatePostRequest) (*models.Post, error)
	SetReaction(ctx context.Context, postID string, req dto.ReactionRequest) (*dto.ReactionResult, error)
	CastVote(ctx context.Context, postID string, req dto.VoteRequest) (*dto.VoteResult, error)
	AddComment(ctx context.Context, postID string, req dto.CommentRequest) (*models.Comment, error)
	SharePost(ctx context.Context, postID string, req dto.ShareRequest) (*dto.ShareResult, error)
	EditSpark(ctx context.Context, postID string, req dto.SparkEditRequest) (*dto.SparkEditResult, error)
}

// IdentityProvider reports who is acting. CurrentUser returns nil when
// nobody is signed in.
type IdentityProvider interface {
	CurrentUser() *models.Identity
}

// BlobStore uploads media and returns its public URL
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte) (string, error)
}
