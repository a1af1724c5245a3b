package client

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/models"
)

// ListPosts fetches one feed page
func (c *Client) ListPosts(ctx context.Context, q dto.PageQuery) (*dto.PostPage, error) {
	params := map[string]string{}
	if q.Owner != "" {
		params["owner"] = string(q.Owner)
	}
	if q.UserID != "" {
		params["user_id"] = q.UserID
	}
	if len(q.Kinds) > 0 {
		kinds := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			kinds[i] = string(k)
		}
		params["kind"] = strings.Join(kinds, ",")
	}
	if q.Since != nil {
		params["since"] = q.Since.UTC().Format(time.RFC3339)
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}
	if q.Cursor != "" {
		params["cursor"] = q.Cursor
	}

	var page dto.PostPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&page).
		Get("/api/v1/posts")
	if err := check("list posts", resp, err); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetPost fetches one post
func (c *Client) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&post).
		Get("/api/v1/posts/{id}")
	if err := check("get post", resp, err); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListComments fetches a post's comments, oldest first
func (c *Client) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var out struct {
		Comments []models.Comment `json:"comments"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetResult(&out).
		Get("/api/v1/posts/{id}/comments")
	if err := check("list comments", resp, err); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

// GetProfile fetches a public profile
func (c *Client) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var out dto.ProfileResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/api/v1/profiles/{id}")
	if err := check("get profile", resp, err); err != nil {
		return nil, err
	}
	return out.ToProfile(), nil
}

// CreatePost publishes a post
func (c *Client) CreatePost(ctx context.Context, req dto.CreatePostRequest) (*models.Post, error) {
	var post models.Post
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&post).
		Post("/api/v1/posts")
	if err := check("create post", resp, err); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes one of the caller's posts
func (c *Client) DeletePost(ctx context.Context, postID, origin string) error {
	r := c.http.R().SetContext(ctx).SetPathParam("id", postID)
	if origin != "" {
		r.SetQueryParam("origin", origin)
	}
	resp, err := r.Delete("/api/v1/posts/{id}")
	return check("delete post", resp, err)
}

// SetReaction sets or clears the caller's reaction
func (c *Client) SetReaction(ctx context.Context, postID string, req dto.ReactionRequest) (*dto.ReactionResult, error) {
	var out dto.ReactionResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetBody(req).
		SetResult(&out).
		Put("/api/v1/posts/{id}/reaction")
	if err := check("set reaction", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// CastVote casts or moves the caller's poll vote
func (c *Client) CastVote(ctx context.Context, postID string, req dto.VoteRequest) (*dto.VoteResult, error) {
	var out dto.VoteResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/posts/{id}/votes")
	if err := check("cast vote", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddComment comments on a post or replies to a comment
func (c *Client) AddComment(ctx context.Context, postID string, req dto.CommentRequest) (*models.Comment, error) {
	var out models.Comment
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/posts/{id}/comments")
	if err := check("add comment", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// SharePost re-shares a post
func (c *Client) SharePost(ctx context.Context, postID string, req dto.ShareRequest) (*dto.ShareResult, error) {
	var out dto.ShareResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/posts/{id}/shares")
	if err := check("share post", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditSpark submits one Knowledge Spark edit
func (c *Client) EditSpark(ctx context.Context, postID string, req dto.SparkEditRequest) (*dto.SparkEditResult, error) {
	var out dto.SparkEditResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/sparks/{id}/edits")
	if err := check("edit spark", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// SparkHistory lists the versions of a spark after since
func (c *Client) SparkHistory(ctx context.Context, postID string, since int) ([]models.SparkVersion, error) {
	var out struct {
		Versions []models.SparkVersion `json:"versions"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", postID).
		SetQueryParam("since", strconv.Itoa(since)).
		SetResult(&out).
		Get("/api/v1/sparks/{id}/edits")
	if err := check("spark history", resp, err); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

// Upload implements feed.BlobStore. The server picks the final object path,
// so only the file name of path is sent.
func (c *Client) Upload(ctx context.Context, path string, data []byte) (string, error) {
	var out dto.UploadResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(path), bytes.NewReader(data)).
		SetResult(&out).
		Post("/api/v1/uploads")
	if err := check("upload media", resp, err); err != nil {
		return "", err
	}
	return out.URL, nil
}
