// Package repository is the persistence layer behind the HTTP API: feed
// queries, post creation and the engagement mutations.
package repository

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/models"
	"gorm.io/gorm"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PostRepository handles feed queries and post lifecycle
type PostRepository interface {
	ListPosts(ctx context.Context, viewerID string, q dto.PageQuery) (*dto.PostPage, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	CreatePost(ctx context.Context, authorID string, req dto.CreatePostRequest) (*models.Post, error)
	DeletePost(ctx context.Context, userID, id string) error
	CountPosts(ctx context.Context) (int64, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// ListPosts returns one page of posts, newest first. Paging is keyset on
// (created_at, id) so concurrent inserts never shift a page.
func (r *postRepository) ListPosts(ctx context.Context, viewerID string, q dto.PageQuery) (*dto.PostPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if !q.Owner.Valid() {
		return nil, errors.ValidationError("owner", "unknown owner scope")
	}
	for _, k := range q.Kinds {
		if !k.Valid() {
			return nil, errors.ValidationError("kind", "unknown post kind")
		}
	}
	cursor, err := DecodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}

	tx := r.db.WithContext(ctx).Model(&models.Post{}).Preload("Author")

	// Visibility: public to everyone, followers-only to signed-in viewers,
	// private to the author
	if viewerID == "" {
		tx = tx.Where("visibility = ?", models.VisibilityPublic)
	} else {
		tx = tx.Where("(visibility IN ? OR user_id = ?)",
			[]models.Visibility{models.VisibilityPublic, models.VisibilityFollowers}, viewerID)
	}

	switch q.Owner {
	case dto.OwnerMine:
		if viewerID == "" {
			return nil, errors.AuthRequired("sign in to list your own posts")
		}
		tx = tx.Where("user_id = ?", viewerID)
	case dto.OwnerOthers:
		if viewerID != "" {
			tx = tx.Where("user_id <> ?", viewerID)
		}
	case dto.OwnerUser:
		if q.UserID == "" {
			return nil, errors.ValidationError("user_id", "user_id is required for the user scope")
		}
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if len(q.Kinds) > 0 {
		tx = tx.Where("kind IN ?", q.Kinds)
	}
	if q.Since != nil {
		tx = tx.Where("created_at >= ?", q.Since.UTC())
	}
	if cursor != nil {
		tx = tx.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var posts []models.Post
	if err := tx.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&posts).Error; err != nil {
		return nil, err
	}

	page := &dto.PostPage{Items: make([]dto.FeedItem, 0, len(posts))}
	if len(posts) > limit {
		posts = posts[:limit]
		page.HasMore = true
		last := posts[len(posts)-1]
		page.NextCursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}

	reactions, votes, err := r.viewerEngagement(ctx, viewerID, posts)
	if err != nil {
		return nil, err
	}
	for _, post := range posts {
		publicAuthor(&post)
		item := dto.FeedItem{Post: post, MyReaction: reactions[post.ID]}
		if v, ok := votes[post.ID]; ok {
			vote := v
			item.MyVote = &vote
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// viewerEngagement loads the viewer's own reactions and votes on posts
func (r *postRepository) viewerEngagement(ctx context.Context, viewerID string, posts []models.Post) (map[string]models.ReactionKind, map[string]int, error) {
	reactions := make(map[string]models.ReactionKind)
	votes := make(map[string]int)
	if viewerID == "" || len(posts) == 0 {
		return reactions, votes, nil
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	var rs []models.Reaction
	if err := r.db.WithContext(ctx).Where("user_id = ? AND post_id IN ?", viewerID, ids).Find(&rs).Error; err != nil {
		return nil, nil, err
	}
	for _, reaction := range rs {
		reactions[reaction.PostID] = reaction.Kind
	}

	var vs []models.Vote
	if err := r.db.WithContext(ctx).Where("user_id = ? AND post_id IN ?", viewerID, ids).Find(&vs).Error; err != nil {
		return nil, nil, err
	}
	for _, v := range vs {
		votes[v.PostID] = v.OptionIndex
	}
	return reactions, votes, nil
}

// GetPost loads one post with its author
func (r *postRepository) GetPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := loadPost(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	publicAuthor(post)
	return post, nil
}

// CreatePost stores a validated request as a new post by authorID
func (r *postRepository) CreatePost(ctx context.Context, authorID string, req dto.CreatePostRequest) (*models.Post, error) {
	kind := req.Kind
	if kind == "" {
		kind = models.KindText
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	post := &models.Post{
		UserID:     authorID,
		Kind:       kind,
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		Media:      req.Media,
		Visibility: visibility,
		LinkURL:    strings.TrimSpace(req.LinkURL),
		EventAt:    req.EventAt,
	}
	if req.Poll != nil {
		poll := &models.Poll{Question: strings.TrimSpace(req.Poll.Question)}
		for _, opt := range req.Poll.Options {
			poll.Options = append(poll.Options, models.PollOption{Text: strings.TrimSpace(opt)})
		}
		poll.ApplyTallies(nil)
		post.Poll = poll
	}

	if err := r.db.WithContext(ctx).Omit("Author").Create(post).Error; err != nil {
		return nil, err
	}
	return r.GetPost(ctx, post.ID)
}

// DeletePost soft deletes a post. Only its author may delete it.
func (r *postRepository) DeletePost(ctx context.Context, userID, id string) error {
	post, err := loadPost(r.db.WithContext(ctx), id)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		return errors.Forbidden("only the author may delete a post")
	}
	return r.db.WithContext(ctx).Delete(&models.Post{}, "id = ?", id).Error
}

// CountPosts returns the number of live posts
func (r *postRepository) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Post{}).Count(&count).Error
	return count, err
}

func loadPost(tx *gorm.DB, id string) (*models.Post, error) {
	var post models.Post
	err := tx.Preload("Author").Where("id = ?", id).First(&post).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("post")
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func publicAuthor(post *models.Post) {
	if post.Author != nil {
		author := post.Author.Public()
		post.Author = &author
	}
}
