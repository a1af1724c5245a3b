package repository

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxCommentLength bounds a comment body in runes
const MaxCommentLength = 2000

// EngagementRepository handles reactions, votes, comments and shares. Each
// mutation updates the post's denormalized counters in the same transaction.
type EngagementRepository interface {
	SetReaction(ctx context.Context, postID, userID string, kind models.ReactionKind) (*dto.ReactionResult, error)
	CastVote(ctx context.Context, postID, userID string, optionIndex int) (*dto.VoteResult, error)
	AddComment(ctx context.Context, postID, userID string, req dto.CommentRequest) (*models.Comment, error)
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	SharePost(ctx context.Context, postID, userID, message string) (*dto.ShareResult, error)
}

type engagementRepository struct {
	db *gorm.DB
}

// NewEngagementRepository creates a new engagement repository
func NewEngagementRepository(db *gorm.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

// SetReaction sets userID's single reaction on a post. ReactionNone removes
// it.
func (r *engagementRepository) SetReaction(ctx context.Context, postID, userID string, kind models.ReactionKind) (*dto.ReactionResult, error) {
	if kind != models.ReactionNone && !kind.Valid() {
		return nil, errors.ValidationError("kind", "unknown reaction")
	}

	result := &dto.ReactionResult{PostID: postID, Kind: kind}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadPost(tx, postID); err != nil {
			return err
		}

		if kind == models.ReactionNone {
			if err := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Reaction{}).Error; err != nil {
				return err
			}
		} else {
			reaction := &models.Reaction{PostID: postID, UserID: userID, Kind: kind}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "post_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"kind", "updated_at"}),
			}).Create(reaction).Error
			if err != nil {
				return err
			}
			var stored models.Reaction
			if err := tx.Where("post_id = ? AND user_id = ?", postID, userID).First(&stored).Error; err != nil {
				return err
			}
			result.Reaction = &stored
		}

		counts, err := reactionCounts(tx, postID)
		if err != nil {
			return err
		}
		result.ReactionCounts = counts
		result.ReactionCount = counts.Total()
		return tx.Model(&models.Post{ID: postID}).
			Select("reaction_counts", "reaction_count").
			Updates(&models.Post{ReactionCounts: counts, ReactionCount: result.ReactionCount}).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func reactionCounts(tx *gorm.DB, postID string) (models.ReactionCounts, error) {
	var rows []struct {
		Kind  models.ReactionKind
		Count int
	}
	err := tx.Model(&models.Reaction{}).
		Select("kind, COUNT(*) AS count").
		Where("post_id = ?", postID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := models.ReactionCounts{}
	for _, row := range rows {
		counts[row.Kind] = row.Count
	}
	return counts, nil
}

// CastVote records or moves userID's vote and returns fresh tallies for
// every option
func (r *engagementRepository) CastVote(ctx context.Context, postID, userID string, optionIndex int) (*dto.VoteResult, error) {
	result := &dto.VoteResult{PostID: postID, OptionIndex: optionIndex}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := loadPost(tx, postID)
		if err != nil {
			return err
		}
		if post.Kind != models.KindPoll || post.Poll == nil {
			return errors.ValidationError("post_id", "post is not a poll")
		}
		if optionIndex < 0 || optionIndex >= len(post.Poll.Options) {
			return errors.ValidationError("option_index", "no such poll option")
		}

		vote := &models.Vote{PostID: postID, UserID: userID, OptionIndex: optionIndex}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"option_index", "updated_at"}),
		}).Create(vote).Error
		if err != nil {
			return err
		}

		// Tallies are recounted from every vote on each cast
		var rows []struct {
			OptionIndex int
			Count       int
		}
		err = tx.Model(&models.Vote{}).
			Select("option_index, COUNT(*) AS count").
			Where("post_id = ?", postID).
			Group("option_index").
			Scan(&rows).Error
		if err != nil {
			return err
		}
		tallies := make([]int, len(post.Poll.Options))
		for _, row := range rows {
			if row.OptionIndex >= 0 && row.OptionIndex < len(tallies) {
				tallies[row.OptionIndex] = row.Count
			}
		}
		result.Tallies = tallies

		poll := post.Poll.Clone()
		poll.ApplyTallies(tallies)
		return tx.Model(&models.Post{ID: postID}).Select("poll").Updates(&models.Post{Poll: &poll}).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddComment stores a comment. A reply to a reply is attached to the
// top-level comment so threads stay one level deep.
func (r *engagementRepository) AddComment(ctx context.Context, postID, userID string, req dto.CommentRequest) (*models.Comment, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errors.ValidationError("content", "comment cannot be empty")
	}
	if len([]rune(content)) > MaxCommentLength {
		return nil, errors.ValidationError("content", "comment is too long")
	}

	comment := &models.Comment{PostID: postID, UserID: userID, Content: content}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadPost(tx, postID); err != nil {
			return err
		}

		if req.ParentID != nil && *req.ParentID != "" {
			var parent models.Comment
			err := tx.Where("id = ?", *req.ParentID).First(&parent).Error
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ValidationError("parent_id", "parent comment not found")
			}
			if err != nil {
				return err
			}
			if parent.PostID != postID {
				return errors.ValidationError("parent_id", "parent comment belongs to another post")
			}
			parentID := parent.ID
			if parent.ParentID != nil {
				parentID = *parent.ParentID
			}
			comment.ParentID = &parentID
		}

		if err := tx.Omit("Author").Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	var stored models.Comment
	if err := r.db.WithContext(ctx).Preload("Author").First(&stored, "id = ?", comment.ID).Error; err != nil {
		return nil, err
	}
	publicCommentAuthor(&stored)
	return &stored, nil
}

// ListComments returns a post's comments oldest first
func (r *engagementRepository) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	if _, err := loadPost(r.db.WithContext(ctx), postID); err != nil {
		return nil, err
	}
	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at ASC").Order("id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	for i := range comments {
		publicCommentAuthor(&comments[i])
	}
	return comments, nil
}

// SharePost records a share and returns the post's new share count
func (r *engagementRepository) SharePost(ctx context.Context, postID, userID, message string) (*dto.ShareResult, error) {
	result := &dto.ShareResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadPost(tx, postID); err != nil {
			return err
		}
		share := models.Share{PostID: postID, UserID: userID, Message: strings.TrimSpace(message)}
		if err := tx.Create(&share).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("share_count", gorm.Expr("share_count + 1")).Error; err != nil {
			return err
		}
		var post models.Post
		if err := tx.Select("share_count").Where("id = ?", postID).First(&post).Error; err != nil {
			return err
		}
		result.Share = share
		result.ShareCount = post.ShareCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func publicCommentAuthor(c *models.Comment) {
	if c.Author != nil {
		author := c.Author.Public()
		c.Author = &author
	}
}
