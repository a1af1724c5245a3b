package repository

import (
	"context"
	stderrors "errors"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/sparks"
	"gorm.io/gorm"
)

// SparkRepository commits edits to Knowledge Spark documents
type SparkRepository interface {
	EditSpark(ctx context.Context, postID, editorID string, req dto.SparkEditRequest) (*dto.SparkEditResult, *models.Post, error)
	History(ctx context.Context, postID string, since int) ([]models.SparkVersion, error)
}

type sparkRepository struct {
	db *gorm.DB
}

// NewSparkRepository creates a new spark repository
func NewSparkRepository(db *gorm.DB) SparkRepository {
	return &sparkRepository{db: db}
}

// EditSpark rebases the edit over every version committed after its base,
// applies it and bumps the document version. The update is conditional on
// the version read, so a racing commit surfaces as a conflict.
func (r *sparkRepository) EditSpark(ctx context.Context, postID, editorID string, req dto.SparkEditRequest) (*dto.SparkEditResult, *models.Post, error) {
	op := sparks.Operation{
		Type:        sparks.OpType(req.Op),
		EditorID:    editorID,
		Position:    req.Position,
		Length:      req.Length,
		Text:        req.Text,
		BaseVersion: req.BaseVersion,
	}
	if err := sparks.Validate(op); err != nil {
		return nil, nil, errors.ValidationError("op", err.Error())
	}

	var result *dto.SparkEditResult
	var updated *models.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := loadPost(tx, postID)
		if err != nil {
			return err
		}
		if post.Kind != models.KindSpark {
			return errors.ValidationError("post_id", "post is not a spark")
		}
		if err := sparks.Authorize(op, post.UserID); err != nil {
			return errors.Conflict(err.Error())
		}
		if op.BaseVersion < 0 || op.BaseVersion > post.Version {
			return errors.ValidationError("base_version", "base version is ahead of the document")
		}

		var versions []models.SparkVersion
		err = tx.Where("post_id = ? AND version > ?", postID, op.BaseVersion).
			Order("version ASC").
			Find(&versions).Error
		if err != nil {
			return err
		}
		history := make([]sparks.Operation, len(versions))
		for i, v := range versions {
			history[i] = operationOf(v)
		}

		rebased, err := sparks.Rebase(op, history)
		if stderrors.Is(err, sparks.ErrReplacedConcurrently) {
			return errors.Conflict(err.Error())
		}
		if err != nil {
			return errors.ValidationError("op", err.Error())
		}

		if sparks.Noop(rebased) {
			result = &dto.SparkEditResult{PostID: postID, Content: post.Content, Version: post.Version}
			updated = post
			return nil
		}

		content, err := sparks.Apply(post.Content, rebased)
		if stderrors.Is(err, sparks.ErrOutOfRange) {
			return errors.ValidationError("position", err.Error())
		}
		if err != nil {
			return errors.ValidationError("op", err.Error())
		}

		next := post.Version + 1
		version := &models.SparkVersion{
			PostID:   postID,
			Version:  next,
			EditorID: editorID,
			OpType:   string(rebased.Type),
			Position: rebased.Position,
			Length:   rebased.Length,
			Text:     rebased.Text,
			Content:  content,
		}
		if err := tx.Create(version).Error; err != nil {
			if stderrors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.Conflict("spark was edited concurrently")
			}
			return err
		}

		res := tx.Model(&models.Post{}).
			Where("id = ? AND version = ?", postID, post.Version).
			Updates(map[string]interface{}{"content": content, "version": next})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.Conflict("spark was edited concurrently")
		}

		post.Content = content
		post.Version = next
		result = &dto.SparkEditResult{PostID: postID, Content: content, Version: next}
		updated = post
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	publicAuthor(updated)
	return result, updated, nil
}

// History returns the versions committed after since, oldest first
func (r *sparkRepository) History(ctx context.Context, postID string, since int) ([]models.SparkVersion, error) {
	if _, err := loadPost(r.db.WithContext(ctx), postID); err != nil {
		return nil, err
	}
	var versions []models.SparkVersion
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND version > ?", postID, since).
		Order("version ASC").
		Find(&versions).Error
	return versions, err
}

func operationOf(v models.SparkVersion) sparks.Operation {
	return sparks.Operation{
		Type:     sparks.OpType(v.OpType),
		EditorID: v.EditorID,
		Position: v.Position,
		Length:   v.Length,
		Text:     v.Text,
		Version:  v.Version,
	}
}
