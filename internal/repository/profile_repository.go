package repository

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/models"
	"gorm.io/gorm"
)

// ProfileRepository handles all database operations for profiles
type ProfileRepository interface {
	CreateProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	GetProfiles(ctx context.Context, ids []string) ([]*models.Profile, error)
	UpdateProfile(ctx context.Context, profile *models.Profile) error
	CountProfiles(ctx context.Context) (int64, error)
}

// profileRepository implements ProfileRepository
type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// CreateProfile creates a new profile. Email and username are unique,
// compared case-insensitively.
func (r *profileRepository) CreateProfile(ctx context.Context, profile *models.Profile) error {
	if profile == nil || profile.Email == "" || profile.Username == "" {
		return errors.ValidationError("profile", "email and username are required")
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))

	if _, err := r.GetProfileByEmail(ctx, profile.Email); err == nil {
		return errors.Conflict("email already registered")
	}
	if _, err := r.GetProfileByUsername(ctx, profile.Username); err == nil {
		return errors.Conflict("username already taken")
	}

	err := r.db.WithContext(ctx).Create(profile).Error
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Conflict("email or username already taken")
	}
	return err
}

// GetProfile gets a profile by ID
func (r *profileRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("profile")
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProfileByEmail gets a profile by email (case-insensitive)
func (r *profileRepository) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", strings.TrimSpace(email)).
		First(&profile).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("profile")
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProfileByUsername gets a profile by username (case-insensitive)
func (r *profileRepository) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?)", username).
		First(&profile).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("profile")
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProfiles loads several profiles; missing ids are skipped
func (r *profileRepository) GetProfiles(ctx context.Context, ids []string) ([]*models.Profile, error) {
	if len(ids) == 0 {
		return []*models.Profile{}, nil
	}
	var profiles []*models.Profile
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error
	return profiles, err
}

// UpdateProfile saves display fields of a profile
func (r *profileRepository) UpdateProfile(ctx context.Context, profile *models.Profile) error {
	if profile == nil || profile.ID == "" {
		return errors.ValidationError("profile", "profile id is required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Profile{ID: profile.ID}).
		Select("display_name", "avatar_url", "bio").
		Updates(profile)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.NotFound("profile")
	}
	return nil
}

// CountProfiles returns the number of registered profiles
func (r *profileRepository) CountProfiles(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Profile{}).Count(&count).Error
	return count, err
}
