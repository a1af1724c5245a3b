package models

import (
	"time"

	"gorm.io/gorm"
)

// Profile is a user account and the author metadata attached to posts
type Profile struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email       string `gorm:"uniqueIndex;not null" json:"email,omitempty"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"not null" json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Bio         string `gorm:"type:text" json:"bio,omitempty"`

	PasswordHash *string `gorm:"type:text" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Identity is the minimal view of the acting user
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// Identity returns the acting-user view of the profile
func (p Profile) Identity() Identity {
	name := p.DisplayName
	if name == "" {
		name = p.Username
	}
	return Identity{ID: p.ID, DisplayName: name, AvatarRef: p.AvatarURL}
}

// Public strips private fields for embedding in feed records
func (p Profile) Public() Profile {
	return Profile{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Bio:         p.Bio,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}
