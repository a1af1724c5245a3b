package dto

import (
	"time"

	"github.com/zfogg/sparkfeed/internal/models"
)

// ProfileResponse is the public profile representation (safe for API responses)
type ProfileResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProfileDetailResponse includes private fields for the signed-in user
type ProfileDetailResponse struct {
	ProfileResponse
	Email string `json:"email"`
}

// SignUpRequest for native registration
type SignUpRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required,min=3,max=30,alphanum"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"omitempty,max=50"`
}

// SignInRequest for email/password sign-in
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by sign-in and sign-up
type AuthResponse struct {
	Token     string                 `json:"token"`
	ExpiresAt time.Time              `json:"expires_at"`
	Profile   *ProfileDetailResponse `json:"profile"`
}

// ToProfileResponse converts models.Profile to ProfileResponse (excludes sensitive fields)
func ToProfileResponse(p *models.Profile) *ProfileResponse {
	if p == nil {
		return nil
	}
	return &ProfileResponse{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Bio:         p.Bio,
		CreatedAt:   p.CreatedAt,
	}
}

// ToProfileDetailResponse converts models.Profile to ProfileDetailResponse (includes email)
func ToProfileDetailResponse(p *models.Profile) *ProfileDetailResponse {
	if p == nil {
		return nil
	}
	return &ProfileDetailResponse{
		ProfileResponse: *ToProfileResponse(p),
		Email:           p.Email,
	}
}

// ToProfile maps a response back onto the model, used by API clients
func (r *ProfileResponse) ToProfile() *models.Profile {
	if r == nil {
		return nil
	}
	return &models.Profile{
		ID:          r.ID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		AvatarURL:   r.AvatarURL,
		Bio:         r.Bio,
		CreatedAt:   r.CreatedAt,
	}
}
