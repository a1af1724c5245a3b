package auth

import (
	"context"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/models"
)

// AuthServiceInterface defines the contract for authentication operations.
// This enables mocking for handler tests without requiring a real database.
type AuthServiceInterface interface {
	SignUp(ctx context.Context, req dto.SignUpRequest) (*dto.AuthResponse, error)
	SignIn(ctx context.Context, req dto.SignInRequest) (*dto.AuthResponse, error)

	// ValidateToken resolves a bearer token to the profile it was issued for
	ValidateToken(ctx context.Context, token string) (*models.Profile, error)
}

// Ensure Service implements AuthServiceInterface
var _ AuthServiceInterface = (*Service)(nil)
