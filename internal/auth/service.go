// Package auth issues and validates the bearer tokens the API and realtime
// socket accept, and hashes account passwords.
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is used when the service is created without a TTL
const DefaultTokenTTL = 24 * time.Hour

const issuer = "sparkfeed"

// Claims are the JWT claims carried by a session token
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service handles sign-up, sign-in and token validation
type Service struct {
	jwtSecret []byte
	ttl       time.Duration
	profiles  repository.ProfileRepository
	now       func() time.Time
}

// NewService creates a new authentication service
func NewService(jwtSecret []byte, ttl time.Duration, profiles repository.ProfileRepository) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		jwtSecret: jwtSecret,
		ttl:       ttl,
		profiles:  profiles,
		now:       time.Now,
	}
}

// SignUp creates a profile with an email and password and signs it in
func (s *Service) SignUp(ctx context.Context, req dto.SignUpRequest) (*dto.AuthResponse, error) {
	if len(req.Password) < 8 {
		return nil, errors.ValidationError("password", "password must be at least 8 characters")
	}

	hashed, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}
	profile := &models.Profile{
		Email:        req.Email,
		Username:     strings.TrimSpace(req.Username),
		DisplayName:  displayName,
		PasswordHash: &hashed,
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}

	logger.Log.Info("Profile registered",
		logger.WithUserID(profile.ID),
		zap.String("username", profile.Username),
	)
	return s.GenerateAuthResponse(profile)
}

// SignIn authenticates with email and password
func (s *Service) SignIn(ctx context.Context, req dto.SignInRequest) (*dto.AuthResponse, error) {
	profile, err := s.profiles.GetProfileByEmail(ctx, req.Email)
	if errors.HasCode(err, errors.ErrNotFound) {
		return nil, errors.AuthRequired("invalid email or password")
	}
	if err != nil {
		return nil, err
	}

	if profile.PasswordHash == nil || !CheckPassword(*profile.PasswordHash, req.Password) {
		return nil, errors.AuthRequired("invalid email or password")
	}
	return s.GenerateAuthResponse(profile)
}

// GenerateAuthResponse signs a token for profile
func (s *Service) GenerateAuthResponse(profile *models.Profile) (*dto.AuthResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		Username: profile.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &dto.AuthResponse{
		Token:     tokenString,
		ExpiresAt: expiresAt,
		Profile:   dto.ToProfileDetailResponse(profile),
	}, nil
}

// ParseToken verifies a token's signature and expiry and returns its claims
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		return nil, errors.AuthRequired("token expired")
	}
	if err != nil || !token.Valid {
		return nil, errors.AuthRequired("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.AuthRequired("invalid token subject")
	}
	return claims, nil
}

// ValidateToken validates a JWT and loads the profile it names
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*models.Profile, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetProfile(ctx, claims.Subject)
	if errors.HasCode(err, errors.ErrNotFound) {
		return nil, errors.AuthRequired("account no longer exists")
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
