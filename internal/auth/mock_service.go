package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/models"
)

// MockCall records a method call for assertion
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockAuthService is a mock implementation of AuthServiceInterface for
// testing. Tokens it issues are "mock_token_" followed by the profile ID.
type MockAuthService struct {
	mu sync.Mutex

	// Call tracking
	Calls []MockCall

	// Configurable function overrides
	SignUpFunc        func(ctx context.Context, req dto.SignUpRequest) (*dto.AuthResponse, error)
	SignInFunc        func(ctx context.Context, req dto.SignInRequest) (*dto.AuthResponse, error)
	ValidateTokenFunc func(ctx context.Context, token string) (*models.Profile, error)

	// Default error to return
	DefaultError error

	// Pre-configured profiles keyed by ID
	Profiles map[string]*models.Profile
}

// NewMockAuthService creates a new mock auth service with sensible defaults
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{
		Calls:    make([]MockCall, 0),
		Profiles: make(map[string]*models.Profile),
	}
}

func (m *MockAuthService) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCallsForMethod returns calls for a specific method
func (m *MockAuthService) GetCallsForMethod(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []MockCall
	for _, call := range m.Calls {
		if call.Method == method {
			result = append(result, call)
		}
	}
	return result
}

// AddProfile registers a profile and returns the token that resolves to it
func (m *MockAuthService) AddProfile(profile *models.Profile) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Profiles[profile.ID] = profile
	return "mock_token_" + profile.ID
}

func (m *MockAuthService) SignUp(ctx context.Context, req dto.SignUpRequest) (*dto.AuthResponse, error) {
	m.recordCall("SignUp", req)
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, req)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	m.mu.Lock()
	for _, p := range m.Profiles {
		if strings.EqualFold(p.Email, req.Email) {
			m.mu.Unlock()
			return nil, errors.Conflict("email already registered")
		}
	}
	m.mu.Unlock()

	profile := &models.Profile{
		ID:          uuid.New().String(),
		Email:       req.Email,
		Username:    req.Username,
		DisplayName: req.DisplayName,
	}
	token := m.AddProfile(profile)
	return &dto.AuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(DefaultTokenTTL),
		Profile:   dto.ToProfileDetailResponse(profile),
	}, nil
}

func (m *MockAuthService) SignIn(ctx context.Context, req dto.SignInRequest) (*dto.AuthResponse, error) {
	m.recordCall("SignIn", req)
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, req)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Profiles {
		if strings.EqualFold(p.Email, req.Email) {
			return &dto.AuthResponse{
				Token:     "mock_token_" + p.ID,
				ExpiresAt: time.Now().Add(DefaultTokenTTL),
				Profile:   dto.ToProfileDetailResponse(p),
			}, nil
		}
	}
	return nil, errors.AuthRequired("invalid email or password")
}

func (m *MockAuthService) ValidateToken(ctx context.Context, token string) (*models.Profile, error) {
	m.recordCall("ValidateToken", token)
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, token)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if profile, ok := m.Profiles[strings.TrimPrefix(token, "mock_token_")]; ok && strings.HasPrefix(token, "mock_token_") {
		return profile, nil
	}
	return nil, errors.AuthRequired("invalid token")
}

var _ AuthServiceInterface = (*MockAuthService)(nil)
