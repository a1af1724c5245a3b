package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/models"
)

// MockCall records a method call for assertion
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockBackend implements Query, Mutations, IdentityProvider and BlobStore
// for tests. Unset funcs fall back to simple defaults or DefaultError.
type MockBackend struct {
	mu sync.Mutex

	// Call tracking
	Calls []MockCall

	User *models.Identity

	// Configurable function overrides - set these to customize behavior
	ListPostsFunc    func(ctx context.Context, q dto.PageQuery) (*dto.PostPage, error)
	GetPostFunc      func(ctx context.Context, id string) (*models.Post, error)
	ListCommentsFunc func(ctx context.Context, postID string) ([]models.Comment, error)
	GetProfileFunc   func(ctx context.Context, id string) (*models.Profile, error)
	CreatePostFunc   func(ctx context.Context, req dto.CreatePostRequest) (*models.Post, error)
	SetReactionFunc  func(ctx context.Context, postID string, req dto.ReactionRequest) (*dto.ReactionResult, error)
	CastVoteFunc     func(ctx context.Context, postID string, req dto.VoteRequest) (*dto.VoteResult, error)
	AddCommentFunc   func(ctx context.Context, postID string, req dto.CommentRequest) (*models.Comment, error)
	SharePostFunc    func(ctx context.Context, postID string, req dto.ShareRequest) (*dto.ShareResult, error)
	EditSparkFunc    func(ctx context.Context, postID string, req dto.SparkEditRequest) (*dto.SparkEditResult, error)
	UploadFunc       func(ctx context.Context, path string, data []byte) (string, error)

	// Default responses for simple cases
	DefaultError error

	nextID int
}

// NewMockBackend creates a mock acting as user
func NewMockBackend(user *models.Identity) *MockBackend {
	return &MockBackend{
		Calls: make([]MockCall, 0),
		User:  user,
	}
}

// recordCall records a method call for later assertion
func (m *MockBackend) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCalls returns all recorded calls (thread-safe)
func (m *MockBackend) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// GetCallsForMethod returns calls for a specific method
func (m *MockBackend) GetCallsForMethod(method string) []MockCall {
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

func (m *MockBackend) newID(prefix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// Deps returns store dependencies all served by this mock
func (m *MockBackend) Deps() Deps {
	return Deps{Query: m, Mutations: m, Identity: m, Blobs: m}
}

func (m *MockBackend) CurrentUser() *models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.User == nil {
		return nil
	}
	user := *m.User
	return &user
}

func (m *MockBackend) ListPosts(ctx context.Context, q dto.PageQuery) (*dto.PostPage, error) {
	m.recordCall("ListPosts", q)
	if m.ListPostsFunc != nil {
		return m.ListPostsFunc(ctx, q)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	return &dto.PostPage{}, nil
}

func (m *MockBackend) GetPost(ctx context.Context, id string) (*models.Post, error) {
	m.recordCall("GetPost", id)
	if m.GetPostFunc != nil {
		return m.GetPostFunc(ctx, id)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	return nil, errors.NotFound("post")
}

func (m *MockBackend) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	m.recordCall("ListComments", postID)
	if m.ListCommentsFunc != nil {
		return m.ListCommentsFunc(ctx, postID)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	return nil, nil
}

func (m *MockBackend) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	m.recordCall("GetProfile", id)
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, id)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	return &models.Profile{ID: id, Username: id, DisplayName: id}, nil
}

func (m *MockBackend) CreatePost(ctx context.Context, req dto.CreatePostRequest) (*models.Post, error) {
	m.recordCall("CreatePost", req)
	if m.CreatePostFunc != nil {
		return m.CreatePostFunc(ctx, req)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	user := m.CurrentUser()
	post := &models.Post{
		ID:         m.newID("post"),
		Kind:       req.Kind,
		Title:      req.Title,
		Content:    req.Content,
		Media:      req.Media,
		Visibility: req.Visibility,
		LinkURL:    req.LinkURL,
		EventAt:    req.EventAt,
	}
	if user != nil {
		post.UserID = user.ID
	}
	return post, nil
}

func (m *MockBackend) SetReaction(ctx context.Context, postID string, req dto.ReactionRequest) (*dto.ReactionResult, error) {
	m.recordCall("SetReaction", postID, req)
	if m.SetReactionFunc != nil {
		return m.SetReactionFunc(ctx, postID, req)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	res := &dto.ReactionResult{PostID: postID, Kind: req.Kind, ReactionCounts: models.ReactionCounts{}}
	if req.Kind != models.ReactionNone {
		res.ReactionCounts[req.Kind] = 1
		res.ReactionCount = 1
	}
	return res, nil
}

func (m *MockBackend) CastVote(ctx context.Context, postID string, req dto.VoteRequest) (*dto.VoteResult, error) {
	m.recordCall("CastVote", postID, req)
	if m.CastVoteFunc != nil {
		return m.CastVoteFunc(ctx, postID, req)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	tallies := make([]int, req.OptionIndex+1)
	tallies[req.OptionIndex] = 1
	return &dto.VoteResult{PostID: postID, OptionIndex: req.OptionIndex, Tallies: tallies}, nil
}

func (m *MockBackend) AddComment(ctx context.Context, postID string, req dto.CommentRequest) (*models.Comment, error) {
	m.recordCall("AddComment", postID, req)
	if m.AddCommentFunc != nil {
		return m.AddCommentFunc(ctx, postID, req)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	comment := &models.Comment{
		ID:       m.newID("comment"),
		PostID:   postID,
		Content:  req.Content,
		ParentID: req.ParentID,
	}
	if user := m.CurrentUser(); user != nil {
		comment.UserID = user.ID
	}
	return comment, nil
}

func (m *MockBackend) SharePost(ctx context.Context, postID string, req dto.ShareRequest) (*dto.ShareResult, error) {
	m.recordCall("SharePost", postID, req)
	if m.SharePostFunc != nil {
		return m.SharePostFunc(ctx, postID, req)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	return &dto.ShareResult{Share: models.Share{ID: m.newID("share"), PostID: postID}, ShareCount: 1}, nil
}

func (m *MockBackend) EditSpark(ctx context.Context, postID string, req dto.SparkEditRequest) (*dto.SparkEditResult, error) {
	m.recordCall("EditSpark", postID, req)
	if m.EditSparkFunc != nil {
		return m.EditSparkFunc(ctx, postID, req)
	}
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	return &dto.SparkEditResult{PostID: postID, Content: req.Text, Version: req.BaseVersion + 1}, nil
}

func (m *MockBackend) Upload(ctx context.Context, path string, data []byte) (string, error) {
	m.recordCall("Upload", path, len(data))
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, path, data)
	}
	if m.DefaultError != nil {
		return "", m.DefaultError
	}
	return "https://cdn.test/" + path, nil
}
