package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/sparkfeed/internal/auth"
	"github.com/zfogg/sparkfeed/internal/config"
	"github.com/zfogg/sparkfeed/internal/database"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/events"
	"github.com/zfogg/sparkfeed/internal/handlers"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"github.com/zfogg/sparkfeed/internal/repository"
	"github.com/zfogg/sparkfeed/internal/storage"
	"github.com/zfogg/sparkfeed/internal/websocket"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// ClientTestSuite runs the SDK against a real router on sqlite
type ClientTestSuite struct {
	suite.Suite
	db     *gorm.DB
	hub    *websocket.Hub
	srv    *httptest.Server
	ada    *models.Profile
	client *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"})
	s.Require().NoError(err)
	s.Require().NoError(database.Migrate(db))
	s.db = db

	profiles := repository.NewProfileRepository(db)
	s.ada = &models.Profile{Email: "ada@example.com", Username: "ada", DisplayName: "Ada"}
	s.Require().NoError(profiles.CreateProfile(context.Background(), s.ada))

	authService := auth.NewMockAuthService()
	authService.AddProfile(s.ada)

	s.hub = websocket.NewHub()
	s.hub.Start()

	h := handlers.NewHandlers(handlers.Deps{
		DB:        db,
		Profiles:  profiles,
		Auth:      authService,
		Blobs:     storage.NewMemoryStore("https://cdn.test"),
		Publisher: events.NewPublisher(events.Sink{Name: "hub", Publisher: s.hub}),
	})
	router := handlers.NewRouter(h, handlers.RouterOptions{
		Realtime: websocket.NewHandler(s.hub, authService, nil),
	})
	s.srv = httptest.NewServer(router)
	s.client = New(Options{BaseURL: s.srv.URL, Timeout: 5 * time.Second})
}

func (s *ClientTestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.hub.Shutdown(ctx)
	s.srv.Close()
	_ = database.Close(s.db)
}

func (s *ClientTestSuite) signIn() {
	_, err := s.client.SignIn(context.Background(), "ada@example.com", "password")
	s.Require().NoError(err)
}

func (s *ClientTestSuite) TestSignInSetsIdentity() {
	s.Nil(s.client.CurrentUser())
	s.signIn()

	user := s.client.CurrentUser()
	s.Require().NotNil(user)
	s.Equal(s.ada.ID, user.ID)
	s.Equal("Ada", user.DisplayName)
	s.NotEmpty(s.client.Token())

	s.client.SignOut()
	s.Nil(s.client.CurrentUser())
	s.Empty(s.client.Token())
}

func (s *ClientTestSuite) TestResumedTokenResolvesThroughMe() {
	resumed := New(Options{BaseURL: s.srv.URL, Token: "mock_token_" + s.ada.ID})
	s.Nil(resumed.CurrentUser())

	me, err := resumed.Me(context.Background())
	s.Require().NoError(err)
	s.Equal("ada@example.com", me.Email)
	s.Require().NotNil(resumed.CurrentUser())
	s.Equal(s.ada.ID, resumed.CurrentUser().ID)
}

func (s *ClientTestSuite) TestErrorsMapToAPIErrors() {
	ctx := context.Background()

	_, err := s.client.CreatePost(ctx, dto.CreatePostRequest{Content: "hi"})
	s.True(errors.HasCode(err, errors.ErrAuthRequired), "got %v", err)

	s.signIn()
	_, err = s.client.CreatePost(ctx, dto.CreatePostRequest{Kind: models.KindLink})
	var apiErr *errors.APIError
	s.Require().ErrorAs(err, &apiErr)
	s.Equal(errors.ErrValidation, apiErr.Code)
	s.Equal("link_url", apiErr.Field)
	s.Equal(http.StatusUnprocessableEntity, apiErr.Status)

	_, err = s.client.GetPost(ctx, "missing")
	s.True(errors.HasCode(err, errors.ErrNotFound))
}

func (s *ClientTestSuite) TestTransportFailureIsTransient() {
	dead := New(Options{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := dead.ListPosts(context.Background(), dto.PageQuery{})
	s.Require().Error(err)
	s.True(errors.IsTransient(err), "got %v", err)
}

func (s *ClientTestSuite) TestFeedRoundTrip() {
	ctx := context.Background()
	s.signIn()

	poll, err := s.client.CreatePost(ctx, dto.CreatePostRequest{
		Kind: models.KindPoll,
		Poll: &dto.PollDraft{Question: "Lunch?", Options: []string{"yes", "no"}},
	})
	s.Require().NoError(err)
	text, err := s.client.CreatePost(ctx, dto.CreatePostRequest{Content: "hello"})
	s.Require().NoError(err)

	page, err := s.client.ListPosts(ctx, dto.PageQuery{
		PostFilters: dto.PostFilters{Kinds: []models.PostKind{models.KindPoll}},
		Limit:       10,
	})
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)
	s.Equal(poll.ID, page.Items[0].Post.ID)

	vote, err := s.client.CastVote(ctx, poll.ID, dto.VoteRequest{OptionIndex: 1})
	s.Require().NoError(err)
	s.Equal([]int{0, 1}, vote.Tallies)

	reaction, err := s.client.SetReaction(ctx, text.ID, dto.ReactionRequest{Kind: models.ReactionFunny})
	s.Require().NoError(err)
	s.Equal(1, reaction.ReactionCount)

	comment, err := s.client.AddComment(ctx, text.ID, dto.CommentRequest{Content: "first"})
	s.Require().NoError(err)
	comments, err := s.client.ListComments(ctx, text.ID)
	s.Require().NoError(err)
	s.Require().Len(comments, 1)
	s.Equal(comment.ID, comments[0].ID)

	share, err := s.client.SharePost(ctx, text.ID, dto.ShareRequest{})
	s.Require().NoError(err)
	s.Equal(1, share.ShareCount)

	got, err := s.client.GetPost(ctx, text.ID)
	s.Require().NoError(err)
	s.Equal(1, got.CommentCount)
	s.Equal(1, got.ShareCount)

	profile, err := s.client.GetProfile(ctx, s.ada.ID)
	s.Require().NoError(err)
	s.Equal("ada", profile.Username)

	s.Require().NoError(s.client.DeletePost(ctx, text.ID, "c:1"))
	_, err = s.client.GetPost(ctx, text.ID)
	s.True(errors.HasCode(err, errors.ErrNotFound))
}

func (s *ClientTestSuite) TestSparkEditsAndUpload() {
	ctx := context.Background()
	s.signIn()

	spark, err := s.client.CreatePost(ctx, dto.CreatePostRequest{Kind: models.KindSpark, Content: "abc"})
	s.Require().NoError(err)
	res, err := s.client.EditSpark(ctx, spark.ID, dto.SparkEditRequest{Op: "insert", Position: 3, Text: "d"})
	s.Require().NoError(err)
	s.Equal("abcd", res.Content)

	history, err := s.client.SparkHistory(ctx, spark.ID, 0)
	s.Require().NoError(err)
	s.Len(history, 1)

	url, err := s.client.Upload(ctx, "media/whatever/photo.jpg", []byte("jpeg"))
	s.Require().NoError(err)
	s.Contains(url, "https://cdn.test/media/"+s.ada.ID+"/")
}

func (s *ClientTestSuite) TestStreamReceivesOwnInsert() {
	s.signIn()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := s.client.Stream().Subscribe(ctx, realtime.CollectionPosts, realtime.Filter{})
	s.Require().NoError(err)
	defer sub.Close()
	s.Require().Eventually(func() bool { return s.hub.SubscriberCount(realtime.CollectionPosts) == 1 },
		2*time.Second, 10*time.Millisecond)

	post, err := s.client.CreatePost(ctx, dto.CreatePostRequest{Content: "live", Origin: "c:42"})
	s.Require().NoError(err)

	select {
	case ev := <-sub.Events():
		s.Equal(realtime.OpInsert, ev.Op)
		s.Equal(post.ID, ev.ID())
		s.Equal("c:42", ev.Origin)
	case <-ctx.Done():
		s.Fail("no change event received")
	}
}

func TestRealtimeURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8787", "ws://localhost:8787/api/v1/realtime"},
		{"https://feed.example.com/", "wss://feed.example.com/api/v1/realtime"},
		{"https://example.com/sparkfeed", "wss://example.com/sparkfeed/api/v1/realtime"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New(Options{BaseURL: tt.base}).RealtimeURL())
	}
}

func TestCheckFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).GetPost(context.Background(), "p1")
	var apiErr *errors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.True(t, errors.IsTransient(err))
}
