// Package client is the Go SDK for the sparkfeed HTTP API. A Client serves
// as the feed store's query surface, mutation endpoints, identity provider
// and blob store, and dials the realtime websocket.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"github.com/zfogg/sparkfeed/internal/telemetry"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 15 * time.Second
	userAgent      = "sparkfeed-cli/0.1.0"
)

// Options configures New
type Options struct {
	BaseURL string
	Timeout time.Duration

	// Token resumes a session; CurrentUser stays nil until Me or SignIn runs
	Token string

	// Transport is wrapped with tracing; nil uses http.DefaultTransport
	Transport http.RoundTripper
}

// Client talks to one sparkfeed server
type Client struct {
	http    *resty.Client
	baseURL string

	mu      sync.RWMutex
	token   string
	profile *models.Profile
}

// New builds a client for opts.BaseURL
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		token:   opts.Token,
	}

	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(opts.Timeout).
		SetTransport(telemetry.NewInstrumentedTransport("sparkfeed-api", opts.Transport)).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	c.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if token := c.Token(); token != "" {
			req.SetAuthToken(token)
		}
		logger.Log.Debug("HTTP request", zap.String("method", req.Method), zap.String("url", req.URL))
		return nil
	})
	c.http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Log.Debug("HTTP response",
			zap.Int("status", resp.StatusCode()),
			zap.Duration("latency", resp.Time()),
		)
		return nil
	})
	return c
}

// Token returns the current bearer token, "" when signed out
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// CurrentUser implements feed.IdentityProvider
func (c *Client) CurrentUser() *models.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.profile == nil {
		return nil
	}
	id := c.profile.Identity()
	return &id
}

func (c *Client) setSession(token string, p *dto.ProfileDetailResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.profile = nil
	if p != nil {
		profile := p.ToProfile()
		profile.Email = p.Email
		c.profile = profile
	}
}

// SignIn exchanges credentials for a session
func (c *Client) SignIn(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	var out dto.AuthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(dto.SignInRequest{Email: email, Password: password}).
		SetResult(&out).
		Post("/api/v1/auth/signin")
	if err := check("sign in", resp, err); err != nil {
		return nil, err
	}
	c.setSession(out.Token, out.Profile)
	logger.Log.Info("Signed in", logger.WithUserID(c.userID()))
	return &out, nil
}

// SignUp registers an account and starts a session
func (c *Client) SignUp(ctx context.Context, req dto.SignUpRequest) (*dto.AuthResponse, error) {
	var out dto.AuthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/auth/signup")
	if err := check("sign up", resp, err); err != nil {
		return nil, err
	}
	c.setSession(out.Token, out.Profile)
	return &out, nil
}

// SignOut forgets the session. Tokens are stateless, so nothing is sent.
func (c *Client) SignOut() {
	c.setSession("", nil)
}

// Me loads the signed-in profile, resolving CurrentUser for a resumed token
func (c *Client) Me(ctx context.Context) (*dto.ProfileDetailResponse, error) {
	var out dto.ProfileDetailResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/me")
	if err := check("load profile", resp, err); err != nil {
		return nil, err
	}
	c.setSession(c.Token(), &out)
	return &out, nil
}

func (c *Client) userID() string {
	if user := c.CurrentUser(); user != nil {
		return user.ID
	}
	return ""
}

// RealtimeURL is the websocket endpoint derived from the base URL
func (c *Client) RealtimeURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/realtime"
	return u.String()
}

// Stream returns a change stream authenticated as this client
func (c *Client) Stream() *realtime.WSStream {
	return realtime.NewWSStream(c.RealtimeURL(), c.Token)
}

// errorBody is the server's error envelope
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field"`
	Details string `json:"details"`
}

// check turns a transport failure or non-2xx response into an APIError
func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return errors.Normalize(op, err)
	}
	if resp.IsSuccess() {
		return nil
	}
	var body errorBody
	_ = json.Unmarshal(resp.Body(), &body)
	apiErr := errors.FromStatus(resp.StatusCode(), body.Code, body.Message)
	apiErr.Field = body.Field
	if body.Details != "" {
		apiErr = apiErr.WithDetails(body.Details)
	}
	return apiErr
}

var (
	_ feed.Query            = (*Client)(nil)
	_ feed.Mutations        = (*Client)(nil)
	_ feed.IdentityProvider = (*Client)(nil)
	_ feed.BlobStore        = (*Client)(nil)
)
