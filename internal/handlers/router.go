package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zfogg/sparkfeed/internal/auth"
	"github.com/zfogg/sparkfeed/internal/middleware"
	"github.com/zfogg/sparkfeed/internal/websocket"
)

// RouterOptions configures the HTTP surface around the handlers
type RouterOptions struct {
	// CORSOrigins is the browser allow list; "*" or empty allows all
	CORSOrigins []string

	// Tracing enables otelgin spans under ServiceName
	Tracing     bool
	ServiceName string

	// Realtime serves GET /api/v1/realtime when set
	Realtime *websocket.Handler

	// AuthLimiter and UploadLimiter override the in-memory rate limiters,
	// e.g. with a middleware.RedisLimiter
	AuthLimiter   middleware.Limiter
	UploadLimiter middleware.Limiter
}

// NewRouter builds the gin engine serving the API
func NewRouter(h *Handlers, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	if opts.Tracing {
		r.Use(middleware.TracingMiddleware(opts.ServiceName)...)
	}
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authLimiter := opts.AuthLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewMemoryLimiter(middleware.AuthRateLimitConfig())
	}
	uploadLimiter := opts.UploadLimiter
	if uploadLimiter == nil {
		uploadLimiter = middleware.NewMemoryLimiter(middleware.UploadRateLimitConfig())
	}

	requireAuth := auth.RequireAuth(h.auth)
	optionalAuth := auth.OptionalAuth(h.auth)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(middleware.RateLimit(authLimiter, middleware.AuthRateLimitConfig()))
		{
			authGroup.POST("/signup", h.SignUp)
			authGroup.POST("/signin", h.SignIn)
		}

		api.GET("/me", requireAuth, h.Me)
		api.GET("/profiles/:id", optionalAuth, h.GetProfile)

		// JSON reads are compressed; the websocket route is left alone
		posts := api.Group("/posts")
		{
			posts.GET("", optionalAuth, gzip.Gzip(gzip.DefaultCompression), h.ListPosts)
			posts.GET("/:id", optionalAuth, h.GetPost)
			posts.GET("/:id/comments", optionalAuth, gzip.Gzip(gzip.DefaultCompression), h.ListComments)

			posts.POST("", requireAuth, h.CreatePost)
			posts.DELETE("/:id", requireAuth, h.DeletePost)
			posts.PUT("/:id/reaction", requireAuth, h.SetReaction)
			posts.POST("/:id/votes", requireAuth, h.CastVote)
			posts.POST("/:id/comments", requireAuth, h.AddComment)
			posts.POST("/:id/shares", requireAuth, h.SharePost)
		}

		sparks := api.Group("/sparks", requireAuth)
		{
			sparks.POST("/:id/edits", h.EditSpark)
			sparks.GET("/:id/edits", h.SparkHistory)
		}

		api.POST("/uploads", requireAuth,
			middleware.RateLimit(uploadLimiter, middleware.UploadRateLimitConfig()),
			h.UploadMedia)

		if opts.Realtime != nil {
			// The websocket handler authenticates the upgrade itself
			api.GET("/realtime", opts.Realtime.HandleWebSocket)
			r.GET("/metrics/realtime", opts.Realtime.HandleMetrics)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "route not found"})
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	config.AllowHeaders = append(config.AllowHeaders, "Authorization", "X-Request-ID")
	config.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	config.MaxAge = 12 * time.Hour
	return config
}
