package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/sparkfeed/internal/auth"
	"github.com/zfogg/sparkfeed/internal/cache"
	"github.com/zfogg/sparkfeed/internal/config"
	"github.com/zfogg/sparkfeed/internal/database"
	"github.com/zfogg/sparkfeed/internal/events"
	"github.com/zfogg/sparkfeed/internal/handlers"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/middleware"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"github.com/zfogg/sparkfeed/internal/repository"
	"github.com/zfogg/sparkfeed/internal/storage"
	"github.com/zfogg/sparkfeed/internal/telemetry"
	"github.com/zfogg/sparkfeed/internal/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and realtime server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Run migrations before serving")
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	logger.Log.Info("=== sparkfeed server starting ===",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  cfg.Tracing.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Enabled:      cfg.Tracing.Enabled,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(flushCtx)
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if serveMigrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	blobs, err := openBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// Redis is optional; without it this instance is standalone
	var rc *cache.RedisClient
	if cfg.Redis.Enabled() {
		rc, err = cache.NewRedisClient(cache.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			logger.Log.Warn("Redis unavailable, continuing without it", zap.Error(err))
			rc = nil
		} else {
			defer rc.Close()
		}
	}

	profiles := repository.NewProfileRepository(db)
	authService := auth.NewService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, profiles)

	hub := websocket.NewHub()
	hub.Start()

	group, groupCtx := errgroup.WithContext(ctx)

	var publisher *events.Publisher
	var authLimiter, uploadLimiter middleware.Limiter
	if rc != nil {
		// Every instance relays Redis into its own hub, so writes are
		// published to Redis only
		stream := realtime.NewRedisStream(rc)
		publisher = events.NewPublisher(events.Sink{Name: "redis", Publisher: stream})
		group.Go(func() error {
			return events.Relay(groupCtx, stream, realtime.CollectionPosts, hub)
		})
		authLimiter = middleware.NewRedisLimiter(rc, "auth", middleware.AuthRateLimitConfig())
		uploadLimiter = middleware.NewRedisLimiter(rc, "upload", middleware.UploadRateLimitConfig())
	} else {
		publisher = events.NewPublisher(events.Sink{Name: "hub", Publisher: hub})
		memAuth := middleware.NewMemoryLimiter(middleware.AuthRateLimitConfig())
		memUpload := middleware.NewMemoryLimiter(middleware.UploadRateLimitConfig())
		group.Go(func() error { memAuth.RunSweeper(groupCtx, time.Minute); return nil })
		group.Go(func() error { memUpload.RunSweeper(groupCtx, time.Minute); return nil })
		authLimiter, uploadLimiter = memAuth, memUpload
	}
	logger.Log.Info("Change publisher ready", zap.Strings("sinks", publisher.Sinks()))

	h := handlers.NewHandlers(handlers.Deps{
		DB:        db,
		Profiles:  profiles,
		Auth:      authService,
		Blobs:     blobs,
		Publisher: publisher,
	})
	router := handlers.NewRouter(h, handlers.RouterOptions{
		CORSOrigins:   cfg.CORSOrigins,
		Tracing:       cfg.Tracing.Enabled,
		ServiceName:   cfg.Tracing.ServiceName,
		Realtime:      websocket.NewHandler(hub, authService, originPatterns(cfg.CORSOrigins)),
		AuthLimiter:   authLimiter,
		UploadLimiter: uploadLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group.Go(func() error {
		logger.Log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Close websockets first so Shutdown is not held open by them
		if err := hub.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("Hub shutdown incomplete", zap.Error(err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Log.Info("Server stopped")
	return nil
}

func openBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	if cfg.Driver == "memory" {
		logger.Log.Warn("Using in-memory media storage; uploads are lost on restart")
		return storage.NewMemoryStore(cfg.CDNBaseURL), nil
	}
	s3Store, err := storage.NewS3Store(ctx, cfg.Region, cfg.Bucket, cfg.CDNBaseURL, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
	}
	if err := s3Store.CheckBucketAccess(ctx); err != nil {
		logger.Log.Warn("S3 bucket access failed; uploads will fail", zap.Error(err))
	}
	return s3Store, nil
}

// originPatterns turns CORS origins into the host patterns the websocket
// upgrader matches against
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}
