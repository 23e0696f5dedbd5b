package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-denoise-project/internal/auth"
	"github.com/petermazzocco/go-denoise-project/internal/config"
	"github.com/petermazzocco/go-denoise-project/internal/handlers"
	"github.com/petermazzocco/go-denoise-project/internal/logger"
	"github.com/petermazzocco/go-denoise-project/internal/repository"
	"github.com/petermazzocco/go-denoise-project/internal/storage"
	"github.com/petermazzocco/go-denoise-project/internal/workflow"
)

func main() {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logr, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logr.Sync() }()

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx := context.Background()

	// Database connection, schema created if absent
	db, err := repository.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := repository.Close(db); err != nil {
			logr.Error("failed to close database", zap.Error(err))
		}
	}()
	repo := repository.New(db, logr)

	// Raw and cleaned image directories
	files, err := storage.NewLocal(cfg.Storage.UploadDir, cfg.Storage.CleanDir, logr)
	if err != nil {
		return err
	}
	if cfg.S3.Enabled() {
		mirror, err := storage.NewS3Mirror(ctx, cfg.S3, logr)
		if err != nil {
			return err
		}
		files.WithMirror(mirror)
		logr.Info("mirroring images to bucket", zap.String("bucket", cfg.S3.Bucket))
	}

	// Session store
	sessionStore, closeSessions, err := newSessionStore(ctx, cfg.Session, db)
	if err != nil {
		return err
	}
	defer closeSessions()
	cookies := auth.NewCookieStore(cfg.Session.Secret, int(cfg.Session.TTL.Seconds()), cfg.Session.Secure)
	sessions := auth.NewManager(cookies, sessionStore, logr)
	oauthEnabled := auth.SetupOAuth(cfg.OAuth, cookies)

	svc := workflow.NewService(repo, files, logr).WithMaxPixels(cfg.Server.MaxImagePixels)
	h := handlers.New(svc, sessions, cfg.Server.MaxUploadBytes, oauthEnabled, logr)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h.Routes(cfg.Server.RateLimitPerMinute),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	logr.Info("starting server", zap.String("addr", server.Addr), zap.Bool("oauth", oauthEnabled))
	return serve(server, logr, quit)
}

// serve runs server until it fails or a signal arrives on quit. A failure to
// listen is returned so the process exits instead of idling.
func serve(server *http.Server, logr *zap.Logger, quit <-chan os.Signal) error {
	serverErrors := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-quit:
		logr.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logr.Info("server stopped gracefully")
	return nil
}

func newSessionStore(ctx context.Context, cfg config.SessionConfig, db *gorm.DB) (auth.SessionStore, func(), error) {
	if cfg.Backend != config.SessionBackendRedis {
		return auth.NewGormSessionStore(db, cfg.TTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return auth.NewRedisSessionStore(client, cfg.TTL), func() { _ = client.Close() }, nil
}
