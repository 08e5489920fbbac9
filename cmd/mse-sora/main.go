package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/wb-go/wbf/zlog"

	batchhandler "github.com/seanmmorais/mse-sora/internal/api/handlers/batch"
	folderhandler "github.com/seanmmorais/mse-sora/internal/api/handlers/folder"
	"github.com/seanmmorais/mse-sora/internal/api/router"
	"github.com/seanmmorais/mse-sora/internal/api/server"
	"github.com/seanmmorais/mse-sora/internal/config"
	"github.com/seanmmorais/mse-sora/internal/processor"
	"github.com/seanmmorais/mse-sora/internal/provider"
	batchrepo "github.com/seanmmorais/mse-sora/internal/repository/batch"
	batchsvc "github.com/seanmmorais/mse-sora/internal/service/batch"
	"github.com/seanmmorais/mse-sora/internal/storage/local"
	"github.com/seanmmorais/mse-sora/internal/storage/minio"
)

// fileStorage is the backend surface shared by the local and MinIO stores.
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
}

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Initialize file storage (local disk or MinIO).
	var store fileStorage
	switch cfg.Storage.Backend {
	case "", "local":
		s, err := local.NewStorage(cfg.Storage.Local.Dir)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to initialize local storage")
		}
		store = s
	case "minio":
		s, err := minio.NewStorage(ctx, cfg.Storage.Minio.Endpoint, cfg.Storage.Minio.AccessKey, cfg.Storage.Minio.SecretKey, cfg.Storage.Minio.BucketName, cfg.Storage.Minio.UseSSL)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
		}
		store = s
	default:
		zlog.Logger.Fatal().Str("backend", cfg.Storage.Backend).Msg("unknown storage backend")
	}

	// External image-edit API client. A missing key is only fatal at submit
	// time, so the server still starts and the rename tools stay usable.
	editor, err := provider.NewOpenAI(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Timeout)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create image api client")
	}
	if !editor.Configured() {
		zlog.Logger.Warn().Msg("OPENAI_API_KEY is not set; batch submissions will be rejected")
	}

	// Initialize registry, processor, and service layer.
	repo := batchrepo.NewRepository()
	proc := processor.New(repo, store, editor)
	service := batchsvc.NewService(repo, store, proc, editor, batchsvc.Defaults{
		Model:          cfg.OpenAI.Model,
		Size:           cfg.Batch.DefaultSize,
		Quality:        cfg.Batch.DefaultQuality,
		OutputFormat:   cfg.Batch.DefaultOutputFormat,
		Concurrency:    cfg.Batch.DefaultConcurrency,
		MaxConcurrency: cfg.Batch.MaxConcurrency,
	})

	// HTTP handlers for batch and folder routes.
	bh := batchhandler.NewHandler(service)
	fh := folderhandler.NewHandler()

	// Start HTTP server in a separate goroutine.
	r := router.Setup(bh, fh)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("server started")

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}
}
