// Package main wires together the imagemirror service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rbeech/imagemirror/internal/api"
	"github.com/rbeech/imagemirror/internal/app"
	"github.com/rbeech/imagemirror/internal/config"
	"github.com/rbeech/imagemirror/internal/id/uuid"
	"github.com/rbeech/imagemirror/internal/identity"
	"github.com/rbeech/imagemirror/internal/imaging"
	"github.com/rbeech/imagemirror/internal/logging"
	"github.com/rbeech/imagemirror/internal/pipeline"
	"github.com/rbeech/imagemirror/internal/search"
	"github.com/rbeech/imagemirror/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	telemetry.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger.Named("app"))
	if err != nil {
		logger.Fatal("service init failed", zap.Error(err))
	}
	defer services.Close()

	rotator, err := identity.NewRotator(cfg.Search.UserAgents, cfg.Search.Proxies)
	if err != nil {
		logger.Fatal("identity rotator init failed", zap.Error(err))
	}

	sessionClient := search.NewSessionClient(search.SessionConfig{
		BaseURL:   cfg.Search.BaseURL,
		Timeout:   cfg.RequestTimeout(),
		PacingMin: time.Duration(cfg.Search.PacingMinMs) * time.Millisecond,
		PacingMax: time.Duration(cfg.Search.PacingMaxMs) * time.Millisecond,
	}, logger.Named("session"))
	filter := search.NewFilter(cfg.Search.ExcludedDomains)
	orchestrator := search.NewOrchestrator(
		sessionClient,
		rotator,
		filter,
		search.BackoffConfig{MaxAttempts: cfg.Search.MaxAttempts},
		logger.Named("search"),
	)

	downloader := pipeline.NewDownloader(pipeline.DownloadConfig{
		Timeout:   cfg.DownloadTimeout(),
		MaxBytes:  cfg.Pipeline.MaxImageBytes,
		UserAgent: cfg.Pipeline.UserAgent,
	})
	transformer := imaging.NewTransformer(imaging.Config{
		MaxWidth:    cfg.Pipeline.MaxWidth,
		JPEGQuality: cfg.Pipeline.JPEGQuality,
	}, logger.Named("imaging"))
	pipe := pipeline.New(
		downloader,
		transformer,
		services.Sink(),
		services.Publisher(),
		nil,
		uuid.New(),
		logger.Named("pipeline"),
	)

	apiServer := api.NewServer(orchestrator, pipe, cfg, services.StaticDir(), logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go services.RunRetention(ctx)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
