package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/querypilot/querypilot/internal/api"
	"github.com/querypilot/querypilot/internal/assistant"
	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/indexing"
	"github.com/querypilot/querypilot/internal/job"
	"github.com/querypilot/querypilot/internal/mdl"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/provider"
	s3store "github.com/querypilot/querypilot/internal/storage/s3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("querypilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := provider.NewDefaultRegistry()
	llmClient, err := registry.LLM(ctx, cfg.LLM.Provider, cfg)
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		os.Exit(1)
	}
	embedder, err := registry.Embedder(ctx, cfg.Embedder.Provider, cfg)
	if err != nil {
		logger.Error("failed to initialize embedder", slog.Any("error", err))
		os.Exit(1)
	}
	docs, err := registry.DocStore(ctx, "pgvector", cfg)
	if err != nil {
		logger.Error("failed to open document store", slog.Any("error", err))
		os.Exit(1)
	}
	validator, err := registry.Validator(ctx, cfg.Engine.Mode, cfg)
	if err != nil {
		logger.Error("failed to initialize sql validator", slog.Any("error", err))
		os.Exit(1)
	}

	jobs := job.NewStore()
	go jobs.RunSweeper(ctx, cfg.Jobs.SweepInterval, cfg.Jobs.RetainFinished, logger)

	manifests := mdl.NewRegistry()
	assistantService, err := assistant.NewService(assistant.Dependencies{
		Jobs:        jobs,
		LLM:         llmClient,
		Embedder:    embedder,
		Docs:        docs,
		Engine:      validator,
		Manifests:   manifests,
		Logger:      logger,
		Retrieval:   cfg.Retrieval,
		BaseContext: ctx,
	})
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		os.Exit(1)
	}

	indexingDeps := indexing.Dependencies{
		Jobs:        jobs,
		Embedder:    embedder,
		Docs:        docs,
		Manifests:   manifests,
		Logger:      logger,
		BaseContext: ctx,
	}
	if cfg.ObjectStore.Endpoint != "" {
		archiveStore, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		indexingDeps.Archive = archiveStore
	}
	indexingService, err := indexing.NewService(indexingDeps)
	if err != nil {
		logger.Error("failed to initialize indexing", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:    logger,
		Assistant: assistantService,
		Indexing:  indexingService,
		Readiness: api.CombineReadinessChecks(
			docs.HealthCheck,
			api.CheckLLMConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
