// Package main is the entrypoint for the PlaybookPilot API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opsmith/playbookpilot/internal/api"
	"github.com/opsmith/playbookpilot/internal/api/handler"
	"github.com/opsmith/playbookpilot/internal/api/response"
	"github.com/opsmith/playbookpilot/internal/cache"
	"github.com/opsmith/playbookpilot/internal/config"
	"github.com/opsmith/playbookpilot/internal/generator"
	"github.com/opsmith/playbookpilot/internal/llm"
	"github.com/opsmith/playbookpilot/internal/queue"
	"github.com/opsmith/playbookpilot/internal/scheduler"
	"github.com/opsmith/playbookpilot/internal/store"
	"github.com/opsmith/playbookpilot/internal/template"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "llm_provider", cfg.LLM.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect Redis: execution queue + status cache
	execQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create execution queue: %w", err)
	}
	if err := execQueue.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()
	slog.Info("redis connected")

	// 5. Create LLM provider
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}
	slog.Info("LLM provider initialized", "provider", provider.Name(), "model", provider.Model())

	// 6. Wire core services
	pgStore := store.NewPostgresStore(pool)
	gen := generator.New(provider, cfg.LLM.MaxTokens, cfg.LLM.Temperature, cfg.LLM.InferenceTimeout)
	tplService := template.NewService(pgStore)
	sched := scheduler.New(pgStore, execQueue, redisCache)

	if err := tplService.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed default templates: %w", err)
	}

	// 7. Restart recovery: re-enqueue orphaned pending tasks
	recovered, err := sched.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover tasks: %w", err)
	}
	if recovered > 0 {
		slog.Info("recovered pending tasks", "count", recovered)
	}

	// 8. Build router with dependencies
	deps := api.Dependencies{
		HealthHandler: healthHandler(pgStore, redisCache),

		GenerateHandler: handler.NewGenerateHandler(gen, sched),

		CreateTemplateHandler: handler.NewCreateTemplateHandler(tplService),
		ListTemplatesHandler:  handler.NewListTemplatesHandler(tplService),
		GetTemplateHandler:    handler.NewGetTemplateHandler(tplService),
		UpdateTemplateHandler: handler.NewUpdateTemplateHandler(tplService),
		DeleteTemplateHandler: handler.NewDeleteTemplateHandler(tplService),
		RenderTemplateHandler: handler.NewRenderTemplateHandler(tplService),

		SubmitTaskHandler: handler.NewSubmitTaskHandler(sched),
		CancelTaskHandler: handler.NewCancelTaskHandler(sched),
		GetTaskHandler:    handler.NewGetTaskHandler(sched),
		ListTasksHandler:  handler.NewListTasksHandler(sched),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthHandler(st store.Store, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unreachable", nil)
			return
		}
		if err := ca.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "REDIS_UNAVAILABLE", "Redis unreachable", nil)
			return
		}
		response.JSON(w, map[string]string{"status": "ok"})
	}
}
