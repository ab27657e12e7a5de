// Package main is the entrypoint for the PlaybookPilot execution worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opsmith/playbookpilot/internal/cache"
	"github.com/opsmith/playbookpilot/internal/config"
	"github.com/opsmith/playbookpilot/internal/queue"
	"github.com/opsmith/playbookpilot/internal/scheduler"
	"github.com/opsmith/playbookpilot/internal/store"
	"github.com/opsmith/playbookpilot/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	execQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create execution queue: %w", err)
	}
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	pgStore := store.NewPostgresStore(pool)
	sched := scheduler.New(pgStore, execQueue, redisCache)

	proc := worker.NewProcessor(execQueue, sched, &ansibleRunner{}, cfg.Scheduler.PollInterval, cfg.Scheduler.PopBatchSize)

	slog.Info("worker started", "poll_interval", cfg.Scheduler.PollInterval)
	return proc.Run(ctx)
}

// ansibleRunner shells out to ansible-playbook. Inline content is written to a
// temp file first; playbooks referenced by path run in place.
type ansibleRunner struct{}

func (a *ansibleRunner) Run(ctx context.Context, playbook, inventory string) (worker.RunResult, error) {
	path := playbook
	if strings.Contains(playbook, "\n") {
		f, err := os.CreateTemp("", "playbook-*.yml")
		if err != nil {
			return worker.RunResult{}, fmt.Errorf("write playbook: %w", err)
		}
		defer os.Remove(f.Name())
		if _, err := f.WriteString(playbook); err != nil {
			f.Close()
			return worker.RunResult{}, fmt.Errorf("write playbook: %w", err)
		}
		f.Close()
		path = f.Name()
	}

	cmd := exec.CommandContext(ctx, "ansible-playbook", "-i", inventory, path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return worker.RunResult{Succeeded: false, Output: string(out)}, nil
		}
		return worker.RunResult{}, fmt.Errorf("run ansible-playbook: %w", err)
	}
	return worker.RunResult{Succeeded: true, Output: string(out)}, nil
}
