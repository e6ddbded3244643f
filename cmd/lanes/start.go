package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/lanes/internal/api"
	"github.com/mattjoyce/lanes/internal/config"
	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/lock"
	"github.com/mattjoyce/lanes/internal/log"
	"github.com/mattjoyce/lanes/internal/registry"
	"github.com/mattjoyce/lanes/internal/runner"
	"github.com/mattjoyce/lanes/internal/scheduler"
	"github.com/mattjoyce/lanes/internal/storage"
	"github.com/mattjoyce/lanes/internal/tasklog"
	"github.com/mattjoyce/lanes/internal/webhook"
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Replace(log.New(os.Stdout, cfg.Service.LogLevel, cfg.Service.LogFormat))
	logger := log.WithComponent("main")
	logger.Info("lanes starting", "version", version, "config", path, "queues", len(cfg.Queues))

	lockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("lanes failed", "error", err)
		return 1
	}
	logger.Info("lanes stopped")
	return 0
}

// serve runs the daemon until ctx is done or a component fails. Pending
// tasks get ShutdownTimeout to drain before the remaining ones are discarded.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.State.Path, err)
	}
	defer db.Close()

	hub := events.NewHub(cfg.History.RingSize)
	store := tasklog.New(db)
	recorder := tasklog.NewRecorder(store, hub, cfg.History.Retention)

	// Dispatchers outlive ctx so they can drain after the signal.
	reg := registry.New(context.Background(), hub)
	table, err := bindQueues(cfg, reg)
	if err != nil {
		_ = reg.Close()
		return err
	}
	svc := registry.Service{Registry: reg, Table: table}

	var hooks *webhook.Server
	if cfg.Webhooks != nil && len(cfg.Webhooks.Endpoints) > 0 {
		wcfg, err := webhook.FromConfig(cfg.Webhooks, cfg.Queues)
		if err != nil {
			_ = reg.Close()
			return err
		}
		hooks = webhook.New(wcfg, svc, log.WithComponent("webhook"))
	}

	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return recorder.Run(recCtx)
	})

	if cfg.API.Enabled {
		server := api.New(api.Config{
			Listen:          cfg.API.Listen,
			APIKey:          cfg.API.APIKey,
			ShutdownTimeout: cfg.Service.ShutdownTimeout,
		}, svc, store, hub, log.WithComponent("api"))
		g.Go(func() error {
			if err := server.Start(gctx); err != nil {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	sched := scheduler.New(cfg, svc, hub, log.Get())
	if scheduled := sched.Scheduled(); len(scheduled) > 0 {
		g.Go(func() error {
			return sched.Run(gctx)
		})
		logger.Info("scheduler enabled", "queues", scheduled)
	}

	if hooks != nil {
		g.Go(func() error {
			return hooks.Start(gctx)
		})
		logger.Info("webhook server enabled", "listen", cfg.Webhooks.Listen, "endpoints", len(cfg.Webhooks.Endpoints))
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "pending", pendingTasks(reg), "timeout", cfg.Service.ShutdownTimeout)
		drainRegistry(reg, cfg, logger)
		stopRecorder()
		return nil
	})

	logger.Info("lanes running (press Ctrl+C to stop)")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// bindQueues binds every configured queue to a runner operation and creates
// the dispatcher of its configured owner up front so it is visible at once.
func bindQueues(cfg *config.Config, reg *registry.Registry) (*registry.Table, error) {
	table := registry.NewTable(reg)
	for _, name := range cfg.QueueNames() {
		q := cfg.Queues[name]
		opts, err := q.Options()
		if err != nil {
			return nil, fmt.Errorf("queue %q: %w", name, err)
		}
		spec := runner.Spec{
			Argv:      q.Command,
			KillAfter: q.KillAfter,
			Logger:    log.WithComponent("runner").With("queue", name),
		}
		if err := table.Bind(name, spec.Operation(), opts...); err != nil {
			return nil, fmt.Errorf("queue %q: %w", name, err)
		}
		if _, err := table.Resolve(q.OwnerOrDefault(name), name); err != nil {
			return nil, fmt.Errorf("queue %q: %w", name, err)
		}
	}
	return table, nil
}

func drainRegistry(reg *registry.Registry, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	if err := reg.WaitForIdle(ctx); err != nil {
		logger.Warn("shutdown timeout reached, discarding pending tasks", "pending", pendingTasks(reg))
	}
	if err := reg.Close(); err != nil {
		logger.Error("failed to close registry", "error", err)
	}
}

func pendingTasks(reg *registry.Registry) int {
	n := 0
	for _, st := range reg.Snapshot() {
		n += st.Pending
	}
	return n
}

func loadConfig(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, "", err
		}
		configPath = discovered
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}
