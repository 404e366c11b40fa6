package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/johnhkchen/my-little-soda-sub002/internal/config"
	"github.com/johnhkchen/my-little-soda-sub002/internal/continuity"
	"github.com/johnhkchen/my-little-soda-sub002/internal/coordinator"
	"github.com/johnhkchen/my-little-soda-sub002/internal/eventbus"
	"github.com/johnhkchen/my-little-soda-sub002/internal/metrics"
	"github.com/johnhkchen/my-little-soda-sub002/internal/notify"
	"github.com/johnhkchen/my-little-soda-sub002/internal/persist"
	"github.com/johnhkchen/my-little-soda-sub002/internal/recovery"
	"github.com/johnhkchen/my-little-soda-sub002/internal/server"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

// handleRun wires the orchestration daemon: per-agent machines behind the
// coordinator, a recovery engine with scripted fixes and push escalations,
// prometheus metrics fed from the event bus, and the status HTTP server.
func handleRun(env *config.Env, store storage.Storage, agents []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wf := config.WorkflowEnvFromEnv(env)
	fileStore := persist.NewFileStore(store, persist.Config{
		MaxStateHistory:    wf.MaxStateHistory,
		MaxRecoveryHistory: wf.MaxRecoveryHistory,
		Retention:          wf.CheckpointRetention,
		IntegrityChecks:    wf.IntegrityChecks,
	})
	cm := continuity.NewManager(fileStore, continuity.Config{
		FreshWindow: wf.FreshWindow,
		StaleWindow: wf.StaleWindow,
	})

	bus := eventbus.New()
	subRepo := notify.NewYAMLRepository(store)
	sender := notify.NewSender(config.VAPIDEnvFromEnv(env), subRepo)
	fixer := recovery.NewScriptFixRunner(wf.FixScriptDir)
	newEngine := func() *recovery.Engine {
		return recovery.NewEngine(
			recovery.WithFixRunner(fixer),
			recovery.WithNotifier(sender),
		)
	}

	coord := coordinator.New(fileStore, cm, bus, newEngine, coordinator.Config{
		MaxWorkHours:     wf.MaxWorkHours,
		AutoSaveInterval: wf.AutoSaveInterval,
	})
	coord.Start(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	updater := metrics.NewUpdater(m, bus)
	go updater.Run(ctx)

	for _, agentID := range agents {
		action, err := coord.StartAgent(ctx, agentID)
		if err != nil {
			return err
		}
		if action != nil {
			slog.Info("continuity decision", "agent_id", agentID, "action", action)
		}
	}
	m.ActiveAgents.Set(float64(len(agents)))

	srv := server.NewServer(config.BaseEnvFromEnv(env), coord, subRepo, registry)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	coord.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}
