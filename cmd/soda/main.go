package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/johnhkchen/my-little-soda-sub002/internal/config"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/clog"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

var (
	app = kingpin.New("soda", "Autonomous work-agent orchestration")

	runCmd    = app.Command("run", "Run the orchestration daemon")
	runAgents = runCmd.Flag("agent", "Agent IDs to drive (repeatable)").Default("agent001").Strings()

	statusCmd   = app.Command("status", "Show an agent's workflow status")
	statusAgent = statusCmd.Arg("agent", "Agent ID").Required().String()

	peekCmd   = app.Command("peek", "Show an agent's persisted state and the resume decision")
	peekAgent = peekCmd.Arg("agent", "Agent ID").Required().String()

	doctorCmd   = app.Command("doctor", "Diagnose the state directory")
	doctorWatch = doctorCmd.Flag("watch", "Keep watching the state directory for changes").Bool()

	checkpointCmd = app.Command("checkpoint", "Checkpoint management")

	checkpointListCmd   = checkpointCmd.Command("list", "List an agent's checkpoints")
	checkpointListAgent = checkpointListCmd.Arg("agent", "Agent ID").Required().String()

	checkpointRestoreCmd   = checkpointCmd.Command("restore", "Restore a checkpoint as the current state")
	checkpointRestoreAgent = checkpointRestoreCmd.Arg("agent", "Agent ID").Required().String()
	checkpointRestoreID    = checkpointRestoreCmd.Arg("id", "Checkpoint ID").Required().String()

	checkpointCleanupCmd   = checkpointCmd.Command("cleanup", "Delete checkpoints past the retention window")
	checkpointCleanupAgent = checkpointCleanupCmd.Arg("agent", "Agent ID").Required().String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	setupLogger(env)

	ctx := context.Background()
	store, err := openStorage(ctx, env)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}

	switch command {
	case runCmd.FullCommand():
		err = handleRun(env, store, *runAgents)
	case statusCmd.FullCommand():
		err = handleStatus(ctx, env, store, *statusAgent)
	case peekCmd.FullCommand():
		err = handlePeek(ctx, env, store, *peekAgent)
	case doctorCmd.FullCommand():
		err = handleDoctor(ctx, env, store, *doctorWatch)
	case checkpointListCmd.FullCommand():
		err = handleCheckpointList(ctx, env, store, *checkpointListAgent)
	case checkpointRestoreCmd.FullCommand():
		err = handleCheckpointRestore(ctx, env, store, *checkpointRestoreAgent, *checkpointRestoreID)
	case checkpointCleanupCmd.FullCommand():
		err = handleCheckpointCleanup(ctx, env, store, *checkpointCleanupAgent)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func openStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		return storage.NewS3Storage(ctx, env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
	default:
		return storage.NewLocalStorage(env.StorageEnv.BaseDir)
	}
}
