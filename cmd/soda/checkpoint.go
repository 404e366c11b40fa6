package main

import (
	"context"
	"fmt"
	"time"

	"github.com/johnhkchen/my-little-soda-sub002/internal/config"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

func handleCheckpointList(ctx context.Context, env *config.Env, store storage.Storage, agentID string) error {
	fileStore := newFileStore(env, store)
	infos, err := fileStore.ListCheckpoints(ctx, agentID)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Printf("no checkpoints for agent %s\n", agentID)
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%-24s  %s  %s\n", info.CheckpointID, info.CreatedAt.Format(time.RFC3339), info.Reason)
	}
	return nil
}

func handleCheckpointRestore(ctx context.Context, env *config.Env, store storage.Storage, agentID, checkpointID string) error {
	fileStore := newFileStore(env, store)
	st, err := fileStore.RestoreFromCheckpoint(ctx, agentID, checkpointID)
	if err != nil {
		return err
	}
	kind := "unassigned"
	if s := st.CurrentState.State; s != nil {
		kind = string(s.Kind())
	}
	okColor.Printf("restored %s as current state for %s (state: %s)\n", checkpointID, agentID, kind)
	return nil
}

func handleCheckpointCleanup(ctx context.Context, env *config.Env, store storage.Storage, agentID string) error {
	fileStore := newFileStore(env, store)
	removed, err := fileStore.CleanupOldData(ctx, agentID)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d checkpoint(s) older than %s\n", removed, config.WorkflowEnvFromEnv(env).CheckpointRetention)
	return nil
}
