package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/johnhkchen/my-little-soda-sub002/internal/config"
	"github.com/johnhkchen/my-little-soda-sub002/internal/persist"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

// handleDoctor probes the state storage: writability, parseability and
// integrity of every state file, and staleness. With --watch it keeps
// tailing the state directory and reports saves as they happen.
func handleDoctor(ctx context.Context, env *config.Env, store storage.Storage, watch bool) error {
	fileStore := newFileStore(env, store)

	// Writability probe.
	probe := fmt.Sprintf("doctor-probe-%d.tmp.json", time.Now().UnixNano())
	if err := store.Write(ctx, probe, []byte("{}")); err != nil {
		warnColor.Printf("storage not writable: %v\n", err)
		return err
	}
	_ = store.Delete(ctx, probe)
	okColor.Println("storage writable")

	paths, err := store.List(ctx, "")
	if err != nil {
		return err
	}

	healthy, broken := 0, 0
	for _, p := range paths {
		if !strings.HasSuffix(p, ".state.json") {
			continue
		}
		agentID := strings.TrimSuffix(p, ".state.json")
		st, err := fileStore.LoadState(ctx, agentID)
		if err != nil {
			warnColor.Printf("%s: %v\n", p, err)
			broken++
			continue
		}
		if st == nil {
			continue
		}
		healthy++
		age := time.Since(st.LastPersisted).Round(time.Minute)
		status := okColor
		note := "fresh"
		if age > config.WorkflowEnvFromEnv(env).StaleWindow {
			status = warnColor
			note = "stale"
		}
		status.Printf("%s: %s, last persisted %s ago (%s)\n", agentID, note, age, st.CheckpointMetadata.CreationReason)
	}
	fmt.Printf("%d state file(s) healthy, %d broken\n", healthy, broken)

	if !watch {
		return nil
	}

	local, ok := store.(*storage.LocalStorage)
	if !ok {
		warnColor.Println("--watch requires local storage")
		return nil
	}

	fmt.Println("watching", local.BasePath(), "(ctrl-c to stop)")
	w := persist.NewWatcher(local.BasePath(), func(path string) {
		fmt.Printf("%s  %s changed\n", time.Now().Format(time.TimeOnly), path)
	})
	err = w.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
