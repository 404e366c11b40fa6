package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/johnhkchen/my-little-soda-sub002/pkg/panicerr"
)

// AutoSaver writes submitted snapshots in the background and additionally
// re-saves the most recent one on a periodic tick. Submit never blocks the
// workflow loop: when the buffer is full the snapshot is dropped and the
// next tick picks up whatever state is current.
type AutoSaver struct {
	store    Store
	interval time.Duration

	mu     sync.Mutex
	closed bool
	ch     chan *PersistentWorkflowState
	done   chan struct{}
}

const autoSaveBuffer = 16

func NewAutoSaver(store Store, interval time.Duration) *AutoSaver {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &AutoSaver{
		store:    store,
		interval: interval,
		ch:       make(chan *PersistentWorkflowState, autoSaveBuffer),
		done:     make(chan struct{}),
	}
}

// Submit queues a snapshot for persistence. Returns false if the snapshot
// was dropped, either because the buffer was full or the saver was already
// stopped.
func (a *AutoSaver) Submit(st *PersistentWorkflowState) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		slog.Warn("auto-saver stopped, dropping snapshot", "agent_id", st.AgentID)
		return false
	}
	select {
	case a.ch <- st:
		return true
	default:
		slog.Warn("auto-save buffer full, dropping snapshot", "agent_id", st.AgentID)
		return false
	}
}

// Run processes submissions until ctx is cancelled or Stop is called.
func (a *AutoSaver) Run(ctx context.Context) {
	defer close(a.done)
	if err := panicerr.Safe(func() error {
		a.run(ctx)
		return nil
	})(); err != nil {
		slog.Error("auto-saver stopped", "error", err)
	}
}

func (a *AutoSaver) run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var latest *PersistentWorkflowState
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-a.ch:
			if !ok {
				return
			}
			latest = st
			a.save(ctx, st, ReasonStateTransition)
		case <-ticker.C:
			if latest != nil {
				a.save(ctx, latest, ReasonPeriodicSave)
			}
		}
	}
}

func (a *AutoSaver) save(ctx context.Context, st *PersistentWorkflowState, reason Reason) {
	if _, err := a.store.SaveState(ctx, st, reason); err != nil {
		slog.Error("auto-save failed", "agent_id", st.AgentID, "reason", reason, "error", err)
	}
}

// Stop closes the submission channel and waits for Run to drain and exit.
// Submissions after Stop are dropped.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
}
