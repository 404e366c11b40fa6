package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore captures SaveState calls; other Store methods are unused
// by the auto-saver.
type recordingStore struct {
	mu      sync.Mutex
	saves   []Reason
	entered chan struct{}
	block   chan struct{}
}

func (r *recordingStore) SaveState(ctx context.Context, st *PersistentWorkflowState, reason Reason) (string, error) {
	if r.entered != nil {
		select {
		case r.entered <- struct{}{}:
		default:
		}
	}
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, reason)
	return "ckpt", nil
}

func (r *recordingStore) reasons() []Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reason(nil), r.saves...)
}

func (r *recordingStore) LoadState(context.Context, string) (*PersistentWorkflowState, error) {
	return nil, nil
}

func (r *recordingStore) CreateCheckpoint(context.Context, *PersistentWorkflowState, Reason) (string, error) {
	return "", nil
}

func (r *recordingStore) RestoreFromCheckpoint(context.Context, string, string) (*PersistentWorkflowState, error) {
	return nil, nil
}

func (r *recordingStore) ListCheckpoints(context.Context, string) ([]CheckpointInfo, error) {
	return nil, nil
}

func (r *recordingStore) CleanupOldData(context.Context, string) (int, error) { return 0, nil }

func (r *recordingStore) VerifyIntegrity(*PersistentWorkflowState) bool { return true }

func TestAutoSaverSavesSubmissions(t *testing.T) {
	store := &recordingStore{}
	saver := NewAutoSaver(store, time.Hour)

	go saver.Run(context.Background())

	require.True(t, saver.Submit(testSnapshot("agent001")))
	require.True(t, saver.Submit(testSnapshot("agent001")))
	saver.Stop()

	assert.Equal(t, []Reason{ReasonStateTransition, ReasonStateTransition}, store.reasons())
}

func TestAutoSaverPeriodicResave(t *testing.T) {
	store := &recordingStore{}
	saver := NewAutoSaver(store, 20*time.Millisecond)

	go saver.Run(context.Background())

	require.True(t, saver.Submit(testSnapshot("agent001")))
	assert.Eventually(t, func() bool {
		for _, r := range store.reasons() {
			if r == ReasonPeriodicSave {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	saver.Stop()
}

func TestAutoSaverNoTickSaveWithoutSubmission(t *testing.T) {
	store := &recordingStore{}
	saver := NewAutoSaver(store, 10*time.Millisecond)

	go saver.Run(context.Background())
	time.Sleep(50 * time.Millisecond)
	saver.Stop()

	assert.Empty(t, store.reasons())
}

func TestAutoSaverDropsWhenFull(t *testing.T) {
	store := &recordingStore{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	saver := NewAutoSaver(store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go saver.Run(ctx)

	st := testSnapshot("agent001")
	// Park the run loop inside SaveState, then fill the buffer behind it.
	require.True(t, saver.Submit(st))
	<-store.entered
	for i := 0; i < autoSaveBuffer; i++ {
		require.True(t, saver.Submit(st))
	}
	assert.False(t, saver.Submit(st))
	close(store.block)
	cancel()
}

func TestAutoSaverStopIdempotent(t *testing.T) {
	saver := NewAutoSaver(&recordingStore{}, time.Hour)
	go saver.Run(context.Background())
	saver.Stop()
	saver.Stop()
}

func TestAutoSaverSubmitAfterStopDropped(t *testing.T) {
	store := &recordingStore{}
	saver := NewAutoSaver(store, time.Hour)
	go saver.Run(context.Background())
	saver.Stop()

	require.NotPanics(t, func() {
		assert.False(t, saver.Submit(testSnapshot("agent001")))
	})
	assert.Empty(t, store.reasons())
}
