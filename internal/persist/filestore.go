package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/johnhkchen/my-little-soda-sub002/pkg/cerr"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

// Config bounds what the store keeps.
type Config struct {
	MaxStateHistory    int
	MaxRecoveryHistory int
	Retention          time.Duration
	IntegrityChecks    bool
}

// DefaultConfig mirrors the production environment defaults.
func DefaultConfig() Config {
	return Config{
		MaxStateHistory:    100,
		MaxRecoveryHistory: 50,
		Retention:          7 * 24 * time.Hour,
		IntegrityChecks:    true,
	}
}

// FileStore persists snapshots as JSON through a storage backend. Layout:
// <agent_id>.state.json for the current state and
// <agent_id>_checkpoints/<checkpoint_id>.checkpoint.json for named
// checkpoints. Atomicity comes from the backend's write discipline.
type FileStore struct {
	storage  storage.Storage
	cfg      Config
	hostname string
	pid      int

	now     func() time.Time
	randU32 func() uint32
}

func NewFileStore(s storage.Storage, cfg Config) *FileStore {
	if cfg.MaxStateHistory <= 0 {
		cfg.MaxStateHistory = DefaultConfig().MaxStateHistory
	}
	if cfg.MaxRecoveryHistory <= 0 {
		cfg.MaxRecoveryHistory = DefaultConfig().MaxRecoveryHistory
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &FileStore{
		storage:  s,
		cfg:      cfg,
		hostname: hostname,
		pid:      os.Getpid(),
		now:      time.Now,
		randU32:  rand.Uint32,
	}
}

func statePath(agentID string) string {
	return agentID + ".state.json"
}

func checkpointDir(agentID string) string {
	return agentID + "_checkpoints"
}

func checkpointPath(agentID, checkpointID string) string {
	return checkpointDir(agentID) + "/" + checkpointID + ".checkpoint.json"
}

// newCheckpointID builds IDs of the form {unix_timestamp}_{random_u32}.
func (f *FileStore) newCheckpointID() string {
	return fmt.Sprintf("%d_%d", f.now().Unix(), f.randU32())
}

// checkpointIDTime extracts the creation time from a checkpoint ID.
func checkpointIDTime(id string) (time.Time, bool) {
	tsPart, _, found := strings.Cut(id, "_")
	if !found {
		return time.Time{}, false
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(ts, 0), true
}

// prepare produces the document actually written: histories pruned to the
// configured maxima (oldest first), metadata and last_persisted refreshed.
// The caller's snapshot is never mutated.
func (f *FileStore) prepare(st *PersistentWorkflowState, reason Reason, checkpointID string) *PersistentWorkflowState {
	out := *st
	if n := len(out.StateHistory); n > f.cfg.MaxStateHistory {
		out.StateHistory = out.StateHistory[n-f.cfg.MaxStateHistory:]
	}
	if n := len(out.RecoveryHistory); n > f.cfg.MaxRecoveryHistory {
		out.RecoveryHistory = out.RecoveryHistory[n-f.cfg.MaxRecoveryHistory:]
	}
	out.LastPersisted = f.now()
	out.CheckpointMetadata = CheckpointMetadata{
		CheckpointID:   checkpointID,
		CreationReason: reason,
		AgentPID:       f.pid,
		Hostname:       f.hostname,
	}
	out.CheckpointMetadata.IntegrityHash = IntegrityHash(&out)
	return &out
}

func (f *FileStore) write(ctx context.Context, path string, st *PersistentWorkflowState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to serialize workflow state", err)
	}
	if err := f.storage.Write(ctx, path, data); err != nil {
		return cerr.WrapStorageWriteError("workflow state", err)
	}
	return nil
}

func (f *FileStore) SaveState(ctx context.Context, st *PersistentWorkflowState, reason Reason) (string, error) {
	id := f.newCheckpointID()
	doc := f.prepare(st, reason, id)
	if err := f.write(ctx, statePath(doc.AgentID), doc); err != nil {
		return "", err
	}
	return id, nil
}

func (f *FileStore) LoadState(ctx context.Context, agentID string) (*PersistentWorkflowState, error) {
	return f.read(ctx, statePath(agentID))
}

func (f *FileStore) read(ctx context.Context, path string) (*PersistentWorkflowState, error) {
	data, err := f.storage.Read(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.WrapStorageReadError("workflow state", err)
	}

	var st PersistentWorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to deserialize workflow state", err)
	}
	if st.Version > CurrentVersion {
		return nil, cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("persisted state version %d is newer than supported %d", st.Version, CurrentVersion),
			ErrVersionMismatch)
	}
	if f.cfg.IntegrityChecks && !f.VerifyIntegrity(&st) {
		return nil, cerr.NewError(cerr.DataLoss,
			fmt.Sprintf("integrity hash mismatch for agent %s", st.AgentID), ErrStateCorruption)
	}
	return &st, nil
}

func (f *FileStore) CreateCheckpoint(ctx context.Context, st *PersistentWorkflowState, reason Reason) (string, error) {
	id := f.newCheckpointID()
	doc := f.prepare(st, reason, id)
	if err := f.write(ctx, checkpointPath(doc.AgentID, id), doc); err != nil {
		return "", err
	}
	return id, nil
}

func (f *FileStore) RestoreFromCheckpoint(ctx context.Context, agentID, checkpointID string) (*PersistentWorkflowState, error) {
	st, err := f.read(ctx, checkpointPath(agentID, checkpointID))
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, cerr.NewError(cerr.NotFound,
			fmt.Sprintf("checkpoint %s not found for agent %s", checkpointID, agentID), nil)
	}
	// Promote the checkpoint to the agent's current state.
	if _, err := f.SaveState(ctx, st, ReasonUserRequested); err != nil {
		return nil, err
	}
	return st, nil
}

func (f *FileStore) ListCheckpoints(ctx context.Context, agentID string) ([]CheckpointInfo, error) {
	paths, err := f.storage.List(ctx, checkpointDir(agentID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("checkpoints", err)
	}

	var infos []CheckpointInfo
	for _, p := range paths {
		if !strings.HasSuffix(p, ".checkpoint.json") {
			continue
		}
		id := strings.TrimSuffix(p[strings.LastIndex(p, "/")+1:], ".checkpoint.json")
		created, ok := checkpointIDTime(id)
		if !ok {
			continue
		}
		info := CheckpointInfo{CheckpointID: id, CreatedAt: created, AgentID: agentID}
		// Reason lives inside the document; tolerate unreadable entries.
		if st, err := f.read(ctx, p); err == nil && st != nil {
			info.Reason = st.CheckpointMetadata.CreationReason
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].CheckpointID > infos[j].CheckpointID
	})
	return infos, nil
}

func (f *FileStore) CleanupOldData(ctx context.Context, agentID string) (int, error) {
	paths, err := f.storage.List(ctx, checkpointDir(agentID))
	if err != nil {
		return 0, cerr.WrapStorageReadError("checkpoints", err)
	}

	cutoff := f.now().Add(-f.cfg.Retention)
	removed := 0
	for _, p := range paths {
		if !strings.HasSuffix(p, ".checkpoint.json") {
			continue
		}
		id := strings.TrimSuffix(p[strings.LastIndex(p, "/")+1:], ".checkpoint.json")
		created, ok := checkpointIDTime(id)
		if !ok || !created.Before(cutoff) {
			continue
		}
		if err := f.storage.Delete(ctx, p); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return removed, cerr.WrapStorageDeleteError("checkpoint", err)
		}
		removed++
	}
	return removed, nil
}

func (f *FileStore) VerifyIntegrity(st *PersistentWorkflowState) bool {
	return st.CheckpointMetadata.IntegrityHash == IntegrityHash(st)
}
