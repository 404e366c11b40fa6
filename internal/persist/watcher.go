package persist

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a state directory for writes to state and checkpoint
// files. It is used by the doctor command to surface saves as they happen
// and to warn about writers other than the running daemon.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func(path string)
}

func NewWatcher(dir string, onChange func(path string)) *Watcher {
	return &Watcher{
		dir:      dir,
		debounce: 100 * time.Millisecond,
		onChange: onChange,
	}
}

// Run blocks until ctx is cancelled. Bursts of events for the same path
// (temp file write plus rename) are coalesced within the debounce window.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !isStateFile(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("state watcher error", "error", err)
		case <-timer.C:
			for path := range pending {
				w.onChange(path)
			}
			clear(pending)
		}
	}
}

func isStateFile(path string) bool {
	return strings.HasSuffix(path, ".state.json") || strings.HasSuffix(path, ".checkpoint.json")
}
