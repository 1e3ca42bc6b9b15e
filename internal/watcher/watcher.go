// Package watcher observes tenant vault folders for out-of-band changes.
//
// The watcher never mutates the vault or the knowledge index itself: it
// compares filesystem events against the manifest and reports drift on a
// channel, leaving reconciliation to the caller. This keeps it from
// fighting with in-flight uploads and deletes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Op is the kind of drift detected.
type Op int

const (
	// OpAdded indicates a file appeared on disk with no manifest entry.
	OpAdded Op = iota

	// OpRemoved indicates a manifest-tracked file vanished from disk.
	OpRemoved
)

// String returns the op name for logging.
func (o Op) String() string {
	if o == OpAdded {
		return "added"
	}
	return "removed"
}

// DriftEvent reports one out-of-band filesystem change in a tenant folder.
type DriftEvent struct {
	TenantID  int64
	Op        Op
	Filename  string
	Timestamp time.Time
}

// ManifestChecker reports whether a stored filename is tracked by the
// tenant's manifest. Satisfied by the File Vault service.
type ManifestChecker interface {
	Tracked(tenantID int64, storedFilename string) bool
}

// Watcher observes registered tenant folders with a shared fsnotify
// watcher and emits DriftEvents for changes the vault did not make.
type Watcher struct {
	checker ManifestChecker
	logger  *logging.Logger

	fsw    *fsnotify.Watcher
	events chan DriftEvent
	stop   chan struct{}

	mu      sync.Mutex
	tenants map[string]int64 // watched dir -> tenant id
	started bool
}

// New creates a drift watcher. Returns ErrWatcherFailed if the underlying
// fsnotify watcher cannot be created.
func New(checker ManifestChecker, logger *logging.Logger) (*Watcher, error) {
	if checker == nil {
		return nil, errors.New("manifest checker is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		checker: checker,
		logger:  logger.Named("watcher"),
		fsw:     fsw,
		events:  make(chan DriftEvent, 64),
		stop:    make(chan struct{}),
		tenants: make(map[string]int64),
	}, nil
}

// Start begins processing filesystem events in a background goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.processEvents(ctx)
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
		return
	default:
		close(w.stop)
		_ = w.fsw.Close() // Best-effort cleanup, ignore error
	}
}

// Events returns the channel for receiving drift events.
func (w *Watcher) Events() <-chan DriftEvent {
	return w.events
}

// Watch registers a tenant folder for observation.
func (w *Watcher) Watch(tenantID int64, dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watching tenant %d folder: %w", tenantID, err)
	}
	w.mu.Lock()
	w.tenants[filepath.Clean(dir)] = tenantID
	w.mu.Unlock()
	return nil
}

// Unwatch stops observing a tenant folder. Called on tenant destruction.
func (w *Watcher) Unwatch(tenantID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir, id := range w.tenants {
		if id == tenantID {
			delete(w.tenants, dir)
			_ = w.fsw.Remove(dir)
		}
	}
}

// processEvents translates filesystem events into drift events.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}

// handleEvent emits a drift event if the change was out-of-band.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if ignoredFile(name) {
		return
	}

	dir := filepath.Clean(filepath.Dir(event.Name))
	w.mu.Lock()
	tenantID, ok := w.tenants[dir]
	w.mu.Unlock()
	if !ok {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		// A create the vault performed lands in the manifest immediately
		// after; anything still untracked here is drift or an in-flight
		// upload the reconciler will re-check.
		if w.checker.Tracked(tenantID, name) {
			return
		}
		op = OpAdded
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// Removal of an untracked file is not drift; the manifest never
		// knew about it.
		if !w.checker.Tracked(tenantID, name) {
			return
		}
		op = OpRemoved
	default:
		return
	}

	drift := DriftEvent{
		TenantID:  tenantID,
		Op:        op,
		Filename:  name,
		Timestamp: time.Now(),
	}

	w.logger.Warn(ctx, "vault drift detected",
		zap.Int64("tenant_id", tenantID),
		zap.String("op", op.String()),
		zap.String("filename", name))

	// Send event (non-blocking)
	select {
	case w.events <- drift:
	default:
		// Channel full, skip event
	}
}

// ignoredFile filters the manifest itself and temp files used by atomic
// manifest writes.
func ignoredFile(name string) bool {
	return name == "manifest.json" || strings.HasSuffix(name, ".tmp")
}
