// Package watcher reports changes to the inventory database so the console
// can reload. It uses fsnotify where change events are trustworthy and falls
// back to stat polling on network filesystems.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vanderheijden86/edgeloc/pkg/debug"
)

// DefaultPollInterval is the stat interval in polling mode.
const DefaultPollInterval = 2 * time.Second

// ForcePollEnvVar forces polling mode when set to a true value.
const ForcePollEnvVar = "EDGELOC_FORCE_POLL"

var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounceDuration sets the quiet period before a change is reported.
func WithDebounceDuration(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithPollInterval sets the stat interval used in polling mode.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithOnChange sets a callback run after each debounced change.
func WithOnChange(fn func()) Option {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// WithOnError sets a callback for watch errors.
func WithOnError(fn func(error)) Option {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithForcePoll skips fsnotify entirely.
func WithForcePoll(force bool) Option {
	return func(w *Watcher) {
		w.forcePoll = force
	}
}

// fileState is what polling compares between ticks.
type fileState struct {
	mtime time.Time
	size  int64
}

func (s fileState) exists() bool { return !s.mtime.IsZero() }

// Watcher monitors one file.
type Watcher struct {
	path         string
	debounce     time.Duration
	pollInterval time.Duration
	onChange     func()
	onError      func(error)
	forcePoll    bool

	debouncer *Debouncer
	changes   chan struct{}

	mu      sync.RWMutex
	started bool
	polling bool
	fsType  FilesystemType
	last    fileState
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewWatcher returns an unstarted watcher for path.
func NewWatcher(path string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:         abs,
		debounce:     DefaultDebounceDuration,
		pollInterval: DefaultPollInterval,
		onChange:     func() {},
		onError:      func(error) {},
		changes:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = NewDebouncer(w.debounce)
	return w, nil
}

// Start begins watching. A file that does not exist yet is fine; its
// creation counts as a change.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	state, err := stat(w.path)
	if err != nil && errors.Is(err, ErrPermission) {
		return err
	}
	w.last = state

	w.fsType = DetectFilesystemType(w.path)
	w.polling = w.forcePoll || envBool(ForcePollEnvVar) || isRemoteFilesystem(w.fsType)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	if !w.polling {
		fsw, err := w.watchDir()
		if err != nil {
			debug.Log("watcher: fsnotify unavailable for %s, polling: %v", w.path, err)
			w.polling = true
		} else {
			w.fsw = fsw
			go w.runEvents(ctx, fsw.Events, fsw.Errors)
		}
	}
	if w.polling {
		go w.runPolling(ctx)
	}

	debug.Log("watcher: %s on %s (polling=%v)", w.path, w.fsType, w.polling)
	w.started = true
	return nil
}

// watchDir watches the parent directory; atomic replaces swap the inode and
// would silently end a watch on the file itself.
func (w *Watcher) watchDir() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return fsw, nil
}

// Stop ends watching and drops a pending change. The Changed channel stays
// open: a reader blocked on it is released by process exit, and closing it
// would race with a late notify.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	w.cancel()
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
	w.debouncer.Cancel()
	w.started = false
}

// IsPolling reports whether the watcher fell back to polling.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.polling
}

// IsStarted reports whether the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed receives once per debounced change. Changes that arrive while a
// previous one is unread are merged.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changes
}

// Path returns the absolute watched path.
func (w *Watcher) Path() string {
	return w.path
}

// FilesystemType returns the classification made at Start.
func (w *Watcher) FilesystemType() FilesystemType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsType
}

// PollInterval returns the polling interval.
func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollInterval
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func stat(path string) (fileState, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return fileState{mtime: info.ModTime(), size: info.Size()}, nil
	case os.IsNotExist(err):
		return fileState{}, ErrFileRemoved
	case os.IsPermission(err):
		return fileState{}, ErrPermission
	default:
		return fileState{}, err
	}
}

// isTarget matches the watched file. SQLite's rollback journal lives next
// to the database and counts as a write to it.
func (w *Watcher) isTarget(name string) bool {
	base := filepath.Base(w.path)
	switch filepath.Base(name) {
	case base, base + "-journal":
		return true
	default:
		return false
	}
}

func (w *Watcher) runEvents(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if !w.isTarget(ev.Name) {
				continue
			}
			switch {
			case ev.Name == w.path && ev.Has(fsnotify.Remove):
				w.onError(ErrFileRemoved)
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create), ev.Has(fsnotify.Rename):
				w.debouncer.Trigger(w.notify)
			}

		case err, ok := <-errs:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	state, err := stat(w.path)

	w.mu.Lock()
	prev := w.last
	if err == nil || errors.Is(err, ErrFileRemoved) {
		w.last = state
	}
	w.mu.Unlock()

	switch {
	case errors.Is(err, ErrFileRemoved):
		// Report the removal once, not on every tick while it stays gone.
		if prev.exists() {
			w.onError(ErrFileRemoved)
		}
	case err != nil:
		w.onError(err)
	case state.mtime.After(prev.mtime) || state.size != prev.size:
		w.debouncer.Trigger(w.notify)
	}
}

// notify runs the change callback and signals Changed.
func (w *Watcher) notify() {
	if !w.IsStarted() {
		return
	}
	w.onChange()
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
