package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Change is one accepted reload of the watched config file. Diff tells
// the consumer which sections it can apply live and whether anything
// needs a restart.
type Change struct {
	Old  *Config
	New  *Config
	Diff ConfigDiff
}

// Watcher polls a config file and publishes accepted reloads on
// [Watcher.Changes]. Polling (not inotify) keeps the dependency surface
// flat and behaves the same on bind-mounted container configs.
type Watcher struct {
	path     string
	interval time.Duration
	changes  chan Change

	mu      sync.Mutex
	current *Config
	seen    fingerprint

	done     chan struct{}
	stopOnce sync.Once
}

// fingerprint identifies one on-disk revision of the watched file.
type fingerprint struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithPollInterval overrides the default 5-second poll interval.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path immediately and starts polling it in the
// background. A file that fails to load at startup is a hard error;
// later failures only log and keep the previous config.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		changes:  make(chan Change, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current = cfg
	w.seen = fp

	go w.run()
	return w, nil
}

// Changes delivers one Change per accepted reload. Unreadable or
// invalid revisions are logged and dropped without a Change. The
// channel closes after Stop.
func (w *Watcher) Changes() <-chan Change { return w.changes }

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.changes)

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

// reload re-reads the file when its mtime moved, drops revisions whose
// content is unchanged or invalid, and publishes the rest.
func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config reload skipped", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	mtime := w.seen.mtime
	w.mu.Unlock()
	if info.ModTime().Equal(mtime) {
		return
	}

	cfg, fp, err := w.load()
	if err != nil {
		slog.Warn("config reload rejected, keeping previous config", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	if fp.sum == w.seen.sum {
		// Touched but identical.
		w.seen.mtime = fp.mtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.seen = fp
	w.mu.Unlock()

	diff := Diff(old, cfg)
	slog.Info("config reloaded", "path", w.path, "restart_required", diff.RestartRequired)

	select {
	case w.changes <- Change{Old: old, New: cfg, Diff: diff}:
	case <-w.done:
	}
}

// load reads, parses, and validates the file, returning the config with
// the revision fingerprint it came from.
func (w *Watcher) load() (*Config, fingerprint, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
