package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is the polling interval used when none is given.
const DefaultWatchInterval = 5 * time.Second

// ChangeFunc receives the hot-reloadable difference between the running and
// the reloaded config, and the reloaded config itself.
type ChangeFunc func(d ConfigDiff, cfg *Config)

// Watcher polls a config file and reports validated changes as a
// [ConfigDiff]. Edits that fail validation are logged once per distinct
// content and otherwise ignored; the running config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	mu       sync.Mutex
	current  *Config
	mtime    time.Time
	hash     [sha256.Size]byte
	rejected [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the file at path and returns a Watcher for it. Call
// [Watcher.Run] to start polling.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	data, mtime, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.mtime, w.hash = cfg, mtime, sha256.Sum256(data)
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check reads the file once. A new valid config replaces the running one;
// onChange is called only when the replacement differs in a field [Diff]
// tracks. Check reports whether a new config was accepted.
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if unchanged {
		return false
	}

	data, mtime, err := w.read()
	if err != nil {
		slog.Warn("config watcher: cannot read file", "path", w.path, "err", err)
		return false
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	w.mtime = mtime
	if sum == w.hash || sum == w.rejected {
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		w.mu.Lock()
		w.rejected = sum
		w.mu.Unlock()
		slog.Warn("config watcher: keeping running config", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	old := w.current
	w.current, w.hash = cfg, sum
	w.mu.Unlock()

	d := Diff(old, cfg)
	slog.Info("config watcher: configuration reloaded", "path", w.path, "hot_changes", !d.Empty())
	if w.onChange != nil && !d.Empty() {
		w.onChange(d, cfg)
	}
	return true
}

func (w *Watcher) read() ([]byte, time.Time, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}
