package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// ReloadFunc receives the previous and the newly loaded configuration
// together with the sections that differ.
type ReloadFunc func(prev, next *Config, d ConfigDiff)

// Watcher polls a configuration file and reloads it when it changes. Edits
// that fail to parse or validate are reported and skipped; the last valid
// configuration stays current. Edits that change bytes but no setting (a
// comment, reordered keys) update the fingerprint without calling back.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc
	onError  func(error)

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	sum     [sha256.Size]byte

	reloads atomic.Uint64
	stop    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep the
// default of five seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorHandler receives every failed reload attempt.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher loads path, which must hold a valid configuration, and polls it
// in the background until [Watcher.Stop].
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onReload: onReload,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, sum, mtime, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.sum, w.mtime = cfg, sum, mtime

	go w.loop()
	return w, nil
}

// Current returns the last valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reloads reports how many changed configurations have been applied.
func (w *Watcher) Reloads() uint64 { return w.reloads.Load() }

// Stop ends polling and waits for an in-flight reload to finish. It must not
// be called from the reload callback. Further calls are no-ops.
func (w *Watcher) Stop() {
	w.stopped.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.fail(err)
		return
	}
	w.mu.Lock()
	same := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if same {
		return
	}

	next, sum, mtime, err := w.load()
	if err != nil {
		w.fail(err)
		return
	}

	w.mu.Lock()
	w.mtime = mtime
	if sum == w.sum {
		w.mu.Unlock()
		return
	}
	w.sum = sum
	prev := w.current
	d := Diff(prev, next)
	if !d.Any() {
		w.mu.Unlock()
		return
	}
	w.current = next
	w.mu.Unlock()

	w.reloads.Add(1)
	slog.Info("config: reloaded", "path", w.path,
		"log_level", d.LogLevelChanged,
		"resample", d.ResampleChanged,
		"vad", d.VADChanged,
		"pipeline", d.PipelineChanged,
	)
	if d.MetricsChanged {
		slog.Warn("config: metrics.listen_addr takes effect on restart", "path", w.path)
	}
	if w.onReload != nil {
		w.onReload(prev, next, d)
	}
}

func (w *Watcher) fail(err error) {
	slog.Warn("config: reload skipped, keeping previous configuration", "path", w.path, "err", err)
	if w.onError != nil {
		w.onError(err)
	}
}

func (w *Watcher) load() (*Config, [sha256.Size]byte, time.Time, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
