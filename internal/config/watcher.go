package config

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// revision identifies one version of the config file on disk.
type revision struct {
	mod time.Time
	sum [sha256.Size]byte
}

// Watcher polls a config file and hands each valid revision that changes
// something to a callback. Invalid revisions are logged and skipped; the last
// valid config stays current. Edits that only touch comments or formatting
// do not reach the callback.
type Watcher struct {
	path     string
	interval time.Duration
	lookup   func(string) (string, bool)
	onChange func(old, new *Config)

	current atomic.Pointer[Config]

	// mu serialises reloads between the poll loop and [Watcher.Reload].
	mu   sync.Mutex
	seen revision

	stop context.CancelFunc
	done chan struct{}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLookup replaces [os.LookupEnv] for the environment overrides applied on
// every load, so a reload never drops secrets supplied via the environment.
func WithLookup(lookup func(string) (string, bool)) WatcherOption {
	return func(w *Watcher) {
		if lookup != nil {
			w.lookup = lookup
		}
	}
}

// NewWatcher loads path once and starts polling it. onChange may be nil and
// is never called concurrently with itself.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		lookup:   os.LookupEnv,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, rev, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current.Store(cfg)
	w.seen = rev

	ctx, cancel := context.WithCancel(context.Background())
	w.stop = cancel
	go w.loop(ctx)
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Stop ends polling and waits for an in-flight reload to finish. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.stop()
	<-w.done
}

// Reload rereads the file immediately, regardless of its modification time.
// It returns the validation error of a rejected revision.
func (w *Watcher) Reload() error {
	return w.reload(true)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.reload(false); err != nil {
				slog.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// reload applies the file's current revision. Unless forced it returns
// early when the modification time is unchanged.
func (w *Watcher) reload(force bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			return err
		}
		if info.ModTime().Equal(w.seen.mod) {
			return nil
		}
	}

	cfg, rev, err := w.read()
	if err != nil {
		return err
	}
	same := rev.sum == w.seen.sum
	w.seen = rev
	if same {
		return nil
	}

	old := w.current.Swap(cfg)
	d := Diff(old, cfg)
	if !d.Changed() {
		slog.Debug("config: file changed without effect", "path", w.path)
		return nil
	}
	slog.Info("config: reloaded", "path", w.path,
		"log_level", d.LogLevelChanged,
		"grid", d.GridChanged,
		"extraction", d.ExtractionChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return nil
}

// read loads and validates the file and returns its revision.
func (w *Watcher) read() (*Config, revision, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	if len(data) == 0 {
		return nil, revision{}, errors.New("empty file")
	}
	cfg, err := load(data, w.lookup)
	if err != nil {
		return nil, revision{}, err
	}
	return cfg, revision{mod: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
