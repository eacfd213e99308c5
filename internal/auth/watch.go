package auth

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher monitors the credential file for changes and swaps in the new
// store when the file is modified, so operators can add a DJ mid-show
// without a restart. It uses polling (not fsnotify) to keep dependencies
// minimal. An edit that fails to parse, or that reintroduces plaintext
// secrets, is rejected and the previous store stays live.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Store)

	mu       sync.Mutex
	current  *Store
	done     chan struct{}
	stopOnce sync.Once

	lastMtime time.Time
	lastHash  [sha256.Size]byte
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

// NewWatcher creates a credential file watcher. It loads the initial
// store immediately and starts polling in a background goroutine.
func NewWatcher(path string, onChange func(old, new *Store), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	store, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("auth: watcher initial load: %w", err)
	}
	w.current = store
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid store.
func (w *Watcher) Current() *Store {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reads the credential file and, if it has changed and is valid,
// calls onChange and updates the current store.
func (w *Watcher) check() {
	// Quick mtime check first to avoid hashing unchanged files.
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("auth watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	store, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("auth watcher: rejecting credential update", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()

	if hash == w.lastHash {
		// File was touched but content is identical.
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}

	old := w.current
	w.current = store
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Info("auth watcher: credentials reloaded",
		"path", w.path,
		"djs", len(store.DJs),
		"vj_operators", len(store.VJOperators))

	// Invoke the callback outside the lock so it can safely call Current().
	if w.onChange != nil {
		w.onChange(old, store)
	}
}

// loadAndHash reads the credential file, parses and vets it, and returns
// the store alongside the file's SHA-256 hash and modification time. If
// the file is invalid the caller keeps the old store.
func (w *Watcher) loadAndHash() (*Store, [sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	store, err := Parse(data)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	if err := store.CheckHashed(); err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	return store, sha256.Sum256(data), info.ModTime(), nil
}
