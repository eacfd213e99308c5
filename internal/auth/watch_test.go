package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCreds(t *testing.T, path string, djs map[string]DJRecord) {
	t.Helper()
	s := &Store{DJs: djs, VJOperators: map[string]VJRecord{}}
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
}

func hashed(t *testing.T, key string) string {
	t.Helper()
	h, err := HashPassword(key, "sha256")
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	writeCreds(t, path, map[string]DJRecord{
		"alice": {Name: "Alice", KeyHash: hashed(t, "secret"), Priority: 10},
	})

	changed := make(chan *Store, 1)
	w, err := NewWatcher(path, func(_, new *Store) { changed <- new },
		WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if _, ok := w.Current().DJs["alice"]; !ok {
		t.Fatal("initial load missing alice")
	}

	// mtime granularity on some filesystems is one second; force a
	// distinct timestamp instead of sleeping it out.
	writeCreds(t, path, map[string]DJRecord{
		"alice": {Name: "Alice", KeyHash: hashed(t, "secret"), Priority: 10},
		"bob":   {Name: "Bob", KeyHash: hashed(t, "hunter2"), Priority: 5},
	})
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-changed:
		if _, ok := s.DJs["bob"]; !ok {
			t.Error("reloaded store missing bob")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never reloaded")
	}
}

func TestWatcher_RejectsPlaintextUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	writeCreds(t, path, map[string]DJRecord{
		"alice": {Name: "Alice", KeyHash: hashed(t, "secret"), Priority: 10},
	})

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeCreds(t, path, map[string]DJRecord{
		"mallory": {Name: "Mallory", KeyHash: "plaintext-password", Priority: 1},
	})
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, ok := w.Current().DJs["mallory"]; ok {
		t.Error("plaintext credential update was accepted")
	}
	if _, ok := w.Current().DJs["alice"]; !ok {
		t.Error("previous store lost")
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Error("missing file accepted")
	}
}
