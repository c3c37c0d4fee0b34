package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recorder struct {
	mutex sync.Mutex
	paths []string
}

func (r *recorder) Invalidate(path string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) InvalidateTree(dir string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.paths = append(r.paths, "tree:"+dir)
}

func (r *recorder) seen(path string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, p := range r.paths {
		if p == path {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, r *recorder, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.seen(path) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	t.Fatalf("No invalidation for %s, got %v", path, r.paths)
}

func TestWatcherReportsChanges(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	page := filepath.Join(root, "index.md")
	os.WriteFile(page, []byte("# One"), 0o644)

	r := &recorder{}
	w, err := New(root, r, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	os.WriteFile(page, []byte("# Two"), 0o644)
	waitFor(t, r, page)

	// files in directories created after start are seen too
	sub := filepath.Join(root, "sub")
	os.Mkdir(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	nested := filepath.Join(sub, "nested.md")
	os.WriteFile(nested, []byte("# Nested"), 0o644)
	waitFor(t, r, nested)
}

func TestWatcherReportsRemovedDirectories(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "guide")
	os.Mkdir(sub, 0o755)
	os.WriteFile(filepath.Join(sub, "page.md"), []byte("# Page"), 0o644)

	r := &recorder{}
	w, err := New(root, r, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.RemoveAll(sub); err != nil {
		t.Fatal(err)
	}
	waitFor(t, r, "tree:"+sub)
}
