package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.FileEvent
}

func (l *eventLog) has(op, path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Op == op && e.Path == path {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, root string) *eventLog {
	t.Helper()
	src, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	events := make(chan models.FileEvent, 64)
	log := &eventLog{}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				log.mu.Lock()
				log.events = append(log.events, ev)
				log.mu.Unlock()
			}
		}
	}()
	go Watch(ctx, src, testutil.Logger(), events)
	time.Sleep(100 * time.Millisecond)
	return log
}

func TestWatcher_NewFile(t *testing.T) {
	root := t.TempDir()
	log := startWatcher(t, root)

	_ = os.WriteFile(filepath.Join(root, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has(models.OpAdd, "new.md")
	}, "expected add:new.md")
}

func TestWatcher_ChangeAndRemove(t *testing.T) {
	root := testutil.Tree(t, map[string]string{"a.md": "# A"})
	log := startWatcher(t, root)

	_ = os.WriteFile(filepath.Join(root, "a.md"), []byte("# A2"), 0o644)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has(models.OpChange, "a.md")
	}, "expected change:a.md")

	_ = os.Remove(filepath.Join(root, "a.md"))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has(models.OpRemove, "a.md")
	}, "expected remove:a.md")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	log := startWatcher(t, root)

	sub := filepath.Join(root, "subdir")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(200 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has(models.OpAdd, filepath.Join("subdir", "deep.md"))
	}, "file in new subdir not reported")
}

func TestWatcher_IgnoresHidden(t *testing.T) {
	root := t.TempDir()
	log := startWatcher(t, root)

	_ = os.WriteFile(filepath.Join(root, ".swp"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "seen.md"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has(models.OpAdd, "seen.md")
	}, "expected add:seen.md")
	if log.has(models.OpAdd, ".swp") {
		t.Error("hidden file should not be reported")
	}
}
