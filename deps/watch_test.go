package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsFileChange(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/index.js": "v1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewWatcher().Watch(ctx, root)
	require.NoError(t, err)

	// Give the watch a moment to arm before mutating.
	time.Sleep(100 * time.Millisecond)
	writeTree(t, root, map[string]string{"src/index.js": "v2"})

	select {
	case ev := <-ch:
		require.Equal(t, root, ev.Root)
	case <-time.After(5 * time.Second):
		t.Fatal("no event after file change")
	}
}

func TestWatcher_IgnoresExcludedPaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/index.js": "v1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewWatcher().Watch(ctx, root)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(root, "debug.log"), []byte("noise"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for excluded file: %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := NewWatcher().Watch(ctx, t.TempDir())
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-ch:
		if open {
			// Drain a straggler, the close must still arrive.
			for range ch {
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel not closed after cancel")
	}
}

func TestWatcher_MissingRoot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := NewWatcher().Watch(ctx, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
