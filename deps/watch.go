package deps

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event reports a change under one watched override root.
type Event struct {
	// Root is the override tree the change happened in.
	Root string

	// Path is the changed file or directory. Under the polling fallback
	// only Root granularity is available, so Path equals Root.
	Path string
}

// Watcher watches local override trees and reports changes, so a
// supervisor can flag that the next worker start will rebuild. Uses
// fsnotify with a hash-polling fallback when inotify is unavailable.
//
// Events are advisory: a full content hash decides whether a rebuild
// actually happens (see Resolver), so dropped events are harmless.
type Watcher struct {
	pollInterval time.Duration
}

// NewWatcher creates a watcher with a 2s polling fallback interval.
func NewWatcher() *Watcher {
	return &Watcher{pollInterval: 2 * time.Second}
}

// WithPollInterval sets the fallback polling interval.
func (w *Watcher) WithPollInterval(d time.Duration) *Watcher {
	w.pollInterval = d
	return w
}

// Watch streams change events for the given override roots until ctx is
// canceled. The channel is buffered; events overflowing the buffer are
// dropped.
func (w *Watcher) Watch(ctx context.Context, roots ...string) (<-chan Event, error) {
	ch := make(chan Event, 100)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("fsnotify unavailable, using polling", slog.Any("error", err))
		go w.poll(ctx, ch, roots)
		return ch, nil
	}

	for _, root := range roots {
		if err := addTree(fw, root); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}

	go w.run(ctx, fw, ch, roots)
	return ch, nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, ch chan<- Event, roots []string) {
	defer close(ch)
	defer fw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			name := filepath.Base(event.Name)
			if isExcludedDir(name) || isExcludedFile(name) {
				continue
			}

			// New subdirectories need their own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(fw, event.Name); err != nil {
						slog.Warn("could not watch new directory",
							slog.String("path", event.Name),
							slog.Any("error", err))
					}
				}
			}

			root := rootFor(event.Name, roots)
			if root == "" {
				continue
			}
			select {
			case ch <- Event{Root: root, Path: event.Name}:
			default:
				// Buffer full: drop, the resolver re-hashes anyway.
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Warn("override watch error", slog.Any("error", err))
		}
	}
}

// poll falls back to hashing each root on an interval and reporting
// digest changes.
func (w *Watcher) poll(ctx context.Context, ch chan<- Event, roots []string) {
	defer close(ch)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	last := make(map[string]string, len(roots))
	for _, root := range roots {
		if digest, err := HashPackage(root); err == nil {
			last[root] = digest
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, root := range roots {
				digest, err := HashPackage(root)
				if err != nil {
					continue
				}
				if digest == last[root] {
					continue
				}
				last[root] = digest
				select {
				case ch <- Event{Root: root, Path: root}:
				default:
				}
			}
		}
	}
}

// addTree watches root and every non-excluded subdirectory. fsnotify
// watches are not recursive, so each directory is added individually.
func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isExcludedDir(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func rootFor(path string, roots []string) string {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}
