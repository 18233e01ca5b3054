package deps

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Directories excluded from package hashing: build output,
// version-control metadata, and dependency caches.
var excludedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	"out":          true,
	"coverage":     true,
}

// File suffixes excluded from package hashing: logs, temp files, source maps.
var excludedSuffixes = []string{".log", ".tmp", ".map", "~"}

func isExcludedDir(name string) bool {
	return excludedDirs[name]
}

func isExcludedFile(name string) bool {
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// HashPackage computes a deterministic digest of a package tree: every
// included file's relative path and full content, visited in lexical order.
// Identical trees produce identical digests on any machine; any path or
// byte change produces a different digest. Volatile directories and file
// suffixes are excluded, and symlinks are not followed.
func HashPackage(root string) (string, error) {
	h := sha256.New()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && isExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || isExcludedFile(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		// Path first, then content, NUL-separated so adjacent entries
		// cannot collide. Forward slashes keep digests portable.
		io.WriteString(h, filepath.ToSlash(rel))
		h.Write([]byte{0})

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return err
		}
		h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hash package %s: %w", root, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

const cacheSchemaVersion = 1

type cacheFile struct {
	SchemaVersion int               `json:"schema_version"`
	Entries       map[string]string `json:"entries"`
}

// Cache records the content hash each package had when it was last built.
// A rebuild is skipped if and only if the freshly computed hash equals the
// cached one. Entries are persisted atomically after every update.
type Cache struct {
	path string

	mu      sync.Mutex
	entries map[string]string
}

// OpenCache loads the cache at path, starting empty when the file does not
// exist or carries an unknown schema version.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read build cache: %w", err)
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse build cache %s: %w", path, err)
	}
	if file.SchemaVersion != cacheSchemaVersion {
		// A stale cache only costs one extra rebuild.
		slog.Warn("discarding build cache with unknown schema",
			slog.Int("schema_version", file.SchemaVersion))
		return c, nil
	}
	if file.Entries != nil {
		c.entries = file.Entries
	}
	return c, nil
}

// Hash returns the cached content hash for a package identity.
func (c *Cache) Hash(identity string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok := c.entries[identity]
	return hash, ok
}

// Put records a package's hash after a rebuild and persists the cache.
func (c *Cache) Put(identity, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[identity] = hash

	data, err := json.MarshalIndent(cacheFile{
		SchemaVersion: cacheSchemaVersion,
		Entries:       c.entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode build cache: %w", err)
	}
	return writeFileAtomic(c.path, data)
}
