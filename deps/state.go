package deps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const stateSchemaVersion = 1

type stateFile struct {
	SchemaVersion int               `json:"schema_version"`
	Mode          Mode              `json:"mode"`
	Packages      map[string]string `json:"packages,omitempty"`
}

// LoadState reads the last-applied dependency configuration. ok is false
// when nothing has been persisted yet (first run).
func LoadState(path string) (cfg Config, ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, false, nil
	}
	if err != nil {
		return Config{}, false, fmt.Errorf("read dependency state: %w", err)
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Config{}, false, fmt.Errorf("parse dependency state %s: %w", path, err)
	}
	if file.SchemaVersion != stateSchemaVersion {
		return Config{}, false, fmt.Errorf("dependency state %s has unknown schema version %d", path, file.SchemaVersion)
	}

	return Config{Mode: file.Mode, Packages: file.Packages}, true, nil
}

// SaveState persists cfg as the last-applied configuration, atomically:
// the file is complete or untouched even if the process dies mid-write.
func SaveState(path string, cfg Config) error {
	data, err := json.MarshalIndent(stateFile{
		SchemaVersion: stateSchemaVersion,
		Mode:          cfg.Mode,
		Packages:      cfg.Packages,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dependency state: %w", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes via a temp file and rename in the target dir.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
