// Package deps reconciles a worker's dependency state before the worker is
// launched: default installs, pinned versions, or local filesystem
// overrides. Local overrides are rebuilt only when their content hash
// changes, tracked by a small on-disk build cache.
//
// # Modes
//
//   - default: the worker's normally installed dependencies
//   - pinned: explicitly pinned versions of named packages
//   - local: local checkouts symlinked over named packages
//
// The desired mode is declared through environment variables and applied by
// a Resolver. The last-applied configuration is persisted so re-running
// with an unchanged environment is a cheap no-op.
package deps

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Mode selects how a worker's dependencies are materialized.
type Mode string

// Dependency modes.
const (
	// ModeDefault uses the normally installed dependencies.
	ModeDefault Mode = "default"

	// ModeLocal substitutes local checkouts for named packages.
	ModeLocal Mode = "local"

	// ModePinned installs explicitly pinned versions of named packages.
	ModePinned Mode = "pinned"
)

// Sentinel errors for dependency reconciliation.
var (
	// ErrInvalidOverride indicates a local override path is missing or
	// does not contain the expected package manifest.
	ErrInvalidOverride = errors.New("invalid override path")

	// ErrUnknownMode indicates an unrecognized dependency mode.
	ErrUnknownMode = errors.New("unknown dependency mode")
)

// Config declares the desired dependency state for one worker. It is a
// tagged variant: Packages carries name→path pairs in ModeLocal, name→
// version pairs in ModePinned, and is empty in ModeDefault.
type Config struct {
	Mode     Mode              `json:"mode"`
	Packages map[string]string `json:"packages,omitempty"`
}

// DefaultMode returns the no-override configuration.
func DefaultMode() Config {
	return Config{Mode: ModeDefault}
}

// Local returns a local-override configuration.
func Local(packagePaths map[string]string) Config {
	return Config{Mode: ModeLocal, Packages: packagePaths}
}

// Pinned returns a pinned-versions configuration.
func Pinned(versions map[string]string) Config {
	return Config{Mode: ModePinned, Packages: versions}
}

// Equal reports whether two configurations describe the same state.
func (c Config) Equal(other Config) bool {
	if c.Mode != other.Mode || len(c.Packages) != len(other.Packages) {
		return false
	}
	for k, v := range c.Packages {
		if other.Packages[k] != v {
			return false
		}
	}
	return true
}

// Validate checks that the mode is known and carries the right payload.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeDefault:
		if len(c.Packages) > 0 {
			return fmt.Errorf("default mode must not name packages")
		}
	case ModeLocal, ModePinned:
		if len(c.Packages) == 0 {
			return fmt.Errorf("%s mode requires at least one package", c.Mode)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
	return nil
}

// FromEnv computes the desired configuration from environment declarations.
//
// Supported variables:
//   - RUNTIMEKIT_DEPS_LOCAL: comma-separated name=path pairs (ModeLocal)
//   - RUNTIMEKIT_DEPS_VERSIONS: comma-separated name=version pairs (ModePinned)
//
// Neither set means ModeDefault; both set is an error.
func FromEnv() (Config, error) {
	local := os.Getenv("RUNTIMEKIT_DEPS_LOCAL")
	pinned := os.Getenv("RUNTIMEKIT_DEPS_VERSIONS")

	if local != "" && pinned != "" {
		return Config{}, fmt.Errorf("RUNTIMEKIT_DEPS_LOCAL and RUNTIMEKIT_DEPS_VERSIONS are mutually exclusive")
	}

	switch {
	case local != "":
		pkgs, err := parsePairs(local)
		if err != nil {
			return Config{}, fmt.Errorf("RUNTIMEKIT_DEPS_LOCAL: %w", err)
		}
		return Local(pkgs), nil
	case pinned != "":
		pkgs, err := parsePairs(pinned)
		if err != nil {
			return Config{}, fmt.Errorf("RUNTIMEKIT_DEPS_VERSIONS: %w", err)
		}
		return Pinned(pkgs), nil
	}
	return DefaultMode(), nil
}

func parsePairs(s string) (map[string]string, error) {
	pairs := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("malformed pair %q, want name=value", part)
		}
		pairs[name] = value
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no name=value pairs found")
	}
	return pairs, nil
}
