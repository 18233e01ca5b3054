package deps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Policy describes how one worker's dependencies are materialized. It comes
// from the runtime's manifest; the resolver itself is ecosystem-agnostic
// and only runs the declared commands.
type Policy struct {
	// Dir is the worker tree install and pin commands run in.
	Dir string

	// Root is the installed-packages directory, relative to Dir
	// (e.g. "node_modules").
	Root string

	// ManifestName is the file every local override must contain
	// (e.g. "package.json"). Validation fails fast when it is missing.
	ManifestName string

	// Install restores the default dependency set.
	Install []string

	// Pin installs one pinned package. Occurrences of "{package}" and
	// "{version}" in the argv are substituted per package.
	Pin []string

	// Build builds one local override, run inside the override directory.
	// Empty means overrides need no build step.
	Build []string

	// Env is extra environment for all commands.
	Env map[string]string
}

// Resolver reconciles a worker's on-disk dependency state with a desired
// configuration before the worker starts. Reconcile is idempotent: applying
// an unchanged configuration is a cheap no-op.
//
// The resolver is not safe for concurrent use; worker lifecycle
// serialization covers it.
type Resolver struct {
	policy    Policy
	statePath string
	cache     *Cache
}

// NewResolver creates a resolver persisting its state under stateDir.
func NewResolver(policy Policy, stateDir string) (*Resolver, error) {
	if policy.Dir == "" {
		return nil, fmt.Errorf("dependency policy requires a worker dir")
	}

	cache, err := OpenCache(filepath.Join(stateDir, "build_cache.json"))
	if err != nil {
		return nil, err
	}
	return &Resolver{
		policy:    policy,
		statePath: filepath.Join(stateDir, "deps_state.json"),
		cache:     cache,
	}, nil
}

// Reconcile brings the worker's dependencies to the desired state:
// validate, build what changed, link or install, then persist the applied
// configuration. Any failure aborts before the state is marked applied, so
// a partial apply is retried in full on the next run.
func (r *Resolver) Reconcile(ctx context.Context, desired Config) error {
	if err := desired.Validate(); err != nil {
		return err
	}

	last, hadState, err := LoadState(r.statePath)
	if err != nil {
		return err
	}

	// Fast path: an unchanged non-local configuration needs no work.
	// Local overrides are re-checked every run — the override tree may
	// have changed since the state was written.
	if hadState && desired.Equal(last) && desired.Mode != ModeLocal {
		slog.Debug("dependency config unchanged",
			slog.String("mode", string(desired.Mode)))
		return nil
	}

	// Drop links for packages that were overridden before but are not
	// carried forward.
	if hadState && last.Mode == ModeLocal {
		r.pruneLinks(last, desired)
	}

	switch desired.Mode {
	case ModeLocal:
		err = r.applyLocal(ctx, desired)
	case ModePinned:
		err = r.applyPinned(ctx, desired)
	case ModeDefault:
		err = r.applyDefault(ctx, hadState, last)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMode, desired.Mode)
	}
	if err != nil {
		return err
	}

	return SaveState(r.statePath, desired)
}

func (r *Resolver) applyLocal(ctx context.Context, desired Config) error {
	for _, pkg := range sortedKeys(desired.Packages) {
		override := desired.Packages[pkg]

		info, err := os.Stat(override)
		if err != nil {
			return fmt.Errorf("%w: package %s: %v", ErrInvalidOverride, pkg, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: package %s: %s is not a directory", ErrInvalidOverride, pkg, override)
		}
		if r.policy.ManifestName != "" {
			manifest := filepath.Join(override, r.policy.ManifestName)
			if _, err := os.Stat(manifest); err != nil {
				return fmt.Errorf("%w: package %s: %s does not contain %s",
					ErrInvalidOverride, pkg, override, r.policy.ManifestName)
			}
		}

		hash, err := HashPackage(override)
		if err != nil {
			return err
		}

		identity := pkg + "@" + override
		if cached, ok := r.cache.Hash(identity); ok && cached == hash {
			slog.Debug("build cache hit", slog.String("package", pkg))
		} else {
			if len(r.policy.Build) > 0 {
				slog.Debug("building local override",
					slog.String("package", pkg),
					slog.String("path", override))
				if _, err := runCommand(ctx, override, r.policy.Build, r.policy.Env); err != nil {
					return fmt.Errorf("build %s: %w", pkg, err)
				}
			}
			if err := r.cache.Put(identity, hash); err != nil {
				return err
			}
		}

		if err := r.link(pkg, override); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) applyPinned(ctx context.Context, desired Config) error {
	if len(r.policy.Pin) == 0 {
		return fmt.Errorf("pinned mode requested but the runtime declares no pin command")
	}
	for _, pkg := range sortedKeys(desired.Packages) {
		version := desired.Packages[pkg]
		argv := substitute(r.policy.Pin, pkg, version)
		slog.Debug("pinning package",
			slog.String("package", pkg),
			slog.String("version", version))
		if _, err := runCommand(ctx, r.policy.Dir, argv, r.policy.Env); err != nil {
			return fmt.Errorf("pin %s@%s: %w", pkg, version, err)
		}
	}
	return nil
}

func (r *Resolver) applyDefault(ctx context.Context, hadState bool, last Config) error {
	// Nothing to restore unless a prior non-default state was applied.
	if !hadState || last.Mode == ModeDefault {
		return nil
	}
	if len(r.policy.Install) == 0 {
		return fmt.Errorf("restore requested but the runtime declares no install command")
	}
	slog.Debug("restoring default dependencies", slog.String("from", string(last.Mode)))
	if _, err := runCommand(ctx, r.policy.Dir, r.policy.Install, r.policy.Env); err != nil {
		return fmt.Errorf("restore default dependencies: %w", err)
	}
	return nil
}

// link replaces the installed package with a symlink to the override.
// Package manager metadata is left untouched — only the installed artifact
// is substituted.
func (r *Resolver) link(pkg, override string) error {
	target := r.installedPath(pkg)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("link %s: %w", pkg, err)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("link %s: %w", pkg, err)
	}

	abs, err := filepath.Abs(override)
	if err != nil {
		return fmt.Errorf("link %s: %w", pkg, err)
	}
	if err := os.Symlink(abs, target); err != nil {
		return fmt.Errorf("link %s: %w", pkg, err)
	}
	return nil
}

// pruneLinks removes symlinks created for previously overridden packages
// that the desired configuration no longer overrides. Real directories are
// left alone.
func (r *Resolver) pruneLinks(last, desired Config) {
	for pkg := range last.Packages {
		if desired.Mode == ModeLocal {
			if _, keep := desired.Packages[pkg]; keep {
				continue
			}
		}
		target := r.installedPath(pkg)
		info, err := os.Lstat(target)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		if err := os.Remove(target); err != nil {
			slog.Warn("could not remove stale override link",
				slog.String("package", pkg),
				slog.Any("error", err))
		}
	}
}

func (r *Resolver) installedPath(pkg string) string {
	return filepath.Join(r.policy.Dir, r.policy.Root, pkg)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func substitute(argv []string, pkg, version string) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		arg = strings.ReplaceAll(arg, "{package}", pkg)
		arg = strings.ReplaceAll(arg, "{version}", version)
		out[i] = arg
	}
	return out
}
