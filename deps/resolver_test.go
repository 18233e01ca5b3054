package deps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPolicy returns a policy whose build/install/pin commands append a
// line to marker files, so tests can count invocations.
func countingPolicy(t *testing.T, workerDir string) (Policy, string, string) {
	t.Helper()
	buildMarker := filepath.Join(t.TempDir(), "builds.txt")
	installMarker := filepath.Join(t.TempDir(), "installs.txt")

	return Policy{
		Dir:          workerDir,
		Root:         "node_modules",
		ManifestName: "package.json",
		Install:      []string{"sh", "-c", `echo install >> "$INSTALL_MARKER"`},
		Pin:          []string{"sh", "-c", `echo {package}@{version} >> "$INSTALL_MARKER"`},
		Build:        []string{"sh", "-c", `echo build >> "$BUILD_MARKER"`},
		Env: map[string]string{
			"BUILD_MARKER":   buildMarker,
			"INSTALL_MARKER": installMarker,
		},
	}, buildMarker, installMarker
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
}

func newTestResolver(t *testing.T) (*Resolver, Policy, string, string, string) {
	t.Helper()
	workerDir := t.TempDir()
	policy, buildMarker, installMarker := countingPolicy(t, workerDir)

	r, err := NewResolver(policy, filepath.Join(workerDir, ".state"))
	require.NoError(t, err)
	return r, policy, workerDir, buildMarker, installMarker
}

func TestReconcile_LocalBuildsOnceWhileUnchanged(t *testing.T) {
	ctx := context.Background()
	r, _, workerDir, buildMarker, _ := newTestResolver(t)

	override := t.TempDir()
	writeTree(t, override, map[string]string{
		"package.json": `{"name":"sdk"}`,
		"src/index.js": "v1",
	})
	desired := Local(map[string]string{"sdk": override})

	require.NoError(t, r.Reconcile(ctx, desired))
	assert.Equal(t, 1, countLines(t, buildMarker), "first reconcile must build")

	// Unchanged tree: local mode is revalidated but not rebuilt.
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Reconcile(ctx, desired))
	}
	assert.Equal(t, 1, countLines(t, buildMarker), "unchanged tree must not rebuild")

	// The installed package is now a symlink to the override.
	link := filepath.Join(workerDir, "node_modules", "sdk")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	abs, _ := filepath.Abs(override)
	assert.Equal(t, abs, target)

	// Mutating the override triggers exactly one more build.
	writeTree(t, override, map[string]string{"src/index.js": "v2"})
	require.NoError(t, r.Reconcile(ctx, desired))
	assert.Equal(t, 2, countLines(t, buildMarker))
}

func TestReconcile_DefaultRestoresAfterLocal(t *testing.T) {
	ctx := context.Background()
	r, _, workerDir, _, installMarker := newTestResolver(t)

	override := t.TempDir()
	writeTree(t, override, map[string]string{"package.json": "{}"})
	require.NoError(t, r.Reconcile(ctx, Local(map[string]string{"sdk": override})))

	link := filepath.Join(workerDir, "node_modules", "sdk")
	_, err := os.Lstat(link)
	require.NoError(t, err)

	// default after local: prune the link, run the install command once.
	require.NoError(t, r.Reconcile(ctx, DefaultMode()))
	assert.Equal(t, 1, countLines(t, installMarker))

	_, err = os.Lstat(link)
	assert.True(t, os.IsNotExist(err), "override link must be pruned")

	// Re-applying default is a no-op: no second install.
	require.NoError(t, r.Reconcile(ctx, DefaultMode()))
	assert.Equal(t, 1, countLines(t, installMarker))
}

func TestReconcile_DefaultOnFirstRunIsQuiet(t *testing.T) {
	r, _, _, _, installMarker := newTestResolver(t)

	require.NoError(t, r.Reconcile(context.Background(), DefaultMode()))
	assert.Equal(t, 0, countLines(t, installMarker),
		"nothing to restore on first run")
}

func TestReconcile_Pinned(t *testing.T) {
	r, _, _, _, installMarker := newTestResolver(t)

	desired := Pinned(map[string]string{"sdk": "1.2.3"})
	require.NoError(t, r.Reconcile(context.Background(), desired))

	data, err := os.ReadFile(installMarker)
	require.NoError(t, err)
	assert.Equal(t, "sdk@1.2.3", strings.TrimSpace(string(data)))

	// Unchanged pinned config takes the fast path.
	require.NoError(t, r.Reconcile(context.Background(), desired))
	assert.Equal(t, 1, countLines(t, installMarker))
}

func TestReconcile_PinnedWithoutPinCommand(t *testing.T) {
	r, err := NewResolver(Policy{Dir: t.TempDir()}, t.TempDir())
	require.NoError(t, err)

	err = r.Reconcile(context.Background(), Pinned(map[string]string{"sdk": "1.0.0"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pin command")
}

func TestReconcile_InvalidOverride(t *testing.T) {
	ctx := context.Background()
	r, _, _, _, _ := newTestResolver(t)

	t.Run("missing path", func(t *testing.T) {
		err := r.Reconcile(ctx, Local(map[string]string{"sdk": "/does/not/exist"}))
		assert.ErrorIs(t, err, ErrInvalidOverride)
	})

	t.Run("missing package manifest", func(t *testing.T) {
		override := t.TempDir()
		writeTree(t, override, map[string]string{"src/index.js": "code"})

		err := r.Reconcile(ctx, Local(map[string]string{"sdk": override}))
		require.ErrorIs(t, err, ErrInvalidOverride)
		assert.Contains(t, err.Error(), "package.json")
	})
}

func TestReconcile_BuildFailureKeepsStateUnapplied(t *testing.T) {
	workerDir := t.TempDir()
	stateDir := filepath.Join(workerDir, ".state")
	r, err := NewResolver(Policy{
		Dir:          workerDir,
		Root:         "node_modules",
		ManifestName: "package.json",
		Build:        []string{"sh", "-c", "echo compiler exploded >&2; exit 1"},
	}, stateDir)
	require.NoError(t, err)

	override := t.TempDir()
	writeTree(t, override, map[string]string{"package.json": "{}"})

	err = r.Reconcile(context.Background(), Local(map[string]string{"sdk": override}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compiler exploded",
		"command stderr must be preserved in the error")

	_, applied, err := LoadState(filepath.Join(stateDir, "deps_state.json"))
	require.NoError(t, err)
	assert.False(t, applied, "failed reconcile must not be marked applied")
}

func TestReconcile_LocalSwitchPrunesDroppedPackages(t *testing.T) {
	ctx := context.Background()
	r, _, workerDir, _, _ := newTestResolver(t)

	overrideA := t.TempDir()
	overrideB := t.TempDir()
	writeTree(t, overrideA, map[string]string{"package.json": "{}"})
	writeTree(t, overrideB, map[string]string{"package.json": "{}"})

	require.NoError(t, r.Reconcile(ctx, Local(map[string]string{
		"sdk": overrideA,
		"cli": overrideB,
	})))
	require.NoError(t, r.Reconcile(ctx, Local(map[string]string{"sdk": overrideA})))

	_, err := os.Lstat(filepath.Join(workerDir, "node_modules", "cli"))
	assert.True(t, os.IsNotExist(err), "dropped override link must be pruned")

	_, err = os.Lstat(filepath.Join(workerDir, "node_modules", "sdk"))
	assert.NoError(t, err, "kept override link must survive")
}
