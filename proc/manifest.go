package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/randalmurphal/runtimekit/workercontract"
)

// Manifest declares one subprocess runtime: identity, launch command, and
// dependency policy. Manifests are TOML files, one per runtime:
//
//	[runtime]
//	id = "node-worker"
//	name = "Node Worker"
//	protocol = 1
//
//	[process]
//	command = ["node", "worker.js"]
//	dir = "worker"
//
//	[deps]
//	root = "node_modules"
//	manifest = "package.json"
//	install = ["npm", "install"]
//	pin = ["npm", "install", "{package}@{version}"]
//	build = ["npm", "run", "build"]
type Manifest struct {
	Runtime RuntimeSection `toml:"runtime"`
	Process ProcessSection `toml:"process"`
	Deps    *DepsSection   `toml:"deps"`
}

// RuntimeSection identifies the runtime.
type RuntimeSection struct {
	// ID is the stable runtime identifier. Required.
	ID string `toml:"id"`

	// Name is the display name. Defaults to ID.
	Name string `toml:"name"`

	// Protocol is the wire contract version the worker speaks. Required;
	// must match workercontract.ProtocolVersion.
	Protocol int `toml:"protocol"`

	// Streaming declares chat_stream support. Defaults to true.
	Streaming *bool `toml:"streaming"`
}

// ProcessSection declares how the worker is launched.
type ProcessSection struct {
	// Command is the launch argv. Required.
	Command []string `toml:"command"`

	// Dir is the working directory, resolved relative to the manifest
	// file when not absolute.
	Dir string `toml:"dir"`

	// Socket overrides the derived socket path. Resolved relative to the
	// manifest file when not absolute.
	Socket string `toml:"socket"`

	// Env is extra environment for the worker process.
	Env map[string]string `toml:"env"`
}

// DepsSection declares the worker's dependency policy. Absent means the
// worker needs no dependency reconciliation before starting.
type DepsSection struct {
	// Root is the installed-packages directory relative to the worker dir.
	Root string `toml:"root"`

	// Manifest is the file every local override must contain.
	Manifest string `toml:"manifest"`

	// Install restores the default dependency set.
	Install []string `toml:"install"`

	// Pin installs one pinned package ("{package}", "{version}" substituted).
	Pin []string `toml:"pin"`

	// Build builds one local override, run inside the override directory.
	Build []string `toml:"build"`
}

// SupportsStreaming reports whether the worker implements chat_stream.
func (m Manifest) SupportsStreaming() bool {
	return m.Runtime.Streaming == nil || *m.Runtime.Streaming
}

// Validate checks required fields and the protocol version.
func (m Manifest) Validate() error {
	if m.Runtime.ID == "" {
		return fmt.Errorf("manifest missing runtime.id")
	}
	if m.Runtime.Protocol == 0 {
		return fmt.Errorf("runtime %s: manifest missing runtime.protocol", m.Runtime.ID)
	}
	if m.Runtime.Protocol != workercontract.ProtocolVersion {
		return fmt.Errorf("runtime %s: manifest declares protocol %d, this supervisor speaks %d",
			m.Runtime.ID, m.Runtime.Protocol, workercontract.ProtocolVersion)
	}
	if len(m.Process.Command) == 0 {
		return fmt.Errorf("runtime %s: manifest missing process.command", m.Runtime.ID)
	}
	return nil
}

// LoadManifest reads and validates one manifest file. Relative process
// paths are resolved against the manifest's directory.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Manifest{}, fmt.Errorf("manifest %s: unknown key %q", path, undecoded[0].String())
	}

	if m.Runtime.Name == "" {
		m.Runtime.Name = m.Runtime.ID
	}

	base := filepath.Dir(path)
	if m.Process.Dir != "" && !filepath.IsAbs(m.Process.Dir) {
		m.Process.Dir = filepath.Join(base, m.Process.Dir)
	}
	if m.Process.Socket != "" && !filepath.IsAbs(m.Process.Socket) {
		m.Process.Socket = filepath.Join(base, m.Process.Socket)
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Discover loads every *.toml manifest in dir, in lexical order.
// Non-manifest files are skipped; a malformed manifest fails the whole
// discovery so misconfiguration is caught at startup, not at first use.
func Discover(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		m, err := LoadManifest(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
