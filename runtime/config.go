package runtime

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds supervisor-level configuration shared by all runtimes.
// Per-runtime settings (launch command, socket path, dependency policy)
// live in the runtime's manifest instead.
type Config struct {
	// ManifestDir is the directory scanned for runtime manifests.
	ManifestDir string `json:"manifest_dir" yaml:"manifest_dir"`

	// SocketDir is where worker sockets are created.
	// Default: the system temp directory.
	SocketDir string `json:"socket_dir" yaml:"socket_dir"`

	// StartupTimeout is how long to wait for a worker to bind its socket.
	// Default: 30 seconds.
	StartupTimeout time.Duration `json:"startup_timeout" yaml:"startup_timeout"`

	// StopGrace is how long a worker gets to exit after a termination
	// signal before it is killed. Default: 5 seconds.
	StopGrace time.Duration `json:"stop_grace" yaml:"stop_grace"`

	// CallTimeout bounds a single RPC exchange, streaming included.
	// 0 disables the bound: an unresponsive worker then holds the call
	// open indefinitely.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// Prefer is the runtime preference order for startup selection. The
	// first id present in the registry wins; if none match, the first
	// registered runtime is used.
	Prefer []string `json:"prefer" yaml:"prefer"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SocketDir:      os.TempDir(),
		StartupTimeout: 30 * time.Second,
		StopGrace:      5 * time.Second,
	}
}

// LoadFromEnv populates config fields from environment variables.
// Environment variables use the RUNTIMEKIT_ prefix and take precedence over
// existing values.
//
// Supported variables:
//   - RUNTIMEKIT_MANIFEST_DIR: Manifest directory
//   - RUNTIMEKIT_SOCKET_DIR: Socket directory
//   - RUNTIMEKIT_STARTUP_TIMEOUT: Startup timeout duration (e.g., "30s")
//   - RUNTIMEKIT_STOP_GRACE: Stop grace duration
//   - RUNTIMEKIT_CALL_TIMEOUT: Per-call timeout duration
//   - RUNTIMEKIT_PREFER: Comma-separated runtime preference order
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("RUNTIMEKIT_MANIFEST_DIR"); v != "" {
		c.ManifestDir = v
	}
	if v := os.Getenv("RUNTIMEKIT_SOCKET_DIR"); v != "" {
		c.SocketDir = v
	}
	if v := os.Getenv("RUNTIMEKIT_STARTUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.StartupTimeout = d
		}
	}
	if v := os.Getenv("RUNTIMEKIT_STOP_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.StopGrace = d
		}
	}
	if v := os.Getenv("RUNTIMEKIT_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CallTimeout = d
		}
	}
	if v := os.Getenv("RUNTIMEKIT_PREFER"); v != "" {
		parts := strings.Split(v, ",")
		prefer := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				prefer = append(prefer, p)
			}
		}
		c.Prefer = prefer
	}
}

// FromEnv creates a Config from environment variables with defaults.
func FromEnv() Config {
	cfg := DefaultConfig()
	cfg.LoadFromEnv()
	return cfg
}

// LoadEnvFile loads a dotenv file into the process environment, then reads
// RUNTIMEKIT_ variables on top of defaults. Missing file is an error;
// callers that treat the file as optional should check os.IsNotExist.
func LoadEnvFile(path string) (Config, error) {
	if err := godotenv.Load(path); err != nil {
		return Config{}, fmt.Errorf("load env file %s: %w", path, err)
	}
	return FromEnv(), nil
}

// LoadConfigFile reads a YAML config file, applies defaults, and lets
// RUNTIMEKIT_ environment variables override file values.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UnmarshalYAML implements yaml.Unmarshaler so duration fields accept the
// usual "30s"/"2m" notation.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ManifestDir    string   `yaml:"manifest_dir"`
		SocketDir      string   `yaml:"socket_dir"`
		StartupTimeout string   `yaml:"startup_timeout"`
		StopGrace      string   `yaml:"stop_grace"`
		CallTimeout    string   `yaml:"call_timeout"`
		Prefer         []string `yaml:"prefer"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.ManifestDir != "" {
		c.ManifestDir = raw.ManifestDir
	}
	if raw.SocketDir != "" {
		c.SocketDir = raw.SocketDir
	}
	if raw.Prefer != nil {
		c.Prefer = raw.Prefer
	}

	for _, f := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"startup_timeout", raw.StartupTimeout, &c.StartupTimeout},
		{"stop_grace", raw.StopGrace, &c.StopGrace},
		{"call_timeout", raw.CallTimeout, &c.CallTimeout},
	} {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.StartupTimeout < 0 {
		return fmt.Errorf("startup_timeout must be >= 0, got %v", c.StartupTimeout)
	}
	if c.StopGrace < 0 {
		return fmt.Errorf("stop_grace must be >= 0, got %v", c.StopGrace)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must be >= 0, got %v", c.CallTimeout)
	}
	return nil
}

// WithDefaults returns a copy of the config with defaults applied for unset
// fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.SocketDir == "" {
		c.SocketDir = defaults.SocketDir
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = defaults.StartupTimeout
	}
	if c.StopGrace == 0 {
		c.StopGrace = defaults.StopGrace
	}

	return c
}

// WithPrefer returns a copy of the config with the given preference order.
func (c Config) WithPrefer(ids ...string) Config {
	c.Prefer = ids
	return c
}
