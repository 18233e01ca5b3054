package proc

import (
	"time"

	"github.com/randalmurphal/runtimekit/deps"
	"github.com/randalmurphal/runtimekit/runtime"
)

// options holds adapter construction settings. Manifest values win where
// they overlap (socket path, env); options fill the rest.
type options struct {
	socketDir      string
	stateDir       string
	startupTimeout time.Duration
	stopGrace      time.Duration
	dialTimeout    time.Duration
	callTimeout    time.Duration
	env            map[string]string
	depsConfig     *deps.Config
}

func defaultOptions() options {
	cfg := runtime.DefaultConfig()
	return options{
		socketDir:      cfg.SocketDir,
		startupTimeout: cfg.StartupTimeout,
		stopGrace:      cfg.StopGrace,
		dialTimeout:    2 * time.Second,
	}
}

// Option configures an Adapter.
type Option func(*options)

// WithConfig applies supervisor-level configuration: socket directory,
// startup timeout, stop grace, and call timeout.
func WithConfig(cfg runtime.Config) Option {
	return func(o *options) {
		cfg = cfg.WithDefaults()
		o.socketDir = cfg.SocketDir
		o.startupTimeout = cfg.StartupTimeout
		o.stopGrace = cfg.StopGrace
		o.callTimeout = cfg.CallTimeout
	}
}

// WithSocketDir sets the directory worker sockets are created in.
func WithSocketDir(dir string) Option {
	return func(o *options) { o.socketDir = dir }
}

// WithStateDir sets where the dependency resolver persists its state.
// Default: ".runtimekit" under the worker directory.
func WithStateDir(dir string) Option {
	return func(o *options) { o.stateDir = dir }
}

// WithStartupTimeout sets how long Start waits for the worker socket.
func WithStartupTimeout(d time.Duration) Option {
	return func(o *options) { o.startupTimeout = d }
}

// WithStopGrace sets how long a worker gets to exit after SIGTERM before it
// is killed.
func WithStopGrace(d time.Duration) Option {
	return func(o *options) { o.stopGrace = d }
}

// WithCallTimeout bounds one whole RPC exchange. Zero (the default) leaves
// calls unbounded.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithDialTimeout bounds one socket connect attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithEnv adds environment variables for the worker process and dependency
// commands, on top of the manifest's env.
func WithEnv(env map[string]string) Option {
	return func(o *options) {
		if o.env == nil {
			o.env = make(map[string]string)
		}
		for k, v := range env {
			o.env[k] = v
		}
	}
}

// WithDepsConfig fixes the desired dependency configuration instead of
// reading it from the environment at Start.
func WithDepsConfig(cfg deps.Config) Option {
	return func(o *options) { o.depsConfig = &cfg }
}
