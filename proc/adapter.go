// Package proc implements the subprocess-backed runtime adapter: it spawns
// a manifest-declared worker process, waits for the worker's unix socket,
// and speaks the workercontract protocol over it.
//
// # Architecture
//
//	Supervisor <--unix socket, JSON--> Worker process <--vendor SDK--> Backend
//
// One connection per call: requests are single JSON objects, responses are
// either a single JSON object or, for streaming chat, a sequence of
// newline-delimited frames. Worker dependencies are reconciled by the deps
// package before the process is spawned.
//
// # Usage
//
//	m, err := proc.LoadManifest("runtimes/node.toml")
//	rt, err := proc.New(m, proc.WithSocketDir("/tmp"))
//
//	if err := rt.Start(ctx); err != nil { ... }
//	defer rt.Stop(ctx)
//
//	reply, err := rt.Chat(ctx, "anthropic", msgs)
//
// Or discover a whole directory of manifests into a registry:
//
//	reg := runtime.NewRegistry()
//	err := proc.Register(reg, cfg.ManifestDir, proc.WithConfig(cfg))
package proc

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/randalmurphal/runtimekit/deps"
	"github.com/randalmurphal/runtimekit/runtime"
	"github.com/randalmurphal/runtimekit/workercontract"
)

// Adapter drives one manifest-declared worker process. It implements
// runtime.Adapter by delegating every call to the worker over the socket
// protocol.
type Adapter struct {
	manifest Manifest
	opts     options
	worker   *worker
	client   *client
	resolver *deps.Resolver
}

// New builds an adapter from a manifest. The worker is not spawned until
// Start.
func New(m Manifest, opts ...Option) (*Adapter, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	socketPath := m.Process.Socket
	if socketPath == "" {
		socketPath = workercontract.SocketPath(o.socketDir, m.Runtime.ID)
	}

	workDir := m.Process.Dir
	if workDir == "" {
		workDir = "."
	}

	env := make(map[string]string, len(m.Process.Env)+len(o.env))
	for k, v := range m.Process.Env {
		env[k] = v
	}
	for k, v := range o.env {
		env[k] = v
	}

	a := &Adapter{
		manifest: m,
		opts:     o,
		worker: &worker{
			id:             m.Runtime.ID,
			argv:           m.Process.Command,
			dir:            m.Process.Dir,
			env:            env,
			socketPath:     socketPath,
			startupTimeout: o.startupTimeout,
			stopGrace:      o.stopGrace,
		},
		client: &client{
			socketPath:  socketPath,
			dialTimeout: o.dialTimeout,
			callTimeout: o.callTimeout,
		},
	}

	if m.Deps != nil {
		stateDir := o.stateDir
		if stateDir == "" {
			stateDir = filepath.Join(workDir, ".runtimekit")
		}
		resolver, err := deps.NewResolver(deps.Policy{
			Dir:          workDir,
			Root:         m.Deps.Root,
			ManifestName: m.Deps.Manifest,
			Install:      m.Deps.Install,
			Pin:          m.Deps.Pin,
			Build:        m.Deps.Build,
			Env:          env,
		}, stateDir)
		if err != nil {
			return nil, fmt.Errorf("runtime %s: %w", m.Runtime.ID, err)
		}
		a.resolver = resolver
	}

	return a, nil
}

// ID implements runtime.Adapter.
func (a *Adapter) ID() string {
	return a.manifest.Runtime.ID
}

// Name implements runtime.Adapter.
func (a *Adapter) Name() string {
	return a.manifest.Runtime.Name
}

// SocketPath returns the socket the worker is expected to bind.
func (a *Adapter) SocketPath() string {
	return a.worker.socketPath
}

// Start reconciles dependencies (when the manifest declares a policy) and
// spawns the worker. Setup failures are not retryable; a readiness timeout
// is.
func (a *Adapter) Start(ctx context.Context) error {
	if a.resolver != nil {
		desired, err := a.depsConfig()
		if err != nil {
			return runtime.NewError(a.ID(), "start", err, false)
		}
		if err := a.resolver.Reconcile(ctx, desired); err != nil {
			return runtime.NewError(a.ID(), "start", err, false)
		}
	}

	if err := a.worker.start(ctx); err != nil {
		return runtime.NewError(a.ID(), "start", err, errors.Is(err, runtime.ErrStartupTimeout))
	}
	return nil
}

// Stop implements runtime.Adapter.
func (a *Adapter) Stop(ctx context.Context) error {
	if err := a.worker.stop(ctx); err != nil {
		return runtime.NewError(a.ID(), "stop", err, false)
	}
	return nil
}

// GetProviders implements runtime.Adapter.
func (a *Adapter) GetProviders(ctx context.Context) ([]runtime.Provider, error) {
	resp, err := a.client.send(ctx, workercontract.Request{
		Action: workercontract.ActionGetProviders,
	})
	if err != nil {
		return nil, runtime.NewError(a.ID(), "get_providers", err, false)
	}
	return resp.Providers, nil
}

// SetProviderOption implements runtime.Adapter. A nil error means the
// worker confirmed the new value, so the caller may update its own copy.
func (a *Adapter) SetProviderOption(ctx context.Context, providerID, optionID string, value any) error {
	resp, err := a.client.send(ctx, workercontract.Request{
		Action:   workercontract.ActionSetProviderOption,
		Provider: providerID,
		OptionID: optionID,
		Value:    value,
	})
	if err != nil {
		return runtime.NewError(a.ID(), "set_provider_option", err, false)
	}
	if !resp.OK {
		return runtime.NewError(a.ID(), "set_provider_option",
			fmt.Errorf("%w: worker did not confirm option change", runtime.ErrProtocol), false)
	}
	return nil
}

// Chat implements runtime.Adapter.
func (a *Adapter) Chat(ctx context.Context, providerID string, messages []runtime.Message) (*runtime.Message, error) {
	if err := validateMessages(messages); err != nil {
		return nil, runtime.NewError(a.ID(), "chat", err, false)
	}

	resp, err := a.client.send(ctx, workercontract.Request{
		Action:   workercontract.ActionChat,
		Provider: providerID,
		Messages: messages,
	})
	if err != nil {
		return nil, runtime.NewError(a.ID(), "chat", err, false)
	}
	if resp.Message == nil {
		return nil, runtime.NewError(a.ID(), "chat",
			fmt.Errorf("%w: response missing message", runtime.ErrProtocol), false)
	}
	return resp.Message, nil
}

// ChatStream implements runtime.Adapter.
func (a *Adapter) ChatStream(ctx context.Context, providerID string, messages []runtime.Message, onChunk func(string)) (*runtime.Message, error) {
	if !a.manifest.SupportsStreaming() {
		return nil, runtime.NewError(a.ID(), "chat_stream", runtime.ErrStreamingUnsupported, false)
	}
	if err := validateMessages(messages); err != nil {
		return nil, runtime.NewError(a.ID(), "chat_stream", err, false)
	}

	msg, err := a.client.sendStreaming(ctx, workercontract.Request{
		Action:   workercontract.ActionChatStream,
		Provider: providerID,
		Messages: messages,
	}, onChunk)
	if err != nil {
		return nil, runtime.NewError(a.ID(), "chat_stream", err, false)
	}
	return msg, nil
}

// RunModeTest implements runtime.Adapter.
func (a *Adapter) RunModeTest(ctx context.Context, providerID, mode string) (*runtime.Message, error) {
	resp, err := a.client.send(ctx, workercontract.Request{
		Action:   workercontract.ActionRunModeTest,
		Provider: providerID,
		Mode:     mode,
	})
	if err != nil {
		return nil, runtime.NewError(a.ID(), "run_mode_test", err, false)
	}
	if resp.Message == nil {
		return nil, runtime.NewError(a.ID(), "run_mode_test",
			fmt.Errorf("%w: response missing message", runtime.ErrProtocol), false)
	}
	return resp.Message, nil
}

// GetTools implements runtime.Adapter.
func (a *Adapter) GetTools(ctx context.Context) ([]runtime.Tool, error) {
	resp, err := a.client.send(ctx, workercontract.Request{
		Action: workercontract.ActionListTools,
	})
	if err != nil {
		return nil, runtime.NewError(a.ID(), "list_tools", err, false)
	}
	return resp.Tools, nil
}

// RunTool implements runtime.Adapter.
func (a *Adapter) RunTool(ctx context.Context, toolID, providerID string) (*runtime.Message, error) {
	resp, err := a.client.send(ctx, workercontract.Request{
		Action:   workercontract.ActionRunTool,
		ToolID:   toolID,
		Provider: providerID,
	})
	if err != nil {
		return nil, runtime.NewError(a.ID(), "run_tool", err, false)
	}
	if resp.Message == nil {
		return nil, runtime.NewError(a.ID(), "run_tool",
			fmt.Errorf("%w: response missing message", runtime.ErrProtocol), false)
	}
	return resp.Message, nil
}

func (a *Adapter) depsConfig() (deps.Config, error) {
	if a.opts.depsConfig != nil {
		return *a.opts.depsConfig, nil
	}
	return deps.FromEnv()
}

func validateMessages(messages []runtime.Message) error {
	for _, m := range messages {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}
