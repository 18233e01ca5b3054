// Package runtime defines the contract between an interactive front-end and
// interchangeable worker-backed runtimes.
//
// A runtime is an isolated worker process that implements the same provider
// contract in some ecosystem; the front-end talks to it only through the
// Adapter interface. Adapters are collected in an explicit Registry and one
// of them is active at a time, managed by a Supervisor that performs safe
// hot-swaps between them.
//
// # Usage
//
//	reg := runtime.NewRegistry()
//	if err := proc.Register(reg, "./runtimes"); err != nil {
//	    log.Fatal(err)
//	}
//
//	sup := runtime.NewSupervisor(reg, runtime.FromEnv())
//	if err := sup.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sup.Shutdown(ctx)
//
//	rt, _ := sup.Active()
//	reply, err := rt.Chat(ctx, "anthropic", []runtime.Message{
//	    runtime.UserMessage("hello"),
//	})
//
// # Swapping runtimes
//
//	if err := sup.Swap(ctx, "python-worker"); err != nil {
//	    // the previous runtime was restarted if possible
//	}
//
// # Implementations
//
//   - proc: subprocess-backed adapter speaking the workercontract socket
//     protocol (the only implementation in this module)
//
// Front-ends must not hold providers across a swap or worker restart: the
// Provider list is owned by the worker and is fetched fresh on demand.
package runtime

import "context"

// Descriptor identifies one runtime adapter. Descriptors are created during
// discovery and never mutated.
type Descriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Adapter is the operation set the front-end may call against a runtime.
// Implementations delegate to an isolated worker process; the front-end
// never touches sockets or processes directly.
//
// Start and Stop are lifecycle operations and are serialized by the
// Supervisor — they are not safe for concurrent use. The remaining methods
// may be called freely while the runtime is active.
type Adapter interface {
	// ID returns the stable runtime identifier (e.g. "node-worker").
	ID() string

	// Name returns the human-readable display name.
	Name() string

	// Start launches the worker and blocks until it is ready to accept
	// calls or the startup deadline passes.
	Start(ctx context.Context) error

	// Stop terminates the worker and releases its resources. Stopping an
	// already stopped runtime is a no-op.
	Stop(ctx context.Context) error

	// GetProviders fetches the worker's current provider list. Results are
	// never cached: options can change the supported input modes, so every
	// call reflects live worker state.
	GetProviders(ctx context.Context) ([]Provider, error)

	// SetProviderOption applies one option value inside the worker. The
	// call returns only after the worker has confirmed the mutation, so a
	// successful return means the worker-side value matches.
	SetProviderOption(ctx context.Context, providerID, optionID string, value any) error

	// Chat sends a conversation and returns the single response message.
	Chat(ctx context.Context, providerID string, messages []Message) (*Message, error)

	// ChatStream sends a conversation and delivers response text
	// incrementally: onChunk is invoked synchronously, in arrival order,
	// once per chunk, before the final message is returned. Runtimes that
	// cannot stream return ErrStreamingUnsupported.
	ChatStream(ctx context.Context, providerID string, messages []Message, onChunk func(chunk string)) (*Message, error)

	// RunModeTest asks the worker to run its scripted check for one input
	// mode (e.g. "image") against the given provider.
	RunModeTest(ctx context.Context, providerID, mode string) (*Message, error)

	// GetTools lists the worker's auxiliary tools.
	GetTools(ctx context.Context) ([]Tool, error)

	// RunTool invokes an auxiliary tool. providerID may be empty for tools
	// that are not provider-scoped.
	RunTool(ctx context.Context, toolID, providerID string) (*Message, error)
}

// Describe returns the adapter's descriptor.
func Describe(a Adapter) Descriptor {
	return Descriptor{ID: a.ID(), Name: a.Name()}
}
