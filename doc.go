// Package runtimekit supervises interchangeable worker-process runtimes
// behind one abstract adapter contract.
//
// A front-end talks to exactly one active runtime at a time; each runtime is
// an isolated worker process speaking a JSON protocol over a unix socket.
// runtimekit handles the supervisor side: spawning workers, waiting for
// their sockets, exchanging requests and token streams, swapping between
// backends safely, and skipping redundant dependency rebuilds.
//
// Subpackages:
//
//   - runtime: the adapter contract, shared message/provider/tool types,
//     registry, and swap-controlling Supervisor
//   - proc: the subprocess-backed adapter (TOML manifests, process
//     lifecycle, socket RPC client)
//   - workercontract: the wire protocol contract, plus a scriptable mock
//     worker for tests
//   - deps: dependency mode resolution (default, pinned, local overrides)
//     with a content-addressed build cache
//
// # Quick Start
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
package runtimekit
