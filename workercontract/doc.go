// Package workercontract is the single source of truth for the socket
// protocol between the supervisor and worker processes: action names,
// request/response shapes, streaming frame types, and socket path rules.
//
// # Purpose
//
// Workers are implemented in arbitrary ecosystems; the only thing they share
// with the supervisor is this wire contract. When the protocol changes, only
// this package (and the workers) need to be updated. Both sides must agree
// on ProtocolVersion — runtime manifests declare the version their worker
// speaks and loading fails on a mismatch.
//
// # Exchange Rules
//
// One connection per call. The caller connects to the worker's unix socket,
// writes exactly one JSON-encoded Request, and half-closes the write side.
//
// For every action except ActionChatStream, the worker replies with exactly
// one JSON-encoded Response and closes the connection. The Response carries
// either the action's payload or a non-empty Error.
//
// For ActionChatStream, the worker replies with a sequence of
// newline-terminated JSON frames on the same connection: zero or more
// FrameChunk frames followed by exactly one terminal frame (FrameDone or
// FrameError). Nothing may follow a terminal frame. Closing the connection
// without a terminal frame is a protocol violation the caller reports as a
// truncated stream.
//
// # Package Contents
//
//   - actions.go: action and frame type constants
//   - wire.go: Request, Response, and StreamFrame shapes
//   - socket.go: socket path derivation (with the sun_path length guard)
//   - mock.go: MockWorker, an in-process reference worker for tests
//
// # Usage
//
//	req := workercontract.Request{
//	    Action:   workercontract.ActionChat,
//	    Provider: "anthropic",
//	    Messages: msgs,
//	}
//
//	if frame.Type == workercontract.FrameDone { ... }
package workercontract
