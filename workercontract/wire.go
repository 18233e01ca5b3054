package workercontract

import (
	"fmt"

	"github.com/randalmurphal/runtimekit/runtime"
)

// Request is the single JSON object written per connection. Action selects
// the operation; the remaining fields are action-specific and omitted when
// unused.
type Request struct {
	Action   string            `json:"action"`
	Provider string            `json:"provider,omitempty"`
	Messages []runtime.Message `json:"messages,omitempty"`
	OptionID string            `json:"option_id,omitempty"`
	Value    any               `json:"value,omitempty"`
	Mode     string            `json:"mode,omitempty"`
	ToolID   string            `json:"tool_id,omitempty"`
}

// Response is the single JSON object a worker replies with for every action
// except ActionChatStream. Exactly one payload field is set on success;
// Error is set instead on failure.
type Response struct {
	// Providers answers ActionGetProviders.
	Providers []runtime.Provider `json:"providers,omitempty"`

	// Message answers ActionChat, ActionRunModeTest, and ActionRunTool.
	Message *runtime.Message `json:"message,omitempty"`

	// Tools answers ActionListTools.
	Tools []runtime.Tool `json:"tools,omitempty"`

	// OK confirms ActionSetProviderOption.
	OK bool `json:"ok,omitempty"`

	// Error is the worker's failure text, verbatim.
	Error string `json:"error,omitempty"`
}

// StreamFrame is one newline-terminated JSON object within a streaming
// exchange. Wire order is strict: zero or more chunk frames, then exactly
// one terminal frame (done or error), then nothing.
type StreamFrame struct {
	Type    string           `json:"type"`
	Chunk   string           `json:"chunk,omitempty"`
	Message *runtime.Message `json:"message,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Terminal reports whether the frame ends the stream.
func (f StreamFrame) Terminal() bool {
	return f.Type == FrameDone || f.Type == FrameError
}

// Validate checks that the frame's fields match its type.
func (f StreamFrame) Validate() error {
	switch f.Type {
	case FrameChunk:
	case FrameDone:
		if f.Message == nil {
			return fmt.Errorf("done frame missing message")
		}
	case FrameError:
		if f.Error == "" {
			return fmt.Errorf("error frame missing error text")
		}
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}

// ChunkFrame builds a chunk frame.
func ChunkFrame(chunk string) StreamFrame {
	return StreamFrame{Type: FrameChunk, Chunk: chunk}
}

// DoneFrame builds the successful terminal frame.
func DoneFrame(msg *runtime.Message) StreamFrame {
	return StreamFrame{Type: FrameDone, Message: msg}
}

// ErrorFrame builds the failing terminal frame.
func ErrorFrame(text string) StreamFrame {
	return StreamFrame{Type: FrameError, Error: text}
}

// ErrorResponse builds a Response carrying only a failure text.
func ErrorResponse(text string) Response {
	return Response{Error: text}
}
