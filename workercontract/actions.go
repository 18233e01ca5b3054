package workercontract

// ProtocolVersion is the wire contract revision this package describes.
// Runtime manifests declare the version their worker speaks; manifest
// loading fails when it differs, before any process is spawned.
const ProtocolVersion = 1

// Request action names. Every request carries exactly one of these in its
// "action" field.
const (
	// ActionGetProviders fetches the worker's provider list.
	ActionGetProviders = "get_providers"

	// ActionSetProviderOption applies one provider option value.
	ActionSetProviderOption = "set_provider_option"

	// ActionChat runs a non-streaming chat call.
	ActionChat = "chat"

	// ActionChatStream runs a streaming chat call; the reply is a frame
	// sequence instead of a single response.
	ActionChatStream = "chat_stream"

	// ActionRunModeTest runs the worker's scripted check for one input mode.
	ActionRunModeTest = "run_mode_test"

	// ActionListTools lists the worker's auxiliary tools.
	ActionListTools = "list_tools"

	// ActionRunTool invokes an auxiliary tool.
	ActionRunTool = "run_tool"
)

// Streaming frame types.
const (
	// FrameChunk carries one increment of response text.
	FrameChunk = "chunk"

	// FrameDone terminates a stream successfully and carries the final
	// message.
	FrameDone = "done"

	// FrameError terminates a stream with a worker-reported error.
	FrameError = "error"
)
