package workercontract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/randalmurphal/runtimekit/runtime"
)

// MockWorker is a test double for a worker process: a real unix-socket
// server speaking this package's protocol in-process. It doubles as the
// reference implementation of the worker side of the contract.
//
// The default behavior answers every action: one provider ("mock") with a
// bool option, one tool ("ping"), and a chat that echoes the last request
// message back with the assistant role. Use the WithX configurators to
// script responses, raw wire bytes, or protocol violations.
type MockWorker struct {
	path string

	mu         sync.Mutex
	providers  []runtime.Provider
	tools      []runtime.Tool
	chatFunc   func(provider string, msgs []runtime.Message) (*runtime.Message, error)
	streamFunc func(provider string, msgs []runtime.Message) []StreamFrame
	toolFunc   func(toolID, provider string) (*runtime.Message, error)
	frames     []StreamFrame
	rawFrames  []string
	rawReply   []byte
	errText    string
	hang       bool

	listener net.Listener
	closed   chan struct{}
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup

	// Calls tracks all decoded requests for assertions.
	Calls []Request
}

// NewMockWorker creates a mock worker that will listen on socketPath once
// started.
func NewMockWorker(socketPath string) *MockWorker {
	return &MockWorker{
		path: socketPath,
		providers: []runtime.Provider{{
			ID:   "mock",
			Name: "Mock Provider",
			Options: []runtime.ProviderOption{{
				ID:      "verbose",
				Name:    "Verbose",
				Type:    runtime.OptionBool,
				Default: false,
			}},
			InputModes: []string{"text", "file"},
		}},
		tools: []runtime.Tool{{
			ID:          "ping",
			Name:        "Ping",
			Description: "Round-trip check",
		}},
		closed: make(chan struct{}),
		conns:  make(map[net.Conn]struct{}),
	}
}

// WithProviders replaces the provider list.
func (m *MockWorker) WithProviders(providers ...runtime.Provider) *MockWorker {
	m.providers = providers
	return m
}

// WithTools replaces the tool list.
func (m *MockWorker) WithTools(tools ...runtime.Tool) *MockWorker {
	m.tools = tools
	return m
}

// WithChatFunc sets a custom handler for chat requests. The handler also
// produces the final message of streamed chats unless WithStreamFunc or
// WithFrames override the frame sequence.
func (m *MockWorker) WithChatFunc(fn func(provider string, msgs []runtime.Message) (*runtime.Message, error)) *MockWorker {
	m.chatFunc = fn
	return m
}

// WithStreamFunc sets a custom handler producing the full frame sequence
// for chat_stream requests.
func (m *MockWorker) WithStreamFunc(fn func(provider string, msgs []runtime.Message) []StreamFrame) *MockWorker {
	m.streamFunc = fn
	return m
}

// WithToolFunc sets a custom handler for run_tool requests.
func (m *MockWorker) WithToolFunc(fn func(toolID, provider string) (*runtime.Message, error)) *MockWorker {
	m.toolFunc = fn
	return m
}

// WithFrames scripts the exact frames written for chat_stream requests.
// The frames are written verbatim, so protocol violations (missing
// terminal, frames after a terminal) can be staged deliberately.
func (m *MockWorker) WithFrames(frames ...StreamFrame) *MockWorker {
	m.frames = frames
	return m
}

// WithRawFrames scripts raw wire lines for chat_stream requests, newline
// appended to each. Use for byte-level violations such as malformed JSON.
func (m *MockWorker) WithRawFrames(lines ...string) *MockWorker {
	m.rawFrames = lines
	return m
}

// WithRawResponse scripts the raw bytes written for non-streaming requests.
func (m *MockWorker) WithRawResponse(data []byte) *MockWorker {
	m.rawReply = data
	return m
}

// WithError makes every action fail with the given application error text.
func (m *MockWorker) WithError(text string) *MockWorker {
	m.errText = text
	return m
}

// WithHang makes the worker read requests and never respond, holding the
// connection open until the worker is closed.
func (m *MockWorker) WithHang() *MockWorker {
	m.hang = true
	return m
}

// Path returns the socket path the worker listens on.
func (m *MockWorker) Path() string {
	return m.path
}

// Start removes any stale socket file and begins accepting connections.
func (m *MockWorker) Start() error {
	_ = os.Remove(m.path)

	ln, err := net.Listen("unix", m.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.path, err)
	}
	m.listener = ln

	m.wg.Add(1)
	go m.acceptLoop()
	return nil
}

// Close stops the listener, closes open connections, and removes the
// socket file. Safe to call more than once.
func (m *MockWorker) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}

	var err error
	if m.listener != nil {
		err = m.listener.Close()
	}

	m.mu.Lock()
	for c := range m.conns {
		_ = c.Close()
	}
	m.mu.Unlock()

	m.wg.Wait()
	_ = os.Remove(m.path)
	return err
}

// CallCount returns the number of requests served.
func (m *MockWorker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil if none were served.
func (m *MockWorker) LastCall() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	req := m.Calls[len(m.Calls)-1]
	return &req
}

// Reset clears the call history.
func (m *MockWorker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

func (m *MockWorker) acceptLoop() {
	defer m.wg.Done()

	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		m.mu.Lock()
		m.conns[conn] = struct{}{}
		m.mu.Unlock()

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer func() {
				m.mu.Lock()
				delete(m.conns, conn)
				m.mu.Unlock()
				_ = conn.Close()
			}()
			m.serve(conn)
		}()
	}
}

func (m *MockWorker) serve(conn net.Conn) {
	// The caller half-closes its write side after the request, so reading
	// to EOF yields exactly one request.
	data, err := io.ReadAll(conn)
	if err != nil {
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		m.reply(conn, ErrorResponse("bad request: "+err.Error()))
		return
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	hang := m.hang
	rawReply := m.rawReply
	errText := m.errText
	m.mu.Unlock()

	if hang {
		<-m.closed
		return
	}

	if req.Action == ActionChatStream {
		m.serveStream(conn, req)
		return
	}

	if rawReply != nil {
		_, _ = conn.Write(rawReply)
		return
	}
	if errText != "" {
		m.reply(conn, ErrorResponse(errText))
		return
	}

	switch req.Action {
	case ActionGetProviders:
		m.mu.Lock()
		providers := m.providers
		m.mu.Unlock()
		m.reply(conn, Response{Providers: providers})

	case ActionSetProviderOption:
		m.reply(conn, m.applyOption(req))

	case ActionChat:
		msg, err := m.chat(req.Provider, req.Messages)
		if err != nil {
			m.reply(conn, ErrorResponse(err.Error()))
			return
		}
		m.reply(conn, Response{Message: msg})

	case ActionRunModeTest:
		m.reply(conn, m.runModeTest(req))

	case ActionListTools:
		m.mu.Lock()
		tools := m.tools
		m.mu.Unlock()
		m.reply(conn, Response{Tools: tools})

	case ActionRunTool:
		m.reply(conn, m.runTool(req))

	default:
		m.reply(conn, ErrorResponse(fmt.Sprintf("unknown action %q", req.Action)))
	}
}

func (m *MockWorker) serveStream(conn net.Conn, req Request) {
	m.mu.Lock()
	rawFrames := m.rawFrames
	frames := m.frames
	streamFunc := m.streamFunc
	errText := m.errText
	m.mu.Unlock()

	if rawFrames != nil {
		for _, line := range rawFrames {
			if _, err := conn.Write([]byte(line + "\n")); err != nil {
				return
			}
		}
		return
	}

	if frames == nil {
		switch {
		case errText != "":
			frames = []StreamFrame{ErrorFrame(errText)}
		case streamFunc != nil:
			frames = streamFunc(req.Provider, req.Messages)
		default:
			msg, err := m.chat(req.Provider, req.Messages)
			if err != nil {
				frames = []StreamFrame{ErrorFrame(err.Error())}
			} else {
				frames = []StreamFrame{ChunkFrame(msg.Text()), DoneFrame(msg)}
			}
		}
	}

	enc := json.NewEncoder(conn)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return
		}
	}
}

func (m *MockWorker) chat(provider string, msgs []runtime.Message) (*runtime.Message, error) {
	m.mu.Lock()
	chatFunc := m.chatFunc
	m.mu.Unlock()

	if chatFunc != nil {
		return chatFunc(provider, msgs)
	}
	if _, ok := m.provider(provider); !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	// Echo the last message back with the assistant role.
	reply := &runtime.Message{Role: runtime.RoleAssistant}
	if len(msgs) > 0 {
		reply.Blocks = msgs[len(msgs)-1].Blocks
	}
	return reply, nil
}

func (m *MockWorker) applyOption(req Request) Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pi := range m.providers {
		if m.providers[pi].ID != req.Provider {
			continue
		}
		opts := m.providers[pi].Options
		for oi := range opts {
			if opts[oi].ID != req.OptionID {
				continue
			}
			if err := checkOptionValue(opts[oi], req.Value); err != nil {
				return ErrorResponse(err.Error())
			}
			opts[oi].Value = req.Value
			return Response{OK: true}
		}
		return ErrorResponse(fmt.Sprintf("unknown option %q for provider %q", req.OptionID, req.Provider))
	}
	return ErrorResponse(fmt.Sprintf("unknown provider %q", req.Provider))
}

func (m *MockWorker) runModeTest(req Request) Response {
	p, ok := m.provider(req.Provider)
	if !ok {
		return ErrorResponse(fmt.Sprintf("unknown provider %q", req.Provider))
	}
	if !p.SupportsMode(req.Mode) {
		return ErrorResponse(fmt.Sprintf("provider %q does not accept %q input", req.Provider, req.Mode))
	}
	msg := runtime.AssistantMessage(fmt.Sprintf("%s %s check passed", req.Provider, req.Mode))
	return Response{Message: &msg}
}

func (m *MockWorker) runTool(req Request) Response {
	m.mu.Lock()
	toolFunc := m.toolFunc
	tools := m.tools
	m.mu.Unlock()

	if toolFunc != nil {
		msg, err := toolFunc(req.ToolID, req.Provider)
		if err != nil {
			return ErrorResponse(err.Error())
		}
		return Response{Message: msg}
	}

	for _, t := range tools {
		if t.ID != req.ToolID {
			continue
		}
		text := "pong"
		if req.ToolID != "ping" {
			text = fmt.Sprintf("ran %s", req.ToolID)
		}
		msg := runtime.AssistantMessage(text)
		return Response{Message: &msg}
	}
	return ErrorResponse(fmt.Sprintf("unknown tool %q", req.ToolID))
}

func (m *MockWorker) provider(id string) (runtime.Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.providers {
		if p.ID == id {
			return p, true
		}
	}
	return runtime.Provider{}, false
}

func (m *MockWorker) reply(conn net.Conn, resp Response) {
	_ = json.NewEncoder(conn).Encode(resp)
}

func checkOptionValue(opt runtime.ProviderOption, value any) error {
	switch opt.Type {
	case runtime.OptionBool:
		switch v := value.(type) {
		case bool:
			return nil
		case string:
			if v == "true" || v == "false" {
				return nil
			}
		}
		return fmt.Errorf("option %q expects a boolean, got %v", opt.ID, value)

	case runtime.OptionEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("option %q expects a string, got %v", opt.ID, value)
		}
		for _, c := range opt.Choices {
			if c == s {
				return nil
			}
		}
		return fmt.Errorf("option %q does not accept %q", opt.ID, s)
	}
	return fmt.Errorf("option %q has unknown type %q", opt.ID, opt.Type)
}
