package workercontract

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/randalmurphal/runtimekit/runtime"
)

func TestStreamFrame_Validate(t *testing.T) {
	msg := runtime.AssistantMessage("done")

	tests := []struct {
		name    string
		frame   StreamFrame
		wantErr bool
	}{
		{
			name:    "chunk",
			frame:   ChunkFrame("hello"),
			wantErr: false,
		},
		{
			name:    "empty chunk",
			frame:   ChunkFrame(""),
			wantErr: false,
		},
		{
			name:    "done with message",
			frame:   DoneFrame(&msg),
			wantErr: false,
		},
		{
			name:    "done without message",
			frame:   StreamFrame{Type: FrameDone},
			wantErr: true,
		},
		{
			name:    "error with text",
			frame:   ErrorFrame("model overloaded"),
			wantErr: false,
		},
		{
			name:    "error without text",
			frame:   StreamFrame{Type: FrameError},
			wantErr: true,
		},
		{
			name:    "unknown type",
			frame:   StreamFrame{Type: "keepalive"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStreamFrame_Terminal(t *testing.T) {
	msg := runtime.AssistantMessage("x")

	if ChunkFrame("a").Terminal() {
		t.Error("chunk frame reported terminal")
	}
	if !DoneFrame(&msg).Terminal() {
		t.Error("done frame not terminal")
	}
	if !ErrorFrame("boom").Terminal() {
		t.Error("error frame not terminal")
	}
}

func TestStreamFrame_WireShape(t *testing.T) {
	data, err := json.Marshal(ChunkFrame("Hel"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"chunk","chunk":"Hel"}`
	if string(data) != want {
		t.Errorf("chunk frame = %s, want %s", data, want)
	}

	data, err = json.Marshal(ErrorFrame("rate limited"))
	if err != nil {
		t.Fatal(err)
	}
	want = `{"type":"error","error":"rate limited"}`
	if string(data) != want {
		t.Errorf("error frame = %s, want %s", data, want)
	}
}

func TestRequest_WireShape(t *testing.T) {
	data, err := json.Marshal(Request{
		Action:   ActionSetProviderOption,
		Provider: "anthropic",
		OptionID: "thinking",
		Value:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"action":"set_provider_option","provider":"anthropic","option_id":"thinking","value":true}`
	if string(data) != want {
		t.Errorf("request = %s, want %s", data, want)
	}
}

func TestSocketPath(t *testing.T) {
	path := SocketPath("/tmp/runtimekit", "node-worker")
	if path != filepath.Join("/tmp/runtimekit", "node-worker.sock") {
		t.Errorf("SocketPath() = %q", path)
	}
}

func TestSocketPath_LongID(t *testing.T) {
	longID := strings.Repeat("very-long-runtime-identifier-", 10)

	path := SocketPath("/tmp", longID)
	if len(path) > maxSocketPath {
		t.Errorf("SocketPath() length = %d, exceeds sun_path limit %d", len(path), maxSocketPath)
	}
	if !strings.HasPrefix(path, "/tmp/") || !strings.HasSuffix(path, ".sock") {
		t.Errorf("SocketPath() = %q, lost dir or suffix", path)
	}

	// Stable: the same id always maps to the same path.
	if SocketPath("/tmp", longID) != path {
		t.Error("hashed socket path is not deterministic")
	}
}
