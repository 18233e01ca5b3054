package runtime

import "encoding/json"

// Role identifies the message sender.
type Role string

// Standard message roles exchanged with workers.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// BlockType identifies the kind of content a block carries.
type BlockType string

// Content block types.
const (
	BlockText  BlockType = "text"
	BlockFile  BlockType = "file"
	BlockImage BlockType = "image"
	BlockAudio BlockType = "audio"
)

// Message is one conversation turn: a role plus an ordered list of typed
// content blocks. It is the envelope exchanged with workers; the supervisor
// never inspects vendor-specific payload shape beyond it.
type Message struct {
	Role   Role           `json:"role"`
	Blocks []ContentBlock `json:"blocks"`
}

// ContentBlock is one piece of message content. Blocks that reference local
// files (file, image, audio) carry only a path and a media type — raw bytes
// never cross the socket; the worker reads the file on its own side.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text holds the content when Type == BlockText.
	Text string `json:"text,omitempty"`

	// Path is the local file path for file, image, and audio blocks.
	Path string `json:"path,omitempty"`

	// MediaType is the MIME type of the referenced file
	// (e.g. "application/pdf", "image/png").
	MediaType string `json:"media_type,omitempty"`
}

// Validate checks that the block's fields match its type.
func (b ContentBlock) Validate() error {
	switch b.Type {
	case BlockText:
		if b.Path != "" {
			return errInvalidBlock("text block must not carry a path")
		}
	case BlockFile, BlockImage, BlockAudio:
		if b.Path == "" {
			return errInvalidBlock(string(b.Type) + " block requires a path")
		}
		if b.MediaType == "" {
			return errInvalidBlock(string(b.Type) + " block requires a media type")
		}
	default:
		return errInvalidBlock("unknown block type " + string(b.Type))
	}
	return nil
}

// TextBlock creates a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// FileBlock creates a block referencing a local file by path.
func FileBlock(path, mediaType string) ContentBlock {
	return ContentBlock{Type: BlockFile, Path: path, MediaType: mediaType}
}

// ImageBlock creates a block referencing a local image file by path.
func ImageBlock(path, mediaType string) ContentBlock {
	return ContentBlock{Type: BlockImage, Path: path, MediaType: mediaType}
}

// AudioBlock creates a block referencing a local audio file by path.
func AudioBlock(path, mediaType string) ContentBlock {
	return ContentBlock{Type: BlockAudio, Path: path, MediaType: mediaType}
}

// UserMessage creates a single-text-block user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Blocks: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage creates a single-text-block assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Blocks: []ContentBlock{TextBlock(text)}}
}

// Text returns the message's text blocks concatenated in order.
func (m Message) Text() string {
	var text string
	for _, b := range m.Blocks {
		if b.Type == BlockText {
			text += b.Text
		}
	}
	return text
}

// Validate checks the role and every content block.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return errInvalidBlock("unknown role " + string(m.Role))
	}
	for _, b := range m.Blocks {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Provider describes one backend-exposed capability family, as reported by
// the worker. The worker owns this data: fetch it fresh, never cache it
// across worker restarts.
type Provider struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Options    []ProviderOption `json:"options,omitempty"`
	InputModes []string         `json:"input_modes,omitempty"`
}

// Option returns the provider option with the given id.
func (p Provider) Option(id string) (ProviderOption, bool) {
	for _, o := range p.Options {
		if o.ID == id {
			return o, true
		}
	}
	return ProviderOption{}, false
}

// SupportsMode reports whether the provider accepts the given input mode.
func (p Provider) SupportsMode(mode string) bool {
	for _, m := range p.InputModes {
		if m == mode {
			return true
		}
	}
	return false
}

// OptionType identifies how a provider option is edited.
type OptionType string

// Provider option types.
const (
	// OptionBool is an on/off toggle.
	OptionBool OptionType = "bool"

	// OptionEnum is a selection from a named set of choices.
	OptionEnum OptionType = "enum"
)

// ProviderOption is one worker-owned setting: a boolean toggle or an enum
// selection with a fixed set of choices. Value is mutated only through
// Adapter.SetProviderOption; the front-end updates its copy only after the
// worker confirms, so the two sides never diverge.
type ProviderOption struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Type    OptionType `json:"type"`
	Choices []string   `json:"choices,omitempty"`
	Default any        `json:"default,omitempty"`
	Value   any        `json:"value,omitempty"`
}

// BoolValue returns the effective value of a bool option. JSON decoding can
// deliver the value as bool or string depending on the worker ecosystem, so
// both are accepted.
func (o ProviderOption) BoolValue() bool {
	v := o.Value
	if v == nil {
		v = o.Default
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

// EnumValue returns the effective value of an enum option, or "" if unset.
func (o ProviderOption) EnumValue() string {
	v := o.Value
	if v == nil {
		v = o.Default
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Tool is an auxiliary worker operation (e.g. "clear session") exposed
// alongside chat. Parameters, when present, is a JSON Schema describing the
// tool's input.
type Tool struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}
