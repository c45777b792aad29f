package reflection

import (
	"encoding/json"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleSystem is an instruction message.
	RoleSystem Role = "system"
	// RoleUser is a message from the user (or feedback re-injected as one).
	RoleUser Role = "user"
	// RoleAssistant is a candidate answer produced by the generation step.
	RoleAssistant Role = "assistant"
)

// metaReflected marks an assistant message that has passed critique.
const metaReflected = "reflected"

// Block is a single piece of message content. Messages carry an ordered list
// of blocks so multi-modal input can flow through the loop unchanged.
type Block interface {
	isBlock()
}

// TextBlock is plain text content.
type TextBlock struct {
	Text string
}

func (TextBlock) isBlock() {}

// ImageBlock references an image by URL.
type ImageBlock struct {
	URL string
}

func (ImageBlock) isBlock() {}

// Message is one turn in the conversation threaded through the loop.
type Message struct {
	Role     Role
	Blocks   []Block
	Metadata map[string]any
}

// NewMessage creates a message with a single text block.
func NewMessage(role Role, text string) Message {
	return Message{Role: role, Blocks: []Block{TextBlock{Text: text}}}
}

// SystemMessage creates a system message with the given text.
func SystemMessage(text string) Message { return NewMessage(RoleSystem, text) }

// UserMessage creates a user message with the given text.
func UserMessage(text string) Message { return NewMessage(RoleUser, text) }

// AssistantMessage creates an assistant message with the given text.
func AssistantMessage(text string) Message { return NewMessage(RoleAssistant, text) }

// Text returns the concatenated text blocks of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Blocks {
		if t, ok := b.(TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// Reflected reports whether the message has been accepted by critique.
func (m Message) Reflected() bool {
	v, ok := m.Metadata[metaReflected].(bool)
	return ok && v
}

// WithReflected returns a copy of the message with the reflected flag set.
// The original metadata map is not mutated.
func (m Message) WithReflected() Message {
	meta := make(map[string]any, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	meta[metaReflected] = true
	m.Metadata = meta
	return m
}

// ToContent converts the message to a langchaingo MessageContent.
func (m Message) ToContent() llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch blk := b.(type) {
		case TextBlock:
			parts = append(parts, llms.TextPart(blk.Text))
		case ImageBlock:
			parts = append(parts, llms.ImageURLPart(blk.URL))
		}
	}
	return llms.MessageContent{Role: m.Role.chatMessageType(), Parts: parts}
}

// ToContents converts a message slice for a model call.
func ToContents(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ToContent())
	}
	return out
}

func (r Role) chatMessageType() schema.ChatMessageType {
	switch r {
	case RoleSystem:
		return schema.ChatMessageTypeSystem
	case RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}

// blockJSON is the wire form of a content block.
type blockJSON struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

type messageJSON struct {
	Role     Role           `json:"role"`
	Blocks   []blockJSON    `json:"blocks"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON implements json.Marshaler so messages survive persistence.
func (m Message) MarshalJSON() ([]byte, error) {
	blocks := make([]blockJSON, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch blk := b.(type) {
		case TextBlock:
			blocks = append(blocks, blockJSON{Type: "text", Text: blk.Text})
		case ImageBlock:
			blocks = append(blocks, blockJSON{Type: "image", URL: blk.URL})
		}
	}
	return json.Marshal(messageJSON{Role: m.Role, Blocks: blocks, Metadata: m.Metadata})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Role = raw.Role
	m.Metadata = raw.Metadata
	m.Blocks = nil
	for _, b := range raw.Blocks {
		switch b.Type {
		case "image":
			m.Blocks = append(m.Blocks, ImageBlock{URL: b.URL})
		default:
			m.Blocks = append(m.Blocks, TextBlock{Text: b.Text})
		}
	}
	return nil
}
