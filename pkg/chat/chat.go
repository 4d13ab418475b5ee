package chat

import (
	"github.com/ragdesk/ragdesk/pkg/tools"
)

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

type MessagePartType string

const (
	MessagePartTypeText     MessagePartType = "text"
	MessagePartTypeImageURL MessagePartType = "image_url"
)

type MessageImageURL struct {
	URL string `json:"url"`
}

// MessagePart is one typed block of a multimodal message. Audio
// arrives as its transcription, i.e. a text part.
type MessagePart struct {
	Type     MessagePartType  `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *MessageImageURL `json:"image_url,omitempty"`
}

// Message is one entry of the conversation. Ordering within a
// conversation is append-only and significant.
type Message struct {
	Role         MessageRole   `json:"role"`
	Content      string        `json:"content"`
	MultiContent []MessagePart `json:"multi_content,omitempty"`

	// ReasoningContent holds the internal deliberation channel for
	// models that expose one. Never sent back as context.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	// ToolCalls is set on assistant messages that request tools.
	ToolCalls []tools.ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set on tool messages and must match a ToolCall ID
	// from the immediately preceding assistant message.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name carries the tool name on tool messages.
	Name string `json:"name,omitempty"`
}

func SystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: MessageRoleAssistant, Content: content}
}

// MessageStream is an incremental model response.
type MessageStream interface {
	// Recv returns the next chunk. io.EOF signals the end of the
	// stream.
	Recv() (MessageStreamResponse, error)
	Close()
}

type MessageStreamResponse struct {
	ID      string                `json:"id"`
	Model   string                `json:"model"`
	Choices []MessageStreamChoice `json:"choices"`
}

type FinishReason string

type MessageStreamChoice struct {
	Index        int          `json:"index"`
	Delta        MessageDelta `json:"delta"`
	FinishReason FinishReason `json:"finish_reason"`
}

// MessageDelta is one incremental unit. It may carry a reasoning
// payload, an answer payload, tool call fragments, or nothing.
type MessageDelta struct {
	Role             string           `json:"role,omitempty"`
	Content          string           `json:"content,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCalls        []tools.ToolCall `json:"tool_calls,omitempty"`
}
