// Package openai wraps the OpenAI-compatible chat completion API used
// by every configured backend.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/ragdesk/ragdesk/pkg/chat"
	"github.com/ragdesk/ragdesk/pkg/tools"
)

type Options struct {
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float32
	MaxTokens   int
}

// Client speaks to one OpenAI-compatible endpoint.
type Client struct {
	client *openai.Client
	opts   Options
}

func NewClient(opts Options) (*Client, error) {
	if opts.Model == "" {
		return nil, errors.New("model name is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("API key for model %s is missing", opts.Model)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
	}, nil
}

func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message, toolDefs []tools.Tool) (*chat.Message, error) {
	req := c.newRequest(messages, toolDefs)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	msg := fromOpenAIMessage(resp.Choices[0].Message)
	return &msg, nil
}

func (c *Client) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, toolDefs []tools.Tool) (chat.MessageStream, error) {
	req := c.newRequest(messages, toolDefs)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}

	return &streamAdapter{stream: stream}, nil
}

func (c *Client) newRequest(messages []chat.Message, toolDefs []tools.Tool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
	if len(toolDefs) > 0 {
		req.Tools = toOpenAITools(toolDefs)
	}
	slog.Debug("Model request prepared", "model", c.opts.Model, "messages", len(messages), "tools", len(toolDefs))
	return req
}

// streamAdapter adapts the go-openai stream to chat.MessageStream.
type streamAdapter struct {
	stream *openai.ChatCompletionStream
}

func (a *streamAdapter) Recv() (chat.MessageStreamResponse, error) {
	resp, err := a.stream.Recv()
	if err != nil {
		return chat.MessageStreamResponse{}, err
	}

	out := chat.MessageStreamResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: make([]chat.MessageStreamChoice, len(resp.Choices)),
	}
	for i := range resp.Choices {
		choice := &resp.Choices[i]
		out.Choices[i] = chat.MessageStreamChoice{
			Index:        choice.Index,
			FinishReason: chat.FinishReason(choice.FinishReason),
			Delta: chat.MessageDelta{
				Role:             choice.Delta.Role,
				Content:          choice.Delta.Content,
				ReasoningContent: choice.Delta.ReasoningContent,
				ToolCalls:        fromOpenAIToolCalls(choice.Delta.ToolCalls),
			},
		}
	}
	return out, nil
}

func (a *streamAdapter) Close() {
	a.stream.Close()
}

func toOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		om := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		if len(msg.MultiContent) > 0 {
			om.Content = ""
			om.MultiContent = toOpenAIParts(msg.MultiContent)
		}
		for _, tc := range msg.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolType(tc.Type),
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAIParts(parts []chat.MessagePart) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case chat.MessagePartTypeText:
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		case chat.MessagePartTypeImageURL:
			if part.ImageURL != nil {
				out = append(out, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL.URL},
				})
			}
		}
	}
	return out
}

func toOpenAITools(toolDefs []tools.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(toolDefs))
	for _, t := range toolDefs {
		if t.Function == nil {
			continue
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) chat.Message {
	return chat.Message{
		Role:             chat.MessageRole(msg.Role),
		Content:          msg.Content,
		ReasoningContent: msg.ReasoningContent,
		ToolCalls:        fromOpenAIToolCalls(msg.ToolCalls),
	}
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []tools.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]tools.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = tools.ToolCall{
			ID:   tc.ID,
			Type: tools.ToolType(tc.Type),
			Function: tools.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
		if tc.Index != nil {
			idx := *tc.Index
			out[i].Index = &idx
		}
	}
	return out
}
