package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragdesk/ragdesk/pkg/chat"
	"github.com/ragdesk/ragdesk/pkg/review"
	"github.com/ragdesk/ragdesk/pkg/tools"
)

// executeToolCalls dispatches the requested calls sequentially, in
// the order received. Unknown tool names are logged and skipped; tool
// failures are captured into the result content so the conversation
// can continue.
func (r *Runtime) executeToolCalls(ctx context.Context, calls []tools.ToolCall, messages []chat.Message) []chat.Message {
	var toolMessages []chat.Message

	for _, call := range calls {
		name := call.Function.Name

		reg, ok := r.registry.Lookup(name)
		if !ok {
			slog.Warn("Tool not registered, skipping", "tool", name)
			continue
		}

		slog.Info("Executing tool", "tool", name, "args", call.Function.Arguments)

		var content string
		result, err := reg.Handler(ctx, call)
		if err != nil {
			slog.Error("Tool execution failed", "tool", name, "error", err)
			content = fmt.Sprintf("Tool execution failed: %v", err)
		} else {
			content = result.Output
			if reg.Reviewable {
				content = r.reviewToolOutput(content, messages)
			}
		}

		toolMessages = append(toolMessages, chat.Message{
			Role:       chat.MessageRoleTool,
			Content:    content,
			ToolCallID: call.ID,
			Name:       name,
		})
	}

	return toolMessages
}

// reviewToolOutput runs the relevance/recency review over search-like
// tool output and replaces it with the filtered rendering. Any review
// failure falls back to the raw output.
func (r *Runtime) reviewToolOutput(raw string, messages []chat.Message) string {
	question := latestUserText(messages)
	refDate := r.now().Format("2006-01-02")

	outcome := review.Review(raw, question, refDate)
	filtered := review.RenderFiltered(outcome)
	if filtered == "" {
		slog.Warn("Review produced no entries, keeping raw tool output")
		return raw
	}

	slog.Info("Search results reviewed", "summary", outcome.Summary)
	return filtered
}

// latestUserText scans the message list in reverse for the most
// recent user-authored text, joining the text parts of multimodal
// messages.
func latestUserText(messages []chat.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := &messages[i]
		if msg.Role != chat.MessageRoleUser {
			continue
		}
		if len(msg.MultiContent) == 0 {
			return msg.Content
		}
		var parts []string
		for _, part := range msg.MultiContent {
			if part.Type == chat.MessagePartTypeText && part.Text != "" {
				parts = append(parts, part.Text)
			}
		}
		return strings.TrimSpace(strings.Join(parts, " "))
	}
	return ""
}

// truncateForEvent caps tool output for the tool_results event
// payload. The full content stays in the message list.
func truncateForEvent(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}
