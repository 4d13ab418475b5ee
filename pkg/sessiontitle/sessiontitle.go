// Package sessiontitle derives short conversation titles from the
// first exchange, using a one-shot model call with a truncation
// fallback.
package sessiontitle

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ragdesk/ragdesk/pkg/chat"
	"github.com/ragdesk/ragdesk/pkg/model/provider"
)

const maxTitleRunes = 60

const titlePrompt = `Generate a short title for this conversation based on the user's question. Reply with the title only, no quotes and no punctuation at the end. Keep it under 10 words.`

// Generator produces session titles via the model.
type Generator struct {
	provider provider.Provider
}

func NewGenerator(p provider.Provider) *Generator {
	return &Generator{provider: p}
}

// Generate asks the model for a title summarizing the user question.
// Any failure falls back to a truncated form of the question itself,
// so a title is always returned.
func (g *Generator) Generate(ctx context.Context, userQuestion string) string {
	messages := []chat.Message{
		chat.SystemMessage(titlePrompt),
		chat.UserMessage(userQuestion),
	}

	resp, err := g.provider.CreateChatCompletion(ctx, messages, nil)
	if err != nil {
		slog.Warn("Title generation failed, falling back to question", "error", err)
		return Fallback(userQuestion)
	}

	title := sanitize(resp.Content)
	if title == "" {
		return Fallback(userQuestion)
	}
	return clip(title)
}

// Fallback is the title used when the model cannot be asked: the user
// question itself, cleaned and clipped.
func Fallback(userQuestion string) string {
	title := sanitize(userQuestion)
	if title == "" {
		return "New conversation"
	}
	return clip(title)
}

// sanitize strips wrapping quotes, trailing punctuation and collapses
// the text to a single line.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, `"'“”‘’`)
	s = strings.TrimRight(s, ".。!！?？,，:：;；")
	return strings.TrimSpace(s)
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleRunes {
		return s
	}
	return string([]rune(s)[:maxTitleRunes]) + "..."
}
