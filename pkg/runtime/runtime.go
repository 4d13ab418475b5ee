// Package runtime drives rounds of model invocation and tool
// dispatch, then streams the final answer as a sequence of events.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ragdesk/ragdesk/pkg/chat"
	"github.com/ragdesk/ragdesk/pkg/model/provider"
	"github.com/ragdesk/ragdesk/pkg/reference"
	"github.com/ragdesk/ragdesk/pkg/session"
	"github.com/ragdesk/ragdesk/pkg/tools"
)

// DefaultMaxIterations bounds the tool-call rounds per request.
const DefaultMaxIterations = 5

const (
	// toolResultEventLimit caps tool output in tool_results events.
	toolResultEventLimit = 200

	// chunkContextLimit caps each document chunk injected into the
	// system message.
	chunkContextLimit = 500
)

// Runtime orchestrates one conversation turn. One instance serves one
// request; there is no shared mutable state between runs.
type Runtime struct {
	provider      provider.Provider
	registry      *tools.Registry
	store         session.Store
	maxIterations int
	now           func() time.Time
}

type Opt func(*Runtime)

// WithStore enables persistence of the final assistant message.
func WithStore(store session.Store) Opt {
	return func(r *Runtime) { r.store = store }
}

func WithMaxIterations(n int) Opt {
	return func(r *Runtime) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Opt {
	return func(r *Runtime) { r.now = now }
}

func New(p provider.Provider, registry *tools.Registry, opts ...Opt) *Runtime {
	r := &Runtime{
		provider:      p,
		registry:      registry,
		maxIterations: DefaultMaxIterations,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOptions describes one orchestration run.
type RunOptions struct {
	// Messages is the ordered conversation context, system message
	// first.
	Messages []chat.Message

	// Chunks are the numbered document chunks backing reference
	// extraction; they are also injected into the system message.
	Chunks []reference.Chunk

	// EnableTools binds the registry's tools to the model. Only
	// honored when the provider supports tools.
	EnableTools bool

	// SessionID, when set, is announced via session_init and used to
	// persist the assistant message.
	SessionID string
}

// RunStream executes the orchestration loop and returns the event
// stream. The channel is closed after exactly one message_complete or
// error event, or when ctx is done.
func (r *Runtime) RunStream(ctx context.Context, opts RunOptions) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		r.run(ctx, opts, events)
	}()
	return events
}

func (r *Runtime) run(ctx context.Context, opts RunOptions, events chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	messages := append([]chat.Message(nil), opts.Messages...)
	messages = injectChunks(messages, opts.Chunks)

	if opts.SessionID != "" {
		if !emit(SessionInit(opts.SessionID, r.now())) {
			return
		}
	}

	var toolDefs []tools.Tool
	if opts.EnableTools && r.provider.Capabilities().SupportsTools {
		toolDefs = r.registry.Tools()
	}

	// Tool-call rounds. Each round makes one non-streaming call; the
	// response content is discarded, only its tool calls matter. The
	// final answer always comes from a fresh streaming call.
	iteration := 0
	for ; iteration < r.maxIterations; iteration++ {
		resp, err := r.provider.CreateChatCompletion(ctx, messages, toolDefs)
		if err != nil {
			slog.Error("Model invocation failed", "error", err)
			emit(Error(err.Error(), r.now()))
			return
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		slog.Info("Tool calls requested", "count", len(resp.ToolCalls), "round", iteration+1)

		summaries := make([]ToolCallSummary, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			summaries[i] = ToolCallSummary{
				Name: tc.Function.Name,
				Args: toolCallArgs(tc.Function.Arguments),
			}
		}
		if !emit(ToolCalls(summaries, r.now())) {
			return
		}

		messages = append(messages, *resp)

		toolMessages := r.executeToolCalls(ctx, resp.ToolCalls, messages)
		messages = append(messages, toolMessages...)

		results := make([]ToolResultSummary, len(toolMessages))
		for i, tm := range toolMessages {
			results[i] = ToolResultSummary{
				Tool:    tm.Name,
				Content: truncateForEvent(tm.Content, toolResultEventLimit),
			}
		}
		if !emit(ToolResults(results, r.now())) {
			return
		}
	}

	if iteration >= r.maxIterations {
		// Deliberately permissive: stream a final answer against the
		// accumulated context without forcing tools off.
		slog.Warn("Tool iteration ceiling reached", "max_iterations", r.maxIterations)
	}

	r.streamFinal(ctx, messages, toolDefs, opts, emit)
}

// streamFinal makes the incremental model call, routes the units
// through the reasoning/answer splitter, extracts references and
// persists the assistant message.
func (r *Runtime) streamFinal(ctx context.Context, messages []chat.Message, toolDefs []tools.Tool, opts RunOptions, emit func(Event) bool) {
	stream, err := r.provider.CreateChatCompletionStream(ctx, messages, toolDefs)
	if err != nil {
		slog.Error("Model stream failed", "error", err)
		emit(Error(err.Error(), r.now()))
		return
	}
	defer stream.Close()

	sp := &splitter{emit: emit, now: r.now}
	reasoningCapable := r.provider.Capabilities().SupportsReasoningChannel

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("Receiving from model stream failed", "error", err)
			emit(Error(err.Error(), r.now()))
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if !reasoningCapable {
			delta.ReasoningContent = ""
		}
		if !sp.feed(delta) {
			return
		}
		full.WriteString(delta.Content)
	}

	if !sp.finish() {
		return
	}

	fullContent := full.String()
	refs := reference.Extract(fullContent, opts.Chunks)

	if opts.SessionID != "" && r.store != nil {
		msg := session.Message{
			Role:       string(chat.MessageRoleAssistant),
			Content:    fullContent,
			References: refs,
			CreatedAt:  r.now(),
		}
		if err := r.store.AppendMessage(ctx, opts.SessionID, msg); err != nil {
			// Non-fatal: the in-flight response still completes.
			slog.Error("Persisting assistant message failed", "session_id", opts.SessionID, "error", err)
		}
	}

	emit(MessageComplete(fullContent, refs, r.now()))
}

// injectChunks appends the numbered document chunks to the system
// message so the model can cite them by position.
func injectChunks(messages []chat.Message, chunks []reference.Chunk) []chat.Message {
	if len(chunks) == 0 || len(messages) == 0 || messages[0].Role != chat.MessageRoleSystem {
		return messages
	}

	var sb strings.Builder
	sb.WriteString("\n\n=== Reference documents ===\n")
	for i, chunk := range chunks {
		content := chunk.Content
		if runes := []rune(content); len(runes) > chunkContextLimit {
			content = string(runes[:chunkContextLimit])
		}
		sourceInfo := chunk.Metadata.SourceInfo
		if sourceInfo == "" {
			sourceInfo = fmt.Sprintf("Document chunk %d", i+1)
		}
		fmt.Fprintf(&sb, "\n[%d] %s\nSource: %s\n", i+1, content, sourceInfo)
	}

	messages[0].Content += sb.String()
	return messages
}
