package runtime

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/pkg/chat"
	"github.com/ragdesk/ragdesk/pkg/model/provider"
	"github.com/ragdesk/ragdesk/pkg/reference"
	"github.com/ragdesk/ragdesk/pkg/session"
	"github.com/ragdesk/ragdesk/pkg/tools"
)

// fakeProvider serves scripted completions and one scripted stream.
type fakeProvider struct {
	caps        provider.Capabilities
	completions []completionStep
	stream      []chat.MessageDelta
	streamErr   error

	completionCalls int
	lastMessages    []chat.Message
	lastToolDefs    []tools.Tool
}

type completionStep struct {
	msg *chat.Message
	err error
}

func (f *fakeProvider) CreateChatCompletion(ctx context.Context, messages []chat.Message, toolDefs []tools.Tool) (*chat.Message, error) {
	// A real client fails once its request context is cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.lastMessages = messages
	f.lastToolDefs = toolDefs

	i := f.completionCalls
	f.completionCalls++
	if i >= len(f.completions) {
		return &chat.Message{Role: chat.MessageRoleAssistant}, nil
	}
	step := f.completions[i]
	return step.msg, step.err
}

func (f *fakeProvider) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &fakeStream{deltas: f.stream}, nil
}

func (f *fakeProvider) Capabilities() provider.Capabilities {
	return f.caps
}

type fakeStream struct {
	deltas []chat.MessageDelta
	pos    int
}

func (s *fakeStream) Recv() (chat.MessageStreamResponse, error) {
	if s.pos >= len(s.deltas) {
		return chat.MessageStreamResponse{}, io.EOF
	}
	delta := s.deltas[s.pos]
	s.pos++
	return chat.MessageStreamResponse{
		Choices: []chat.MessageStreamChoice{{Delta: delta}},
	}, nil
}

func (s *fakeStream) Close() {}

func toolCallMessage(calls ...tools.ToolCall) completionStep {
	return completionStep{msg: &chat.Message{
		Role:      chat.MessageRoleAssistant,
		ToolCalls: calls,
	}}
}

func plainMessage() completionStep {
	return completionStep{msg: &chat.Message{Role: chat.MessageRoleAssistant}}
}

func call(id, name, args string) tools.ToolCall {
	return tools.ToolCall{
		ID:   id,
		Type: tools.ToolTypeFunction,
		Function: tools.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	reg.Register(tools.Registration{
		Tool: tools.Tool{
			Type:     tools.ToolTypeFunction,
			Function: &tools.FunctionDefinition{Name: "echo_tool"},
		},
		Handler: func(_ context.Context, tc tools.ToolCall) (*tools.ToolCallResult, error) {
			return &tools.ToolCallResult{Output: "echo: " + tc.Function.Arguments}, nil
		},
	})
	return reg
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

func TestRunStreamToolFree(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		caps:        provider.Capabilities{SupportsTools: true},
		completions: []completionStep{plainMessage()},
		stream: []chat.MessageDelta{
			{Content: "Hello"},
			{Content: " there"},
		},
	}
	rt := New(p, echoRegistry(t))

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:    []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		EnableTools: true,
	}))

	assert.Equal(t, []string{
		"answer_start",
		"content_delta",
		"content_delta",
		"message_complete",
	}, eventTypes(events))

	complete := events[len(events)-1].(*MessageCompleteEvent)
	assert.Equal(t, "Hello there", complete.FullContent)
	assert.NotNil(t, complete.References)
	assert.Empty(t, complete.References)
}

func TestRunStreamSessionInitFirst(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		completions: []completionStep{plainMessage()},
		stream:      []chat.MessageDelta{{Content: "ok"}},
	}
	rt := New(p, tools.NewRegistry())

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:  []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		SessionID: "sess-1",
	}))

	require.NotEmpty(t, events)
	init, ok := events[0].(*SessionInitEvent)
	require.True(t, ok)
	assert.Equal(t, "sess-1", init.SessionID)
}

func TestRunStreamToolRound(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		caps: provider.Capabilities{SupportsTools: true},
		completions: []completionStep{
			toolCallMessage(call("c1", "echo_tool", `{"text":"ping"}`)),
			plainMessage(),
		},
		stream: []chat.MessageDelta{{Content: "done"}},
	}
	rt := New(p, echoRegistry(t))

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:    []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		EnableTools: true,
	}))

	assert.Equal(t, []string{
		"tool_calls",
		"tool_results",
		"answer_start",
		"content_delta",
		"message_complete",
	}, eventTypes(events))

	calls := events[0].(*ToolCallsEvent)
	require.Len(t, calls.Tools, 1)
	assert.Equal(t, "echo_tool", calls.Tools[0].Name)
	assert.Equal(t, map[string]any{"text": "ping"}, calls.Tools[0].Args)

	results := events[1].(*ToolResultsEvent)
	require.Len(t, results.Results, 1)
	assert.Equal(t, "echo_tool", results.Results[0].Tool)
	assert.Equal(t, `echo: {"text":"ping"}`, results.Results[0].Content)
}

func TestRunStreamIterationCeiling(t *testing.T) {
	t.Parallel()

	// Every round wants more tools; after the ceiling the final answer
	// still streams.
	steps := make([]completionStep, 5)
	for i := range steps {
		steps[i] = toolCallMessage(call("c", "echo_tool", "{}"))
	}
	p := &fakeProvider{
		caps:        provider.Capabilities{SupportsTools: true},
		completions: steps,
		stream:      []chat.MessageDelta{{Content: "capped"}},
	}
	rt := New(p, echoRegistry(t), WithMaxIterations(2))

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:    []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		EnableTools: true,
	}))

	types := eventTypes(events)
	assert.Equal(t, 2, countType(types, "tool_calls"))
	assert.Equal(t, "message_complete", types[len(types)-1])
	assert.Equal(t, 2, p.completionCalls)
}

func TestRunStreamUnknownToolSkipped(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		caps: provider.Capabilities{SupportsTools: true},
		completions: []completionStep{
			toolCallMessage(
				call("c1", "no_such_tool", "{}"),
				call("c2", "echo_tool", `{"n":1}`),
			),
			plainMessage(),
		},
		stream: []chat.MessageDelta{{Content: "ok"}},
	}
	rt := New(p, echoRegistry(t))

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:    []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		EnableTools: true,
	}))

	var results *ToolResultsEvent
	for _, ev := range events {
		if r, ok := ev.(*ToolResultsEvent); ok {
			results = r
		}
	}
	require.NotNil(t, results)
	require.Len(t, results.Results, 1)
	assert.Equal(t, "echo_tool", results.Results[0].Tool)
}

func TestRunStreamToolErrorCaptured(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	reg.Register(tools.Registration{
		Tool: tools.Tool{
			Type:     tools.ToolTypeFunction,
			Function: &tools.FunctionDefinition{Name: "boom"},
		},
		Handler: func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
			return nil, errors.New("kaput")
		},
	})

	p := &fakeProvider{
		caps: provider.Capabilities{SupportsTools: true},
		completions: []completionStep{
			toolCallMessage(call("c1", "boom", "{}")),
			plainMessage(),
		},
		stream: []chat.MessageDelta{{Content: "ok"}},
	}
	rt := New(p, reg)

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:    []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		EnableTools: true,
	}))

	var results *ToolResultsEvent
	for _, ev := range events {
		if r, ok := ev.(*ToolResultsEvent); ok {
			results = r
		}
	}
	require.NotNil(t, results)
	require.Len(t, results.Results, 1)
	assert.Equal(t, "Tool execution failed: kaput", results.Results[0].Content)

	// The run recovers and still completes.
	assert.Equal(t, "message_complete", eventTypes(events)[len(events)-1])
}

func TestRunStreamTruncatesToolResultEvents(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 300)
	reg := tools.NewRegistry()
	reg.Register(tools.Registration{
		Tool: tools.Tool{
			Type:     tools.ToolTypeFunction,
			Function: &tools.FunctionDefinition{Name: "long_tool"},
		},
		Handler: func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
			return &tools.ToolCallResult{Output: long}, nil
		},
	})

	p := &fakeProvider{
		caps: provider.Capabilities{SupportsTools: true},
		completions: []completionStep{
			toolCallMessage(call("c1", "long_tool", "{}")),
			plainMessage(),
		},
		stream: []chat.MessageDelta{{Content: "ok"}},
	}
	rt := New(p, reg)

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:    []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		EnableTools: true,
	}))

	var results *ToolResultsEvent
	for _, ev := range events {
		if r, ok := ev.(*ToolResultsEvent); ok {
			results = r
		}
	}
	require.NotNil(t, results)
	assert.Len(t, results.Results[0].Content, 203)
	assert.True(t, strings.HasSuffix(results.Results[0].Content, "..."))
}

func TestRunStreamModelErrorEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		completions: []completionStep{{err: errors.New("upstream down")}},
	}
	rt := New(p, tools.NewRegistry())

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages: []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
	}))

	require.Len(t, events, 1)
	errEvent, ok := events[0].(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "upstream down", errEvent.Error)
}

func TestRunStreamStreamErrorEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		completions: []completionStep{plainMessage()},
		streamErr:   errors.New("stream refused"),
	}
	rt := New(p, tools.NewRegistry())

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages: []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
	}))

	types := eventTypes(events)
	assert.Equal(t, "error", types[len(types)-1])
}

func TestRunStreamToolsGatedByCapabilities(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		caps:        provider.Capabilities{SupportsTools: false},
		completions: []completionStep{plainMessage()},
		stream:      []chat.MessageDelta{{Content: "ok"}},
	}
	rt := New(p, echoRegistry(t))

	drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:    []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		EnableTools: true,
	}))

	assert.Nil(t, p.lastToolDefs)
}

func TestRunStreamReasoningGatedByCapabilities(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		caps:        provider.Capabilities{SupportsReasoningChannel: false},
		completions: []completionStep{plainMessage()},
		stream: []chat.MessageDelta{
			{ReasoningContent: "hidden"},
			{Content: "visible"},
		},
	}
	rt := New(p, tools.NewRegistry())

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages: []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
	}))

	types := eventTypes(events)
	assert.NotContains(t, types, "thought_process_start")
	assert.NotContains(t, types, "thought_process_content")
	assert.Contains(t, types, "content_delta")
}

func TestRunStreamExtractsReferences(t *testing.T) {
	t.Parallel()

	chunks := []reference.Chunk{
		{Content: "Chunk one", Metadata: reference.ChunkMetadata{Source: "a.pdf"}},
		{Content: "Chunk two", Metadata: reference.ChunkMetadata{Source: "b.pdf"}},
	}
	p := &fakeProvider{
		completions: []completionStep{plainMessage()},
		stream:      []chat.MessageDelta{{Content: "See [2] for details."}},
	}
	rt := New(p, tools.NewRegistry())

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages: []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		Chunks:   chunks,
	}))

	complete := events[len(events)-1].(*MessageCompleteEvent)
	require.Len(t, complete.References, 1)
	assert.Equal(t, 2, complete.References[0].ID)
	assert.Equal(t, "b.pdf", complete.References[0].Source)

	// The chunks are injected into the system message for the model.
	assert.Contains(t, p.lastMessages[0].Content, "Reference documents")
	assert.Contains(t, p.lastMessages[0].Content, "[1] Chunk one")
}

func TestRunStreamPersistsAssistantMessage(t *testing.T) {
	t.Parallel()

	store := session.NewInMemoryStore()
	sess := session.New("")
	require.NoError(t, store.AddSession(context.Background(), sess))

	p := &fakeProvider{
		completions: []completionStep{plainMessage()},
		stream:      []chat.MessageDelta{{Content: "persisted answer"}},
	}
	rt := New(p, tools.NewRegistry(), WithStore(store))

	drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:  []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		SessionID: sess.ID,
	}))

	stored, err := store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, "assistant", stored.Messages[0].Role)
	assert.Equal(t, "persisted answer", stored.Messages[0].Content)
}

// failingStore wraps a working store with an AppendMessage that
// always errors.
type failingStore struct {
	session.Store
	appendErr error
}

func (s *failingStore) AppendMessage(context.Context, string, session.Message) error {
	return s.appendErr
}

func TestRunStreamPersistenceFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	store := &failingStore{
		Store:     session.NewInMemoryStore(),
		appendErr: errors.New("disk full"),
	}
	p := &fakeProvider{
		completions: []completionStep{plainMessage()},
		stream:      []chat.MessageDelta{{Content: "still delivered"}},
	}
	rt := New(p, tools.NewRegistry(), WithStore(store))

	events := drain(t, rt.RunStream(context.Background(), RunOptions{
		Messages:  []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		SessionID: "sess-1",
	}))

	// A failed append never surfaces to the client: the stream still
	// ends with exactly one message_complete carrying the answer.
	types := eventTypes(events)
	assert.Equal(t, 1, countType(types, "message_complete"))
	assert.Equal(t, 0, countType(types, "error"))

	complete := events[len(events)-1].(*MessageCompleteEvent)
	assert.Equal(t, "still delivered", complete.FullContent)
}

func TestRunStreamStopsToolRoundsAfterCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	handlerCalls := 0
	reg := tools.NewRegistry()
	reg.Register(tools.Registration{
		Tool: tools.Tool{
			Type:     tools.ToolTypeFunction,
			Function: &tools.FunctionDefinition{Name: "slow_tool"},
		},
		Handler: func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error) {
			handlerCalls++
			// The client goes away while the tool runs.
			cancel()
			return &tools.ToolCallResult{Output: "ok"}, nil
		},
	})

	steps := make([]completionStep, 10)
	for i := range steps {
		steps[i] = toolCallMessage(call("c", "slow_tool", "{}"))
	}
	p := &fakeProvider{
		caps:        provider.Capabilities{SupportsTools: true},
		completions: steps,
		stream:      []chat.MessageDelta{{Content: "never sent"}},
	}
	rt := New(p, reg, WithMaxIterations(10))

	events := drain(t, rt.RunStream(ctx, RunOptions{
		Messages:    []chat.Message{chat.SystemMessage("sys"), chat.UserMessage("hi")},
		EnableTools: true,
	}))

	// No further model rounds run once the context is gone.
	assert.Equal(t, 1, handlerCalls)
	assert.Equal(t, 1, p.completionCalls)
	assert.Equal(t, 0, countType(eventTypes(events), "message_complete"))
}

func countType(types []string, want string) int {
	n := 0
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}
