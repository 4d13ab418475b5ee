package runtime

import (
	"encoding/json"
	"time"

	"github.com/ragdesk/ragdesk/pkg/reference"
)

// Event is one record of the client-facing stream. Exactly one
// MessageCompleteEvent or ErrorEvent terminates a stream.
type Event interface {
	isEvent()
}

// stamp is the shared timestamp field every wire event carries.
type stamp struct {
	Timestamp string `json:"timestamp"`
}

func newStamp(now time.Time) stamp {
	return stamp{Timestamp: now.Format(time.RFC3339Nano)}
}

// SessionInitEvent announces the session id, first, at most once.
type SessionInitEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	stamp
}

func SessionInit(sessionID string, now time.Time) Event {
	return &SessionInitEvent{
		Type:      "session_init",
		SessionID: sessionID,
		stamp:     newStamp(now),
	}
}

func (e *SessionInitEvent) isEvent() {}

// ToolCallSummary is one requested call in a ToolCallsEvent.
type ToolCallSummary struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

type ToolCallsEvent struct {
	Type  string            `json:"type"`
	Tools []ToolCallSummary `json:"tools"`
	stamp
}

func ToolCalls(tools []ToolCallSummary, now time.Time) Event {
	return &ToolCallsEvent{
		Type:  "tool_calls",
		Tools: tools,
		stamp: newStamp(now),
	}
}

func (e *ToolCallsEvent) isEvent() {}

// ToolResultSummary is one executed call in a ToolResultsEvent. The
// content is truncated for the event payload only; the full output
// stays in the message list.
type ToolResultSummary struct {
	Tool    string `json:"tool"`
	Content string `json:"content"`
}

type ToolResultsEvent struct {
	Type    string              `json:"type"`
	Results []ToolResultSummary `json:"results"`
	stamp
}

func ToolResults(results []ToolResultSummary, now time.Time) Event {
	return &ToolResultsEvent{
		Type:    "tool_results",
		Results: results,
		stamp:   newStamp(now),
	}
}

func (e *ToolResultsEvent) isEvent() {}

type ThoughtProcessStartEvent struct {
	Type string `json:"type"`
	stamp
}

func ThoughtProcessStart(now time.Time) Event {
	return &ThoughtProcessStartEvent{Type: "thought_process_start", stamp: newStamp(now)}
}

func (e *ThoughtProcessStartEvent) isEvent() {}

type ThoughtProcessContentEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	stamp
}

func ThoughtProcessContent(content string, now time.Time) Event {
	return &ThoughtProcessContentEvent{
		Type:    "thought_process_content",
		Content: content,
		stamp:   newStamp(now),
	}
}

func (e *ThoughtProcessContentEvent) isEvent() {}

type ThoughtProcessEndEvent struct {
	Type string `json:"type"`
	stamp
}

func ThoughtProcessEnd(now time.Time) Event {
	return &ThoughtProcessEndEvent{Type: "thought_process_end", stamp: newStamp(now)}
}

func (e *ThoughtProcessEndEvent) isEvent() {}

type AnswerStartEvent struct {
	Type string `json:"type"`
	stamp
}

func AnswerStart(now time.Time) Event {
	return &AnswerStartEvent{Type: "answer_start", stamp: newStamp(now)}
}

func (e *AnswerStartEvent) isEvent() {}

type ContentDeltaEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	stamp
}

func ContentDelta(content string, now time.Time) Event {
	return &ContentDeltaEvent{
		Type:    "content_delta",
		Content: content,
		stamp:   newStamp(now),
	}
}

func (e *ContentDeltaEvent) isEvent() {}

type MessageCompleteEvent struct {
	Type        string                `json:"type"`
	FullContent string                `json:"full_content"`
	References  []reference.Reference `json:"references"`
	stamp
}

func MessageComplete(fullContent string, refs []reference.Reference, now time.Time) Event {
	if refs == nil {
		refs = []reference.Reference{}
	}
	return &MessageCompleteEvent{
		Type:        "message_complete",
		FullContent: fullContent,
		References:  refs,
		stamp:       newStamp(now),
	}
}

func (e *MessageCompleteEvent) isEvent() {}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	stamp
}

func Error(msg string, now time.Time) Event {
	return &ErrorEvent{Type: "error", Error: msg, stamp: newStamp(now)}
}

func (e *ErrorEvent) isEvent() {}

// toolCallArgs decodes a tool call's argument JSON for the event
// payload, falling back to the raw string when it is not an object.
func toolCallArgs(arguments string) any {
	if arguments == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return arguments
	}
	return args
}
