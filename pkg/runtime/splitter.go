package runtime

import (
	"time"

	"github.com/ragdesk/ragdesk/pkg/chat"
)

type splitterState int

const (
	splitterNotStarted splitterState = iota
	splitterReasoning
	splitterAnswering
)

// splitter routes incremental model output into the reasoning and
// answer channels and emits the boundary events between them.
type splitter struct {
	state splitterState
	emit  func(Event) bool
	now   func() time.Time
}

// feed classifies one incremental unit. It returns false when the
// consumer has gone away and the run should abort.
func (s *splitter) feed(delta chat.MessageDelta) bool {
	if delta.ReasoningContent != "" {
		if s.state == splitterNotStarted {
			s.state = splitterReasoning
			if !s.emit(ThoughtProcessStart(s.now())) {
				return false
			}
		}
		if s.state == splitterReasoning {
			if !s.emit(ThoughtProcessContent(delta.ReasoningContent, s.now())) {
				return false
			}
		}
	}

	if delta.Content != "" {
		if s.state == splitterReasoning {
			if !s.emit(ThoughtProcessEnd(s.now())) {
				return false
			}
		}
		if s.state != splitterAnswering {
			s.state = splitterAnswering
			if !s.emit(AnswerStart(s.now())) {
				return false
			}
		}
		if !s.emit(ContentDelta(delta.Content, s.now())) {
			return false
		}
	}

	return true
}

// finish closes the reasoning channel if the stream ended without an
// answer ever starting. Must run before message_complete.
func (s *splitter) finish() bool {
	if s.state == splitterReasoning {
		s.state = splitterAnswering
		return s.emit(ThoughtProcessEnd(s.now()))
	}
	return true
}
