package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/ragdesk/ragdesk/pkg/tools"
)

// TimeToolSet registers get_current_time. The clock is injected so
// tests can pin the date.
type TimeToolSet struct {
	now func() time.Time
}

func NewTimeToolSet(now func() time.Time) *TimeToolSet {
	if now == nil {
		now = time.Now
	}
	return &TimeToolSet{now: now}
}

func (t *TimeToolSet) Register(reg *tools.Registry) {
	reg.Register(tools.Registration{
		Tool: tools.Tool{
			Type: tools.ToolTypeFunction,
			Function: &tools.FunctionDefinition{
				Name:        "get_current_time",
				Description: "Get the current date and time. Call this first when a question depends on today's date, such as anything involving 'latest', 'recent' or 'today'.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
		Handler: NewHandler(t.currentTime),
	})
}

type timeParams struct{}

func (t *TimeToolSet) currentTime(ctx context.Context, _ timeParams) (*tools.ToolCallResult, error) {
	now := t.now()
	output := fmt.Sprintf(
		"📅 Date: %s (%s)\n📆 Week %d of %d\n🕐 Time: %s\n\nUse %s as the reference date when searching for recent information.",
		now.Format("2006-01-02"),
		now.Weekday(),
		isoWeek(now),
		now.Year(),
		now.Format("15:04:05 MST"),
		now.Format("2006-01-02"),
	)
	return &tools.ToolCallResult{Output: output}, nil
}

func isoWeek(t time.Time) int {
	_, week := t.ISOWeek()
	return week
}
