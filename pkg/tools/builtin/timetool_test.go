package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/pkg/tools"
)

func TestCurrentTimeTool(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
	reg := tools.NewRegistry()
	NewTimeToolSet(func() time.Time { return now }).Register(reg)

	registration, ok := reg.Lookup("get_current_time")
	require.True(t, ok)
	assert.False(t, registration.Reviewable)

	result, err := registration.Handler(context.Background(), tools.ToolCall{
		ID:       "c1",
		Type:     tools.ToolTypeFunction,
		Function: tools.FunctionCall{Name: "get_current_time"},
	})
	require.NoError(t, err)

	assert.Contains(t, result.Output, "📅 Date: 2026-08-31 (Monday)")
	assert.Contains(t, result.Output, "🕐 Time: 14:30:00 UTC")
	assert.Contains(t, result.Output, "Use 2026-08-31 as the reference date")
}
