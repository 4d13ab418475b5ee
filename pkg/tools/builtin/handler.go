package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ragdesk/ragdesk/pkg/tools"
)

// NewHandler wraps a typed-argument function as a tools.Handler.
func NewHandler[T any](fn func(ctx context.Context, params T) (*tools.ToolCallResult, error)) tools.Handler {
	return func(ctx context.Context, toolCall tools.ToolCall) (*tools.ToolCallResult, error) {
		var params T
		if args := toolCall.Function.Arguments; args != "" {
			if err := json.Unmarshal([]byte(args), &params); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		return fn(ctx, params)
	}
}
