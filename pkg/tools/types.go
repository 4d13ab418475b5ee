package tools

// ToolCall is a single tool invocation requested by the model. The ID
// is an opaque correlation token, unique within one model response.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCallResult is the output of executing one tool call.
type ToolCallResult struct {
	Output string `json:"output"`
}

// OpenAI-like tool types

type ToolType string

const ToolTypeFunction ToolType = "function"

type Tool struct {
	Type     ToolType            `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"`
}
