package domain

import "time"

type AgentLimits struct {
	MaxIterations int           `json:"max_iterations"`
	Timeout       time.Duration `json:"timeout"`
	ToolTimeout   time.Duration `json:"tool_timeout"`
}

// AgentStep is one model decision: either a tool invocation or a final answer.
type AgentStep struct {
	Type   string         `json:"type"`
	Tool   string         `json:"tool,omitempty"`
	Answer string         `json:"answer,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
}

// ToolInvocation is one entry of the agent's tool trace.
type ToolInvocation struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Output string `json:"output"`
	Status string `json:"status"`
}

type AgentRunResult struct {
	Answer     string           `json:"answer"`
	Iterations int              `json:"iterations"`
	Trace      []ToolInvocation `json:"trace,omitempty"`
}

// ToolDefinition is a fixed natural-language tool contract handed to the
// agent verbatim; the model selects tools by name based on it.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ChatExchange struct {
	User  string `json:"user"`
	Agent string `json:"agent"`
}
