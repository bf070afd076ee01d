package interfaces

import "context"

// Message is one turn of an LLM conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// GenerateRequest is a provider-agnostic content generation request.
type GenerateRequest struct {
	Messages    []Message
	Model       string
	System      string
	Temperature float32
	// OutputSchema constrains providers that support schema-enforced JSON.
	OutputSchema map[string]interface{}
}

// GenerateResponse is a provider-agnostic content generation response.
type GenerateResponse struct {
	Text  string
	Model string
}

// Generator produces structured text output from a conversation.
type Generator interface {
	GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// ToolResult is the structured outcome of one tool invocation. Errors are
// carried in-band so the model can recover; they never abort the pipeline.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolExecutor dispatches tool calls against a closed allow-list.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall) ToolResult
	// FormatForPrompt renders the allow-list as a prompt section.
	FormatForPrompt() string
}

// ToolingGenerator additionally supports bounded tool-call rounds. Providers
// without this capability implement Generator only.
type ToolingGenerator interface {
	Generator
	// GenerateWithTools runs a conversation loop where the model may request
	// tool calls, bounded by maxRounds. Returns the final text and the number
	// of tool rounds used.
	GenerateWithTools(ctx context.Context, req *GenerateRequest, executor ToolExecutor, maxRounds int) (*GenerateResponse, int, error)
}
