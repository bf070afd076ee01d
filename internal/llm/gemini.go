package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiProvider generates structured output via the Gemini API. It is the
// primary provider and the only one supporting tool-call rounds.
type GeminiProvider struct {
	config *common.GeminiConfig
	logger arbor.ILogger
	client *genai.Client
	retry  *RetryConfig
}

// NewGeminiProvider initializes the genai client. The API key is required;
// model defaults to gemini-2.5-flash when unset.
func NewGeminiProvider(config *common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or gemini.api_key in config)")
	}

	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Debug().
		Str("model", config.Model).
		Float32("temperature", config.Temperature).
		Msg("Gemini provider initialized")

	return &GeminiProvider{
		config: config,
		logger: logger,
		client: client,
		retry:  NewDefaultRetryConfig(),
	}, nil
}

// convertMessagesToGemini converts messages to Gemini Content format, mapping
// roles and extracting the first system message for SystemInstruction.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		geminiRole := genai.RoleUser
		if msg.Role == "assistant" {
			geminiRole = genai.RoleModel
		}

		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	return contents, systemText, nil
}

// GenerateContent produces a single completion with rate-limit-aware retry.
func (p *GeminiProvider) GenerateContent(ctx context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	contents, systemText, err := convertMessagesToGemini(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if req.System != "" {
		systemText = req.System
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.config.Temperature
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}
	if req.OutputSchema != nil {
		config.ResponseMIMEType = "application/json"
	}

	var lastErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.retry.CalculateBackoff(attempt-1, ExtractRetryDelay(lastErr))
			p.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Gemini rate limited, backing off")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			lastErr = err
			if IsRateLimitError(err) && attempt < p.retry.MaxRetries {
				continue
			}
			return nil, fmt.Errorf("gemini generation failed: %w", err)
		}

		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("gemini returned empty response")
		}
		return &interfaces.GenerateResponse{Text: text, Model: model}, nil
	}

	return nil, fmt.Errorf("gemini generation failed after %d retries: %w", p.retry.MaxRetries, lastErr)
}

// toolUseRegex matches a fenced JSON block carrying a tool_use object.
var toolUseRegex = regexp.MustCompile("(?s)```json\\s*(\\{.*?\"tool_use\".*?\\})\\s*```")

// parseToolCall extracts a tool call from a model response. Returns nil when
// the response carries no tool call and should be treated as the final answer.
func parseToolCall(response string) *interfaces.ToolCall {
	matches := toolUseRegex.FindStringSubmatch(response)
	if len(matches) < 2 {
		return nil
	}

	var wrapper struct {
		ToolUse interfaces.ToolCall `json:"tool_use"`
	}
	if err := json.Unmarshal([]byte(matches[1]), &wrapper); err != nil {
		return nil
	}
	if wrapper.ToolUse.Name == "" {
		return nil
	}
	return &wrapper.ToolUse
}

// GenerateWithTools runs the conversation loop where the model may request
// tool calls. Tool descriptions ride in the system prompt; the model requests
// a call with a fenced JSON block, and results come back as user messages.
// Returns the final text and the number of tool rounds used.
func (p *GeminiProvider) GenerateWithTools(ctx context.Context, req *interfaces.GenerateRequest, executor interfaces.ToolExecutor, maxRounds int) (*interfaces.GenerateResponse, int, error) {
	if maxRounds <= 0 {
		maxRounds = 5
	}

	messages := make([]interfaces.Message, len(req.Messages))
	copy(messages, req.Messages)

	system := req.System + "\n\n" + executor.FormatForPrompt()

	rounds := 0
	for turn := 0; turn <= maxRounds; turn++ {
		select {
		case <-ctx.Done():
			return nil, rounds, ctx.Err()
		default:
		}

		turnReq := &interfaces.GenerateRequest{
			Messages:    messages,
			Model:       req.Model,
			System:      system,
			Temperature: req.Temperature,
		}
		resp, err := p.GenerateContent(ctx, turnReq)
		if err != nil {
			return nil, rounds, fmt.Errorf("generation failed on round %d: %w", turn, err)
		}

		call := parseToolCall(resp.Text)
		if call == nil {
			return resp, rounds, nil
		}

		if rounds >= maxRounds {
			// Round budget exhausted; force a final answer.
			messages = append(messages,
				interfaces.Message{Role: "assistant", Content: resp.Text},
				interfaces.Message{Role: "user", Content: "Tool call budget exhausted. Provide your final answer now using the information already gathered."},
			)
			continue
		}

		rounds++
		p.logger.Debug().
			Str("tool", call.Name).
			Int("round", rounds).
			Msg("Model requested tool call")

		result := executor.Execute(ctx, *call)
		resultMsg := fmt.Sprintf("Tool '%s' returned:\n\n%s", call.Name, result.Content)
		if result.IsError {
			resultMsg = fmt.Sprintf("Tool '%s' error:\n\n%s", call.Name, result.Content)
		}

		messages = append(messages,
			interfaces.Message{Role: "assistant", Content: resp.Text},
			interfaces.Message{Role: "user", Content: resultMsg},
		)
	}

	return nil, rounds, fmt.Errorf("model did not produce a final answer within %d tool rounds", maxRounds)
}

// Close releases the client reference. The genai client needs no explicit
// cleanup beyond this.
func (p *GeminiProvider) Close() error {
	p.client = nil
	return nil
}
