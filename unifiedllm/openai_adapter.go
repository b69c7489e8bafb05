package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// DeepSeekBaseURL is the OpenAI-compatible endpoint of DeepSeek.
const DeepSeekBaseURL = "https://api.deepseek.com/v1"

// OpenAIAdapter talks to OpenAI, or any OpenAI-compatible endpoint, through
// go-openai. Tool calls are returned as structured content parts.
type OpenAIAdapter struct {
	name   string
	client *openai.Client
	model  string
}

// OpenAIAdapterOption configures an OpenAIAdapter.
type OpenAIAdapterOption func(*openAIAdapterConfig)

type openAIAdapterConfig struct {
	baseURL string
	model   string
	orgID   string
}

// WithBaseURL points the adapter at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.baseURL = url
	}
}

// WithOpenAIModel sets the model used when a request names none.
func WithOpenAIModel(model string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.model = model
	}
}

// WithOrganization sets the OpenAI organization header.
func WithOrganization(orgID string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.orgID = orgID
	}
}

// NewOpenAIAdapter creates an adapter registered under name.
func NewOpenAIAdapter(name, apiKey string, opts ...OpenAIAdapterOption) *OpenAIAdapter {
	cfg := &openAIAdapterConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}
	if cfg.orgID != "" {
		clientCfg.OrgID = cfg.orgID
	}

	model := cfg.model
	if model == "" {
		model = "gpt-4o-mini"
		if name == "deepseek" {
			model = "deepseek-chat"
		}
	}

	return &OpenAIAdapter{
		name:   name,
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// SupportsNativeToolCalls is true: the chat completions API returns tool
// calls as structured data.
func (a *OpenAIAdapter) SupportsNativeToolCalls() bool {
	return true
}

// SupportsToolChoice reports whether the adapter supports a particular tool choice mode.
func (a *OpenAIAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required", "named":
		return true
	default:
		return false
	}
}

// Complete sends a chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.translateRequest(req))
	if err != nil {
		return nil, a.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(KindServer, a.name, "response contained no choices", nil)
	}
	return a.buildResponse(resp), nil
}

func (a *OpenAIAdapter) translateRequest(req Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = a.model
	}

	out := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.TextContent(),
		})
	}

	for _, def := range req.ToolDefs {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.ParametersMap(),
			},
		})
	}
	if req.ToolChoice != nil && len(out.Tools) > 0 {
		if req.ToolChoice.Mode == "named" {
			out.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: req.ToolChoice.ToolName},
			}
		} else {
			out.ToolChoice = req.ToolChoice.Mode
		}
	}

	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	return out
}

func (a *OpenAIAdapter) buildResponse(resp openai.ChatCompletionResponse) *Response {
	choice := resp.Choices[0]

	var parts []ContentPart
	if choice.Message.Content != "" {
		parts = append(parts, TextPart(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.New().String()[:8]
		}
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		parts = append(parts, ContentPart{
			Kind: ContentToolCall,
			ToolCall: &ToolCallData{
				ID:        id,
				Name:      tc.Function.Name,
				Arguments: args,
				Type:      string(tc.Type),
			},
		})
	}

	reason := string(choice.FinishReason)
	normalized := reason
	switch choice.FinishReason {
	case openai.FinishReasonStop:
		normalized = "stop"
	case openai.FinishReasonLength:
		normalized = "length"
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		normalized = "tool_calls"
	case openai.FinishReasonContentFilter:
		normalized = "content_filter"
	case "":
		normalized = "other"
	}

	return &Response{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: a.name,
		Message: Message{
			Role:    RoleAssistant,
			Content: parts,
		},
		FinishReason: FinishReason{Reason: normalized, Raw: reason},
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
}

// translateError classifies go-openai errors.
func (a *OpenAIAdapter) translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprintf("%v", apiErr.Code)
		}
		e := ErrorFromStatusCode(apiErr.HTTPStatusCode, a.name, apiErr.Message, code)
		e.Cause = err
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := ErrorFromStatusCode(reqErr.HTTPStatusCode, a.name, "request failed", "")
		e.Cause = err
		return e
	}
	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindAborted, a.name, "request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, a.name, "request timed out", err)
	default:
		return newError(KindNetwork, a.name, "openai request failed", err)
	}
}
