package agentloop

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/martinemde/alita/unifiedllm"
)

// StructuredCall is a tool call the model API surfaced natively.
type StructuredCall struct {
	ID        string
	Name      string
	Type      string
	Arguments json.RawMessage
}

// ModelOutput is one model response: free text plus any structured calls.
type ModelOutput struct {
	Text            string
	StructuredCalls []StructuredCall
	Usage           unifiedllm.Usage
}

// LLM is the model collaborator of a session.
type LLM interface {
	Invoke(ctx context.Context, prompt string, tools []ToolSpec) (*ModelOutput, error)
}

// LLMFunc adapts a function to the LLM interface.
type LLMFunc func(ctx context.Context, prompt string, tools []ToolSpec) (*ModelOutput, error)

// Invoke calls f.
func (f LLMFunc) Invoke(ctx context.Context, prompt string, tools []ToolSpec) (*ModelOutput, error) {
	return f(ctx, prompt, tools)
}

// ClientLLM sends the transcript to a unifiedllm.Client as a single user
// message. Tool declarations are only sent to providers that return
// structured tool calls; other providers rely on the catalogue in the prompt.
type ClientLLM struct {
	Client      *unifiedllm.Client
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// NewClientLLM wraps client for the given provider and model. Empty values
// use the client's defaults.
func NewClientLLM(client *unifiedllm.Client, provider, model string) *ClientLLM {
	return &ClientLLM{Client: client, Provider: provider, Model: model}
}

// Invoke implements LLM.
func (c *ClientLLM) Invoke(ctx context.Context, prompt string, tools []ToolSpec) (*ModelOutput, error) {
	if c.Client == nil {
		return nil, errors.New("no LLM client configured")
	}
	req := unifiedllm.Request{
		Model:       c.Model,
		Provider:    c.Provider,
		Messages:    []unifiedllm.Message{unifiedllm.UserMessage(prompt)},
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
	if len(tools) > 0 && c.Client.SupportsNativeToolCalls(c.Provider) {
		req.ToolDefs = ToolDefinitions(tools)
		req.ToolChoice = &unifiedllm.ToolChoice{Mode: "auto"}
	}

	resp, err := c.Client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &ModelOutput{Text: resp.Text(), Usage: resp.Usage}
	for _, tc := range resp.ToolCalls() {
		out.StructuredCalls = append(out.StructuredCalls, StructuredCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Type:      tc.Type,
			Arguments: tc.Arguments,
		})
	}
	return out, nil
}

// ToolDefinitions converts tool specs into provider tool declarations.
func ToolDefinitions(specs []ToolSpec) []unifiedllm.ToolDefinition {
	defs := make([]unifiedllm.ToolDefinition, len(specs))
	for i, s := range specs {
		defs[i] = unifiedllm.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.JSONSchema(),
		}
	}
	return defs
}
