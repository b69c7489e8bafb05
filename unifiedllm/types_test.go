package unifiedllm

import (
	"encoding/json"
	"testing"

	"github.com/invopop/jsonschema"
)

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		role Role
		text string
	}{
		{"SystemMessage", SystemMessage("You are helpful."), RoleSystem, "You are helpful."},
		{"UserMessage", UserMessage("Hello"), RoleUser, "Hello"},
		{"AssistantMessage", AssistantMessage("Hi there"), RoleAssistant, "Hi there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.Role != tt.role {
				t.Errorf("expected role %q, got %q", tt.role, tt.msg.Role)
			}
			if tt.msg.TextContent() != tt.text {
				t.Errorf("expected text %q, got %q", tt.text, tt.msg.TextContent())
			}
		})
	}
}

func TestToolCallPart(t *testing.T) {
	args := json.RawMessage(`{"path": "a.txt"}`)
	part := ToolCallPart("call_1", "read_file", args)
	if part.Kind != ContentToolCall {
		t.Errorf("expected kind %q, got %q", ContentToolCall, part.Kind)
	}
	if part.ToolCall.Name != "read_file" {
		t.Errorf("expected name %q, got %q", "read_file", part.ToolCall.Name)
	}
	if part.ToolCall.Type != "function" {
		t.Errorf("expected type function, got %q", part.ToolCall.Type)
	}
}

func TestMessageTextContentSkipsToolCalls(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			TextPart("Hello "),
			ToolCallPart("call_1", "finish", json.RawMessage(`{}`)),
			TextPart("world"),
		},
	}
	if text := msg.TextContent(); text != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", text)
	}
}

func TestResponseToolCalls(t *testing.T) {
	resp := Response{
		Message: Message{
			Role: RoleAssistant,
			Content: []ContentPart{
				TextPart("Running two tools."),
				ToolCallPart("c1", "read_file", json.RawMessage(`{"path":"a"}`)),
				ToolCallPart("c2", "read_file", json.RawMessage(`{"path":"b"}`)),
			},
		},
	}
	calls := resp.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].ID != "c1" || calls[1].ID != "c2" {
		t.Errorf("tool calls out of order: %+v", calls)
	}
	if resp.Text() != "Running two tools." {
		t.Errorf("unexpected text %q", resp.Text())
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}
	b := Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}
	sum := a.Add(b)
	if sum.InputTokens != 13 || sum.OutputTokens != 7 || sum.TotalTokens != 20 {
		t.Errorf("unexpected sum %+v", sum)
	}
}

func TestToolDefinitionParametersMap(t *testing.T) {
	props := jsonschema.NewProperties()
	props.Set("path", &jsonschema.Schema{Type: "string"})
	def := ToolDefinition{
		Name:       "read_file",
		Parameters: &jsonschema.Schema{Type: "object", Properties: props, Required: []string{"path"}},
	}

	m := def.ParametersMap()
	if m["type"] != "object" {
		t.Errorf("expected object schema, got %v", m["type"])
	}
	properties, ok := m["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected properties map, got %T", m["properties"])
	}
	if _, ok := properties["path"]; !ok {
		t.Error("expected path property")
	}

	empty := ToolDefinition{Name: "noop"}.ParametersMap()
	if empty["type"] != "object" {
		t.Errorf("expected default object schema, got %v", empty)
	}
}
