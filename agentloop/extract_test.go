package agentloop

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raws(calls []ToolCall) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Raw()
	}
	return out
}

func TestExtractStructuredCallsWin(t *testing.T) {
	out := &ModelOutput{
		Text: `ignored {"name": "read_file", "args": {"path": "text.txt"}}`,
		StructuredCalls: []StructuredCall{
			{ID: "call_1", Name: "execute_bash_command_tmux", Type: "function", Arguments: json.RawMessage(`{"command":"ls"}`)},
			{ID: "call_2", Name: "read_file", Arguments: json.RawMessage(`"{\"path\":\"a.txt\"}"`)},
		},
	}

	calls := ExtractToolCalls(out)
	require.Len(t, calls, 2)

	assert.Equal(t, "execute_bash_command_tmux", calls[0].Name)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "function", calls[0].Kind)
	cmd, ok := GetStringArg(calls[0].Arguments, "command")
	require.True(t, ok)
	assert.Equal(t, "ls", cmd)

	path, ok := GetStringArg(calls[1].Arguments, "path")
	require.True(t, ok)
	assert.Equal(t, "a.txt", path)
}

func TestExtractStructuredMalformedArguments(t *testing.T) {
	out := &ModelOutput{StructuredCalls: []StructuredCall{
		{Name: "finish", Arguments: json.RawMessage(`[1, 2]`)},
	}}

	calls := ExtractToolCalls(out)
	require.Len(t, calls, 1)
	assert.Equal(t, "finish", calls[0].Name)
	assert.Equal(t, 0, calls[0].Arguments.Len())
}

func TestExtractTrailingJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "plain",
			text: "I'll list the files.\n{\"name\": \"execute_bash_command_tmux\", \"args\": {\"command\": \"ls -la\"}}",
			want: `{"name":"execute_bash_command_tmux","args":{"command":"ls -la"}}`,
		},
		{
			name: "trailing whitespace",
			text: "ok {\"name\":\"read_file\",\"args\":{\"path\":\"a.txt\"}}  \n\t",
			want: `{"name":"read_file","args":{"path":"a.txt"}}`,
		},
		{
			name: "braces and escaped quotes inside strings",
			text: `Writing. {"name":"write_file","args":{"path":"a.go","content":"func main() { fmt.Println(\"}\") }"}}`,
			want: `{"name":"write_file","args":{"path":"a.go","content":"func main() { fmt.Println(\"}\") }"}}`,
		},
		{
			name: "escaped backslash before closing quote",
			text: `{"name":"write_file","args":{"path":"dir\\","content":"x"}}`,
			want: `{"name":"write_file","args":{"path":"dir\\","content":"x"}}`,
		},
		{
			name: "earlier json in text is ignored",
			text: `Previously {"name":"read_file","args":{"path":"old"}} now {"name":"read_file","args":{"path":"new"}}`,
			want: `{"name":"read_file","args":{"path":"new"}}`,
		},
		{
			name: "argument order is preserved",
			text: `{"name":"add_lines","args":{"position":3,"path":"a.txt","lines":["x"]}}`,
			want: `{"name":"add_lines","args":{"position":3,"path":"a.txt","lines":["x"]}}`,
		},
		{
			name: "arguments alias with id",
			text: `{"name":"finish","arguments":{"message":"done","task_completed":"true"},"id":"c1"}`,
			want: `{"name":"finish","args":{"message":"done","task_completed":"true"},"id":"c1"}`,
		},
		{
			name: "missing args",
			text: `{"name":"finish"}`,
			want: `{"name":"finish","args":{}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := ExtractToolCalls(&ModelOutput{Text: tt.text})
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].Raw())
		})
	}
}

func TestExtractNoCall(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t "},
		{"plain text", "I am thinking about the problem."},
		{"json mid text", `{"name":"read_file","args":{"path":"x"}} and then more words`},
		{"malformed json", `Here {"name": "read_file", "args": {"path": "x"},}`},
		{"unbalanced", `oops "name": "x"}}`},
		{"not a call", `{"foo": 1, "bar": [1, 2]}`},
		{"empty name", `{"name": "", "args": {}}`},
		{"xml tag", `<tool_call>{"name":"read_file","args":{"path":"x"}}</tool_call>`},
		{"self closing xml", `<finish message="done" task_completed="true"/>`},
		{"quote inside unterminated string", `{"name":"read_file","args":{"path":"x}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, ExtractToolCalls(&ModelOutput{Text: tt.text}))
		})
	}
}

func TestExtractNilOutput(t *testing.T) {
	assert.Nil(t, ExtractToolCalls(nil))
}

func TestExtractIsIdempotent(t *testing.T) {
	inputs := []*ModelOutput{
		{Text: `text {"name":"read_file","args":{"path":"a.txt","n":1}}`},
		{Text: `not a call`},
		{StructuredCalls: []StructuredCall{{Name: "finish", Arguments: json.RawMessage(`{"message":"m","task_completed":"partial"}`)}}},
	}
	for _, in := range inputs {
		first := raws(ExtractToolCalls(in))
		second := raws(ExtractToolCalls(in))
		assert.Equal(t, first, second)
	}
}

func TestExtractAdversarialInput(t *testing.T) {
	text := strings.Repeat("{", 200000) + strings.Repeat(`\"`, 1000) + "}"
	assert.Empty(t, ExtractToolCalls(&ModelOutput{Text: text}))
}

func TestTrailingXMLTag(t *testing.T) {
	tag, ok := trailingXMLTag("call <invoke name=\"x\">body</invoke>")
	require.True(t, ok)
	assert.Equal(t, "invoke", tag)

	_, ok = trailingXMLTag("a -> b > c")
	assert.False(t, ok)
}
