package agentloop

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Arguments maps parameter names to values, preserving the order in which
// the model wrote them.
type Arguments = orderedmap.OrderedMap[string, any]

// NewArguments builds an argument map from alternating key/value pairs.
func NewArguments(kv ...any) *Arguments {
	args := orderedmap.New[string, any]()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		args.Set(key, kv[i+1])
	}
	return args
}

// ParseArguments decodes a JSON object, or a JSON string holding one, into
// an ordered argument map. Empty input yields an empty map.
func ParseArguments(raw json.RawMessage) (*Arguments, error) {
	raw = bytes.TrimSpace(raw)
	args := orderedmap.New[string, any]()
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return args, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, errors.Wrap(err, "invalid tool arguments")
		}
		return ParseArguments(json.RawMessage(inner))
	}
	if raw[0] != '{' {
		return nil, errors.Errorf("invalid tool arguments: expected object, got %s", truncateForLog(string(raw), 40))
	}
	if err := json.Unmarshal(raw, args); err != nil {
		return nil, errors.Wrap(err, "invalid tool arguments")
	}
	return args, nil
}

// ToolCall is a single normalized request to run a tool, however the model
// expressed it.
type ToolCall struct {
	Name      string
	Arguments *Arguments
	ID        string
	Kind      string
	// Inline is set when the call was parsed from the end of the model's
	// text, which therefore already contains it.
	Inline bool
}

type toolCallWire struct {
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type,omitempty"`
}

// MarshalJSON renders the call in the inline wire shape
// {"name": ..., "args": {...}}.
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	args := tc.Arguments
	if args == nil {
		args = orderedmap.New[string, any]()
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "encoding tool arguments")
	}
	return json.Marshal(toolCallWire{
		Name: tc.Name,
		Args: encoded,
		ID:   tc.ID,
		Type: tc.Kind,
	})
}

// UnmarshalJSON accepts both "args" and "arguments" for the argument object.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var w toolCallWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return errors.New("tool call has no name")
	}
	raw := w.Args
	if len(raw) == 0 {
		raw = w.Arguments
	}
	args, err := ParseArguments(raw)
	if err != nil {
		return err
	}
	*tc = ToolCall{Name: w.Name, Arguments: args, ID: w.ID, Kind: w.Type}
	return nil
}

// MarshalYAML renders the call as its JSON text.
func (tc ToolCall) MarshalYAML() (interface{}, error) {
	return tc.Raw(), nil
}

// Raw returns the JSON rendering used in the transcript.
func (tc ToolCall) Raw() string {
	b, err := json.Marshal(tc)
	if err != nil {
		return tc.Name
	}
	return string(b)
}

// Get returns the named argument.
func (tc ToolCall) Get(name string) (any, bool) {
	if tc.Arguments == nil {
		return nil, false
	}
	return tc.Arguments.Get(name)
}

// GetStringArg extracts a string argument.
func GetStringArg(args *Arguments, key string) (string, bool) {
	if args == nil {
		return "", false
	}
	v, ok := args.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument. Non-integral and out of range
// numbers are rejected.
func GetIntArg(args *Arguments, key string) (int, bool) {
	if args == nil {
		return 0, false
	}
	v, ok := args.Get(key)
	if !ok {
		return 0, false
	}
	if _, isString := v.(string); isString {
		return 0, false
	}
	n, err := toInt(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetStringSliceArg extracts an array-of-strings argument.
func GetStringSliceArg(args *Arguments, key string) ([]string, bool) {
	if args == nil {
		return nil, false
	}
	v, ok := args.Get(key)
	if !ok {
		return nil, false
	}
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
