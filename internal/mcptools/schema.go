package mcptools

import (
	"encoding/json"

	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/martinemde/alita/agentloop"
)

type inputSchema struct {
	Properties *orderedmap.OrderedMap[string, propertySchema] `json:"properties"`
	Required   []string                                       `json:"required"`
}

type propertySchema struct {
	Type        json.RawMessage `json:"type"`
	Description string          `json:"description"`
	Default     any             `json:"default"`
	Enum        []any           `json:"enum"`
	Items       *struct {
		Type json.RawMessage `json:"type"`
	} `json:"items"`
}

// paramsFromSchema maps a tool's JSON input schema onto parameter specs.
// Parameters keep the order of the schema's properties. Types the registry
// cannot coerce are left undeclared so their values pass through.
func paramsFromSchema(schema any) ([]agentloop.ParamSpec, error) {
	if schema == nil {
		return nil, nil
	}
	raw, ok := schema.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(schema); err != nil {
			return nil, errors.Wrap(err, "encoding input schema")
		}
	}
	var s inputSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "decoding input schema")
	}
	if s.Properties == nil {
		return nil, nil
	}

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	params := make([]agentloop.ParamSpec, 0, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		p := agentloop.ParamSpec{
			Name:        pair.Key,
			Type:        paramType(prop.Type),
			Description: prop.Description,
			Required:    required[pair.Key],
			Default:     prop.Default,
		}
		if p.Type == agentloop.ParamArray && prop.Items != nil {
			p.Items = paramType(prop.Items.Type)
		}
		if p.Type == agentloop.ParamString {
			p.Enum = stringEnum(prop.Enum)
		}
		params = append(params, p)
	}
	return params, nil
}

// paramType reads a schema "type", which is a name or a list of names. In a
// list the first non-null name wins.
func paramType(raw json.RawMessage) agentloop.ParamType {
	if len(raw) == 0 {
		return agentloop.ParamAny
	}
	var names []string
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		names = []string{single}
	} else if err := json.Unmarshal(raw, &names); err != nil {
		return agentloop.ParamAny
	}
	for _, name := range names {
		switch t := agentloop.ParamType(name); t {
		case agentloop.ParamString, agentloop.ParamInteger, agentloop.ParamNumber,
			agentloop.ParamBoolean, agentloop.ParamArray, agentloop.ParamObject:
			return t
		case "null":
			continue
		default:
			return agentloop.ParamAny
		}
	}
	return agentloop.ParamAny
}

func stringEnum(values []any) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}
