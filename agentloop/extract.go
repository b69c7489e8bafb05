package agentloop

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

// ExtractToolCalls returns the tool calls in a model response. Structured
// calls, when present, are authoritative and returned in order. Otherwise the
// text is checked for a call written as the final JSON object
// {"name": ..., "args": {...}}. Anything that does not parse yields no calls;
// the failure is logged, never returned.
func ExtractToolCalls(out *ModelOutput) []ToolCall {
	if out == nil {
		return nil
	}
	if len(out.StructuredCalls) > 0 {
		return fromStructured(out.StructuredCalls)
	}
	if call, ok := extractTrailingCall(out.Text); ok {
		return []ToolCall{call}
	}
	return nil
}

func fromStructured(calls []StructuredCall) []ToolCall {
	result := make([]ToolCall, 0, len(calls))
	for _, sc := range calls {
		args, err := ParseArguments(sc.Arguments)
		if err != nil {
			log.Warn().Err(err).Str("tool", sc.Name).Msg("structured tool call has malformed arguments")
			args = NewArguments()
		}
		result = append(result, ToolCall{
			Name:      sc.Name,
			Arguments: args,
			ID:        sc.ID,
			Kind:      sc.Type,
		})
	}
	return result
}

func extractTrailingCall(text string) (ToolCall, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ToolCall{}, false
	}

	switch trimmed[len(trimmed)-1] {
	case '}':
	case '>':
		if tag, ok := trailingXMLTag(trimmed); ok {
			log.Warn().Str("tag", tag).Msg("xml tool calls are not decoded, treating turn as text")
		}
		return ToolCall{}, false
	default:
		return ToolCall{}, false
	}

	start, ok := trailingObjectStart(trimmed)
	if !ok {
		log.Warn().Str("tail", tailForLog(trimmed)).Msg("unbalanced trailing JSON in model output")
		return ToolCall{}, false
	}
	candidate := trimmed[start:]
	if !json.Valid([]byte(candidate)) {
		log.Warn().Str("json", tailForLog(candidate)).Msg("malformed trailing JSON in model output")
		return ToolCall{}, false
	}

	var call ToolCall
	if err := json.Unmarshal([]byte(candidate), &call); err != nil {
		log.Warn().Err(err).Str("json", tailForLog(candidate)).Msg("trailing JSON is not a tool call")
		return ToolCall{}, false
	}
	call.Inline = true
	return call, true
}

// trailingObjectStart finds the '{' that opens the object closed by the last
// byte of s. It scans backwards once, tracking string literals and brace
// depth, so its cost is linear in the length of the object.
func trailingObjectStart(s string) (int, bool) {
	depth := 0
	inString := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == '"' && !escaped(s, i) {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// escaped reports whether the byte at i is preceded by an odd number of
// backslashes.
func escaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// trailingXMLTag recognises a closing tag such as </tool_call> or a
// self-closing <tool_call .../> at the end of s.
func trailingXMLTag(s string) (string, bool) {
	open := strings.LastIndexByte(s, '<')
	if open < 0 {
		return "", false
	}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	inner = strings.TrimPrefix(inner, "/")
	inner = strings.TrimSuffix(inner, "/")
	name, _, _ := strings.Cut(inner, " ")
	if name == "" {
		return "", false
	}
	for _, r := range name {
		if !(r == '_' || r == '-' || r == ':' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "", false
		}
	}
	return name, true
}

func tailForLog(s string) string {
	const n = 120
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
