package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode chooses which part of an oversized observation survives.
type TruncationMode string

const (
	// TruncateHeadTail keeps the start and the end.
	TruncateHeadTail TruncationMode = "head_tail"
	// TruncateTail keeps the end.
	TruncateTail TruncationMode = "tail"
)

// DefaultObservationChars applies to tools without their own rule.
const DefaultObservationChars = 30000

// TruncationRule bounds what one tool's observation may add to the
// transcript. Lines is applied after Chars; zero means no line limit.
type TruncationRule struct {
	Chars int
	Mode  TruncationMode
	Lines int
}

// DefaultTruncationRules holds the rules for the core tools. File contents
// keep both ends; diffs keep the end where the latest hunks are.
var DefaultTruncationRules = map[string]TruncationRule{
	ToolReadFile:    {Chars: 50000, Mode: TruncateHeadTail},
	ToolBash:        {Chars: 30000, Mode: TruncateHeadTail, Lines: 256},
	ToolWriteFile:   {Chars: 10000, Mode: TruncateTail},
	ToolEditFile:    {Chars: 10000, Mode: TruncateTail},
	ToolAddLines:    {Chars: 10000, Mode: TruncateTail},
	ToolRemoveLines: {Chars: 10000, Mode: TruncateTail},
}

func truncationRule(toolName string) TruncationRule {
	if rule, ok := DefaultTruncationRules[toolName]; ok {
		return rule
	}
	return TruncationRule{Chars: DefaultObservationChars, Mode: TruncateHeadTail}
}

// TruncateOutput cuts output down to about maxChars bytes plus a notice
// saying how much was removed. Cuts fall on rune boundaries, so the kept
// part may be a few bytes shorter than maxChars.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	if mode == TruncateTail {
		start := runeStartAtOrAfter(output, len(output)-maxChars)
		notice := fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed. "+
			"The full output is available in the event stream.]\n\n", start)
		return notice + output[start:]
	}

	head := runeStartAtOrBefore(output, maxChars/2)
	tail := runeStartAtOrAfter(output, len(output)-(maxChars-maxChars/2))
	notice := fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
		"The full output is available in the event stream. "+
		"If you need to see specific parts, re-run the tool with more targeted parameters.]\n\n", tail-head)
	return output[:head] + notice + output[tail:]
}

// runeStartAtOrBefore moves i back to the start of the rune containing it.
func runeStartAtOrBefore(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeStartAtOrAfter moves i forward to the start of the next whole rune.
func runeStartAtOrAfter(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// TruncateLines keeps the first and last lines of output, maxLines in total.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	head := maxLines / 2
	tail := len(lines) - (maxLines - head)
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", tail-head) +
		strings.Join(lines[tail:], "\n")
}

// TruncateToolOutput applies toolName's rule to a rendered observation. A
// positive maxChars replaces the rule's character limit.
func TruncateToolOutput(output string, toolName string, maxChars int) string {
	rule := truncationRule(toolName)
	if maxChars > 0 {
		rule.Chars = maxChars
	}
	return TruncateLines(TruncateOutput(output, rule.Chars, rule.Mode), rule.Lines)
}
