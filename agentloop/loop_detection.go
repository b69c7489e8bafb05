package agentloop

import (
	"crypto/sha256"
	"encoding/hex"
)

// maxLoopPeriod is the longest repeating run of calls that counts as a loop.
const maxLoopPeriod = 3

// callFingerprint identifies a call by name and argument content. Arguments
// serialise in insertion order, so the same call written the same way
// always yields the same fingerprint.
func callFingerprint(call ToolCall) string {
	args := []byte("{}")
	if call.Arguments != nil {
		if b, err := call.Arguments.MarshalJSON(); err == nil {
			args = b
		}
	}
	sum := sha256.Sum256(args)
	return call.Name + ":" + hex.EncodeToString(sum[:8])
}

// DetectLoop reports whether the last window calls consist of a block of one
// to three calls repeated at least twice.
func DetectLoop(calls []ToolCall, window int) bool {
	if window <= 0 || len(calls) < window {
		return false
	}
	prints := make([]string, window)
	for i, c := range calls[len(calls)-window:] {
		prints[i] = callFingerprint(c)
	}

	for period := 1; period <= maxLoopPeriod && period < window; period++ {
		if window%period == 0 && isPeriodic(prints, period) {
			return true
		}
	}
	return false
}

func isPeriodic(prints []string, period int) bool {
	for i := period; i < len(prints); i++ {
		if prints[i] != prints[i-period] {
			return false
		}
	}
	return true
}
