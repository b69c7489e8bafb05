package agentloop

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TranscriptDelimiter separates the parts of a turn and consecutive turns.
const TranscriptDelimiter = "\n"

// RecordKind discriminates between transcript records.
type RecordKind string

const (
	RecordPrompt   RecordKind = "prompt"
	RecordTurn     RecordKind = "turn"
	RecordSteering RecordKind = "steering"
	RecordFinish   RecordKind = "finish"
)

// Record is one entry in the transcript. Rendered is the exact text the
// record contributed to the prompt.
type Record struct {
	Kind        RecordKind   `json:"kind" yaml:"kind"`
	Iteration   int          `json:"iteration,omitempty" yaml:"iteration,omitempty"`
	Timestamp   time.Time    `json:"timestamp" yaml:"timestamp"`
	Text        string       `json:"text,omitempty" yaml:"text,omitempty"`
	Call        *ToolCall    `json:"call,omitempty" yaml:"call,omitempty"`
	Observation *Observation `json:"observation,omitempty" yaml:"observation,omitempty"`
	Rendered    string       `json:"rendered,omitempty" yaml:"rendered,omitempty"`
}

// Transcript is the append-only conversation state sent to the model on
// every call. It starts with the initial prompt and grows by one record per
// turn.
type Transcript struct {
	mu      sync.RWMutex
	records []Record
	text    strings.Builder
}

// NewTranscript starts a transcript with the initial prompt.
func NewTranscript(prompt string) *Transcript {
	t := &Transcript{}
	t.append(Record{Kind: RecordPrompt, Text: prompt, Rendered: prompt})
	return t
}

// AppendTurn records one model turn. rendered is the observation text as it
// should appear in the prompt, which may be shorter than obs.String() when
// output was truncated. Inline calls are not repeated after the text that
// carries them.
func (t *Transcript) AppendTurn(iteration int, text string, call *ToolCall, obs *Observation, rendered string) {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(text); s != "" {
		parts = append(parts, s)
	}
	if call != nil && !call.Inline {
		parts = append(parts, call.Raw())
	}
	if obs != nil && rendered != "" {
		parts = append(parts, rendered)
	}
	t.append(Record{
		Kind:        RecordTurn,
		Iteration:   iteration,
		Text:        text,
		Call:        call,
		Observation: obs,
		Rendered:    strings.Join(parts, TranscriptDelimiter),
	})
}

// AppendSteering adds a note from the loop itself, such as a loop warning.
func (t *Transcript) AppendSteering(iteration int, note string) {
	t.append(Record{Kind: RecordSteering, Iteration: iteration, Text: note, Rendered: note})
}

// AppendFinish records the terminating call. It is kept for export only and
// adds nothing to the prompt text.
func (t *Transcript) AppendFinish(iteration int, text string, call ToolCall, obs Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, Record{
		Kind:        RecordFinish,
		Iteration:   iteration,
		Timestamp:   time.Now(),
		Text:        text,
		Call:        &call,
		Observation: &obs,
	})
}

func (t *Transcript) append(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.Timestamp = time.Now()
	t.records = append(t.records, r)
	if r.Rendered == "" {
		return
	}
	if t.text.Len() > 0 {
		t.text.WriteString(TranscriptDelimiter)
	}
	t.text.WriteString(r.Rendered)
}

// String returns the full prompt text.
func (t *Transcript) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.text.String()
}

// Len returns the length of the prompt text in bytes.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.text.Len()
}

// Records returns a copy of the records in order.
func (t *Transcript) Records() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// WriteYAML exports the records as a YAML document.
func (t *Transcript) WriteYAML(w io.Writer) error {
	doc := struct {
		Records []Record `yaml:"records"`
	}{Records: t.Records()}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encoding transcript")
	}
	return errors.Wrap(enc.Close(), "encoding transcript")
}
