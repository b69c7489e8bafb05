package agentloop

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"
)

// ObservationKind discriminates between observation payloads.
type ObservationKind string

const (
	ObservationRead    ObservationKind = "read"
	ObservationWrite   ObservationKind = "write"
	ObservationEdit    ObservationKind = "edit"
	ObservationCommand ObservationKind = "command"
	ObservationFinish  ObservationKind = "finish"
	ObservationText    ObservationKind = "text"
	ObservationFailure ObservationKind = "failure"
)

// CompletionStatus is the task_completed flag carried by a finish call.
type CompletionStatus string

const (
	CompletionTrue    CompletionStatus = "true"
	CompletionFalse   CompletionStatus = "false"
	CompletionPartial CompletionStatus = "partial"
)

// ParseCompletionStatus accepts "true", "false" or "partial" in any case.
func ParseCompletionStatus(s string) (CompletionStatus, error) {
	switch CompletionStatus(strings.ToLower(strings.TrimSpace(s))) {
	case CompletionTrue:
		return CompletionTrue, nil
	case CompletionFalse:
		return CompletionFalse, nil
	case CompletionPartial:
		return CompletionPartial, nil
	}
	return "", errors.Errorf("invalid task_completed value %q (want true, false or partial)", s)
}

// Observation is the result of one tool invocation. Exactly one payload
// pointer matching Kind is set; text observations carry none.
type Observation struct {
	Kind    ObservationKind `json:"kind" yaml:"kind"`
	Content string          `json:"content" yaml:"content"`

	Read    *ReadResult    `json:"read,omitempty" yaml:"read,omitempty"`
	File    *FileResult    `json:"file,omitempty" yaml:"file,omitempty"`
	Command *CommandResult `json:"command,omitempty" yaml:"command,omitempty"`
	Finish  *FinishResult  `json:"finish,omitempty" yaml:"finish,omitempty"`
	Failure *FailureResult `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// ReadResult describes a file read.
type ReadResult struct {
	Path string `json:"path" yaml:"path"`
}

// FileResult describes a write or an edit.
type FileResult struct {
	Path            string  `json:"path" yaml:"path"`
	PreviousExisted bool    `json:"previous_existed" yaml:"previous_existed"`
	OldContent      *string `json:"old_content,omitempty" yaml:"old_content,omitempty"`
	NewContent      string  `json:"new_content" yaml:"new_content"`
	Diff            string  `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// CommandResult describes a shell command run.
type CommandResult struct {
	Command  string  `json:"command" yaml:"command"`
	ExitCode *int    `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Error    *string `json:"error,omitempty" yaml:"error,omitempty"`
}

// FinishResult carries the completion status of a finished task.
type FinishResult struct {
	Status CompletionStatus `json:"status" yaml:"status"`
}

// FailureResult describes a call that could not be resolved or executed.
type FailureResult struct {
	Tool    string `json:"tool,omitempty" yaml:"tool,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// NewReadObservation reports a successful read of path.
func NewReadObservation(path, content string) Observation {
	return Observation{
		Kind:    ObservationRead,
		Content: content,
		Read:    &ReadResult{Path: path},
	}
}

// NewWriteObservation reports a full-file write. oldContent is nil when the
// file did not exist before.
func NewWriteObservation(path string, oldContent *string, newContent string) Observation {
	return Observation{
		Kind:    ObservationWrite,
		Content: newContent,
		File:    newFileResult(path, oldContent, newContent),
	}
}

// NewEditObservation reports an in-place modification. The rendered content
// is the unified diff when one can be computed.
func NewEditObservation(path string, oldContent *string, newContent string) Observation {
	fr := newFileResult(path, oldContent, newContent)
	content := fr.Diff
	if content == "" {
		content = newContent
	}
	return Observation{
		Kind:    ObservationEdit,
		Content: content,
		File:    fr,
	}
}

func newFileResult(path string, oldContent *string, newContent string) *FileResult {
	fr := &FileResult{
		Path:            path,
		PreviousExisted: oldContent != nil,
		OldContent:      oldContent,
		NewContent:      newContent,
	}
	old := ""
	if oldContent != nil {
		old = *oldContent
	}
	if old != newContent {
		fr.Diff = udiff.Unified("a/"+path, "b/"+path, old, newContent)
	}
	return fr
}

// NewCommandObservation reports a shell command run with its combined output.
func NewCommandObservation(command, output string, exitCode *int, errMsg *string) Observation {
	return Observation{
		Kind:    ObservationCommand,
		Content: output,
		Command: &CommandResult{Command: command, ExitCode: exitCode, Error: errMsg},
	}
}

// NewFinishObservation is the terminal signal of a session.
func NewFinishObservation(status CompletionStatus, message string) Observation {
	return Observation{
		Kind:    ObservationFinish,
		Content: message,
		Finish:  &FinishResult{Status: status},
	}
}

// NewTextObservation wraps a plain tool result.
func NewTextObservation(content string) Observation {
	return Observation{Kind: ObservationText, Content: content}
}

// NewFailureObservation reports a call that failed during resolution,
// coercion or execution.
func NewFailureObservation(tool, message string) Observation {
	return Observation{
		Kind:    ObservationFailure,
		Content: "Error executing function call: " + message,
		Failure: &FailureResult{Tool: tool, Message: message},
	}
}

// NewUnknownToolObservation reports a call to a name with no registry entry.
func NewUnknownToolObservation(name string) Observation {
	msg := fmt.Sprintf("Function '%s' not found in registry", name)
	return Observation{
		Kind:    ObservationFailure,
		Content: "Error: " + msg,
		Failure: &FailureResult{Tool: name, Message: msg},
	}
}

// IsFinish reports whether the observation terminates the session.
func (o Observation) IsFinish() bool {
	return o.Kind == ObservationFinish
}

// IsFailure reports whether the observation carries a failure.
func (o Observation) IsFailure() bool {
	return o.Kind == ObservationFailure
}

// Succeeded reports whether a command observation exited cleanly. Other kinds
// succeed unless they are failures.
func (o Observation) Succeeded() bool {
	switch o.Kind {
	case ObservationFailure:
		return false
	case ObservationCommand:
		if o.Command == nil {
			return true
		}
		if o.Command.Error != nil {
			return false
		}
		return o.Command.ExitCode == nil || *o.Command.ExitCode == 0
	}
	return true
}

// String renders the observation the way it appears in the transcript.
func (o Observation) String() string {
	switch o.Kind {
	case ObservationRead:
		return fmt.Sprintf("[Read from %s is successful.]\n%s", o.path(), o.Content)
	case ObservationWrite:
		return fmt.Sprintf("[Write to %s is successful.]\n%s", o.path(), o.Content)
	case ObservationEdit:
		return fmt.Sprintf("[Edit of %s is successful.]\n%s", o.path(), o.Content)
	case ObservationCommand:
		cmd := ""
		if o.Command != nil {
			cmd = o.Command.Command
		}
		if o.Succeeded() {
			return fmt.Sprintf("[Executed command %s is successful. The output is as follows:]\n%s", cmd, o.Content)
		}
		return fmt.Sprintf("[Executed command %s failed (%s). The output is as follows:]\n%s", cmd, o.commandFailure(), o.Content)
	case ObservationFinish:
		status := CompletionFalse
		if o.Finish != nil {
			status = o.Finish.Status
		}
		return fmt.Sprintf("[Finish the task: %s. The output is as follows:]\n%s", status, o.Content)
	}
	return o.Content
}

// Summary is a one-line description of what the tool did.
func (o Observation) Summary() string {
	switch o.Kind {
	case ObservationRead:
		return fmt.Sprintf("I read the file %s.", o.path())
	case ObservationWrite:
		return fmt.Sprintf("I wrote to the file %s.", o.path())
	case ObservationEdit:
		return fmt.Sprintf("I edited the file %s.", o.path())
	case ObservationCommand:
		if o.Command != nil {
			return fmt.Sprintf("I ran the command %s.", o.Command.Command)
		}
		return "I ran a command."
	case ObservationFinish:
		return "I finished the task."
	case ObservationFailure:
		if o.Failure != nil {
			return "The call failed: " + o.Failure.Message
		}
		return "The call failed."
	}
	return "The tool returned a result."
}

func (o Observation) path() string {
	switch {
	case o.Read != nil:
		return o.Read.Path
	case o.File != nil:
		return o.File.Path
	}
	return ""
}

func (o Observation) commandFailure() string {
	parts := []string{}
	if o.Command.ExitCode != nil {
		parts = append(parts, fmt.Sprintf("exit code %d", *o.Command.ExitCode))
	}
	if o.Command.Error != nil {
		parts = append(parts, *o.Command.Error)
	}
	if len(parts) == 0 {
		return "unknown error"
	}
	return strings.Join(parts, ": ")
}

// ToObservation converts a tool return value into an Observation. Strings are
// used verbatim; other values are JSON encoded.
func ToObservation(v any) Observation {
	switch r := v.(type) {
	case Observation:
		return r
	case *Observation:
		if r != nil {
			return *r
		}
		return NewTextObservation("")
	case nil:
		return NewTextObservation("")
	case string:
		return NewTextObservation(r)
	case fmt.Stringer:
		return NewTextObservation(r.String())
	}
	b, err := json.Marshal(v)
	if err != nil {
		return NewTextObservation(fmt.Sprintf("%v", v))
	}
	return NewTextObservation(string(b))
}
