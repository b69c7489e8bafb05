package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM replays canned responses and records every prompt it sees.
type scriptedLLM struct {
	responses []*ModelOutput
	prompts   []string
	err       error
}

func (s *scriptedLLM) Invoke(_ context.Context, prompt string, _ []ToolSpec) (*ModelOutput, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.prompts) > len(s.responses) {
		return &ModelOutput{Text: "I have nothing more to say."}, nil
	}
	return s.responses[len(s.prompts)-1], nil
}

func structured(calls ...StructuredCall) *ModelOutput {
	return &ModelOutput{StructuredCalls: calls}
}

func sc(name, args string) StructuredCall {
	return StructuredCall{ID: "call_" + name, Name: name, Type: "function", Arguments: json.RawMessage(args)}
}

func finishCall(message string) StructuredCall {
	return sc(ToolFinish, fmt.Sprintf(`{"message": %q, "task_completed": "true"}`, message))
}

func newTestSession(t *testing.T, llm LLM, cfg *SessionConfig) (*Session, *ToolRegistry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := NewToolRegistry()
	RegisterCoreTools(reg, 0)
	return NewSession(llm, NewDispatcher(reg, NewLocalExecutionEnvironment(dir)), cfg), reg, dir
}

func drain(s *Session) []SessionEvent {
	var events []SessionEvent
	for e := range s.Events() {
		events = append(events, e)
	}
	return events
}

func TestSessionFinishOnNthResponse(t *testing.T) {
	for n := 1; n <= 4; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			llm := &scriptedLLM{}
			for i := 1; i < n; i++ {
				llm.responses = append(llm.responses, &ModelOutput{Text: fmt.Sprintf("thinking %d", i)})
			}
			llm.responses = append(llm.responses, structured(finishCall("all done")))

			session, _, _ := newTestSession(t, llm, nil)
			result, err := session.Run(context.Background(), "do it")
			require.NoError(t, err)

			assert.Len(t, llm.prompts, n)
			assert.Equal(t, n, result.Iterations)
			assert.Equal(t, "all done", result.Message)
			assert.Equal(t, CompletionTrue, result.Status)
			assert.Equal(t, StateTerminated, session.State())
			if n > 1 {
				assert.Contains(t, llm.prompts[n-1], fmt.Sprintf("thinking %d", n-1))
			}
		})
	}
}

func TestSessionCommandOutputReachesNextPrompt(t *testing.T) {
	llm := &scriptedLLM{responses: []*ModelOutput{
		{Text: "Let me look.\n{\"name\": \"execute_bash_command_tmux\", \"args\": {\"command\": \"ls\"}}"},
		structured(finishCall("listed")),
	}}
	session, reg, _ := newTestSession(t, llm, nil)
	reg.Register(RegisteredTool{
		Spec: ToolSpec{Name: ToolBash, Params: []ParamSpec{{Name: "command", Type: ParamString, Required: true}}},
		Executor: func(_ context.Context, args *Arguments, _ ExecutionEnvironment) (any, error) {
			cmd, _ := GetStringArg(args, "command")
			return NewCommandObservation(cmd, "a.txt\nb.txt", intPtr(0), nil), nil
		},
	})

	_, err := session.Run(context.Background(), "list files")
	require.NoError(t, err)

	require.Len(t, llm.prompts, 2)
	second := llm.prompts[1]
	assert.True(t, strings.HasPrefix(second, llm.prompts[0]))
	assert.Equal(t, 1, strings.Count(second, `{"name": "execute_bash_command_tmux", "args": {"command": "ls"}}`))
	assert.NotContains(t, second, `{"name":"execute_bash_command_tmux","args":{"command":"ls"}}`)
	assert.Contains(t, second, "[Executed command ls is successful. The output is as follows:]\na.txt\nb.txt")
}

func TestSessionOnlyFirstCallIsDispatched(t *testing.T) {
	llm := &scriptedLLM{responses: []*ModelOutput{
		structured(
			sc(ToolWriteFile, `{"path": "a.txt", "content": "a"}`),
			sc(ToolWriteFile, `{"path": "b.txt", "content": "b"}`),
		),
		structured(finishCall("wrote")),
	}}
	session, _, dir := newTestSession(t, llm, nil)

	_, err := session.Run(context.Background(), "write files")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "a.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "b.txt"))
	assert.NotContains(t, session.Transcript().String(), "b.txt")

	var warned bool
	for _, e := range drain(session) {
		if e.Kind == EventWarning {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestSessionToolFailureIsFedBack(t *testing.T) {
	llm := &scriptedLLM{responses: []*ModelOutput{
		{Text: `{"name":"read_file","args":{"path":"missing.txt"}}`},
		{Text: `{"name":"no_such_tool","args":{}}`},
		structured(finishCall("gave up")),
	}}
	session, _, _ := newTestSession(t, llm, nil)

	result, err := session.Run(context.Background(), "read it")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Iterations)

	assert.Contains(t, llm.prompts[1], "Error executing function call:")
	assert.Contains(t, llm.prompts[1], "no such file or directory")
	assert.Contains(t, llm.prompts[2], "Error: Function 'no_such_tool' not found in registry")
}

func TestSessionInvalidFinishContinues(t *testing.T) {
	llm := &scriptedLLM{responses: []*ModelOutput{
		structured(sc(ToolFinish, `{"message": "done", "task_completed": "maybe"}`)),
		structured(sc(ToolFinish, `{"message": "done", "task_completed": "partial"}`)),
	}}
	session, _, _ := newTestSession(t, llm, nil)

	result, err := session.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, CompletionPartial, result.Status)
}

func TestSessionLLMError(t *testing.T) {
	sentinel := errors.New("provider exploded")
	llm := &scriptedLLM{err: sentinel}
	session, _, _ := newTestSession(t, llm, nil)

	_, err := session.Run(context.Background(), "task")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "unrecoverable LLM error")
	assert.Equal(t, StateTerminated, session.State())
}

func TestSessionIterationLimit(t *testing.T) {
	llm := &scriptedLLM{}
	cfg := DefaultSessionConfig()
	cfg.MaxIterations = 3
	session, _, _ := newTestSession(t, llm, &cfg)

	_, err := session.Run(context.Background(), "task")
	assert.ErrorIs(t, err, ErrIterationLimit)
	assert.Len(t, llm.prompts, 3)
	assert.Equal(t, StateTerminated, session.State())

	var limited bool
	for _, e := range drain(session) {
		if e.Kind == EventIterationLimit {
			limited = true
		}
	}
	assert.True(t, limited)
}

func TestSessionRunsOnce(t *testing.T) {
	llm := &scriptedLLM{responses: []*ModelOutput{structured(finishCall("ok"))}}
	session, _, _ := newTestSession(t, llm, nil)

	_, err := session.Run(context.Background(), "task")
	require.NoError(t, err)

	_, err = session.Run(context.Background(), "again")
	assert.ErrorIs(t, err, ErrSessionNotStarted)
}

func TestSessionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &scriptedLLM{}
	session, _, _ := newTestSession(t, llm, nil)

	_, err := session.Run(ctx, "task")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, llm.prompts)
}

func TestSessionLoopDetection(t *testing.T) {
	repeat := structured(sc(ToolReadFile, `{"path": "a.txt"}`))
	llm := &scriptedLLM{responses: []*ModelOutput{repeat, repeat, repeat, structured(finishCall("stop"))}}
	cfg := DefaultSessionConfig()
	cfg.LoopDetectionWindow = 3
	session, _, dir := newTestSession(t, llm, &cfg)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("same"), 0644))

	_, err := session.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.NotContains(t, llm.prompts[2], "Loop detected")
	assert.Contains(t, llm.prompts[3], "Loop detected: the last 3 tool calls follow a repeating pattern.")

	var detected bool
	for _, e := range drain(session) {
		if e.Kind == EventLoopDetection {
			detected = true
		}
	}
	assert.True(t, detected)
}

func TestSessionTruncatesObservations(t *testing.T) {
	big := strings.Repeat("y", 5000)
	llm := &scriptedLLM{responses: []*ModelOutput{
		structured(sc(ToolReadFile, `{"path": "big.txt"}`)),
		structured(finishCall("read")),
	}}
	cfg := DefaultSessionConfig()
	cfg.MaxObservationChars = 200
	session, _, dir := newTestSession(t, llm, &cfg)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte(big), 0644))

	_, err := session.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Contains(t, llm.prompts[1], "Tool output was truncated")
	assert.NotContains(t, llm.prompts[1], big)

	var full string
	for _, e := range drain(session) {
		if e.Kind == EventToolCallEnd && e.Data["tool_name"] == ToolReadFile {
			full, _ = e.Data["output"].(string)
		}
	}
	assert.Contains(t, full, big)
}

func TestSessionEvents(t *testing.T) {
	llm := &scriptedLLM{responses: []*ModelOutput{
		structured(sc(ToolBash, `{"command": "true"}`)),
		structured(finishCall("ok")),
	}}
	session, _, _ := newTestSession(t, llm, nil)

	_, err := session.Run(context.Background(), "task")
	require.NoError(t, err)

	var kinds []EventKind
	for _, e := range drain(session) {
		assert.Equal(t, session.ID(), e.SessionID)
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{
		EventSessionStart,
		EventLLMRequest, EventLLMResponse, EventToolCallStart, EventToolCallEnd,
		EventLLMRequest, EventLLMResponse, EventToolCallStart, EventToolCallEnd,
		EventSessionEnd,
	}, kinds)
}
