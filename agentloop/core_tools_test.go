package agentloop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTool(t *testing.T, d *Dispatcher, name string, kv ...any) Observation {
	t.Helper()
	return d.Dispatch(context.Background(), ToolCall{Name: name, Arguments: NewArguments(kv...)})
}

func readTemp(t *testing.T, d *Dispatcher, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(d.Environment().WorkingDirectory(), path))
	require.NoError(t, err)
	return string(data)
}

func TestBashTool(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(d.Environment().WorkingDirectory(), "a.txt"), nil, 0644))

	obs := runTool(t, d, ToolBash, "command", "ls")
	require.Equal(t, ObservationCommand, obs.Kind, obs.Content)
	assert.Equal(t, "a.txt\n", obs.Content)
	assert.Equal(t, 0, *obs.Command.ExitCode)
	assert.True(t, obs.Succeeded())

	obs = runTool(t, d, ToolBash, "command", "echo oops >&2; exit 3")
	assert.Equal(t, "oops\n", obs.Content)
	assert.Equal(t, 3, *obs.Command.ExitCode)
	assert.False(t, obs.Succeeded())
	assert.Contains(t, obs.String(), "failed (exit code 3)")
}

func TestBashToolTimeout(t *testing.T) {
	reg := NewToolRegistry()
	RegisterCoreTools(reg, 200*time.Millisecond)
	d := NewDispatcher(reg, NewLocalExecutionEnvironment(t.TempDir()))

	start := time.Now()
	obs := runTool(t, d, ToolBash, "command", "sleep 5")
	assert.Less(t, time.Since(start), 4*time.Second)

	require.Equal(t, ObservationCommand, obs.Kind)
	assert.Equal(t, -1, *obs.Command.ExitCode)
	require.NotNil(t, obs.Command.Error)
	assert.Equal(t, "Command timed out", *obs.Command.Error)
}

func TestBashToolWorkDir(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.NoError(t, os.Mkdir(filepath.Join(d.Environment().WorkingDirectory(), "sub"), 0755))

	obs := runTool(t, d, ToolBash, "command", "basename $(pwd)", "work_dir", "sub")
	assert.Equal(t, "sub\n", obs.Content)
}

func TestWriteAndReadFile(t *testing.T) {
	d, _ := newTestDispatcher(t)

	obs := runTool(t, d, ToolWriteFile, "path", "dir/a.txt", "content", "hello\n")
	require.Equal(t, ObservationWrite, obs.Kind, obs.Content)
	assert.False(t, obs.File.PreviousExisted)

	obs = runTool(t, d, ToolWriteFile, "path", "dir/a.txt", "content", "bye\n")
	assert.True(t, obs.File.PreviousExisted)
	assert.Equal(t, "hello\n", *obs.File.OldContent)

	obs = runTool(t, d, ToolReadFile, "path", "dir/a.txt")
	require.Equal(t, ObservationRead, obs.Kind)
	assert.Equal(t, "bye\n", obs.Content)
	assert.Equal(t, "[Read from dir/a.txt is successful.]\nbye\n", obs.String())
}

func TestEditFile(t *testing.T) {
	d, _ := newTestDispatcher(t)
	runTool(t, d, ToolWriteFile, "path", "a.txt", "content", "one\ntwo\n")

	obs := runTool(t, d, ToolEditFile, "path", "a.txt", "new_content", "one\n2\n")
	require.Equal(t, ObservationEdit, obs.Kind, obs.Content)
	assert.Contains(t, obs.Content, "-two")
	assert.Contains(t, obs.Content, "+2")
	assert.Equal(t, "one\n2\n", readTemp(t, d, "a.txt"))
}

func TestAddLines(t *testing.T) {
	d, _ := newTestDispatcher(t)
	runTool(t, d, ToolWriteFile, "path", "a.txt", "content", "one\nthree")

	obs := runTool(t, d, ToolAddLines, "path", "a.txt", "lines", []any{"two"}, "position", 1)
	require.Equal(t, ObservationEdit, obs.Kind, obs.Content)
	assert.Equal(t, "one\ntwo\nthree", readTemp(t, d, "a.txt"))

	runTool(t, d, ToolAddLines, "path", "a.txt", "lines", `["four"]`, "position", "99")
	assert.Equal(t, "one\ntwo\nthree\nfour\n", readTemp(t, d, "a.txt"))

	runTool(t, d, ToolAddLines, "path", "new.txt", "lines", []any{"x", "y"}, "position", 0)
	assert.Equal(t, "x\ny\n", readTemp(t, d, "new.txt"))
}

func TestRemoveLines(t *testing.T) {
	d, _ := newTestDispatcher(t)
	runTool(t, d, ToolWriteFile, "path", "a.txt", "content", "0\n1\n2\n3\n")

	obs := runTool(t, d, ToolRemoveLines, "path", "a.txt", "start", 1, "end", 3)
	require.Equal(t, ObservationEdit, obs.Kind, obs.Content)
	assert.Equal(t, "0\n3\n", readTemp(t, d, "a.txt"))

	runTool(t, d, ToolRemoveLines, "path", "a.txt", "start", 1, "end", 50)
	assert.Equal(t, "0\n", readTemp(t, d, "a.txt"))

	obs = runTool(t, d, ToolRemoveLines, "path", "missing.txt", "start", 0, "end", 1)
	assert.True(t, obs.IsFailure())
}
