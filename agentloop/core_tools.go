package agentloop

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Core tool names.
const (
	ToolBash        = "execute_bash_command_tmux"
	ToolReadFile    = "read_file"
	ToolWriteFile   = "write_file"
	ToolEditFile    = "edit_file"
	ToolAddLines    = "add_lines"
	ToolRemoveLines = "remove_lines"
	ToolFinish      = "finish"
)

// RegisterCoreTools registers the shell, file and finish tools. Commands that
// give no timeout run for at most defaultTimeout.
func RegisterCoreTools(reg *ToolRegistry, defaultTimeout time.Duration) {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultCommandTimeout
	}
	registerBash(reg, defaultTimeout)
	registerReadFile(reg)
	registerWriteFile(reg)
	registerEditFile(reg)
	registerAddLines(reg)
	registerRemoveLines(reg)
	registerFinish(reg)
}

func registerBash(reg *ToolRegistry, defaultTimeout time.Duration) {
	reg.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        ToolBash,
			Description: "Execute a bash command and return its combined stdout and stderr.",
			Params: []ParamSpec{
				{Name: "command", Type: ParamString, Required: true, Description: "The bash command to run."},
				{Name: "work_dir", Type: ParamString, Description: "Directory to run the command in. Defaults to the session working directory."},
				{Name: "timeout", Type: ParamInteger, Default: int(defaultTimeout / time.Second), Description: "Timeout in seconds."},
			},
		},
		Executor: func(ctx context.Context, args *Arguments, env ExecutionEnvironment) (any, error) {
			command, _ := GetStringArg(args, "command")
			if strings.TrimSpace(command) == "" {
				return nil, errors.New("command must not be empty")
			}
			workDir, _ := GetStringArg(args, "work_dir")
			timeout := defaultTimeout
			if secs, ok := GetIntArg(args, "timeout"); ok && secs > 0 {
				timeout = time.Duration(secs) * time.Second
			}

			res, err := env.ExecCommand(ctx, command, timeout, workDir)
			if err != nil {
				return nil, err
			}
			exitCode := res.ExitCode
			var errMsg *string
			if res.TimedOut {
				msg := "Command timed out"
				errMsg = &msg
			}
			return NewCommandObservation(command, res.Output, &exitCode, errMsg), nil
		},
	})
}

func registerReadFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        ToolReadFile,
			Description: "Read the full content of a file.",
			Params: []ParamSpec{
				{Name: "path", Type: ParamString, Required: true, Description: "Path of the file to read."},
			},
		},
		Executor: func(_ context.Context, args *Arguments, env ExecutionEnvironment) (any, error) {
			path, _ := GetStringArg(args, "path")
			content, err := env.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return NewReadObservation(path, content), nil
		},
	})
}

func registerWriteFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        ToolWriteFile,
			Description: "Write content to a file, creating it and its parent directories if needed.",
			Params: []ParamSpec{
				{Name: "path", Type: ParamString, Required: true, Description: "Path of the file to write."},
				{Name: "content", Type: ParamString, Required: true, Description: "The full file content."},
			},
		},
		Executor: func(_ context.Context, args *Arguments, env ExecutionEnvironment) (any, error) {
			path, _ := GetStringArg(args, "path")
			content, _ := GetStringArg(args, "content")
			old := readIfExists(env, path)
			if err := env.WriteFile(path, content); err != nil {
				return nil, err
			}
			return NewWriteObservation(path, old, content), nil
		},
	})
}

func registerEditFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        ToolEditFile,
			Description: "Replace the whole content of a file with new content.",
			Params: []ParamSpec{
				{Name: "path", Type: ParamString, Required: true, Description: "Path of the file to edit."},
				{Name: "new_content", Type: ParamString, Required: true, Description: "The new file content."},
			},
		},
		Executor: func(_ context.Context, args *Arguments, env ExecutionEnvironment) (any, error) {
			path, _ := GetStringArg(args, "path")
			content, _ := GetStringArg(args, "new_content")
			old := readIfExists(env, path)
			if err := env.WriteFile(path, content); err != nil {
				return nil, err
			}
			return NewEditObservation(path, old, content), nil
		},
	})
}

func registerAddLines(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        ToolAddLines,
			Description: "Insert lines into a file before the given 0-based line position. Creates the file if missing.",
			Params: []ParamSpec{
				{Name: "path", Type: ParamString, Required: true, Description: "Path of the file to modify."},
				{Name: "lines", Type: ParamArray, Items: ParamString, Required: true, Description: "Lines to insert, without trailing newlines."},
				{Name: "position", Type: ParamInteger, Required: true, Description: "0-based line index to insert at."},
			},
		},
		Executor: func(_ context.Context, args *Arguments, env ExecutionEnvironment) (any, error) {
			path, _ := GetStringArg(args, "path")
			lines, ok := GetStringSliceArg(args, "lines")
			if !ok {
				return nil, errors.New("lines must be an array of strings")
			}
			position, _ := GetIntArg(args, "position")

			old := readIfExists(env, path)
			var existing []string
			if old != nil {
				existing = splitLines(*old)
			}
			position = clamp(position, 0, len(existing))

			inserted := make([]string, len(lines))
			for i, l := range lines {
				inserted[i] = strings.TrimSuffix(l, "\n") + "\n"
			}
			if position > 0 && !strings.HasSuffix(existing[position-1], "\n") {
				existing[position-1] += "\n"
			}

			updated := make([]string, 0, len(existing)+len(inserted))
			updated = append(updated, existing[:position]...)
			updated = append(updated, inserted...)
			updated = append(updated, existing[position:]...)
			content := strings.Join(updated, "")

			if err := env.WriteFile(path, content); err != nil {
				return nil, err
			}
			return NewEditObservation(path, old, content), nil
		},
	})
}

func registerRemoveLines(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        ToolRemoveLines,
			Description: "Remove the lines in [start, end) from a file, using 0-based indices.",
			Params: []ParamSpec{
				{Name: "path", Type: ParamString, Required: true, Description: "Path of the file to modify."},
				{Name: "start", Type: ParamInteger, Required: true, Description: "First line to remove (0-based, inclusive)."},
				{Name: "end", Type: ParamInteger, Required: true, Description: "Line to stop at (0-based, exclusive)."},
			},
		},
		Executor: func(_ context.Context, args *Arguments, env ExecutionEnvironment) (any, error) {
			path, _ := GetStringArg(args, "path")
			old, err := env.ReadFile(path)
			if err != nil {
				return nil, err
			}
			start, _ := GetIntArg(args, "start")
			end, _ := GetIntArg(args, "end")

			existing := splitLines(old)
			start = clamp(start, 0, len(existing))
			end = clamp(end, start, len(existing))

			updated := make([]string, 0, len(existing)-(end-start))
			updated = append(updated, existing[:start]...)
			updated = append(updated, existing[end:]...)
			content := strings.Join(updated, "")

			if err := env.WriteFile(path, content); err != nil {
				return nil, err
			}
			return NewEditObservation(path, &old, content), nil
		},
	})
}

func registerFinish(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Spec: ToolSpec{
			Name:        ToolFinish,
			Description: "Finish the task. Call this once the task is done or cannot be completed.",
			Params: []ParamSpec{
				{Name: "message", Type: ParamString, Required: true, Description: "Final message summarising the outcome."},
				{
					Name:        "task_completed",
					Type:        ParamString,
					Required:    true,
					Enum:        []string{string(CompletionTrue), string(CompletionFalse), string(CompletionPartial)},
					Description: "Whether the task was completed: true, false or partial.",
				},
			},
		},
		Executor: func(_ context.Context, args *Arguments, _ ExecutionEnvironment) (any, error) {
			message, _ := GetStringArg(args, "message")
			raw, _ := GetStringArg(args, "task_completed")
			status, err := ParseCompletionStatus(raw)
			if err != nil {
				return nil, err
			}
			return NewFinishObservation(status, message), nil
		},
	})
}

func readIfExists(env ExecutionEnvironment, path string) *string {
	if !env.FileExists(path) {
		return nil
	}
	content, err := env.ReadFile(path)
	if err != nil {
		return nil
	}
	return &content
}

// splitLines splits content into lines that keep their trailing newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
