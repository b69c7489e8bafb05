package agentloop

import (
	"fmt"
	"strings"
)

// TaskStartedMarker separates the instructions from the task text.
const TaskStartedMarker = "------------ Task Started ---------------"

const promptPrefix = `You are an autonomous software engineering agent working inside a sandboxed workspace.
You solve the task by calling tools one at a time and reading their results.

Workflow:
1. Explore before you change anything: inspect the working directory and read the relevant files.
2. Make small, verifiable changes. After each change, run a command that checks it.
3. Call exactly one tool per response. Write your reasoning first, then end the response with the tool call.
4. When the task is done, or you are certain it cannot be done, call the finish tool.

Tool call format:
End every response with a single JSON object of the form
{"name": "<tool name>", "args": {"<parameter>": <value>, ...}}
Nothing may follow the JSON object. Use double quotes and valid JSON escapes.

Safety rules:
- Stay inside the working directory unless the task explicitly requires otherwise.
- Never run destructive commands on data you did not create (rm -rf /, disk formatting, force pushes).
- Do not start long-running foreground processes; run servers in the background and redirect their output.
- Do not print or exfiltrate secrets found in the environment.`

const workedExample = `--------------------- START OF EXAMPLE ---------------------

USER: Create a Python script that prints the numbers from 1 to 10.

ASSISTANT: Let me look at the working directory first.
{"name": "execute_bash_command_tmux", "args": {"command": "pwd && ls", "timeout": 30}}

USER: [Executed command pwd && ls is successful. The output is as follows:]
/workspace

ASSISTANT: The directory is empty. I will create app.py.
{"name": "write_file", "args": {"path": "/workspace/app.py", "content": "numbers = list(range(1, 11))\nprint(numbers)\n"}}

USER: [Write to /workspace/app.py is successful.]
numbers = list(range(1, 11))
print(numbers)

ASSISTANT: Now I run the script to check it.
{"name": "execute_bash_command_tmux", "args": {"command": "python3 app.py", "timeout": 30}}

USER: [Executed command python3 app.py is successful. The output is as follows:]
[1, 2, 3, 4, 5, 6, 7, 8, 9, 10]

ASSISTANT: The script prints the expected numbers.
{"name": "finish", "args": {"message": "Created app.py, which prints the numbers from 1 to 10.", "task_completed": "true"}}

--------------------- END OF EXAMPLE ---------------------`

// BuildInitialPrompt renders the session's opening transcript: instructions,
// the tool catalogue, a worked example and the task. The output depends only
// on its inputs.
func BuildInitialPrompt(task string, catalogue []ToolSpec, workDir string) string {
	var sb strings.Builder
	sb.WriteString(promptPrefix)
	sb.WriteString("\n\n")

	if workDir != "" {
		fmt.Fprintf(&sb, "Working directory: %s\n\n", workDir)
	}

	sb.WriteString(RenderToolCatalogue(catalogue))
	sb.WriteString("\n")

	sb.WriteString("Here is an example of how to perform a task with the provided tools.\n\n")
	sb.WriteString(workedExample)
	sb.WriteString("\n\n")

	sb.WriteString(TaskStartedMarker)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Task: %s\n", task)
	return sb.String()
}

// RenderToolCatalogue lists each tool with its description and a numbered
// parameter table.
func RenderToolCatalogue(catalogue []ToolSpec) string {
	var sb strings.Builder
	sb.WriteString("Available tools:\n\n")
	if len(catalogue) == 0 {
		sb.WriteString("(none)\n")
		return sb.String()
	}
	for i, spec := range catalogue {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, spec.Name)
		if spec.Description != "" {
			fmt.Fprintf(&sb, "   Description: %s\n", spec.Description)
		}
		if len(spec.Params) == 0 {
			sb.WriteString("   Parameters: none\n\n")
			continue
		}
		sb.WriteString("   Parameters:\n")
		sb.WriteString("   | # | name | type | description |\n")
		sb.WriteString("   |---|------|------|-------------|\n")
		for j, p := range spec.Params {
			fmt.Fprintf(&sb, "   | %d | %s | %s | %s |\n", j, p.Name, paramTypeLabel(p), paramDescription(p))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func paramTypeLabel(p ParamSpec) string {
	t := string(p.Type)
	if p.Type == ParamAny {
		t = "any"
	}
	if p.Type == ParamArray && p.Items != ParamAny {
		t = fmt.Sprintf("array<%s>", p.Items)
	}
	return t
}

func paramDescription(p ParamSpec) string {
	parts := []string{}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	if len(p.Enum) > 0 {
		parts = append(parts, "One of: "+strings.Join(p.Enum, ", ")+".")
	}
	if p.Required {
		parts = append(parts, "(required)")
	} else if p.Default != nil {
		parts = append(parts, fmt.Sprintf("(optional, default %v)", p.Default))
	} else {
		parts = append(parts, "(optional)")
	}
	return strings.Join(parts, " ")
}
