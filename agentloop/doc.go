// Package agentloop runs an autonomous coding agent: a model is prompted with
// a task and a tool catalogue, asks for one tool call per turn, and sees the
// result of that call appended to a growing transcript until it calls finish.
//
// # Architecture
//
//   - ToolRegistry: tool specs (ordered, typed parameters) and executors,
//     built before a session starts and injected into the Dispatcher.
//   - ExtractToolCalls: turns a ModelOutput into ToolCalls. Structured calls
//     from the provider win; otherwise a JSON object ending the text is
//     parsed.
//   - Dispatcher: resolves, coerces and invokes a call. Every failure comes
//     back as a failure Observation.
//   - Observation: a closed set of result kinds (read, write, edit, command,
//     finish, text, failure). Finish is the only one that ends a session.
//   - Session: the STARTED, RUNNING, TERMINATED state machine that owns the
//     Transcript and emits SessionEvents.
//
// # Quick Start
//
//	registry := agentloop.NewToolRegistry()
//	agentloop.RegisterCoreTools(registry, agentloop.DefaultCommandTimeout)
//	env := agentloop.NewLocalExecutionEnvironment("/path/to/project")
//	llm := agentloop.NewClientLLM(client, "deepseek", "")
//
//	session := agentloop.NewSession(llm, agentloop.NewDispatcher(registry, env), nil)
//	go func() {
//	    for event := range session.Events() {
//	        fmt.Printf("[%s] %v\n", event.Kind, event.Data)
//	    }
//	}()
//	result, err := session.Run(ctx, "Create a hello.py file")
package agentloop
