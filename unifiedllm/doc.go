// Package unifiedllm is the provider-agnostic LLM client used by the agent
// loop.
//
// A Client routes each Request to a registered ProviderAdapter by name and
// runs it through a middleware chain (retry, logging, and so on). Two
// adapters are provided:
//
//   - OpenAIAdapter uses go-openai against OpenAI or any OpenAI-compatible
//     endpoint (DeepSeek via WithBaseURL). Tool calls come back as structured
//     ToolCallData parts.
//   - GollmAdapter wraps gollm for the providers it supports. It returns
//     plain text; tool calls written inline by the model are left in the
//     text for the caller to extract.
//
// Every failure is an *Error tagged with an ErrorKind (rate_limit, server,
// authentication, ...). IsRetryable decides from the kind whether Retry and
// RetryMiddleware try again.
//
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("deepseek", unifiedllm.NewOpenAIAdapter("deepseek", key,
//	        unifiedllm.WithBaseURL(unifiedllm.DeepSeekBaseURL))),
//	    unifiedllm.WithMiddleware(unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy())),
//	)
//	resp, err := client.Complete(ctx, unifiedllm.Request{
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
package unifiedllm
