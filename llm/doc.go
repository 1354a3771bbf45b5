// Package llm is the model-call capability: a config-driven completion
// client that speaks several provider APIs through Dialects.
//
// # Architecture
//
//   - Universal types: [CompletionRequest], [CompletionResponse], [Message], [Usage]
//   - [Dialect]: maps universal types to and from one provider's HTTP format.
//     [OpenAI] and [Ollama] are registered by default.
//   - [Adapter]: an HTTP client plus a Dialect.
//   - [NewClient]: the adapter wrapped in logging, tracing and resilience.
//   - [ModelCapability]: bridges a client to the dag package's model-call nodes.
//
// # Usage
//
//	client, err := llm.NewClient(llm.Config{
//	    Dialect: "ollama",
//	    Model:   "qwen2.5:1.5b",
//	}, nil, nil)
//
//	caps := dag.Capabilities{Models: llm.ModelCapability(client)}
package llm
