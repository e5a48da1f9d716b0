// Package ai defines the embedding service abstraction used by the
// pipeline's embedding stage.
//
// The Embedder interface is implemented by the openai subpackage for any
// OpenAI-compatible embedding API (Ollama, LocalAI, vLLM, OpenAI itself)
// and by the mock subpackage for tests. Configuration follows the
// functional options pattern:
//
//	cfg := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithModel("embeddinggemma"),
//	)
//	embedder, err := openai.NewEmbedder(cfg)
package ai
