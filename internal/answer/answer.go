// Package answer defines the answering capability used by the ask pipeline
// and its model-backed implementations (local Ollama or OpenRouter).
package answer

import "context"

// Answerer converts a question, a crop context, and a language tag into an
// answer string plus an optional provenance reference.
type Answerer interface {
	Answer(ctx context.Context, question, crop, language string) (answer string, sources *string, err error)
}

// Message is a chat message in OpenAI-compatible format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
