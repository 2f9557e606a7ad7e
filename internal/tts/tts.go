// Package tts defines the speech synthesis capability used by the ask
// pipeline and its Google Cloud Text-to-Speech implementation.
package tts

import "context"

// Synthesizer converts an answer string and language tag into a stored audio
// artifact and returns its path. Implementations must never return a path
// they did not fully write.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) (string, error)
}
