// Package asr defines the speech recognition capability used by the ask
// pipeline and its Google Cloud Speech implementation.
package asr

import "context"

// Transcriber converts a stored audio clip plus a language tag into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}
