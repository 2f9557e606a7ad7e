package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is the durable record of one completed ask pipeline run.
// Records are append-only: once saved they are never updated or deleted.
type Interaction struct {
	ID         string    `json:"id"`
	Language   string    `json:"language"`
	Crop       string    `json:"crop"`
	Question   *string   `json:"question"`   // literal text, nil for audio-only requests
	Transcript *string   `json:"transcript"` // ASR output, nil for text-only requests
	Answer     string    `json:"answer"`
	Sources    *string   `json:"sources"`
	AudioPath  *string   `json:"audio_path"` // stored upload, nil when no audio was supplied
	TTSPath    *string   `json:"tts_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// Feedback links a rating (and optional comment) to one Interaction.
// Multiple feedback records may reference the same interaction.
type Feedback struct {
	ID            string    `json:"id"`
	InteractionID string    `json:"interaction_id"`
	Rating        int       `json:"rating"`
	Comment       *string   `json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
}
