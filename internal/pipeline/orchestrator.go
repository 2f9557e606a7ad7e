// Package pipeline implements the ask orchestration: resolve the effective
// question (transcribing stored audio when supplied), obtain an answer with
// provenance, synthesize answer audio, and commit exactly one interaction row.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kisanmitra/kisanmitra/internal/answer"
	"github.com/kisanmitra/kisanmitra/internal/asr"
	"github.com/kisanmitra/kisanmitra/internal/media"
	"github.com/kisanmitra/kisanmitra/internal/storage"
	"github.com/kisanmitra/kisanmitra/internal/tts"
)

// DefaultCrop is assumed when the caller supplies no crop context.
const DefaultCrop = "wheat"

// Validation errors surfaced to the caller as client errors.
var (
	ErrNoLanguage = errors.New("language is required")
	ErrNoQuestion = errors.New("either question text or an audio clip is required")
)

// CapabilityError marks a failure inside one of the external capabilities
// (transcription, answering, synthesis). When it surfaces, no interaction
// row has been written.
type CapabilityError struct {
	Stage string
	Err   error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability: %v", e.Stage, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Timeouts bounds each external capability call. A zero value disables the
// bound for that call.
type Timeouts struct {
	ASR    time.Duration
	Answer time.Duration
	TTS    time.Duration
}

// AskRequest is one inbound farmer question.
type AskRequest struct {
	Language string
	Crop     string
	Question string    // literal question text; may be empty when audio is supplied
	Audio    io.Reader // nil when no audio was uploaded
	// AudioName is the original upload file name; only its extension is used.
	AudioName string
}

// AskResult is the assembled response of one completed pipeline run.
type AskResult struct {
	ID         string  `json:"id"`
	Language   string  `json:"language"`
	Crop       string  `json:"crop"`
	Question   string  `json:"question"` // the effective question fed to the answerer
	Transcript *string `json:"transcript"`
	Answer     string  `json:"answer"`
	Sources    *string `json:"sources"`
	// TTSPath is the synthesized audio file name, servable at /tts/{name}.
	TTSPath string `json:"tts_path"`
}

// Orchestrator sequences the three capabilities and commits the interaction
// record. Runs are independent; the orchestrator holds no per-request state.
type Orchestrator struct {
	transcriber asr.Transcriber
	answerer    answer.Answerer
	synthesizer tts.Synthesizer
	media       *media.Store
	store       *storage.Store
	timeouts    Timeouts
}

// New creates an Orchestrator wired to its capabilities and stores.
func New(transcriber asr.Transcriber, answerer answer.Answerer, synthesizer tts.Synthesizer, mediaStore *media.Store, store *storage.Store, timeouts Timeouts) *Orchestrator {
	return &Orchestrator{
		transcriber: transcriber,
		answerer:    answerer,
		synthesizer: synthesizer,
		media:       mediaStore,
		store:       store,
		timeouts:    timeouts,
	}
}

// Ask runs the full pipeline for one request:
//  1. audio present: persist the clip, transcribe it; the transcript becomes
//     the effective question (it wins even when literal text was also sent)
//  2. otherwise the literal question is the effective question
//  3. answer the effective question for the crop and language
//  4. synthesize answer audio
//  5. commit one interaction row
//
// Nothing is written to the interaction store until every capability call has
// succeeded; on failure the error propagates and no row exists. A stored
// upload from a failed run is left in place for the reaper to reconcile.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest) (AskResult, error) {
	start := time.Now()

	if req.Language == "" {
		return AskResult{}, ErrNoLanguage
	}
	if req.Audio == nil && req.Question == "" {
		return AskResult{}, ErrNoQuestion
	}
	crop := req.Crop
	if crop == "" {
		crop = DefaultCrop
	}

	var (
		transcript *string
		audioPath  *string
		effective  = req.Question
	)
	if req.Audio != nil {
		stored, err := o.media.SaveUpload(req.Audio, req.AudioName)
		if err != nil {
			return AskResult{}, fmt.Errorf("storing uploaded audio: %w", err)
		}
		audioPath = &stored

		text, err := o.transcribe(ctx, stored, req.Language)
		if err != nil {
			return AskResult{}, &CapabilityError{Stage: "transcription", Err: err}
		}
		transcript = &text
		effective = text
		slog.Debug("audio transcribed", "path", stored, "language", req.Language)
	}

	answerText, sources, err := o.answerQuestion(ctx, effective, crop, req.Language)
	if err != nil {
		return AskResult{}, &CapabilityError{Stage: "answering", Err: err}
	}

	ttsPath, err := o.synthesize(ctx, answerText, req.Language)
	if err != nil {
		return AskResult{}, &CapabilityError{Stage: "synthesis", Err: err}
	}

	// Single commit point: the row is written only after all three
	// capabilities have succeeded.
	interaction := storage.Interaction{
		ID:         uuid.New().String(),
		Language:   req.Language,
		Crop:       crop,
		Transcript: transcript,
		Answer:     answerText,
		Sources:    sources,
		AudioPath:  audioPath,
		TTSPath:    &ttsPath,
		CreatedAt:  time.Now().UTC(),
	}
	// The question column holds only literal caller text, never a transcript.
	if req.Question != "" {
		q := req.Question
		interaction.Question = &q
	}
	if err := o.store.SaveInteraction(interaction); err != nil {
		return AskResult{}, fmt.Errorf("saving interaction: %w", err)
	}

	slog.Info("ask pipeline complete",
		"id", interaction.ID,
		"language", req.Language,
		"crop", crop,
		"audio", req.Audio != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return AskResult{
		ID:         interaction.ID,
		Language:   req.Language,
		Crop:       crop,
		Question:   effective,
		Transcript: transcript,
		Answer:     answerText,
		Sources:    sources,
		TTSPath:    filepath.Base(ttsPath),
	}, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, audioPath, language string) (string, error) {
	ctx, cancel := bound(ctx, o.timeouts.ASR)
	defer cancel()
	return o.transcriber.Transcribe(ctx, audioPath, language)
}

func (o *Orchestrator) answerQuestion(ctx context.Context, question, crop, language string) (string, *string, error) {
	ctx, cancel := bound(ctx, o.timeouts.Answer)
	defer cancel()
	return o.answerer.Answer(ctx, question, crop, language)
}

func (o *Orchestrator) synthesize(ctx context.Context, text, language string) (string, error) {
	ctx, cancel := bound(ctx, o.timeouts.TTS)
	defer cancel()
	return o.synthesizer.Synthesize(ctx, text, language)
}

func bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
