package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kisanmitra/kisanmitra/internal/media"
	"github.com/kisanmitra/kisanmitra/internal/storage"
)

// fakeTranscriber returns a fixed transcript or error.
type fakeTranscriber struct {
	text  string
	err   error
	block bool // when set, wait for ctx cancellation instead of returning
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// fakeAnswerer records its input and returns fixed output.
type fakeAnswerer struct {
	answer   string
	sources  *string
	err      error
	question string
	crop     string
	language string
}

func (f *fakeAnswerer) Answer(ctx context.Context, question, crop, language string) (string, *string, error) {
	f.question, f.crop, f.language = question, crop, language
	if f.err != nil {
		return "", nil, f.err
	}
	return f.answer, f.sources, nil
}

// fakeSynthesizer writes a real artifact through the media store.
type fakeSynthesizer struct {
	media *media.Store
	err   error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, language string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.media.SaveSynth([]byte(text), ".mp3")
}

type fixture struct {
	orch        *Orchestrator
	store       *storage.Store
	media       *media.Store
	transcriber *fakeTranscriber
	answerer    *fakeAnswerer
	synthesizer *fakeSynthesizer
}

func setup(t *testing.T, timeouts Timeouts) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mediaStore, err := media.Open(t.TempDir())
	if err != nil {
		t.Fatalf("media.Open failed: %v", err)
	}

	sources := "state_agri_dept_url"
	f := &fixture{
		store:       store,
		media:       mediaStore,
		transcriber: &fakeTranscriber{text: "यहाँ ऑडियो ट्रांसक्रिप्ट दिखाई देगा"},
		answerer:    &fakeAnswerer{answer: "संक्षेप: नीम का तेल छिड़कें।", sources: &sources},
		synthesizer: &fakeSynthesizer{media: mediaStore},
	}
	f.orch = New(f.transcriber, f.answerer, f.synthesizer, mediaStore, store, timeouts)
	return f
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	return len(entries)
}

func TestAsk_TextOnly(t *testing.T) {
	f := setup(t, Timeouts{})

	question := "गेहूं में कीड़े लग गए हैं"
	res, err := f.orch.Ask(context.Background(), AskRequest{
		Language: "hi",
		Crop:     "wheat",
		Question: question,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if res.Question != question {
		t.Errorf("question = %q, want input question", res.Question)
	}
	if res.Transcript != nil {
		t.Errorf("transcript = %v, want nil", res.Transcript)
	}
	if res.Answer != f.answerer.answer {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.Sources == nil || *res.Sources != "state_agri_dept_url" {
		t.Errorf("sources = %v", res.Sources)
	}
	if res.TTSPath == "" {
		t.Error("tts_path is empty")
	}
	if f.answerer.question != question || f.answerer.crop != "wheat" || f.answerer.language != "hi" {
		t.Errorf("answerer saw (%q, %q, %q)", f.answerer.question, f.answerer.crop, f.answerer.language)
	}

	n, err := f.store.CountInteractions()
	if err != nil {
		t.Fatalf("CountInteractions: %v", err)
	}
	if n != 1 {
		t.Fatalf("interaction count = %d, want exactly 1", n)
	}

	row, err := f.store.GetInteraction(res.ID)
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}
	if row.Transcript != nil {
		t.Errorf("row transcript = %v, want nil", row.Transcript)
	}
	if row.Question == nil || *row.Question != question {
		t.Errorf("row question = %v, want %q", row.Question, question)
	}
	if row.Language != "hi" || row.Crop != "wheat" {
		t.Errorf("row language/crop = %q/%q", row.Language, row.Crop)
	}

	if got := countFiles(t, f.media.UploadsDir()); got != 0 {
		t.Errorf("uploads = %d, want 0 for text-only request", got)
	}
	if got := countFiles(t, f.media.SynthDir()); got != 1 {
		t.Errorf("synth files = %d, want 1", got)
	}
}

func TestAsk_AudioOnly(t *testing.T) {
	f := setup(t, Timeouts{})

	res, err := f.orch.Ask(context.Background(), AskRequest{
		Language:  "hi",
		Audio:     strings.NewReader("RIFF fake wav"),
		AudioName: "question.wav",
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if res.Transcript == nil || *res.Transcript != f.transcriber.text {
		t.Errorf("transcript = %v, want transcriber output", res.Transcript)
	}
	if res.Question != f.transcriber.text {
		t.Errorf("question = %q, want the transcript", res.Question)
	}
	if res.Crop != DefaultCrop {
		t.Errorf("crop = %q, want default %q", res.Crop, DefaultCrop)
	}

	row, err := f.store.GetInteraction(res.ID)
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}
	if row.Question != nil {
		t.Errorf("row question = %v, want nil for audio-only request", row.Question)
	}
	if row.Transcript == nil || *row.Transcript != f.transcriber.text {
		t.Errorf("row transcript = %v", row.Transcript)
	}
	if row.AudioPath == nil {
		t.Fatal("row audio_path is nil")
	}
	if _, err := os.Stat(*row.AudioPath); err != nil {
		t.Errorf("stored upload missing: %v", err)
	}
	if filepath.Ext(*row.AudioPath) != ".wav" {
		t.Errorf("upload ext = %q, want .wav", filepath.Ext(*row.AudioPath))
	}

	// One upload plus one synthesized artifact.
	if got := countFiles(t, f.media.UploadsDir()); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}
	if got := countFiles(t, f.media.SynthDir()); got != 1 {
		t.Errorf("synth files = %d, want 1", got)
	}
}

// When both text and audio are supplied, the transcript wins as the effective
// question, but the literal text is still recorded.
func TestAsk_AudioWinsOverText(t *testing.T) {
	f := setup(t, Timeouts{})

	res, err := f.orch.Ask(context.Background(), AskRequest{
		Language:  "hi",
		Question:  "typed question",
		Audio:     strings.NewReader("audio"),
		AudioName: "q.ogg",
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if res.Question != f.transcriber.text {
		t.Errorf("effective question = %q, want transcript", res.Question)
	}
	if f.answerer.question != f.transcriber.text {
		t.Errorf("answerer saw %q, want transcript", f.answerer.question)
	}

	row, err := f.store.GetInteraction(res.ID)
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}
	if row.Question == nil || *row.Question != "typed question" {
		t.Errorf("row question = %v, want the literal text", row.Question)
	}
}

func TestAsk_RejectsEmptyRequest(t *testing.T) {
	f := setup(t, Timeouts{})

	_, err := f.orch.Ask(context.Background(), AskRequest{Language: "hi"})
	if !errors.Is(err, ErrNoQuestion) {
		t.Errorf("err = %v, want ErrNoQuestion", err)
	}

	_, err = f.orch.Ask(context.Background(), AskRequest{Question: "q"})
	if !errors.Is(err, ErrNoLanguage) {
		t.Errorf("err = %v, want ErrNoLanguage", err)
	}

	n, err := f.store.CountInteractions()
	if err != nil {
		t.Fatalf("CountInteractions: %v", err)
	}
	if n != 0 {
		t.Errorf("interaction count = %d, want 0", n)
	}
}

// If the answer capability fails, no row is committed but the uploaded audio
// remains on disk as an orphan.
func TestAsk_AnswerFailureLeavesOrphanUpload(t *testing.T) {
	f := setup(t, Timeouts{})
	f.answerer.err = errors.New("model unavailable")

	_, err := f.orch.Ask(context.Background(), AskRequest{
		Language:  "hi",
		Audio:     strings.NewReader("audio"),
		AudioName: "q.wav",
	})
	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want CapabilityError", err)
	}
	if capErr.Stage != "answering" {
		t.Errorf("stage = %q, want answering", capErr.Stage)
	}

	n, err := f.store.CountInteractions()
	if err != nil {
		t.Fatalf("CountInteractions: %v", err)
	}
	if n != 0 {
		t.Errorf("interaction count = %d, want 0 after capability failure", n)
	}
	if got := countFiles(t, f.media.UploadsDir()); got != 1 {
		t.Errorf("uploads = %d, want the orphaned file to remain", got)
	}
}

func TestAsk_SynthesisFailure(t *testing.T) {
	f := setup(t, Timeouts{})
	f.synthesizer.err = errors.New("voice unavailable")

	_, err := f.orch.Ask(context.Background(), AskRequest{Language: "hi", Question: "q"})
	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want CapabilityError", err)
	}
	if capErr.Stage != "synthesis" {
		t.Errorf("stage = %q, want synthesis", capErr.Stage)
	}

	n, _ := f.store.CountInteractions()
	if n != 0 {
		t.Errorf("interaction count = %d, want 0", n)
	}
}

func TestAsk_TranscriptionTimeout(t *testing.T) {
	f := setup(t, Timeouts{ASR: 10 * time.Millisecond})
	f.transcriber.block = true

	_, err := f.orch.Ask(context.Background(), AskRequest{
		Language:  "hi",
		Audio:     strings.NewReader("audio"),
		AudioName: "q.wav",
	})
	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want CapabilityError", err)
	}
	if capErr.Stage != "transcription" {
		t.Errorf("stage = %q, want transcription", capErr.Stage)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded in chain", err)
	}
}

func TestAsk_RowCountGrowsByOnePerCall(t *testing.T) {
	f := setup(t, Timeouts{})

	for n := 1; n <= 3; n++ {
		if _, err := f.orch.Ask(context.Background(), AskRequest{Language: "hi", Question: "q"}); err != nil {
			t.Fatalf("Ask #%d: %v", n, err)
		}
		count, err := f.store.CountInteractions()
		if err != nil {
			t.Fatalf("CountInteractions: %v", err)
		}
		if count != n {
			t.Fatalf("after %d calls count = %d", n, count)
		}
	}
}
