package tts

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/kisanmitra/kisanmitra/internal/asr"
	"github.com/kisanmitra/kisanmitra/internal/media"
)

// GoogleSynthesizer produces answer audio with Google Cloud Text-to-Speech
// and stores it through the media store. Authentication relies on
// Application Default Credentials.
type GoogleSynthesizer struct {
	client *texttospeech.Client
	media  *media.Store
}

// NewGoogleSynthesizer creates a Text-to-Speech client using ADC.
func NewGoogleSynthesizer(ctx context.Context, mediaStore *media.Store) (*GoogleSynthesizer, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating text-to-speech client: %w", err)
	}
	return &GoogleSynthesizer{client: client, media: mediaStore}, nil
}

// Close releases the underlying gRPC connection.
func (g *GoogleSynthesizer) Close() error {
	return g.client.Close()
}

// Synthesize renders the text as MP3 and writes it to the tts subtree. The
// stored path is returned only after the file is fully written.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, text, language string) (string, error) {
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: asr.LanguageCode(language),
			SsmlGender:   texttospeechpb.SsmlVoiceGender_FEMALE,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return "", fmt.Errorf("synthesizing speech: %w", err)
	}

	path, err := g.media.SaveSynth(resp.AudioContent, ".mp3")
	if err != nil {
		return "", fmt.Errorf("storing synthesized audio: %w", err)
	}
	return path, nil
}
