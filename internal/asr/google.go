package asr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

// GoogleTranscriber recognizes speech using Google Cloud Speech-to-Text.
// Authentication relies on Application Default Credentials.
type GoogleTranscriber struct {
	client *speech.Client
}

// NewGoogleTranscriber creates a Speech client using ADC.
func NewGoogleTranscriber(ctx context.Context) (*GoogleTranscriber, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating speech client: %w", err)
	}
	return &GoogleTranscriber{client: client}, nil
}

// Close releases the underlying gRPC connection.
func (g *GoogleTranscriber) Close() error {
	return g.client.Close()
}

// Transcribe reads the stored clip and runs synchronous recognition, joining
// all result alternatives into one transcript.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("reading audio file: %w", err)
	}

	cfg := &speechpb.RecognitionConfig{
		LanguageCode: LanguageCode(language),
	}
	cfg.Encoding, cfg.SampleRateHertz = encodingFor(audioPath)

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return "", fmt.Errorf("recognizing speech: %w", err)
	}

	var parts []string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			parts = append(parts, result.Alternatives[0].Transcript)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no speech recognized in %s", filepath.Base(audioPath))
	}
	return strings.Join(parts, " "), nil
}

// encodingFor infers the recognition encoding from the file extension.
// WAV carries its sample rate in the header; OGG_OPUS requires it explicitly.
func encodingFor(audioPath string) (speechpb.RecognitionConfig_AudioEncoding, int32) {
	switch strings.ToLower(filepath.Ext(audioPath)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16, 0
	case ".flac":
		return speechpb.RecognitionConfig_FLAC, 0
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS, 48000
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0
	}
}

// bcp47 maps the short language tags the mobile clients send to full
// recognition locales. Indian locales are assumed for Indic languages.
var bcp47 = map[string]string{
	"hi": "hi-IN",
	"bn": "bn-IN",
	"te": "te-IN",
	"mr": "mr-IN",
	"ta": "ta-IN",
	"gu": "gu-IN",
	"kn": "kn-IN",
	"ml": "ml-IN",
	"pa": "pa-IN",
	"en": "en-IN",
}

// LanguageCode normalizes a caller-supplied language tag into a BCP-47 code
// accepted by the speech APIs. Tags already carrying a region pass through.
func LanguageCode(language string) string {
	tag := strings.TrimSpace(language)
	if strings.Contains(tag, "-") {
		return tag
	}
	if code, ok := bcp47[strings.ToLower(tag)]; ok {
		return code
	}
	return tag
}
