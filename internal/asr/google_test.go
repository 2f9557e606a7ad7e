package asr

import (
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
)

func TestLanguageCode(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"hi", "hi-IN"},
		{"HI", "hi-IN"},
		{"en", "en-IN"},
		{"ta", "ta-IN"},
		{"hi-IN", "hi-IN"},
		{"en-US", "en-US"},
		{" hi ", "hi-IN"},
		{"xx", "xx"},
	}
	for _, c := range cases {
		if got := LanguageCode(c.in); got != c.want {
			t.Errorf("LanguageCode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEncodingFor(t *testing.T) {
	cases := []struct {
		path string
		enc  speechpb.RecognitionConfig_AudioEncoding
		rate int32
	}{
		{"/data/audio/a.wav", speechpb.RecognitionConfig_LINEAR16, 0},
		{"/data/audio/a.WAV", speechpb.RecognitionConfig_LINEAR16, 0},
		{"/data/audio/a.flac", speechpb.RecognitionConfig_FLAC, 0},
		{"/data/audio/a.ogg", speechpb.RecognitionConfig_OGG_OPUS, 48000},
		{"/data/audio/a.opus", speechpb.RecognitionConfig_OGG_OPUS, 48000},
		{"/data/audio/a.bin", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0},
	}
	for _, c := range cases {
		enc, rate := encodingFor(c.path)
		if enc != c.enc || rate != c.rate {
			t.Errorf("encodingFor(%q) = (%v, %d), want (%v, %d)", c.path, enc, rate, c.enc, c.rate)
		}
	}
}
