package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestOpen_CreatesSubtrees(t *testing.T) {
	s := openTestStore(t)

	for _, dir := range []string{s.UploadsDir(), s.SynthDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%s): %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestSaveUpload_KeepsExtension(t *testing.T) {
	s := openTestStore(t)

	path, err := s.SaveUpload(strings.NewReader("OggS..."), "question.ogg")
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if filepath.Ext(path) != ".ogg" {
		t.Errorf("ext = %q, want .ogg", filepath.Ext(path))
	}
	if filepath.Dir(path) != s.UploadsDir() {
		t.Errorf("dir = %q, want %q", filepath.Dir(path), s.UploadsDir())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "OggS..." {
		t.Errorf("content = %q, want %q", data, "OggS...")
	}
}

func TestSaveUpload_DefaultExtension(t *testing.T) {
	s := openTestStore(t)

	path, err := s.SaveUpload(strings.NewReader("RIFF"), "blob")
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if filepath.Ext(path) != ".wav" {
		t.Errorf("ext = %q, want .wav", filepath.Ext(path))
	}
}

func TestSaveUpload_UniqueNames(t *testing.T) {
	s := openTestStore(t)

	p1, err := s.SaveUpload(strings.NewReader("a"), "a.wav")
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	p2, err := s.SaveUpload(strings.NewReader("b"), "a.wav")
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if p1 == p2 {
		t.Errorf("two uploads mapped to the same path %q", p1)
	}
}

func TestSaveSynth(t *testing.T) {
	s := openTestStore(t)

	path, err := s.SaveSynth([]byte{0xff, 0xfb}, ".mp3")
	if err != nil {
		t.Fatalf("SaveSynth: %v", err)
	}
	if filepath.Dir(path) != s.SynthDir() {
		t.Errorf("dir = %q, want %q", filepath.Dir(path), s.SynthDir())
	}
	if filepath.Ext(path) != ".mp3" {
		t.Errorf("ext = %q, want .mp3", filepath.Ext(path))
	}
}

func TestResolve(t *testing.T) {
	s := openTestStore(t)

	path, err := s.SaveSynth([]byte("audio"), ".mp3")
	if err != nil {
		t.Fatalf("SaveSynth: %v", err)
	}
	name := filepath.Base(path)

	got, err := s.Resolve("tts", name)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != path {
		t.Errorf("Resolve = %q, want %q", got, path)
	}

	if _, err := s.Resolve("tts", "nope.mp3"); err == nil {
		t.Error("Resolve of missing artifact should fail")
	}
	if _, err := s.Resolve("tts", "../"+name); err == nil {
		t.Error("Resolve should reject path traversal")
	}
	if _, err := s.Resolve("somewhere", name); err == nil {
		t.Error("Resolve should reject unknown subtree")
	}
}
