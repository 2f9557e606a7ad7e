package reaper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	return path
}

func staticRefs(paths ...string) func() (map[string]bool, error) {
	refs := make(map[string]bool)
	for _, p := range paths {
		refs[p] = true
	}
	return func() (map[string]bool, error) { return refs, nil }
}

func TestRunOnce_RemovesOldOrphans(t *testing.T) {
	uploads := t.TempDir()
	synth := t.TempDir()

	orphan := writeFile(t, uploads, "orphan.wav", 2*time.Hour)
	orphanSynth := writeFile(t, synth, "orphan.mp3", 2*time.Hour)
	referenced := writeFile(t, uploads, "kept.wav", 2*time.Hour)
	fresh := writeFile(t, uploads, "fresh.wav", time.Minute)

	r := New(staticRefs(referenced), []string{uploads, synth}, time.Hour, time.Hour)
	removed, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	for _, path := range []string{orphan, orphanSynth} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still exists", path)
		}
	}
	for _, path := range []string{referenced, fresh} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s was removed: %v", path, err)
		}
	}
}

func TestRunOnce_EmptyDirs(t *testing.T) {
	r := New(staticRefs(), []string{t.TempDir(), t.TempDir()}, time.Hour, time.Hour)
	removed, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestReferencedPaths_Pages(t *testing.T) {
	audio := "/data/audio/a.wav"
	tts := "/data/tts/b.mp3"

	var calls int
	list := func(limit, offset int) ([]Referenced, error) {
		calls++
		if offset > 0 {
			return nil, nil
		}
		return []Referenced{
			{AudioPath: &audio, TTSPath: &tts},
			{AudioPath: nil, TTSPath: nil},
		}, nil
	}

	refs, err := ReferencedPaths(list)
	if err != nil {
		t.Fatalf("ReferencedPaths: %v", err)
	}
	if !refs[audio] || !refs[tts] {
		t.Errorf("refs = %v, want both paths", refs)
	}
	if len(refs) != 2 {
		t.Errorf("len = %d, want 2", len(refs))
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (short page ends paging)", calls)
	}
}
