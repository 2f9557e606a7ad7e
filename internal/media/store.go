// Package media stores audio artifacts on disk: raw farmer uploads and
// synthesized answer audio, in separate subtrees under the data directory.
// File names are freshly generated per request, so concurrent writes never
// collide. The store only ever creates files; cleanup of artifacts that no
// interaction references is the reaper's job.
package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	uploadsDir = "audio"
	synthDir   = "tts"

	// Uploads without a usable extension are assumed to be WAV, matching
	// what the mobile recorder produces.
	defaultUploadExt = ".wav"
)

// Store manages the on-disk artifact tree.
type Store struct {
	root string
}

// Open prepares the artifact subtrees under dataDir and returns a Store.
func Open(dataDir string) (*Store, error) {
	for _, sub := range []string{uploadsDir, synthDir} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", sub, err)
		}
	}
	return &Store{root: dataDir}, nil
}

// UploadsDir returns the directory holding raw uploaded audio.
func (s *Store) UploadsDir() string {
	return filepath.Join(s.root, uploadsDir)
}

// SynthDir returns the directory holding synthesized answer audio.
func (s *Store) SynthDir() string {
	return filepath.Join(s.root, synthDir)
}

// SaveUpload writes an uploaded audio clip to the uploads subtree under a
// freshly generated name, keeping the original extension when present.
// It returns the absolute path of the stored file.
func (s *Store) SaveUpload(r io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = defaultUploadExt
	}
	return s.write(s.UploadsDir(), ext, r)
}

// SaveSynth writes synthesized audio bytes to the tts subtree and returns the
// absolute path of the stored file. ext must include the leading dot.
func (s *Store) SaveSynth(data []byte, ext string) (string, error) {
	name := artifactName(ext)
	path := filepath.Join(s.SynthDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing synthesized audio: %w", err)
	}
	return path, nil
}

// Resolve maps a bare artifact file name to its path inside the given
// subtree, rejecting names that would escape it.
func (s *Store) Resolve(subtree, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	var dir string
	switch subtree {
	case uploadsDir:
		dir = s.UploadsDir()
	case synthDir:
		dir = s.SynthDir()
	default:
		return "", fmt.Errorf("unknown artifact subtree %q", subtree)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("artifact %s/%s does not exist", subtree, name)
		}
		return "", err
	}
	return path, nil
}

func (s *Store) write(dir, ext string, r io.Reader) (string, error) {
	path := filepath.Join(dir, artifactName(ext))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating artifact file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing artifact file: %w", err)
	}
	return path, nil
}

func artifactName(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ReplaceAll(uuid.New().String(), "-", "") + ext
}
