// Package store is the file-system sink for finished recordings.
package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry describes one stored file.
type Entry struct {
	Name      string
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

// Sink writes and reads recording files under a fixed root, with video
// clips and standalone audio in separate subdirectories.
type Sink struct {
	root     string
	clipsDir string
	audioDir string
}

func New(root string) (*Sink, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recordings root: %w", err)
	}

	s := &Sink{
		root:     absRoot,
		clipsDir: filepath.Join(absRoot, "clips"),
		audioDir: filepath.Join(absRoot, "audio"),
	}

	for _, dir := range []string{s.clipsDir, s.audioDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Sink) Root() string     { return s.root }
func (s *Sink) ClipsDir() string { return s.clipsDir }
func (s *Sink) AudioDir() string { return s.audioDir }

// SaveClip writes a video clip and returns its absolute path.
func (s *Sink) SaveClip(data []byte, filename string) (string, error) {
	return s.write(filepath.Join(s.clipsDir, filename), data)
}

// SaveAudio writes an audio file and returns its absolute path.
func (s *Sink) SaveAudio(data []byte, filename string) (string, error) {
	return s.write(filepath.Join(s.audioDir, filename), data)
}

func (s *Sink) write(path string, data []byte) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := bufio.NewWriterSize(f, 8*1024*1024)
	if _, err := w.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// ReadAudio reads an audio file back after validating its location.
func (s *Sink) ReadAudio(path string) ([]byte, error) {
	validated, err := s.ValidateAudioPath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(validated)
}

// DeleteAudio removes an audio file after validating its location.
func (s *Sink) DeleteAudio(path string) (bool, error) {
	validated, err := s.ValidateAudioPath(path)
	if err != nil {
		return false, err
	}
	if err := os.Remove(validated); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ValidateAudioPath rejects any path outside the recordings audio
// directory.
func (s *Sink) ValidateAudioPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(s.audioDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the audio directory", path)
	}
	return abs, nil
}

// List returns the files in one of the sink's directories, newest first.
func (s *Sink) List(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:      f.Name(),
			Path:      filepath.Join(dir, f.Name()),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
