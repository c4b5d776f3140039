// Package recording persists uploaded and live audio under generated ids.
package recording

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var ErrNotFound = errors.New("recording not found")

type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore stores recordings in dir on fs, creating dir if needed.
func NewStore(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir %s: %w", dir, err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// NewOSStore stores recordings on the local disk.
func NewOSStore(dir string) (*Store, error) {
	return NewStore(afero.NewOsFs(), dir)
}

// Save writes data as <id><ext> and returns the id. An empty id gets a new UUID.
func (s *Store) Save(id, ext string, data []byte) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	name := id + normalizeExt(ext)
	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("save recording %s: %w", name, err)
	}
	log.Debug().Str("id", id).Int("bytes", len(data)).Msg("recording: saved")
	return id, nil
}

// Open returns a reader for the recording with the given id.
func (s *Store) Open(id string) (io.ReadCloser, string, error) {
	path, err := s.find(id)
	if err != nil {
		return nil, "", err
	}
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open recording %s: %w", id, err)
	}
	return f, path, nil
}

func (s *Store) Delete(id string) error {
	path, err := s.find(id)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("delete recording %s: %w", id, err)
	}
	return nil
}

func (s *Store) find(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", ErrNotFound
	}
	matches, err := afero.Glob(s.fs, filepath.Join(s.dir, id+"*"))
	if err != nil {
		return "", fmt.Errorf("find recording %s: %w", id, err)
	}
	for _, m := range matches {
		base := filepath.Base(m)
		if strings.TrimSuffix(base, filepath.Ext(base)) == id {
			return m, nil
		}
	}
	return "", ErrNotFound
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Exists reports whether the recordings directory is present.
func (s *Store) Exists() bool {
	fi, err := s.fs.Stat(s.dir)
	return err == nil && fi.IsDir()
}
