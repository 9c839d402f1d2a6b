package wizard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

// ErrNoSession is returned by Load when nothing is stored under the name.
var ErrNoSession = errors.New("wizard: no saved session")

// Store persists sessions keyed by wizard name.
type Store interface {
	Load(name string) (*Session, error)
	Save(s *Session) error
	Clear(name string) error
}

var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`) //nolint:gochecknoglobals // compiled once

// FileStore keeps one JSON file per wizard name in a directory.
type FileStore struct {
	dir string
}

// NewFileStore stores sessions in dir, creating it on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// DefaultDir is evidra/wizard under the user's config directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("wizard.DefaultDir: %w", err)
	}
	return filepath.Join(base, "evidra", "wizard"), nil
}

func (f *FileStore) path(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("wizard: invalid session name %q", name)
	}
	return filepath.Join(f.dir, name+".json"), nil
}

func (f *FileStore) Load(name string) (*Session, error) {
	p, err := f.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("wizard.FileStore.Load: %w", err)
	}
	return Decode(b)
}

// Save writes the session atomically through a temp file and rename.
func (f *FileStore) Save(s *Session) error {
	p, err := f.path(s.Name)
	if err != nil {
		return err
	}
	b, err := Encode(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("wizard.FileStore.Save: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, s.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("wizard.FileStore.Save: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("wizard.FileStore.Save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("wizard.FileStore.Save: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("wizard.FileStore.Save: %w", err)
	}
	return nil
}

// Clear removes the session. Clearing a missing session is not an error.
func (f *FileStore) Clear(name string) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("wizard.FileStore.Clear: %w", err)
	}
	return nil
}
