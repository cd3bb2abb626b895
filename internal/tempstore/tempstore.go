// Package tempstore persists derived images outside memory. Every store owns
// its folder through a lock file, so two running instances never write into
// the same temp folder.
package tempstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/conneroisu/charoster/internal/errors"
)

const lockName = ".charoster.lock"

// Store writes uniquely named files into a locked folder
type Store struct {
	fs   afero.Fs
	dir  string
	lock *flock.Flock

	mu    sync.Mutex
	files map[string]struct{}
}

// New creates the folder and locks it. When another process holds the lock,
// the store moves into a fresh sub-folder with a lock of its own.
func New(dir string) (*Store, error) {
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeWriteFailed, "create temp folder").WithPath(dir)
	}

	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeWriteFailed, "acquire temp folder lock").WithPath(dir)
	}
	if !ok {
		dir = filepath.Join(dir, uuid.NewString())
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeWriteFailed, "create temp folder").WithPath(dir)
		}
		lock = flock.New(filepath.Join(dir, lockName))
		if _, err := lock.TryLock(); err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeWriteFailed, "acquire temp folder lock").WithPath(dir)
		}
	}

	return &Store{
		fs:    fs,
		dir:   dir,
		lock:  lock,
		files: make(map[string]struct{}),
	}, nil
}

// Dir returns the folder the store writes into
func (s *Store) Dir() string {
	return s.dir
}

// Write stores data under a fresh uuid name keeping the extension of name
// (.png when it has none) and returns the file path.
func (s *Store) Write(name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".png"
	}
	path := filepath.Join(s.dir, uuid.NewString()+ext)

	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", errors.WrapIO(err, errors.ErrCodeWriteFailed, "write temp file").WithPath(path)
	}

	s.mu.Lock()
	s.files[path] = struct{}{}
	s.mu.Unlock()
	return path, nil
}

// Read returns the content of a file written by the store
func (s *Store) Read(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrFileNotFound(path, err)
		}
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, "read temp file").WithPath(path)
	}
	return data, nil
}

// Remove deletes one file written by the store
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[path]; !ok {
		return nil
	}
	delete(s.files, path)
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "remove temp file").WithPath(path)
	}
	return nil
}

// Clear removes every file the store wrote
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path := range s.files {
		if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = errors.WrapIO(err, errors.ErrCodeWriteFailed, "remove temp file").WithPath(path)
		}
		delete(s.files, path)
	}
	return firstErr
}

// Len returns the number of files currently written
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Close removes the written files and releases the folder lock
func (s *Store) Close() error {
	err := s.Clear()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = errors.WrapIO(unlockErr, errors.ErrCodeWriteFailed, "release temp folder lock").WithPath(s.dir)
	}
	return err
}
