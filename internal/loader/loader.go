// Package loader reads JSON entity records and their assets out of the work
// folder's pack tree.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/types"
)

// ManifestFile is the pack manifest name
const ManifestFile = "info.json"

// Loader reads files through an afero filesystem.
type Loader struct {
	fs afero.Fs
}

// New creates a loader. A nil fs reads the host filesystem.
func New(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs}
}

// Fs returns the underlying filesystem
func (l *Loader) Fs() afero.Fs {
	return l.fs
}

// PacksPath returns <work>/packs
func PacksPath(work string) string {
	return filepath.Join(work, "packs")
}

// PackPath returns <work>/packs/<pack>
func PackPath(work, pack string) string {
	return filepath.Join(work, "packs", pack)
}

// ManifestPath returns <work>/packs/<pack>/info.json
func ManifestPath(work, pack string) string {
	return filepath.Join(PackPath(work, pack), ManifestFile)
}

// EntityPath returns <work>/packs/<pack>/<folder>/<entityId>.json
func EntityPath(work, pack, folder, entityID string) string {
	return filepath.Join(PackPath(work, pack), folder, entityID+".json")
}

// AssetPath returns <work>/packs/<pack>/<folder>/<entityId>/<file>
func AssetPath(work, pack, folder, entityID, file string) string {
	return filepath.Join(PackPath(work, pack), folder, entityID, filepath.FromSlash(file))
}

// LoadFile reads one JSON entity file. A missing file fails with a NotFound
// error, malformed JSON or a non-object document with a ParseError.
func (l *Loader) LoadFile(path string) (types.Entity, error) {
	var entity map[string]interface{}
	if err := l.ReadJSON(path, &entity); err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, errors.ErrInvalidJSON(path, fmt.Errorf("document is not an object"))
	}
	return types.Entity(entity), nil
}

// ReadJSON decodes a JSON file into v
func (l *Loader) ReadJSON(path string, v interface{}) error {
	data, err := l.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.ErrInvalidJSON(path, err)
	}
	return nil
}

// ReadFile reads a whole file, mapping a missing file to a NotFound error
func (l *Loader) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrFileNotFound(path, err)
		}
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, "failed to read file").WithPath(path)
	}
	return data, nil
}

// Exists reports whether a regular file exists at path
func (l *Loader) Exists(path string) bool {
	info, err := l.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// ListJSON returns the ids of every *.json file directly inside dir, sorted.
// A missing directory yields no ids.
func (l *Loader) ListJSON(dir string) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, "failed to list folder").WithPath(dir)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		ids = append(ids, entry.Name()[:len(entry.Name())-len(".json")])
	}
	return ids, nil
}

// ListDirs returns the names of the sub-folders of dir, sorted
func (l *Loader) ListDirs(dir string) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrFileNotFound(dir, err)
		}
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, "failed to list folder").WithPath(dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
