package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/referencias-work/curator-cli/internal/model"
)

// FileStore keeps the DB in one JSON document.
type FileStore struct {
	path string
}

// NewFile creates a FileStore over path.
func NewFile(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads and decodes the JSON document.
func (s *FileStore) Load(_ context.Context) (*model.ReferenceDB, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "file: %s", s.path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file: read %s", s.path)
	}
	return decodeDB(data)
}

// Save writes the DB with 2-space indentation through a temp file and rename.
func (s *FileStore) Save(_ context.Context, db *model.ReferenceDB) error {
	data, err := EncodeDB(db)
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.path, data)
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func decodeDB(data []byte) (*model.ReferenceDB, error) {
	var db model.ReferenceDB
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, eris.Wrap(err, "store: decode reference db")
	}
	if db.Items == nil {
		db.Items = []model.Reference{}
	}
	return &db, nil
}

// EncodeDB renders the DB the way the file driver writes it: 2-space indent,
// no HTML escaping.
func EncodeDB(db *model.ReferenceDB) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(db); err != nil {
		return nil, eris.Wrap(err, "store: encode reference db")
	}
	return buf.Bytes(), nil
}

func encodeItem(ref model.Reference) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ref); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "store: mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "store: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "store: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "store: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "store: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "store: rename to %s", path)
	}
	return nil
}
