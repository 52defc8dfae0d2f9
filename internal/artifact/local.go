package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/referencias-work/curator-cli/internal/store"
)

// Local writes artifacts into a directory.
type Local struct {
	dir string
}

// NewLocal creates a Local sink rooted at dir. The directory is created on
// first write.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Put writes name atomically and refuses to overwrite an existing artifact.
func (l *Local) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, name)
	if _, err := os.Stat(path); err == nil {
		return "", eris.Errorf("artifact: %s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", eris.Wrapf(err, "artifact: stat %s", path)
	}
	if err := store.WriteFileAtomic(path, data); err != nil {
		return "", eris.Wrapf(err, "artifact: write %s", name)
	}
	return path, nil
}
