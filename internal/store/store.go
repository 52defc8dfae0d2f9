// Package store persists the reference DB. Every driver loads and saves the
// whole DB as one unit and writes atomically.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/referencias-work/curator-cli/internal/model"
)

// Driver names.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// ErrNotFound is returned by Load when no DB has been stored yet.
var ErrNotFound = eris.New("reference db not found")

// Store defines the persistence interface for the reference DB.
type Store interface {
	Load(ctx context.Context) (*model.ReferenceDB, error)
	Save(ctx context.Context, db *model.ReferenceDB) error
	Close() error
}

// Options selects and configures a driver.
type Options struct {
	Driver string
	// Path is the JSON file for the file driver and the seed file for the
	// sqlite and badger drivers.
	Path string
	// DSN is the SQLite database path.
	DSN string
	// Dir is the Badger directory.
	Dir string
}

// Open creates the Store named by opts.Driver. Empty selects the file driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverFile:
		if opts.Path == "" {
			return nil, eris.New("store: file driver requires a path")
		}
		return NewFile(opts.Path), nil
	case DriverSQLite:
		if opts.DSN == "" {
			return nil, eris.New("store: sqlite driver requires a dsn")
		}
		st, err := NewSQLite(opts.DSN, opts.Path)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case DriverBadger:
		if opts.Dir == "" {
			return nil, eris.New("store: badger driver requires a dir")
		}
		return NewBadger(opts.Dir, opts.Path)
	}
	return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
}
