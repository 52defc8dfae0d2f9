package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/referencias-work/curator-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Each item is one row
// holding its full JSON so unknown fields survive.
type SQLiteStore struct {
	db       *sql.DB
	seedPath string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Until the first Save, Load reads the JSON file at seedPath instead.
func NewSQLite(dsn, seedPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: mkdir %s", dir)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, seedPath: seedPath}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reference_items (
	id       TEXT NOT NULL,
	position INTEGER PRIMARY KEY,
	data     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reference_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reference_items_id ON reference_items(id);
`

// Migrate creates the tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads every item in position order. A database with no metadata row
// is seeded from the JSON file, or reports ErrNotFound without one.
func (s *SQLiteStore) Load(ctx context.Context) (*model.ReferenceDB, error) {
	db := &model.ReferenceDB{Items: []model.Reference{}}

	err := s.db.QueryRowContext(ctx, `SELECT value FROM reference_meta WHERE key = 'updatedAt'`).Scan(&db.UpdatedAt)
	if eris.Is(err, sql.ErrNoRows) {
		return s.seed(ctx)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read meta")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM reference_items ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query items")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		var ref model.Reference
		if err := json.Unmarshal([]byte(data), &ref); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode item")
		}
		db.Items = append(db.Items, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate items")
	}
	db.Count = len(db.Items)
	return db, nil
}

func (s *SQLiteStore) seed(ctx context.Context) (*model.ReferenceDB, error) {
	if s.seedPath == "" {
		return nil, eris.Wrap(ErrNotFound, "sqlite: empty and no seed file")
	}
	db, err := NewFile(s.seedPath).Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: seed")
	}
	zap.L().Info("sqlite: seeded from file", zap.String("path", s.seedPath), zap.Int("items", len(db.Items)))
	return db, nil
}

// Save replaces every row in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, db *model.ReferenceDB) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM reference_items`); err != nil {
		return eris.Wrap(err, "sqlite: clear items")
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reference_items (id, position, data) VALUES (?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, ref := range db.Items {
		data, err := encodeItem(ref)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode item %s", ref.ID)
		}
		if _, err := stmt.ExecContext(ctx, ref.ID, i, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: insert item %s", ref.ID)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reference_meta (key, value) VALUES ('updatedAt', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		db.UpdatedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: write meta")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}
