package store

import (
	"context"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/model"
)

// badgerKey holds the whole DB document.
var badgerKey = []byte("references:db")

// BadgerStore keeps the DB under a single Badger key.
type BadgerStore struct {
	db       *badger.DB
	seedPath string
}

// NewBadger opens (or creates) the Badger directory. When the key is absent,
// the first Load reads the JSON file at seedPath instead.
func NewBadger(dir, seedPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{log: zap.L().Named("badger").Sugar()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, eris.Wrapf(err, "badger: open %s", dir)
	}
	return &BadgerStore{db: db, seedPath: seedPath}, nil
}

// Load reads the DB document, seeding from the JSON file when empty.
func (s *BadgerStore) Load(ctx context.Context) (*model.ReferenceDB, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if eris.Is(err, badger.ErrKeyNotFound) {
		return s.seed(ctx)
	}
	if err != nil {
		return nil, eris.Wrap(err, "badger: get")
	}
	return decodeDB(data)
}

func (s *BadgerStore) seed(ctx context.Context) (*model.ReferenceDB, error) {
	if s.seedPath == "" {
		return nil, eris.Wrap(ErrNotFound, "badger: empty and no seed file")
	}
	db, err := NewFile(s.seedPath).Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "badger: seed")
	}
	zap.L().Info("badger: seeded from file", zap.String("path", s.seedPath), zap.Int("items", len(db.Items)))
	return db, nil
}

// Save writes the document in one transaction. Documents above the value
// threshold live in the value log, so the size bound is ValueLogFileSize
// (about 1 GiB by default), not the memtable batch limit.
func (s *BadgerStore) Save(_ context.Context, db *model.ReferenceDB) error {
	data, err := EncodeDB(db)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(badgerKey, data))
	})
	return eris.Wrap(err, "badger: set")
}

func (s *BadgerStore) Close() error {
	return eris.Wrap(s.db.Close(), "badger: close")
}

// badgerLogger adapts zap to Badger's logger interface. Badger's info
// chatter is demoted to debug.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{})   { l.log.Errorf(trim(f), v...) }
func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warnf(trim(f), v...) }
func (l *badgerLogger) Infof(f string, v ...interface{})    { l.log.Debugf(trim(f), v...) }
func (l *badgerLogger) Debugf(f string, v ...interface{})   { l.log.Debugf(trim(f), v...) }

func trim(f string) string {
	return strings.TrimSuffix(f, "\n")
}
