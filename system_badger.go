package kv_benchmark

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/boreq/errors"
	"github.com/dgraph-io/badger/v4"
	badgeroptions "github.com/dgraph-io/badger/v4/options"
)

// OpenBadgerDatabase opens or creates a database in dir. fn can adjust the
// options before the database is opened.
func OpenBadgerDatabase(dir string, config OpenConfig, fn func(*badger.Options)) (*badger.DB, error) {
	opt := badger.
		DefaultOptions(dir).
		WithLogger(newBadgerLogger(config.logger())).
		WithSyncWrites(!config.NoSync).
		WithNumCompactors(max(2, runtime.NumCPU()/2)).
		WithCompression(badgeroptions.None)

	if config.CacheSize > 0 {
		opt = opt.WithBlockCacheSize(config.CacheSize)
	}

	if fn != nil {
		fn(&opt)
	}

	db, err := badger.Open(opt)
	if err != nil {
		return nil, errors.Wrap(err, "error opening the database")
	}

	return db, nil
}

type BadgerEngine struct {
	db *badger.DB
}

func NewBadgerEngine(db *badger.DB) *BadgerEngine {
	return &BadgerEngine{db: db}
}

func (b *BadgerEngine) BeginRead() (ReadTransaction, error) {
	return &TxBadgerRead{tx: b.db.NewTransaction(false)}, nil
}

func (b *BadgerEngine) BeginWrite() (WriteTransaction, error) {
	return &TxBadgerWrite{db: b.db, tx: b.db.NewTransaction(true)}, nil
}

func (b *BadgerEngine) Sync() error {
	return b.db.Sync()
}

// Compact flattens the LSM tree into a single level and collects the value
// log.
func (b *BadgerEngine) Compact() error {
	if err := b.db.Flatten(runtime.NumCPU()); err != nil {
		return errors.Wrap(err, "error calling flatten")
	}

	for {
		if err := b.db.RunValueLogGC(0.5); err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				return nil
			}
			return errors.Wrap(err, "error calling value log gc")
		}
	}
}

func (b *BadgerEngine) Close() error {
	return b.db.Close()
}

// TxBadgerWrite splits itself into several native transactions if the
// mutations don't fit into one. Only the last part is committed by Commit.
type TxBadgerWrite struct {
	db     *badger.DB
	tx     *badger.Txn
	closed bool
}

func (t *TxBadgerWrite) Inserter() Inserter {
	return t
}

func (t *TxBadgerWrite) Insert(key, value []byte) error {
	if t.closed {
		return ErrClosed
	}

	return t.retryTooBig(func() error {
		return t.tx.Set(key, value)
	})
}

func (t *TxBadgerWrite) Remove(key []byte) (bool, error) {
	if t.closed {
		return false, ErrClosed
	}

	if _, err := t.tx.Get(key); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "error calling get")
	}

	if err := t.retryTooBig(func() error {
		return t.tx.Delete(key)
	}); err != nil {
		return false, errors.Wrap(err, "error calling delete")
	}

	return true, nil
}

func (t *TxBadgerWrite) retryTooBig(fn func() error) error {
	err := fn()
	if !errors.Is(err, badger.ErrTxnTooBig) {
		return err
	}

	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing the full transaction")
	}
	t.tx = t.db.NewTransaction(true)

	return fn()
}

func (t *TxBadgerWrite) Commit() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	return t.tx.Commit()
}

func (t *TxBadgerWrite) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.tx.Discard()
	return nil
}

type TxBadgerRead struct {
	tx     *badger.Txn
	closed bool
}

func (t *TxBadgerRead) Reader() Reader {
	return t
}

func (t *TxBadgerRead) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.tx.Discard()
	return nil
}

func (t *TxBadgerRead) Len() (uint64, error) {
	if t.closed {
		return 0, ErrClosed
	}

	it := t.tx.NewIterator(badger.IteratorOptions{PrefetchValues: false})
	defer it.Close()

	var n uint64
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n, nil
}

func (t *TxBadgerRead) Get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrClosed
	}

	item, err := t.tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "error calling get")
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "error calling value copy")
	}

	return value, true, nil
}

func (t *TxBadgerRead) RangeFrom(key []byte) (Iterator, error) {
	if t.closed {
		return nil, ErrClosed
	}

	it := t.tx.NewIterator(badger.IteratorOptions{
		PrefetchValues: true,
		PrefetchSize:   10,
	})
	it.Seek(key)

	return &badgerIterator{it: it}, nil
}

type badgerIterator struct {
	it      *badger.Iterator
	started bool
	key     []byte
	value   []byte
	err     error
}

func (i *badgerIterator) Next() bool {
	if i.err != nil {
		return false
	}

	if i.started {
		i.it.Next()
	}
	i.started = true

	if !i.it.Valid() {
		i.key, i.value = nil, nil
		return false
	}

	item := i.it.Item()
	value, err := item.ValueCopy(i.value[:0])
	if err != nil {
		i.err = errors.Wrap(err, "error calling value copy")
		return false
	}

	i.key = item.Key()
	i.value = value
	return true
}

func (i *badgerIterator) Key() []byte {
	return i.key
}

func (i *badgerIterator) Value() []byte {
	return i.value
}

func (i *badgerIterator) Err() error {
	return i.err
}

func (i *badgerIterator) Close() error {
	i.it.Close()
	return nil
}

type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With(slog.String("engine", "badger"))}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Infof is demoted, badger reports every compaction at the info level.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
