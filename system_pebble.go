package kv_benchmark

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/boreq/errors"
	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/bloom"
)

const pebbleDefaultCacheSize = 256 << 20

// OpenPebbleDatabase opens or creates a database in dir.
func OpenPebbleDatabase(dir string, config OpenConfig) (*pebble.DB, error) {
	cacheSize := config.CacheSize
	if cacheSize <= 0 {
		cacheSize = pebbleDefaultCacheSize
	}

	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:        cache,
		MemTableSize: 64 << 20,
		Logger:       newPebbleLogger(config.logger()),
	}
	opts.EnsureDefaults()

	policy := bloom.FilterPolicy(10)
	for i := range opts.Levels {
		opts.Levels[i].FilterPolicy = policy
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "error opening the database")
	}

	return db, nil
}

type PebbleEngine struct {
	db           *pebble.DB
	writeOptions *pebble.WriteOptions
}

func NewPebbleEngine(db *pebble.DB, noSync bool) *PebbleEngine {
	writeOptions := pebble.Sync
	if noSync {
		writeOptions = pebble.NoSync
	}
	return &PebbleEngine{db: db, writeOptions: writeOptions}
}

func (p *PebbleEngine) BeginRead() (ReadTransaction, error) {
	return &TxPebbleRead{snapshot: p.db.NewSnapshot()}, nil
}

// BeginWrite returns an indexed batch so that Remove can see keys inserted
// earlier in the same transaction.
func (p *PebbleEngine) BeginWrite() (WriteTransaction, error) {
	return &TxPebbleWrite{batch: p.db.NewIndexedBatch(), db: p.db, writeOptions: p.writeOptions}, nil
}

func (p *PebbleEngine) Sync() error {
	return p.db.Flush()
}

// Compact compacts the entire key space.
func (p *PebbleEngine) Compact() error {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return errors.Wrap(err, "error creating an iterator")
	}

	var first, last []byte
	if iter.First() {
		first = append(first, iter.Key()...)
	}
	if iter.Last() {
		last = append(last, iter.Key()...)
	}

	if err := iter.Close(); err != nil {
		return errors.Wrap(err, "error closing the iterator")
	}

	if first == nil {
		return nil
	}

	// the end of the range is exclusive
	last = append(last, 0)

	if err := p.db.Compact(context.Background(), first, last, true); err != nil {
		return errors.Wrap(err, "error calling compact")
	}

	return nil
}

func (p *PebbleEngine) Close() error {
	return p.db.Close()
}

type TxPebbleWrite struct {
	db           *pebble.DB
	batch        *pebble.Batch
	writeOptions *pebble.WriteOptions
	closed       bool
}

func (t *TxPebbleWrite) Inserter() Inserter {
	return t
}

func (t *TxPebbleWrite) Insert(key, value []byte) error {
	if t.closed {
		return ErrClosed
	}
	return t.batch.Set(key, value, nil)
}

func (t *TxPebbleWrite) Remove(key []byte) (bool, error) {
	if t.closed {
		return false, ErrClosed
	}

	_, closer, err := t.batch.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "error calling get")
	}

	if err := closer.Close(); err != nil {
		return false, errors.Wrap(err, "error closing the value")
	}

	if err := t.batch.Delete(key, nil); err != nil {
		return false, errors.Wrap(err, "error calling delete")
	}

	return true, nil
}

func (t *TxPebbleWrite) Commit() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true

	if err := t.batch.Commit(t.writeOptions); err != nil {
		t.batch.Close()
		return errors.Wrap(err, "error calling commit")
	}

	return t.batch.Close()
}

func (t *TxPebbleWrite) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.batch.Close()
}

type TxPebbleRead struct {
	snapshot *pebble.Snapshot
	closed   bool
}

func (t *TxPebbleRead) Reader() Reader {
	return t
}

func (t *TxPebbleRead) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.snapshot.Close()
}

func (t *TxPebbleRead) Len() (uint64, error) {
	if t.closed {
		return 0, ErrClosed
	}

	iter, err := t.snapshot.NewIter(nil)
	if err != nil {
		return 0, errors.Wrap(err, "error creating an iterator")
	}

	var n uint64
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}

	if err := iter.Close(); err != nil {
		return 0, errors.Wrap(err, "error closing the iterator")
	}

	return n, nil
}

func (t *TxPebbleRead) Get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrClosed
	}

	v, closer, err := t.snapshot.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "error calling get")
	}

	value := make([]byte, len(v))
	copy(value, v)

	if err := closer.Close(); err != nil {
		return nil, false, errors.Wrap(err, "error closing the value")
	}

	return value, true, nil
}

func (t *TxPebbleRead) RangeFrom(key []byte) (Iterator, error) {
	if t.closed {
		return nil, ErrClosed
	}

	iter, err := t.snapshot.NewIter(&pebble.IterOptions{LowerBound: key})
	if err != nil {
		return nil, errors.Wrap(err, "error creating an iterator")
	}

	return &pebbleIterator{iter: iter}, nil
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	started bool
	valid   bool
}

func (i *pebbleIterator) Next() bool {
	if !i.started {
		i.started = true
		i.valid = i.iter.First()
	} else if i.valid {
		i.valid = i.iter.Next()
	}
	return i.valid
}

func (i *pebbleIterator) Key() []byte {
	if !i.valid {
		return nil
	}
	return i.iter.Key()
}

func (i *pebbleIterator) Value() []byte {
	if !i.valid {
		return nil
	}
	return i.iter.Value()
}

func (i *pebbleIterator) Err() error {
	return i.iter.Error()
}

func (i *pebbleIterator) Close() error {
	return i.iter.Close()
}

type pebbleLogger struct {
	logger *slog.Logger
}

func newPebbleLogger(logger *slog.Logger) *pebbleLogger {
	return &pebbleLogger{logger: logger.With(slog.String("engine", "pebble"))}
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}
