package kv_benchmark

import (
	"github.com/boreq/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// OpenLevelDBDatabase opens or creates a database in dir.
func OpenLevelDBDatabase(dir string, config OpenConfig) (*leveldb.DB, error) {
	o := &opt.Options{
		BlockCacheCapacity:     64 * opt.MiB,
		CompactionL0Trigger:    4,
		WriteL0SlowdownTrigger: 16,
		WriteL0PauseTrigger:    24,
		CompactionTableSize:    8 * opt.MiB,
		WriteBuffer:            64 * opt.MiB,
		Compression:            opt.SnappyCompression,
		NoSync:                 config.NoSync,
	}

	if config.CacheSize > 0 {
		o.BlockCacheCapacity = int(config.CacheSize)
	}

	db, err := leveldb.OpenFile(dir, o)
	if err != nil {
		return nil, errors.Wrap(err, "error opening the database")
	}

	return db, nil
}

type LevelDBEngine struct {
	db *leveldb.DB
}

func NewLevelDBEngine(db *leveldb.DB) *LevelDBEngine {
	return &LevelDBEngine{db: db}
}

func (l *LevelDBEngine) BeginRead() (ReadTransaction, error) {
	snapshot, err := l.db.GetSnapshot()
	if err != nil {
		return nil, errors.Wrap(err, "error calling get snapshot")
	}

	return &TxLevelDBRead{snapshot: snapshot}, nil
}

// BeginWrite blocks until all other write transactions are committed or
// discarded.
func (l *LevelDBEngine) BeginWrite() (WriteTransaction, error) {
	tx, err := l.db.OpenTransaction()
	if err != nil {
		return nil, errors.Wrap(err, "error calling open transaction")
	}

	return &TxLevelDBWrite{tx: tx}, nil
}

// Compact compacts the entire key space.
func (l *LevelDBEngine) Compact() error {
	if err := l.db.CompactRange(util.Range{}); err != nil {
		return errors.Wrap(err, "error calling compact range")
	}
	return nil
}

func (l *LevelDBEngine) Close() error {
	return l.db.Close()
}

type TxLevelDBWrite struct {
	tx     *leveldb.Transaction
	closed bool
}

func (t *TxLevelDBWrite) Inserter() Inserter {
	return t
}

func (t *TxLevelDBWrite) Insert(key, value []byte) error {
	if t.closed {
		return ErrClosed
	}
	return t.tx.Put(key, value, nil)
}

func (t *TxLevelDBWrite) Remove(key []byte) (bool, error) {
	if t.closed {
		return false, ErrClosed
	}

	ok, err := t.tx.Has(key, nil)
	if err != nil {
		return false, errors.Wrap(err, "error calling has")
	}

	if !ok {
		return false, nil
	}

	if err := t.tx.Delete(key, nil); err != nil {
		return false, errors.Wrap(err, "error calling delete")
	}

	return true, nil
}

func (t *TxLevelDBWrite) Commit() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true

	if err := t.tx.Commit(); err != nil {
		t.tx.Discard()
		return errors.Wrap(err, "error calling commit")
	}

	return nil
}

func (t *TxLevelDBWrite) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.tx.Discard()
	return nil
}

type TxLevelDBRead struct {
	snapshot *leveldb.Snapshot
	closed   bool
}

func (t *TxLevelDBRead) Reader() Reader {
	return t
}

func (t *TxLevelDBRead) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.snapshot.Release()
	return nil
}

func (t *TxLevelDBRead) Len() (uint64, error) {
	if t.closed {
		return 0, ErrClosed
	}

	it := t.snapshot.NewIterator(nil, nil)
	defer it.Release()

	var n uint64
	for it.Next() {
		n++
	}

	if err := it.Error(); err != nil {
		return 0, errors.Wrap(err, "iterator error")
	}

	return n, nil
}

func (t *TxLevelDBRead) Get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrClosed
	}

	value, err := t.snapshot.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "error calling get")
	}

	return value, true, nil
}

func (t *TxLevelDBRead) RangeFrom(key []byte) (Iterator, error) {
	if t.closed {
		return nil, ErrClosed
	}

	return &levelDBIterator{it: t.snapshot.NewIterator(&util.Range{Start: key}, nil)}, nil
}

type levelDBIterator struct {
	it iterator.Iterator
}

func (i *levelDBIterator) Next() bool {
	return i.it.Next()
}

func (i *levelDBIterator) Key() []byte {
	return i.it.Key()
}

func (i *levelDBIterator) Value() []byte {
	return i.it.Value()
}

func (i *levelDBIterator) Err() error {
	return i.it.Error()
}

func (i *levelDBIterator) Close() error {
	i.it.Release()
	return nil
}
