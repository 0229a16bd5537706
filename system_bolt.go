package kv_benchmark

import (
	"bytes"
	"path"

	"github.com/boreq/errors"
	"go.etcd.io/bbolt"
)

var boltBucketName = []byte("values")

// OpenBoltDatabase opens or creates database.bolt in dir. MapSize is used as
// the initial mmap size so that readers are never blocked by a remap.
func OpenBoltDatabase(dir string, config OpenConfig) (*bbolt.DB, error) {
	f := path.Join(dir, "database.bolt")
	db, err := bbolt.Open(f, 0600, &bbolt.Options{
		InitialMmapSize: int(config.MapSize),
		NoSync:          config.NoSync,
		NoFreelistSync:  config.NoSync,
		FreelistType:    bbolt.FreelistMapType,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error opening the database")
	}

	return db, nil
}

type BoltEngine struct {
	db    *bbolt.DB
	codec Codec
}

// NewBoltEngine binds an open database. The values bucket is created if it
// doesn't exist yet.
func NewBoltEngine(db *bbolt.DB, codec Codec) (*BoltEngine, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucketName)
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "error creating the bucket")
	}

	return &BoltEngine{db: db, codec: codec}, nil
}

func (b *BoltEngine) BeginRead() (ReadTransaction, error) {
	tx, err := b.db.Begin(false)
	if err != nil {
		return nil, errors.Wrap(err, "error calling begin")
	}

	return newTxBolt(tx, b.codec), nil
}

func (b *BoltEngine) BeginWrite() (WriteTransaction, error) {
	tx, err := b.db.Begin(true)
	if err != nil {
		return nil, errors.Wrap(err, "error calling begin")
	}

	return newTxBolt(tx, b.codec), nil
}

func (b *BoltEngine) Sync() error {
	return b.db.Sync()
}

func (b *BoltEngine) Close() error {
	return b.db.Close()
}

// TxBolt serves as both the read and the write transaction, bbolt uses the
// same type for both.
type TxBolt struct {
	tx     *bbolt.Tx
	bucket *bbolt.Bucket
	codec  Codec
	closed bool
}

func newTxBolt(tx *bbolt.Tx, codec Codec) *TxBolt {
	return &TxBolt{
		tx:     tx,
		bucket: tx.Bucket(boltBucketName),
		codec:  codec,
	}
}

func (t *TxBolt) Reader() Reader {
	return t
}

func (t *TxBolt) Inserter() Inserter {
	return t
}

func (t *TxBolt) Commit() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	return t.tx.Commit()
}

func (t *TxBolt) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.tx.Rollback()
}

func (t *TxBolt) Close() error {
	return t.Rollback()
}

func (t *TxBolt) Insert(key, value []byte) error {
	if t.closed {
		return ErrClosed
	}
	return t.bucket.Put(key, t.codec.Encode(value))
}

func (t *TxBolt) Remove(key []byte) (bool, error) {
	if t.closed {
		return false, ErrClosed
	}

	k, _ := t.bucket.Cursor().Seek(key)
	if !bytes.Equal(k, key) {
		return false, nil
	}

	if err := t.bucket.Delete(key); err != nil {
		return false, errors.Wrap(err, "error calling delete")
	}

	return true, nil
}

func (t *TxBolt) Len() (uint64, error) {
	if t.closed {
		return 0, ErrClosed
	}
	return uint64(t.bucket.Stats().KeyN), nil
}

func (t *TxBolt) Get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrClosed
	}

	k, v := t.bucket.Cursor().Seek(key)
	if !bytes.Equal(k, key) {
		return nil, false, nil
	}

	value, err := t.codec.Decode(v)
	if err != nil {
		return nil, false, errors.Wrap(err, "error decoding the value")
	}

	return value, true, nil
}

func (t *TxBolt) RangeFrom(key []byte) (Iterator, error) {
	if t.closed {
		return nil, ErrClosed
	}

	return &boltIterator{
		cursor: t.bucket.Cursor(),
		seek:   key,
		codec:  t.codec,
	}, nil
}

type boltIterator struct {
	cursor  *bbolt.Cursor
	codec   Codec
	seek    []byte
	started bool
	key     []byte
	value   []byte
	err     error
}

func (i *boltIterator) Next() bool {
	if i.err != nil {
		return false
	}

	var k, v []byte
	if !i.started {
		i.started = true
		k, v = i.cursor.Seek(i.seek)
	} else {
		k, v = i.cursor.Next()
	}

	if k == nil {
		i.key, i.value = nil, nil
		return false
	}

	value, err := i.codec.Decode(v)
	if err != nil {
		i.err = errors.Wrap(err, "error decoding the value")
		return false
	}

	i.key = k
	i.value = value
	return true
}

func (i *boltIterator) Key() []byte {
	return i.key
}

func (i *boltIterator) Value() []byte {
	return i.value
}

func (i *boltIterator) Err() error {
	return i.err
}

func (i *boltIterator) Close() error {
	return nil
}
