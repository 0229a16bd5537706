package kv_benchmark

import "github.com/boreq/errors"

// ErrClosed is returned when a transaction is used after it was committed,
// rolled back or closed.
var ErrClosed = errors.New("transaction is closed")

// Engine is the capability surface every storage engine under test exposes.
// Engines are safe for concurrent use; transactions are not.
type Engine interface {
	BeginRead() (ReadTransaction, error)
	BeginWrite() (WriteTransaction, error)
	Close() error
}

// ReadTransaction sees a consistent view of the engine as of the moment it
// was started. Close drops it.
type ReadTransaction interface {
	Reader() Reader
	Close() error
}

type Reader interface {
	// Len returns the number of keys visible to the transaction.
	Len() (uint64, error)

	// Get returns the value stored under key. The value is only valid until
	// the transaction is closed.
	Get(key []byte) ([]byte, bool, error)

	// RangeFrom returns a cursor positioned at the first key greater than or
	// equal to key, iterating in ascending order.
	RangeFrom(key []byte) (Iterator, error)
}

// Iterator is a forward only cursor. Key and Value are only valid until the
// next call to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// WriteTransaction collects mutations that become visible on Commit. Engines
// decide whether concurrently started write transactions block.
type WriteTransaction interface {
	Inserter() Inserter
	Commit() error
	Rollback() error
}

// Inserter must not be used after its transaction was committed or rolled
// back. A failed Insert or Remove leaves the transaction usable.
type Inserter interface {
	Insert(key, value []byte) error

	// Remove returns false if the key didn't exist.
	Remove(key []byte) (bool, error)
}

// Syncer is implemented by engines which buffer writes outside of the
// transaction commit path.
type Syncer interface {
	Sync() error
}

// Compactor is implemented by engines which can be asked to compact their
// on-disk representation.
type Compactor interface {
	Compact() error
}
