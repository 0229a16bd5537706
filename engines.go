package kv_benchmark

import (
	"io"
	"log/slog"
	"strings"

	"github.com/boreq/errors"
	"github.com/dgraph-io/badger/v4"
	badgeroptions "github.com/dgraph-io/badger/v4/options"
)

// OpenConfig tunes engines when they are opened. Zero values select engine
// defaults.
type OpenConfig struct {
	// NoSync disables fsync on commit for engines which support that.
	NoSync bool

	// MapSize is the size of the memory map for memory-mapped engines.
	MapSize uint64

	// CacheSize is the block cache size for engines with a block cache.
	CacheSize int64

	Logger *slog.Logger
}

func (c OpenConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

type EngineConstructor func(dir string, config OpenConfig) (Engine, error)

type EngineDefinition struct {
	Name        string
	Constructor EngineConstructor
}

// Engines returns every engine this benchmark knows how to drive.
func Engines() []EngineDefinition {
	return []EngineDefinition{
		{
			Name:        "bbolt",
			Constructor: boltConstructor(NewNoopCodec()),
		},
		{
			Name:        "bbolt_snappy",
			Constructor: boltConstructor(NewSnappyCodec()),
		},
		{
			Name:        "bbolt_zstd",
			Constructor: boltConstructor(NewZSTDCodec()),
		},
		{
			Name:        "badger",
			Constructor: badgerConstructor(badgeroptions.None),
		},
		{
			Name:        "badger_snappy",
			Constructor: badgerConstructor(badgeroptions.Snappy),
		},
		{
			Name:        "badger_zstd",
			Constructor: badgerConstructor(badgeroptions.ZSTD),
		},
		{
			Name: "pebble",
			Constructor: func(dir string, config OpenConfig) (Engine, error) {
				db, err := OpenPebbleDatabase(dir, config)
				if err != nil {
					return nil, errors.Wrap(err, "error opening pebble")
				}
				return NewPebbleEngine(db, config.NoSync), nil
			},
		},
		{
			Name: "leveldb",
			Constructor: func(dir string, config OpenConfig) (Engine, error) {
				db, err := OpenLevelDBDatabase(dir, config)
				if err != nil {
					return nil, errors.Wrap(err, "error opening leveldb")
				}
				return NewLevelDBEngine(db), nil
			},
		},
	}
}

// FindEngines resolves a comma separated list of engine names. An empty list
// selects all engines.
func FindEngines(names string) ([]EngineDefinition, error) {
	all := Engines()
	if strings.TrimSpace(names) == "" {
		return all, nil
	}

	var result []EngineDefinition
	for _, name := range strings.Split(names, ",") {
		definition, err := FindEngine(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		result = append(result, definition)
	}
	return result, nil
}

func FindEngine(name string) (EngineDefinition, error) {
	for _, definition := range Engines() {
		if definition.Name == name {
			return definition, nil
		}
	}
	return EngineDefinition{}, errors.New("unknown engine: " + name)
}

func boltConstructor(codec Codec) EngineConstructor {
	return func(dir string, config OpenConfig) (Engine, error) {
		db, err := OpenBoltDatabase(dir, config)
		if err != nil {
			return nil, errors.Wrap(err, "error opening bbolt")
		}

		engine, err := NewBoltEngine(db, codec)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "error binding bbolt")
		}

		return engine, nil
	}
}

func badgerConstructor(compression badgeroptions.CompressionType) EngineConstructor {
	return func(dir string, config OpenConfig) (Engine, error) {
		db, err := OpenBadgerDatabase(dir, config, func(options *badger.Options) {
			options.Compression = compression
		})
		if err != nil {
			return nil, errors.Wrap(err, "error opening badger")
		}
		return NewBadgerEngine(db), nil
	}
}
