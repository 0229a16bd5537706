// Package workload produces the deterministic key/value stream every engine
// is benchmarked against, and the named operation size profiles.
package workload

import (
	"fmt"

	"github.com/boreq/errors"
)

const (
	DefaultKeySize   = 48
	DefaultValueSize = 2
	DefaultSeed      = 3
)

// Config fixes the shape of the stream. Two generators built from equal
// configs produce identical streams.
type Config struct {
	KeySize   int
	ValueSize int
	Seed      uint64
}

func DefaultConfig() Config {
	return Config{
		KeySize:   DefaultKeySize,
		ValueSize: DefaultValueSize,
		Seed:      DefaultSeed,
	}
}

func (c Config) Validate() error {
	if c.KeySize <= 0 {
		return fmt.Errorf("key size must be positive, got %d", c.KeySize)
	}
	if c.ValueSize < 0 {
		return fmt.Errorf("value size can't be negative, got %d", c.ValueSize)
	}
	return nil
}

// Generator yields elements, each element being one key draw followed by one
// value draw. A Generator must not be shared between goroutines.
type Generator struct {
	cfg          Config
	rng          *rng
	drawsPerElem uint64
	position     uint64
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg:          cfg,
		rng:          newRNG(cfg.Seed),
		drawsPerElem: draws(cfg.KeySize) + draws(cfg.ValueSize),
	}
}

// NewShard returns a generator positioned at the first element of the given
// shard, equivalent to a fresh generator that skipped
// index*(total/count) elements.
func NewShard(cfg Config, index, count, total int) (*Generator, error) {
	if count <= 0 {
		return nil, fmt.Errorf("shard count must be positive, got %d", count)
	}
	if index < 0 || index >= count {
		return nil, fmt.Errorf("shard index %d out of range [0, %d)", index, count)
	}
	if total < 0 {
		return nil, errors.New("total element count can't be negative")
	}
	g := NewGenerator(cfg)
	g.Skip(index * ShardLength(count, total))
	return g, nil
}

// ShardLength is the number of elements a single shard covers. The remainder
// of total/count is not assigned to any shard.
func ShardLength(count, total int) int {
	return total / count
}

// Position is the number of elements drawn or skipped so far.
func (g *Generator) Position() uint64 {
	return g.position
}

// Next draws one element. The returned slices are newly allocated.
func (g *Generator) Next() ([]byte, []byte) {
	key := make([]byte, g.cfg.KeySize)
	value := make([]byte, g.cfg.ValueSize)
	g.rng.fill(key)
	g.rng.fill(value)
	g.position++
	return key, value
}

// NextKey draws one element and returns its key.
func (g *Generator) NextKey() []byte {
	key, _ := g.Next()
	return key
}

// NextValue draws one element and returns its value.
func (g *Generator) NextValue() []byte {
	_, value := g.Next()
	return value
}

// Skip discards n elements. Every draw advances the wyrand state by a fixed
// increment so this doesn't have to replay the draws.
func (g *Generator) Skip(n int) {
	if n <= 0 {
		return
	}
	g.rng.state += uint64(n) * g.drawsPerElem * wyrandIncrement
	g.position += uint64(n)
}

// draws returns the number of 64 bit draws fill consumes for n bytes.
func draws(n int) uint64 {
	d := uint64(n/16) * 2
	rem := n % 16
	for _, width := range []int{8, 4, 2, 1} {
		if rem >= width {
			d++
			rem -= width
		}
	}
	return d
}
