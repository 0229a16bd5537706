package workload

import (
	"encoding/binary"
	"math/bits"
)

const (
	wyrandIncrement = 0xa0761d6478bd642f
	wyrandMultiply  = 0xe7037ed1a0b428db
)

// rng is a wyrand stream. Every draw advances the state by the same
// increment, so n draws can be skipped with a single addition.
type rng struct {
	state uint64
}

func newRNG(seed uint64) *rng {
	return &rng{state: seed}
}

func (r *rng) uint64() uint64 {
	r.state += wyrandIncrement
	hi, lo := bits.Mul64(r.state, r.state^wyrandMultiply)
	return hi ^ lo
}

// fill writes random bytes into every position of b using the widest draws
// first: 128 bit while possible, then at most one 64, 32, 16 and 8 bit draw.
func (r *rng) fill(b []byte) {
	i := 0
	for i+16 <= len(b) {
		hi := r.uint64()
		lo := r.uint64()
		binary.LittleEndian.PutUint64(b[i:], lo)
		binary.LittleEndian.PutUint64(b[i+8:], hi)
		i += 16
	}
	if i+8 <= len(b) {
		binary.LittleEndian.PutUint64(b[i:], r.uint64())
		i += 8
	}
	if i+4 <= len(b) {
		binary.LittleEndian.PutUint32(b[i:], uint32(r.uint64()))
		i += 4
	}
	if i+2 <= len(b) {
		binary.LittleEndian.PutUint16(b[i:], uint16(r.uint64()))
		i += 2
	}
	if i+1 <= len(b) {
		b[i] = byte(r.uint64())
	}
}
