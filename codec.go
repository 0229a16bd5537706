package kv_benchmark

import (
	"github.com/boreq/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	zstdDecoder *zstd.Decoder
	zstdEncoder *zstd.Encoder
)

func init() {
	var err error

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}

	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
}

// Codec transforms values on their way into and out of engines which don't
// compress on their own. Empty values are stored as they are.
type Codec interface {
	Name() string
	Encode(value []byte) []byte
	Decode(data []byte) ([]byte, error)
}

type NoopCodec struct {
}

func NewNoopCodec() *NoopCodec {
	return &NoopCodec{}
}

func (c NoopCodec) Name() string {
	return "noop"
}

func (c NoopCodec) Encode(value []byte) []byte {
	return value
}

func (c NoopCodec) Decode(data []byte) ([]byte, error) {
	return data, nil
}

type SnappyCodec struct {
}

func NewSnappyCodec() *SnappyCodec {
	return &SnappyCodec{}
}

func (c SnappyCodec) Name() string {
	return "snappy"
}

func (c SnappyCodec) Encode(value []byte) []byte {
	if len(value) == 0 {
		return value
	}
	return snappy.Encode(nil, value)
}

func (c SnappyCodec) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	v, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(err, "error calling snappy decode")
	}
	return v, nil
}

type ZSTDCodec struct {
}

func NewZSTDCodec() *ZSTDCodec {
	return &ZSTDCodec{}
}

func (c ZSTDCodec) Name() string {
	return "zstd"
}

func (c ZSTDCodec) Encode(value []byte) []byte {
	if len(value) == 0 {
		return value
	}
	return zstdEncoder.EncodeAll(value, nil)
}

func (c ZSTDCodec) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	v, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error calling zstd decode")
	}
	return v, nil
}
