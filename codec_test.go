package kv_benchmark_test

import (
	"bytes"
	"testing"

	kv "github.com/boreq/kv_benchmark"
	"github.com/boreq/kv_benchmark/fixtures"
	"github.com/stretchr/testify/require"
)

func TestCodecs(t *testing.T) {
	codecs := []kv.Codec{
		kv.NewNoopCodec(),
		kv.NewSnappyCodec(),
		kv.NewZSTDCodec(),
	}

	values := map[string][]byte{
		"empty":        {},
		"short":        []byte("ab"),
		"random":       fixtures.RandomBytes(1000),
		"compressible": bytes.Repeat([]byte("value"), 200),
	}

	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			for name, value := range values {
				t.Run(name, func(t *testing.T) {
					encoded := codec.Encode(value)

					decoded, err := codec.Decode(encoded)
					require.NoError(t, err)
					require.Equal(t, len(value), len(decoded))
					require.True(t, bytes.Equal(value, decoded))
				})
			}
		})
	}
}

func TestCompressingCodecsShrinkRepetitiveValues(t *testing.T) {
	value := bytes.Repeat([]byte("value"), 200)

	for _, codec := range []kv.Codec{kv.NewSnappyCodec(), kv.NewZSTDCodec()} {
		t.Run(codec.Name(), func(t *testing.T) {
			require.Less(t, len(codec.Encode(value)), len(value))
		})
	}
}

func TestCodecsRejectCorruptedData(t *testing.T) {
	for _, codec := range []kv.Codec{kv.NewSnappyCodec(), kv.NewZSTDCodec()} {
		t.Run(codec.Name(), func(t *testing.T) {
			_, err := codec.Decode([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
			require.Error(t, err)
		})
	}
}
