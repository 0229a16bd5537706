package fixtures

import (
	"math/rand"
	"os"
	"testing"
)

// Directory creates a directory in dir, or in the default temporary
// directory if dir is empty, which is removed when the test finishes.
func Directory(tb testing.TB, dir string) string {
	name, err := os.MkdirTemp(dir, "kvbench")
	if err != nil {
		tb.Fatal(err)
	}

	tb.Cleanup(func() {
		if err := os.RemoveAll(name); err != nil {
			tb.Fatal(err)
		}
	})

	return name
}

// RandomBytes returns incompressible data. Unlike the workload generator
// it isn't reproducible.
func RandomBytes(n int) []byte {
	r := make([]byte, n)
	_, err := rand.Read(r)
	if err != nil {
		panic(err)
	}
	return r
}
