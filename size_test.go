package kv_benchmark_test

import (
	"os"
	"path/filepath"
	"testing"

	kv "github.com/boreq/kv_benchmark"
	"github.com/boreq/kv_benchmark/fixtures"
	"github.com/stretchr/testify/require"
)

func TestDirSize(t *testing.T) {
	dir := fixtures.Directory(t, "")

	size, err := kv.DirSize(dir)
	require.NoError(t, err)
	require.Zero(t, size)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b", "c"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "c", "d"), make([]byte, 23), 0600))

	size, err = kv.DirSize(dir)
	require.NoError(t, err)
	require.Equal(t, uint64(123), size)
}

func TestDirSizeReturnsAnErrorForMissingDirectories(t *testing.T) {
	dir := fixtures.Directory(t, "")

	_, err := kv.DirSize(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestAvailableDisk(t *testing.T) {
	dir := fixtures.Directory(t, "")

	available, err := kv.AvailableDisk(dir)
	require.NoError(t, err)
	require.NotZero(t, available)
}
