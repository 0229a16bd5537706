package kv_benchmark

import (
	"github.com/boreq/errors"
	"golang.org/x/sys/unix"
)

// AvailableDisk returns the number of bytes available to an unprivileged user
// on the filesystem containing path.
func AvailableDisk(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, errors.Wrap(err, "error calling statfs")
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
