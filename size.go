package kv_benchmark

import (
	"io/fs"
	"path/filepath"

	"github.com/boreq/errors"
)

// DirSize returns the summed size of all regular files under path.
func DirSize(path string) (uint64, error) {
	var size uint64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return errors.Wrap(err, "error getting file info")
		}
		size += uint64(info.Size())
		return nil
	})
	return size, err
}
