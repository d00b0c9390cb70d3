package utils

import (
	"os"

	"github.com/jsonlt/jsonlt/jsonlterr"
)

// EnsureDirs creates all directories with 0o750 permissions, used when a
// table path's parent directory does not yet exist.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return jsonlterr.File(err, "create directory %s", dir)
		}
	}
	return nil
}

// ValidFile returns true if path is a regular file with size > 0.
func ValidFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
