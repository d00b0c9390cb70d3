package utils

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/jsonlt/jsonlt/jsonlterr"
)

// AtomicWriteFile writes data to a file atomically using temp + fsync +
// rename, so a compaction (spec §4.5) is never visible half-written: readers
// see either the pre-compaction file or the fully-written post-compaction
// one, never a partial one.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return jsonlterr.File(err, "create temp file")
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()
	defer tmp.Close() //nolint:errcheck

	if _, err = tmp.Write(data); err != nil {
		return jsonlterr.File(err, "write temp file")
	}
	if err = tmp.Sync(); err != nil {
		return jsonlterr.File(err, "sync temp file")
	}
	if err = tmp.Chmod(perm); err != nil {
		return jsonlterr.File(err, "chmod temp file")
	}
	if err = tmp.Close(); err != nil {
		return jsonlterr.File(err, "close temp file")
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return jsonlterr.File(err, "rename temp to target")
	}
	if err = SyncParentDir(dir); err != nil {
		return jsonlterr.File(err, "sync parent dir")
	}
	return nil
}

// SyncParentDir fsyncs the directory containing the file to ensure the
// directory entry for an atomic rename is persisted.
func SyncParentDir(dir string) error {
	parent, err := os.Open(dir) //nolint:gosec // directory is derived from a caller-supplied table path
	if err != nil {
		return err
	}
	defer parent.Close() //nolint:errcheck

	if err := parent.Sync(); err != nil &&
		!errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTSUP) && !errors.Is(err, syscall.EBADF) {
		return err
	}
	return nil
}
