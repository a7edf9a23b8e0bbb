// Package atomicfile commits whole files: the content is written to a
// temporary file in the destination directory, synced, then renamed over the
// destination. Readers see either the previous file or the complete new one.
package atomicfile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

// DefaultPerm is used for new files when the caller passes 0
const DefaultPerm os.FileMode = 0o644

// WriteFile atomically replaces path with data
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return Write(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}, perm)
}

// Write atomically replaces path with whatever fill writes. When fill or any
// later step fails the temporary file is removed and path is left untouched.
func Write(path string, fill func(w io.Writer) error, perm os.FileMode) error {
	if perm == 0 {
		perm = DefaultPerm
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, perm)

	bw := bufio.NewWriterSize(tmp, 64*1024)
	if err := fill(bw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// best effort: persist the rename itself
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
