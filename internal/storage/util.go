package storage

import (
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory holding a database file.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
