package fs

import (
	"errors"
	"os"
	"path/filepath"
)

var ErrNotDirectory = errors.New("path exists but is not a directory")

// EnsureParentDir creates the directory that will hold filePath.
func EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)

	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		return nil
	}

	if os.IsExist(err) {
		stat, statErr := os.Stat(dir)
		if statErr != nil {
			return statErr
		}
		if !stat.IsDir() {
			return ErrNotDirectory
		}
		return nil
	}

	return err
}
