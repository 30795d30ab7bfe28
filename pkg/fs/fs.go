// Package fs holds the small file helpers the command line tool needs.
package fs

import (
	"errors"
	"io/fs"
	"os"
)

// Exists reports whether filePath exists.
func Exists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
