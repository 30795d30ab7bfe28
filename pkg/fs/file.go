package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrFileDone = errors.New("atomic file already committed or aborted")

// AtomicFile writes into a temporary file next to its destination and only
// makes the destination visible on Commit. Readers never observe a partial
// file.
type AtomicFile struct {
	file *os.File
	path string
	done bool
}

// CreateAtomic opens a temporary file in the directory of path.
func CreateAtomic(path string, perm os.FileMode) (*AtomicFile, error) {
	if err := EnsureParentDir(path); err != nil {
		return nil, err
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	file, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("error creating temporary file for %s: %w", path, err)
	}
	if err := file.Chmod(perm); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, err
	}

	return &AtomicFile{file: file, path: path}, nil
}

func (a *AtomicFile) Write(p []byte) (int, error) {
	if a.done {
		return 0, ErrFileDone
	}
	return a.file.Write(p)
}

// TempName is the path of the temporary file.
func (a *AtomicFile) TempName() string {
	return a.file.Name()
}

// Commit syncs the data and renames the temporary file over the destination.
func (a *AtomicFile) Commit() error {
	if a.done {
		return ErrFileDone
	}
	a.done = true

	if err := a.file.Sync(); err != nil {
		a.file.Close()
		os.Remove(a.file.Name())
		return err
	}
	if err := a.file.Close(); err != nil {
		os.Remove(a.file.Name())
		return err
	}
	if err := os.Rename(a.file.Name(), a.path); err != nil {
		os.Remove(a.file.Name())
		return fmt.Errorf("error renaming %s to %s: %w", a.file.Name(), a.path, err)
	}
	return nil
}

// Abort removes the temporary file. It is a no-op after Commit, so it can be
// deferred unconditionally.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true

	closeErr := a.file.Close()
	if err := os.Remove(a.file.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}

// PartName names part id of a file split at path.
func PartName(path string, id uint64) string {
	return fmt.Sprintf("%s.%06d", path, id)
}
