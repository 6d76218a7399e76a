package vfs

import (
	"os"
	"path/filepath"

	"github.com/dchest/safefile"
	"github.com/pkg/errors"
)

// diskFS is a FileSystem rooted at a path on the local filesystem.
// Grounded on the teacher's index/fs.go fsDir, extended with Rename/Sync
// to satisfy the manifest's atomic-swap requirement (spec §4.10).
type diskFS struct {
	path string
	dir  *os.File
}

// OpenDisk opens (optionally creating) a directory on the local filesystem.
func OpenDisk(path string, create bool) (FileSystem, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		if create && os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0750); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	} else if !stat.IsDir() {
		return nil, errors.Errorf("%s is not a directory", path)
	}

	dir, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &diskFS{path: path, dir: dir}, nil
}

func (d *diskFS) join(name string) string {
	return filepath.Join(d.path, name)
}

func (d *diskFS) CreateFile(name string) (WritableFile, error) {
	return safefile.Create(d.join(name), 0644)
}

func (d *diskFS) OpenFile(name string) (ReadableFile, error) {
	return os.Open(d.join(name))
}

func (d *diskFS) RemoveFile(name string) error {
	err := os.Remove(d.join(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *diskFS) Rename(oldName, newName string) error {
	return os.Rename(d.join(oldName), d.join(newName))
}

func (d *diskFS) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (d *diskFS) Sync() error {
	return d.dir.Sync()
}

func (d *diskFS) Close() error {
	return d.dir.Close()
}

func (d *diskFS) Path() string {
	return d.path
}

func isOSNotExist(err error) bool {
	return os.IsNotExist(err)
}
