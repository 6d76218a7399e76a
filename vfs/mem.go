package vfs

import (
	"bytes"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// memFS is an in-memory FileSystem, grounded on the teacher's
// index/fs.go memDir — used for tests and for running an index without
// any durability (spec §4.1's second backend).
type memFS struct {
	mu      sync.Mutex
	entries map[string][]byte
	closed  bool
}

// OpenMem creates a new in-memory directory.
func OpenMem() FileSystem {
	return &memFS{entries: make(map[string][]byte)}
}

func (d *memFS) CreateFile(name string) (WritableFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &memWritableFile{dir: d, name: name}, nil
}

func (d *memFS) OpenFile(name string) (ReadableFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.entries[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &memReadableFile{Reader: bytes.NewReader(data)}, nil
}

func (d *memFS) RemoveFile(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, name)
	return nil
}

func (d *memFS) Rename(oldName, newName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.entries[oldName]
	if !ok {
		return errors.Wrapf(os.ErrNotExist, "rename %s", oldName)
	}
	d.entries[newName] = data
	delete(d.entries, oldName)
	return nil
}

func (d *memFS) ListFiles() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	return names, nil
}

func (d *memFS) Sync() error { return nil }

func (d *memFS) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type memReadableFile struct {
	*bytes.Reader
}

func (f *memReadableFile) Close() error { return nil }

type memWritableFile struct {
	buf  bytes.Buffer
	dir  *memFS
	name string
}

func (f *memWritableFile) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

func (f *memWritableFile) Commit() error {
	f.dir.mu.Lock()
	defer f.dir.mu.Unlock()
	data := make([]byte, f.buf.Len())
	copy(data, f.buf.Bytes())
	f.dir.entries[f.name] = data
	return nil
}

func (f *memWritableFile) Close() error { return nil }
