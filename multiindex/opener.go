package multiindex

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/fpindex/fpindex/vfs"
)

// DiskOpener opens each index as a subdirectory of Root on the local
// filesystem (spec §4.1's disk Directory backend, one per index name).
type DiskOpener struct {
	Root string
}

func (o DiskOpener) Open(name string, create bool) (vfs.FileSystem, error) {
	return vfs.OpenDisk(filepath.Join(o.Root, name), create)
}

func (o DiskOpener) Remove(name string) error {
	if err := os.RemoveAll(filepath.Join(o.Root, name)); err != nil {
		return errors.Wrapf(err, "multiindex: removing index directory %q failed", name)
	}
	return nil
}

// List returns the name of every immediate subdirectory of Root, each one
// an existing index (spec §4.8's "create allocates a subdirectory").
func (o DiskOpener) List() ([]string, error) {
	entries, err := os.ReadDir(o.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "multiindex: listing %q failed", o.Root)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// MemOpener opens each index as its own in-memory vfs.FileSystem, kept
// alive across repeated Open calls for the same name so a deleted index's
// closed FileSystem is never handed back out. Grounded on vfs.OpenMem's
// use in the engine and manifest test suites as the disk backend's stand-in.
type MemOpener struct {
	mu sync.Mutex
	fs map[string]vfs.FileSystem
}

func NewMemOpener() *MemOpener {
	return &MemOpener{fs: make(map[string]vfs.FileSystem)}
}

func (o *MemOpener) Open(name string, create bool) (vfs.FileSystem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if fs, ok := o.fs[name]; ok {
		return fs, nil
	}
	if !create {
		return nil, errors.Errorf("multiindex: index %q does not exist", name)
	}
	fs := vfs.OpenMem()
	o.fs[name] = fs
	return fs, nil
}

func (o *MemOpener) Remove(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.fs, name)
	return nil
}

func (o *MemOpener) List() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.fs))
	for name := range o.fs {
		names = append(names, name)
	}
	return names, nil
}
