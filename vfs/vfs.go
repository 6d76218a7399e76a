// Package vfs provides the Directory abstraction (spec §4.1): a minimal
// capability set for opening, creating, listing, renaming, and syncing
// named byte streams, backed either by the local filesystem or by memory.
package vfs

import "io"

// ReadableFile supports random access reads over a durable byte stream.
type ReadableFile interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// WritableFile accumulates writes that become visible only after Commit.
// Commit must guarantee that, once it returns, the bytes are durable and
// visible to OpenFile under the name the file was created with.
type WritableFile interface {
	io.Writer
	io.Closer
	Commit() error
}

// FileSystem is the Directory capability set from spec §4.1.
type FileSystem interface {
	// CreateFile opens name for atomic creation or replacement: writes
	// accumulate in a temporary location and only become visible to
	// OpenFile once Commit succeeds, replacing any existing file of the
	// same name (mirrors github.com/dchest/safefile's rename-on-commit
	// semantics, which the disk backend uses directly).
	CreateFile(name string) (WritableFile, error)

	// OpenFile opens an existing file for reading.
	OpenFile(name string) (ReadableFile, error)

	// RemoveFile deletes a file. It is not an error if the file is absent.
	RemoveFile(name string) error

	// Rename atomically replaces newName with the contents of oldName.
	// Both names must refer to the same directory.
	Rename(oldName, newName string) error

	// ListFiles returns the names of all regular files in the directory.
	ListFiles() ([]string, error)

	// Sync flushes any directory-level metadata (e.g. after a rename) so
	// that a subsequent crash cannot lose the rename.
	Sync() error

	// Close releases any resources held by the FileSystem.
	Close() error
}

// IsNotExist reports whether err indicates a missing file.
func IsNotExist(err error) bool {
	type notExister interface{ IsNotExist() bool }
	if ne, ok := err.(notExister); ok {
		return ne.IsNotExist()
	}
	return isOSNotExist(err)
}
