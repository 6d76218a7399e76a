// Package ferrors defines the typed error kinds shared across the index
// engine (§7 of the design: NotFound, AlreadyExists, InvalidArgument,
// CorruptSegment, CorruptIndex, IOError, Timeout, Closed).
package ferrors

import "fmt"

// NotFoundError reports a missing named resource (index, document, manifest).
type NotFoundError struct {
	What string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.What, e.Name)
}

func NotFound(what, name string) error {
	return &NotFoundError{What: what, Name: name}
}

// AlreadyExistsError reports a duplicate creation attempt.
type AlreadyExistsError struct {
	What string
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.What, e.Name)
}

func AlreadyExists(what, name string) error {
	return &AlreadyExistsError{What: what, Name: name}
}

// InvalidArgumentError reports a malformed request.
type InvalidArgumentError struct {
	Detail string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Detail)
}

func InvalidArgument(detail string) error {
	return &InvalidArgumentError{Detail: detail}
}

// CorruptSegmentError reports a checksum mismatch at a known block offset.
type CorruptSegmentError struct {
	SegmentID   uint64
	BlockOffset int64
}

func (e *CorruptSegmentError) Error() string {
	return fmt.Sprintf("segment %d is corrupt at block offset %d", e.SegmentID, e.BlockOffset)
}

func CorruptSegment(segmentID uint64, blockOffset int64) error {
	return &CorruptSegmentError{SegmentID: segmentID, BlockOffset: blockOffset}
}

// CorruptIndexError reports that no valid manifest revision could be loaded.
type CorruptIndexError struct {
	Reason string
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("index is corrupt: %s", e.Reason)
}

func CorruptIndex(reason string) error {
	return &CorruptIndexError{Reason: reason}
}

// IOError wraps an underlying I/O failure.
type IOErrorKind struct {
	Cause error
}

func (e *IOErrorKind) Error() string {
	return fmt.Sprintf("i/o error: %v", e.Cause)
}

func (e *IOErrorKind) Unwrap() error {
	return e.Cause
}

func IOError(cause error) error {
	return &IOErrorKind{Cause: cause}
}

var (
	// ErrTimeout is returned when a search deadline expires.
	ErrTimeout = fmt.Errorf("timeout")
	// ErrClosed is returned by operations on a closed index or segment cache.
	ErrClosed = fmt.Errorf("closed")
)
