package queue

import (
	"errors"
	"io"
)

// ErrEmpty is returned by ReadNextRecord when there is nothing left to read.
var ErrEmpty = errors.New("queue: empty")

// Handle is an opaque reference to a record returned by ReadNextRecord. It
// binds the record to the queue generation it was read under; a Delete call
// made with a handle from a prior generation (e.g. after Truncate) is a
// silent no-op.
type Handle struct {
	generation int64
	fileID     int   // 0 for single-file queues
	offset     int64 // offset of the record's start marker
	length     int64
}

// Stream is the contract shared by the single-file and multi-file queue
// implementations: append-only writes, read-without-delete, and explicit
// transactional delete by handle.
type Stream interface {
	// AppendRecord writes payload as a new record, visible to ReadNextRecord
	// in FIFO order among records of the current generation.
	AppendRecord(payload []byte) error

	// ReadNextRecord dequeues the next unread record without deleting it.
	// Returns ErrEmpty if there is nothing pending.
	ReadNextRecord() (io.Reader, Handle, error)

	// DeleteRecord marks a record deleted. Idempotent; a handle from a prior
	// generation is silently ignored.
	DeleteRecord(h Handle) error

	// Truncate drops all records and bumps the generation, invalidating
	// every outstanding handle.
	Truncate() error

	// UnreadCount returns the number of pending (not yet returned by
	// ReadNextRecord) records.
	UnreadCount() int

	// Close releases the underlying file handle(s).
	Close() error
}
