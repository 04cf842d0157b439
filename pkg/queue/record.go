// Package queue implements the transactional record queue used for durable
// at-least-once message handoff between producers and consumers: a
// resumable, append-only file format with explicit read-then-delete
// semantics, in both single-file and multi-file (rolling) layouts.
package queue

import (
	"encoding/binary"
	"fmt"
	"io"
)

// markerLen is the width of the start marker that precedes every record.
const markerLen = 4

// lengthLen is the width of the little-endian record length field.
const lengthLen = 4

// headerLen is the number of bytes preceding a record's payload.
const headerLen = markerLen + lengthLen

var (
	liveMarker    = [markerLen]byte{0x00, 0x00, 0xFF, 0x01}
	deletedMarker = [markerLen]byte{0x00, 0x00, 0x01, 0xFF}
)

// CorruptionError describes a gap in the record stream discovered during
// recovery. It is always handled locally (logged, skipped); callers never
// need to branch on it directly, but it is exposed for diagnostics.
type CorruptionError struct {
	Offset int64
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("queue corruption at offset %d: %s", e.Offset, e.Reason)
}

// WriteRecord frames payload and writes it to w: {liveMarker}{len LE}{payload}.
func WriteRecord(w io.Writer, payload []byte) (int, error) {
	header := make([]byte, headerLen)
	copy(header[:markerLen], liveMarker[:])
	binary.LittleEndian.PutUint32(header[markerLen:], uint32(len(payload)))

	n, err := w.Write(header)
	if err != nil {
		return n, err
	}
	m, err := w.Write(payload)
	return n + m, err
}

// markDeleted overwrites the marker bytes at offset with the deletion
// marker using a WriterAt, leaving the length and payload untouched.
func markDeleted(w io.WriterAt, offset int64) error {
	_, err := w.WriteAt(deletedMarker[:], offset)
	return err
}

// liveRecord describes one record discovered during a recovery scan.
type liveRecord struct {
	Offset  int64 // offset of the start marker
	Length  int64 // payload length
	Deleted bool
}

// scanRecords walks r from the beginning, yielding every record it finds
// (live or deleted) via fn. It never returns an error for corruption: it
// logs (via onCorruption, which may be nil) and resynchronizes by advancing
// one byte at a time until a marker is found again.
func scanRecords(r io.ReaderAt, size int64, onCorruption func(*CorruptionError), fn func(liveRecord)) {
	var offset int64
	header := make([]byte, headerLen)

	for offset+headerLen <= size {
		n, err := r.ReadAt(header, offset)
		if err != nil && n < headerLen {
			if onCorruption != nil {
				onCorruption(&CorruptionError{Offset: offset, Reason: "truncated header"})
			}
			return
		}

		marker := header[:markerLen]
		isLive := bytesEqual(marker, liveMarker[:])
		isDeleted := bytesEqual(marker, deletedMarker[:])

		if !isLive && !isDeleted {
			if onCorruption != nil {
				onCorruption(&CorruptionError{Offset: offset, Reason: "missing start marker"})
			}
			offset++
			continue
		}

		length := int32(binary.LittleEndian.Uint32(header[markerLen:]))
		if length < 0 {
			if onCorruption != nil {
				onCorruption(&CorruptionError{Offset: offset, Reason: "negative length"})
			}
			offset++
			continue
		}

		recordEnd := offset + headerLen + int64(length)
		if recordEnd > size {
			if onCorruption != nil {
				onCorruption(&CorruptionError{Offset: offset, Reason: "truncated payload"})
			}
			return
		}

		fn(liveRecord{Offset: offset, Length: int64(length), Deleted: isDeleted})
		offset = recordEnd
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
