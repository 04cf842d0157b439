package queue

import (
	"io"
	"os"
	"sync"

	"dream/pkg/logging"
)

// SingleFileStream is a Stream backed by one append-only file. It is not
// safe for concurrent use; callers must serialize their own access.
type SingleFileStream struct {
	mu sync.Mutex // guards against accidental concurrent misuse; not a substitute for caller serialization

	path       string
	file       *os.File
	generation int64

	pending []int64         // offsets of records not yet returned by ReadNextRecord, in FIFO order
	live    map[int64]int64 // offset -> payload length, for every record not yet deleted

	warnedGaps map[int64]bool
}

// OpenSingleFileStream opens (creating if necessary) the file at path and
// recovers any previously-written, undeleted records.
func OpenSingleFileStream(path string) (*SingleFileStream, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	s := &SingleFileStream{
		path:       path,
		file:       f,
		live:       make(map[int64]int64),
		warnedGaps: make(map[int64]bool),
	}
	if err := s.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *SingleFileStream) recover() error {
	info, err := s.file.Stat()
	if err != nil {
		return err
	}

	lastCorrupt := int64(-2)
	scanRecords(s.file, info.Size(), func(c *CorruptionError) {
		contiguous := c.Offset == lastCorrupt+1
		lastCorrupt = c.Offset
		if contiguous || s.warnedGaps[c.Offset] {
			return
		}
		s.warnedGaps[c.Offset] = true
		logging.Warn("Queue", "recovering %s: %s", s.path, c.Error())
	}, func(rec liveRecord) {
		if rec.Deleted {
			return
		}
		s.live[rec.Offset] = rec.Length
		s.pending = append(s.pending, rec.Offset)
	})
	return nil
}

// AppendRecord writes a new framed record at the end of the file.
func (s *SingleFileStream) AppendRecord(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := WriteRecord(s.file, payload); err != nil {
		return err
	}

	s.live[offset] = int64(len(payload))
	s.pending = append(s.pending, offset)
	return nil
}

// ReadNextRecord dequeues the next unread record without deleting it.
func (s *SingleFileStream) ReadNextRecord() (io.Reader, Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil, Handle{}, ErrEmpty
	}

	offset := s.pending[0]
	s.pending = s.pending[1:]
	length := s.live[offset]

	h := Handle{generation: s.generation, offset: offset, length: length}
	r := io.NewSectionReader(s.file, offset+headerLen, length)
	return r, h, nil
}

// DeleteRecord marks a record deleted; once no live records remain the file
// is truncated to zero and the generation is bumped.
func (s *SingleFileStream) DeleteRecord(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.generation != s.generation {
		return nil
	}
	if _, ok := s.live[h.offset]; !ok {
		return nil // already deleted: idempotent
	}

	if err := markDeleted(s.file, h.offset); err != nil {
		return err
	}
	delete(s.live, h.offset)

	if len(s.live) == 0 {
		return s.resetLocked()
	}
	return nil
}

// Truncate drops all records and bumps the generation.
func (s *SingleFileStream) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *SingleFileStream) resetLocked() error {
	if err := s.file.Truncate(0); err != nil {
		return err
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.generation++
	s.pending = nil
	s.live = make(map[int64]int64)
	return nil
}

// UnreadCount returns the number of pending, unread records.
func (s *SingleFileStream) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close releases the underlying file handle.
func (s *SingleFileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

var _ Stream = (*SingleFileStream)(nil)
