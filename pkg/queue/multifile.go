package queue

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"dream/pkg/logging"
)

// DefaultMaxFileSize is the default size at which a new head file is rolled.
const DefaultMaxFileSize = 10 * 1024 * 1024

var fileNamePattern = regexp.MustCompile(`^data_(\d+)\.bin$`)

type pendingRef struct {
	fileID int
	offset int64
}

// MultiFileStream is a Stream backed by a directory of data_<id>.bin files,
// rolling to a new head file once the current head crosses maxFileSize.
// Not safe for concurrent use; callers must serialize their own access.
type MultiFileStream struct {
	mu sync.Mutex

	dir         string
	maxFileSize int64
	generation  int64

	files     map[int]*os.File
	fileOrder []int // ascending ids of files currently on disk
	headID    int

	live map[int]map[int64]int64 // fileID -> offset -> length, for undeleted records
	pending []pendingRef

	warnedGaps map[string]bool
}

// OpenMultiFileStream opens (creating if necessary) dir and recovers any
// previously-written, undeleted records across all data_<id>.bin files.
func OpenMultiFileStream(dir string, maxFileSize int64) (*MultiFileStream, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &MultiFileStream{
		dir:         dir,
		maxFileSize: maxFileSize,
		files:       make(map[int]*os.File),
		live:        make(map[int]map[int64]int64),
		warnedGaps:  make(map[string]bool),
	}

	ids, err := discoverFileIDs(dir)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		f, err := s.openFile(id)
		if err != nil {
			return nil, err
		}
		s.fileOrder = append(s.fileOrder, id)
		if err := s.recoverFile(id, f); err != nil {
			return nil, err
		}
	}

	if len(s.fileOrder) == 0 {
		f, err := s.openFile(1)
		if err != nil {
			return nil, err
		}
		s.fileOrder = []int{1}
		_ = f
	}
	s.headID = s.fileOrder[len(s.fileOrder)-1]
	return s, nil
}

func discoverFileIDs(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *MultiFileStream) fileName(id int) string {
	return filepath.Join(s.dir, fmt.Sprintf("data_%d.bin", id))
}

func (s *MultiFileStream) openFile(id int) (*os.File, error) {
	if f, ok := s.files[id]; ok {
		return f, nil
	}
	f, err := os.OpenFile(s.fileName(id), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	s.files[id] = f
	return f, nil
}

func (s *MultiFileStream) recoverFile(id int, f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	liveMap := make(map[int64]int64)
	lastCorrupt := int64(-2)
	scanRecords(f, info.Size(), func(c *CorruptionError) {
		contiguous := c.Offset == lastCorrupt+1
		lastCorrupt = c.Offset
		key := fmt.Sprintf("%d:%d", id, c.Offset)
		if contiguous || s.warnedGaps[key] {
			return
		}
		s.warnedGaps[key] = true
		logging.Warn("Queue", "recovering %s: %s", s.fileName(id), c.Error())
	}, func(rec liveRecord) {
		if rec.Deleted {
			return
		}
		liveMap[rec.Offset] = rec.Length
		s.pending = append(s.pending, pendingRef{fileID: id, offset: rec.Offset})
	})
	s.live[id] = liveMap
	return nil
}

// AppendRecord writes payload to the current head file, first rolling to a
// new head if the head has already reached maxFileSize.
func (s *MultiFileStream) AppendRecord(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	headFile, err := s.openFile(s.headID)
	if err != nil {
		return err
	}
	info, err := headFile.Stat()
	if err != nil {
		return err
	}
	if info.Size() >= s.maxFileSize {
		newID := s.headID + 1
		newFile, err := s.openFile(newID)
		if err != nil {
			return err
		}
		s.fileOrder = append(s.fileOrder, newID)
		s.live[newID] = make(map[int64]int64)
		s.headID = newID
		headFile = newFile
		info, err = headFile.Stat()
		if err != nil {
			return err
		}
	}

	offset := info.Size()
	if _, err := WriteRecord(headFile, payload); err != nil {
		return err
	}

	if s.live[s.headID] == nil {
		s.live[s.headID] = make(map[int64]int64)
	}
	s.live[s.headID][offset] = int64(len(payload))
	s.pending = append(s.pending, pendingRef{fileID: s.headID, offset: offset})
	return nil
}

// ReadNextRecord dequeues the next unread record, in ascending (fileID,
// offset) order, without deleting it.
func (s *MultiFileStream) ReadNextRecord() (io.Reader, Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil, Handle{}, ErrEmpty
	}

	ref := s.pending[0]
	s.pending = s.pending[1:]
	length := s.live[ref.fileID][ref.offset]

	f, err := s.openFile(ref.fileID)
	if err != nil {
		return nil, Handle{}, err
	}

	h := Handle{generation: s.generation, fileID: ref.fileID, offset: ref.offset, length: length}
	r := io.NewSectionReader(f, ref.offset+headerLen, length)
	return r, h, nil
}

// DeleteRecord marks a record deleted. When every record in a non-head file
// has been deleted, that file is closed and removed. When the head file is
// the sole remaining file and it empties, it is truncated in place and its
// id reset to 1 (if it wasn't already) to bound id growth.
func (s *MultiFileStream) DeleteRecord(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.generation != s.generation {
		return nil
	}
	liveMap, ok := s.live[h.fileID]
	if !ok {
		return nil
	}
	if _, ok := liveMap[h.offset]; !ok {
		return nil // already deleted
	}

	f, err := s.openFile(h.fileID)
	if err != nil {
		return err
	}
	if err := markDeleted(f, h.offset); err != nil {
		return err
	}
	delete(liveMap, h.offset)

	if len(liveMap) > 0 {
		return nil
	}

	if h.fileID != s.headID {
		return s.removeFileLocked(h.fileID)
	}

	// head file is now empty; if it's the only file, compact it in place
	if len(s.fileOrder) == 1 {
		return s.resetHeadLocked()
	}
	return nil
}

func (s *MultiFileStream) removeFileLocked(id int) error {
	if f, ok := s.files[id]; ok {
		f.Close()
		delete(s.files, id)
	}
	delete(s.live, id)
	if err := os.Remove(s.fileName(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	for i, existing := range s.fileOrder {
		if existing == id {
			s.fileOrder = append(s.fileOrder[:i], s.fileOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MultiFileStream) resetHeadLocked() error {
	f, err := s.openFile(s.headID)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if s.headID != 1 {
		f.Close()
		delete(s.files, s.headID)
		if err := os.Remove(s.fileName(s.headID)); err != nil && !os.IsNotExist(err) {
			return err
		}
		newFile, err := s.openFile(1)
		if err != nil {
			return err
		}
		_ = newFile
		s.headID = 1
		s.fileOrder = []int{1}
	}
	s.live[s.headID] = make(map[int64]int64)
	return nil
}

// Truncate drops all records across all files and bumps the generation.
func (s *MultiFileStream) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range append([]int{}, s.fileOrder...) {
		if id == s.headID {
			continue
		}
		if err := s.removeFileLocked(id); err != nil {
			return err
		}
	}
	if err := s.resetHeadLocked(); err != nil {
		return err
	}
	s.generation++
	s.pending = nil
	return nil
}

// UnreadCount returns the number of pending, unread records across all files.
func (s *MultiFileStream) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close releases every open file handle.
func (s *MultiFileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Stream = (*MultiFileStream)(nil)
