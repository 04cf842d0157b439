package queue

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultiFileStream_AppendReadDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenMultiFileStream(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AppendRecord([]byte("alpha")))
	require.NoError(t, s.AppendRecord([]byte("beta")))
	require.Equal(t, 2, s.UnreadCount())

	r, h, err := s.ReadNextRecord()
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "alpha", string(body))

	require.NoError(t, s.DeleteRecord(h))
	require.NoError(t, s.DeleteRecord(h)) // idempotent
}

func TestMultiFileStream_RollsOverAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenMultiFileStream(dir, 1024)
	require.NoError(t, err)
	defer s.Close()

	payload := bytes.Repeat([]byte("x"), 200)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendRecord(payload))
	}

	require.True(t, len(s.fileOrder) > 1, "expected rollover to produce more than one file")
	require.Equal(t, 10, s.UnreadCount())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Equal(t, len(s.fileOrder), len(entries))
}

func TestMultiFileStream_DeletingAllRecordsInNonHeadFileRemovesIt(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenMultiFileStream(dir, 1024)
	require.NoError(t, err)
	defer s.Close()

	payload := bytes.Repeat([]byte("x"), 200)
	var handles []Handle
	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendRecord(payload))
	}
	for i := 0; i < 10; i++ {
		_, h, err := s.ReadNextRecord()
		require.NoError(t, err)
		handles = append(handles, h)
	}

	firstFileID := handles[0].fileID
	require.True(t, len(s.fileOrder) > 1)

	for _, h := range handles {
		if h.fileID != firstFileID {
			continue
		}
		require.NoError(t, s.DeleteRecord(h))
	}

	_, stillThere := s.live[firstFileID]
	require.False(t, stillThere, "file with no live records should have been dropped from live tracking")
	require.NoFileExists(t, filepath.Join(dir, "data_1.bin"))
}

func TestMultiFileStream_ReopenRecoversAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenMultiFileStream(dir, 1024)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("y"), 200)
	for i := 0; i < 8; i++ {
		require.NoError(t, s.AppendRecord(payload))
	}
	// delete the first 3 to exercise partial recovery
	for i := 0; i < 3; i++ {
		_, h, err := s.ReadNextRecord()
		require.NoError(t, err)
		require.NoError(t, s.DeleteRecord(h))
	}
	require.NoError(t, s.Close())

	reopened, err := OpenMultiFileStream(dir, 1024)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, 5, reopened.UnreadCount())
}

func TestMultiFileStream_HeadResetsWhenSoleFileEmpties(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenMultiFileStream(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AppendRecord([]byte("only")))
	_, h, err := s.ReadNextRecord()
	require.NoError(t, err)
	require.NoError(t, s.DeleteRecord(h))

	require.Equal(t, 1, s.headID)
	info, err := s.files[1].Stat()
	require.NoError(t, err)
	require.Equal(t, int64(0), info.Size())
}
