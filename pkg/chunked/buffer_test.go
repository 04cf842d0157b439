package chunked

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndBytesRoundTrip(t *testing.T) {
	buf := New()
	payload := bytes.Repeat([]byte("ab"), ChunkSize) // spans multiple chunks
	_, err := buf.Write(payload)
	require.NoError(t, err)

	require.Equal(t, len(payload), buf.Len())
	require.True(t, len(buf.chunks) > 1)
	require.Equal(t, payload, buf.Bytes())
}

func TestReaderSequential(t *testing.T) {
	buf := FromBytes([]byte("hello world"))
	r := buf.Reader()

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(out))
}

func TestCloneIsIndependent(t *testing.T) {
	buf := FromBytes([]byte("original"))
	clone := buf.Clone()

	buf.Write([]byte("-mutated"))

	require.Equal(t, "original", string(clone.Bytes()))
	require.Equal(t, "original-mutated", string(buf.Bytes()))
}

func TestCloneSharesFilledChunks(t *testing.T) {
	buf := New()
	buf.Write(bytes.Repeat([]byte("x"), ChunkSize)) // exactly fills first chunk
	clone := buf.Clone()

	// filled chunk is shared by identity (same underlying array), not copied
	require.Equal(t, cap(buf.chunks[0]), cap(clone.chunks[0]))
	require.Equal(t, buf.Bytes(), clone.Bytes())
}
