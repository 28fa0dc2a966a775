package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSizePrefixed_GrowsToFitLargerBlob(t *testing.T) {
	var buf bytes.Buffer
	small := []byte("x")
	large := bytes.Repeat([]byte("y"), 10000)
	require.NoError(t, writeSizePrefixed(&buf, small))
	require.NoError(t, writeSizePrefixed(&buf, large))

	gotSmall, err := readSizePrefixed(&buf)
	require.NoError(t, err)
	assert.Equal(t, small, gotSmall)

	// The scratch buffer from the first (1-byte) read must not be reused
	// verbatim for the much larger second blob -- every read allocates
	// exactly the size it was told, so growth is implicit and lossless.
	gotLarge, err := readSizePrefixed(&buf)
	require.NoError(t, err)
	assert.Equal(t, large, gotLarge)
	assert.Len(t, gotLarge, 10000)
}

func TestReadSizePrefixed_TruncatedIsError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSizePrefixed(&buf, []byte("hello world")))
	truncated := buf.Bytes()[:buf.Len()-3]
	_, err := readSizePrefixed(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestBinaryCodec_Read_MissingFileIsIOError(t *testing.T) {
	codec := &BinaryCodec{MaxBin: 16}
	_, err := codec.Read("/nonexistent/path/does/not/exist.bin", nil)
	require.Error(t, err)
	var dsErr *Error
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, ErrIO, dsErr.Kind())
}

func TestBinaryCodec_Read_TruncatedHeaderIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truncated.bin")
	// A header-size prefix promising more bytes than follow.
	var buf bytes.Buffer
	require.NoError(t, writeSizePrefixed(&buf, []byte("not enough")))
	truncated := buf.Bytes()[:8+3]
	require.NoError(t, os.WriteFile(path, truncated, 0o644))

	codec := &BinaryCodec{MaxBin: 16}
	_, err := codec.Read(path, nil)
	require.Error(t, err)
}
