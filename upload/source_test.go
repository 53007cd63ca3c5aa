package upload

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0600))

	source, err := OpenFile(path)
	require.NoError(t, err)

	assert.Equal(t, "code.tar.gz", source.Name())
	assert.Equal(t, int64(10), source.Size())

	data, err := io.ReadAll(source)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	require.NoError(t, source.Close())
}

func TestBytesSource(t *testing.T) {
	source := NewBytesSource("notes.txt", []byte("abc"))

	data, err := io.ReadAll(source)
	require.NoError(t, err)

	assert.Equal(t, "abc", string(data))
	assert.Equal(t, int64(3), source.Size(), "size does not shrink while reading")
	assert.Equal(t, "notes.txt", source.Name())
}
