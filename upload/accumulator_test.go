package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator(t *testing.T) {
	acc := newAccumulator(8)

	assert.Equal(t, 5, acc.Append([]byte("hello")))
	assert.False(t, acc.Full())
	assert.Equal(t, "hello", string(acc.Chunk()))

	// Only what fits is taken, the caller keeps the rest.
	assert.Equal(t, 3, acc.Append([]byte(" world")))
	assert.True(t, acc.Full())
	assert.Equal(t, "hello wo", string(acc.Chunk()))
	assert.Equal(t, 0, acc.Append([]byte("rld")))

	acc.Reset()
	assert.Equal(t, 0, acc.Len())
	assert.Empty(t, acc.Chunk())

	assert.Equal(t, 3, acc.Append([]byte("rld")))
	assert.Equal(t, "rld", string(acc.Chunk()), "stale bytes from the previous chunk must not be exposed")
}
