package upload

// accumulator collects bytes of arbitrary block sizes into fixed size chunks.
// Once full it accepts nothing until Reset is called.
type accumulator struct {
	buf      []byte
	position int
}

func newAccumulator(chunkSize int64) *accumulator {
	return &accumulator{buf: make([]byte, chunkSize)}
}

// Append copies as much of p as fits and returns the number of bytes taken.
func (a *accumulator) Append(p []byte) int {
	n := copy(a.buf[a.position:], p)
	a.position += n
	return n
}

// Full reports whether the chunk is ready to be sent.
func (a *accumulator) Full() bool {
	return a.position == len(a.buf)
}

// Len ...
func (a *accumulator) Len() int {
	return a.position
}

// Chunk returns the filled part of the buffer.
// The slice is only valid until the next Reset.
func (a *accumulator) Chunk() []byte {
	return a.buf[:a.position]
}

// Reset empties the buffer for the next chunk.
func (a *accumulator) Reset() {
	a.position = 0
}
