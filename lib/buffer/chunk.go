// Package buffer provides the bounded byte accumulator used for inbound
// line assembly, subnegotiation capture and outbound word batching.
package buffer

import "github.com/sourcemud/mud-telnet/lib/util"

// initialSize is the first allocation; storage grows by doubling up to the limit.
const initialSize = 64

// Chunk is a growable byte sequence with a hard capacity.
// Writes that would exceed the capacity are refused rather than dropped,
// so the owner can flush and retry.
type Chunk struct {
	data  []byte
	limit int
}

// NewChunk creates a chunk that never holds more than limit bytes.
// A non-positive limit is treated as 1.
func NewChunk(limit int) *Chunk {
	if limit <= 0 {
		limit = 1
	}
	return &Chunk{limit: limit}
}

// Append copies p into the chunk. If p does not fit, nothing is copied
// and util.ErrChunkFull is returned; the caller should flush and retry.
func (c *Chunk) Append(p []byte) error {
	if len(p) > c.Available() {
		return util.ErrChunkFull
	}
	c.grow(len(p))
	c.data = append(c.data, p...)
	return nil
}

// AppendByte appends a single byte, or returns util.ErrChunkFull.
func (c *Chunk) AppendByte(b byte) error {
	if c.Available() < 1 {
		return util.ErrChunkFull
	}
	c.grow(1)
	c.data = append(c.data, b)
	return nil
}

// AppendPartial copies as much of p as fits and returns the number of
// bytes copied. Used when even an empty chunk cannot hold an atomic write.
func (c *Chunk) AppendPartial(p []byte) int {
	n := min(len(p), c.Available())
	c.grow(n)
	c.data = append(c.data, p[:n]...)
	return n
}

// Fits reports whether n more bytes can be appended.
func (c *Chunk) Fits(n int) bool {
	return n <= c.Available()
}

// Clear resets the length to zero, keeping the allocation.
func (c *Chunk) Clear() {
	c.data = c.data[:0]
}

// Unappend removes up to n bytes from the end and returns how many were removed.
func (c *Chunk) Unappend(n int) int {
	n = min(n, len(c.data))
	c.data = c.data[:len(c.data)-n]
	return n
}

// Last returns the final byte and true, or 0 and false when empty.
func (c *Chunk) Last() (byte, bool) {
	if len(c.data) == 0 {
		return 0, false
	}
	return c.data[len(c.data)-1], true
}

// Bytes returns the buffered bytes. The slice is only valid until the
// next mutation.
func (c *Chunk) Bytes() []byte {
	return c.data
}

// Len returns the number of buffered bytes.
func (c *Chunk) Len() int {
	return len(c.data)
}

// Cap returns the hard capacity.
func (c *Chunk) Cap() int {
	return c.limit
}

// Available returns how many more bytes fit.
func (c *Chunk) Available() int {
	return c.limit - len(c.data)
}

// Empty reports whether the chunk holds no bytes.
func (c *Chunk) Empty() bool {
	return len(c.data) == 0
}

// grow makes room for n more bytes without exceeding the limit.
func (c *Chunk) grow(n int) {
	need := len(c.data) + n
	if need <= cap(c.data) {
		return
	}
	size := max(cap(c.data)*2, initialSize)
	for size < need {
		size *= 2
	}
	size = min(size, c.limit)
	data := make([]byte, len(c.data), size)
	copy(data, c.data)
	c.data = data
}
