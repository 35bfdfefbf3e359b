// Package mccp implements the server side of the MUD Client Compression
// Protocol v2: once the client agrees to option 86, every byte after the
// IAC SB MCCP2 IAC SE marker is one continuous zlib stream.
package mccp

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"

	"github.com/sourcemud/mud-telnet/lib/util"
)

// DefaultLevel is the zlib level used when none is configured.
const DefaultLevel = zlib.DefaultCompression

// Compressor is a streaming zlib compressor with sync-flush per batch.
// It is not safe for concurrent use; one compressor belongs to one session.
type Compressor struct {
	out    bytes.Buffer
	zw     *zlib.Writer
	closed bool
	in     uint64
	wrote  uint64
}

// NewCompressor starts a zlib stream at the given level.
// A failure wraps util.ErrCompressionFailed; callers treat it as
// "compression not enabled" and keep the session uncompressed.
func NewCompressor(level int) (*Compressor, error) {
	c := &Compressor{}
	zw, err := zlib.NewWriterLevel(&c.out, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrCompressionFailed, err)
	}
	c.zw = zw
	return c, nil
}

// Compress feeds p through the stream and returns the compressed bytes
// produced so far. The stream is sync-flushed so the peer can decode
// everything up to this point without waiting for more data.
// The returned slice is only valid until the next call.
func (c *Compressor) Compress(p []byte) ([]byte, error) {
	if c.closed {
		return nil, util.ErrSessionClosed
	}

	c.out.Reset()
	if len(p) > 0 {
		if _, err := c.zw.Write(p); err != nil {
			return nil, fmt.Errorf("%w: write: %v", util.ErrCompressionFailed, err)
		}
	}
	if err := c.zw.Flush(); err != nil {
		return nil, fmt.Errorf("%w: flush: %v", util.ErrCompressionFailed, err)
	}

	c.in += uint64(len(p))
	c.wrote += uint64(c.out.Len())
	return c.out.Bytes(), nil
}

// Close finalizes the stream and returns the trailing bytes (the zlib
// footer). Calling Close more than once returns nil, nil.
func (c *Compressor) Close() ([]byte, error) {
	if c.closed {
		return nil, nil
	}
	c.closed = true

	c.out.Reset()
	if err := c.zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: close: %v", util.ErrCompressionFailed, err)
	}
	c.wrote += uint64(c.out.Len())
	return c.out.Bytes(), nil
}

// Stats returns the total uncompressed input and compressed output sizes.
func (c *Compressor) Stats() (in, out uint64) {
	return c.in, c.wrote
}

// Ratio returns compressed/uncompressed, or 1 before any input.
func (c *Compressor) Ratio() float64 {
	if c.in == 0 {
		return 1
	}
	return float64(c.wrote) / float64(c.in)
}
