// Copyright (C) 2016 The Resource Authors.

// Package compress wraps klauspost/compress's DEFLATE implementation
// with the zlib inflateInit2/deflateInit2 window-bits convention the
// Aurora archive formats rely on: a positive window-bits value means a
// zlib-wrapped stream (header + Adler32 trailer), a negative value means
// raw deflate with no header or trailer. The magnitude is the window
// size in bits; this module only ever sees +-15 in practice but the
// parameter is threaded through so callers can express the convention
// explicitly, the way the original C++ did via zlib's windowBits.
package compress

import (
	"bytes"
	"io"

	kflate "github.com/klauspost/compress/flate"
	kzlib "github.com/klauspost/compress/zlib"

	"github.com/xeos/aurora-res/reserr"
)

func newReader(r io.Reader, windowBits int) (io.ReadCloser, error) {
	if windowBits > 0 {
		zr, err := kzlib.NewReader(r)
		if err != nil {
			return nil, reserr.Wrap(reserr.CompressionFailure, "zlib header invalid", err)
		}
		return zr, nil
	}
	return kflate.NewReader(r), nil
}

// InflateFixed inflates input until exactly expectedSize bytes have been
// produced. It fails as CompressionFailure both if the stream ends before
// that and if more bytes than expected would have been produced (the
// stream did not end exactly at expectedSize).
func InflateFixed(input []byte, expectedSize int, windowBits int) ([]byte, error) {
	r, err := newReader(bytes.NewReader(input), windowBits)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]byte, expectedSize)
	n, err := io.ReadFull(r, out)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, reserr.New(reserr.CompressionFailure, "premature end of compressed stream")
		}
		return nil, reserr.Wrap(reserr.CompressionFailure, "inflate failed", err)
	}

	// Confirm the stream ends exactly here: any further byte means the
	// output would have overrun expectedSize.
	var extra [1]byte
	if m, _ := r.Read(extra[:]); m > 0 {
		return nil, reserr.New(reserr.CompressionFailure, "buffer not completely filled: stream produced more than expected")
	}
	_ = n
	return out, nil
}

// InflateStreaming inflates input until end-of-stream; the output size
// is whatever the stream produces. Used when a header's declared
// compressed/uncompressed size cannot be trusted (OBB's index chunk).
func InflateStreaming(input []byte, windowBits int) ([]byte, error) {
	r, err := newReader(bytes.NewReader(input), windowBits)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, reserr.Wrap(reserr.CompressionFailure, "streaming inflate failed", err)
	}
	return out, nil
}

// ChunkReader inflates one DEFLATE stream at a time out of a shared
// input, advancing past each stream's natural end so the next call picks
// up where the previous one's trailing bytes (metadata, in OBB's case)
// begin. It satisfies OBB's "concatenated chunks with no total-size
// header" framing.
type ChunkReader struct {
	r          *bytes.Reader
	windowBits int
}

// NewChunkReader wraps input for repeated InflateChunk calls.
func NewChunkReader(input []byte, windowBits int) *ChunkReader {
	return &ChunkReader{r: bytes.NewReader(input), windowBits: windowBits}
}

// Pos returns the reader's current byte offset into input.
func (c *ChunkReader) Pos() int64 { return c.r.Size() - int64(c.r.Len()) }

// byteAtATimeReader forwards Read calls one byte at a time to an
// underlying io.Reader. flate's internal reader otherwise over-reads
// past a single DEFLATE stream's final block while filling its own
// lookahead buffer, which would desynchronize ChunkReader's cursor from
// the concatenated chunk boundaries OBB relies on. Reading one byte at a
// time guarantees the decoder never consumes a byte it didn't need to
// finish the current stream.
type byteAtATimeReader struct{ r io.Reader }

func (b byteAtATimeReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return b.r.Read(p[:1])
}

// InflateChunk inflates exactly one DEFLATE stream (stopping at its
// natural Z_STREAM_END) into dst, up to dstCapacity bytes, and returns
// the number of bytes written. It advances the underlying cursor past
// the consumed stream's last byte, leaving any trailing bytes (e.g.
// OBB's 16-byte metadata trailer) for the next call's caller to skip or
// ignore.
func (c *ChunkReader) InflateChunk(dst []byte, dstCapacity int) (int, error) {
	src := byteAtATimeReader{c.r}

	var zr io.ReadCloser
	if c.windowBits > 0 {
		zr2, err := kzlib.NewReader(src)
		if err != nil {
			return 0, reserr.Wrap(reserr.CompressionFailure, "zlib header invalid", err)
		}
		zr = zr2
	} else {
		zr = kflate.NewReader(src)
	}
	defer zr.Close()

	if dstCapacity > len(dst) {
		dstCapacity = len(dst)
	}
	n, err := io.ReadFull(zr, dst[:dstCapacity])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return n, reserr.Wrap(reserr.CompressionFailure, "chunk inflate failed", err)
	}
	return n, nil
}

// Deflate compresses input, writing either a zlib-wrapped (windowBits >
// 0) or raw (windowBits < 0) DEFLATE stream.
func Deflate(input []byte, windowBits int) ([]byte, error) {
	var buf bytes.Buffer
	if windowBits > 0 {
		w, err := kzlib.NewWriterLevel(&buf, kzlib.DefaultCompression)
		if err != nil {
			return nil, reserr.Wrap(reserr.CompressionFailure, "zlib writer init failed", err)
		}
		if _, err := w.Write(input); err != nil {
			return nil, reserr.Wrap(reserr.CompressionFailure, "deflate failed", err)
		}
		if err := w.Close(); err != nil {
			return nil, reserr.Wrap(reserr.CompressionFailure, "deflate close failed", err)
		}
		return buf.Bytes(), nil
	}

	w, err := kflate.NewWriter(&buf, kflate.DefaultCompression)
	if err != nil {
		return nil, reserr.Wrap(reserr.CompressionFailure, "flate writer init failed", err)
	}
	if _, err := w.Write(input); err != nil {
		return nil, reserr.Wrap(reserr.CompressionFailure, "deflate failed", err)
	}
	if err := w.Close(); err != nil {
		return nil, reserr.Wrap(reserr.CompressionFailure, "deflate close failed", err)
	}
	return buf.Bytes(), nil
}
