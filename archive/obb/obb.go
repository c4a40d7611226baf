// Copyright (C) 2016 The Resource Authors.

// Package obb implements Aspyr's OBB virtual filesystem: a sequence of
// concatenated zlib chunks with no file-level header or index pointer.
// The resource index is the last chunk in the file and has to be found
// by scanning backwards for its zlib magic.
package obb

import (
	"bytes"

	"github.com/xeos/aurora-res/archive"
	"github.com/xeos/aurora-res/compress"
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
)

// windowBitsMax is the zlib-wrapped maximum window size OBB chunks are
// always compressed with.
const windowBitsMax = 15

// maxReadBack bounds how far back from the end of the file the backward
// scans are willing to look, avoiding a pathological full-file scan on
// a corrupt or unusually large OBB.
const maxReadBack = 0xFFFFFF

var zlibHeaderMarker = []byte{0x00, 0x00, 0x00, 0x00, 0x78, 0x9C}

type iResource struct {
	offset           uint32
	uncompressedSize uint32
}

// Archive is the Archive implementation for an OBB virtual filesystem.
type Archive struct {
	data      []byte
	entries   []archive.Resource
	iResources []iResource
}

// Open parses an OBB's resource index out of data, which must hold the
// entire file (OBB carries no header or footer pointing at its own
// length, so there is no way to stream-parse it).
func Open(data []byte) (*Archive, error) {
	if len(data) < 2 || data[0] != 0x78 || data[1] != 0x9C {
		return nil, reserr.New(reserr.FormatMismatch, "no zlib header, this doesn't look like an Aspyr OBB virtual filesystem")
	}

	indexData, err := getIndex(data)
	if err != nil {
		return nil, reserr.Wrap(reserr.FormatMismatch, "failed reading OBB file", err)
	}

	a := &Archive{data: data}
	if err := a.readResList(indexData); err != nil {
		return nil, reserr.Wrap(reserr.FormatMismatch, "failed reading OBB file", err)
	}
	return a, nil
}

func (a *Archive) readResList(index []byte) error {
	rs := stream.NewMemStream(index)

	resCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	if _, err := rs.Seek(4, stream.Current); err != nil { // always 0
		return err
	}

	mgr := restype.NewManager()
	resIndex := uint32(0)
	for i := uint32(0); i < resCount; i++ {
		nameLength, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		if _, err := rs.Seek(4, stream.Current); err != nil {
			return err
		}

		nameBytes := make([]byte, nameLength)
		if _, err := rs.Read(nameBytes); err != nil {
			return reserr.New(reserr.TruncatedInput, "OBB entry name truncated")
		}
		name := string(nameBytes)

		offset, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		if _, err := rs.Seek(4, stream.Current); err != nil {
			return err
		}

		uncompressedSize, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		if _, err := rs.Seek(4, stream.Current); err != nil {
			return err
		}

		// Unreliable: the stored compressed size can cover trailing
		// metadata and, for the first entry, the chunk-list's own
		// compressed size too. We don't use it.
		if _, err := stream.ReadU32LE(rs); err != nil {
			return err
		}
		if _, err := rs.Seek(4, stream.Current); err != nil {
			return err
		}

		// Entries with uncompressedSize 0 are directories.
		if uncompressedSize == 0 {
			continue
		}

		typ := mgr.GetFileType(name)
		stem := mgr.SetFileType(name, restype.None)

		a.entries = append(a.entries, archive.Resource{Name: stem, Type: typ, Index: resIndex})
		a.iResources = append(a.iResources, iResource{offset: offset, uncompressedSize: uncompressedSize})
		resIndex++
	}
	return nil
}

// getIndex locates and decompresses the resource index, the last
// zlib-compressed chunk in the file. It is found, not referenced, by a
// best-effort backward scan: see the package doc and spec.md's Open
// Questions for why this is inherently a heuristic, not a guaranteed
// invariant, and can in principle false-positive on adversarial input.
func getIndex(data []byte) ([]byte, error) {
	lastZlib := searchBackwards(data, zlibHeaderMarker, maxReadBack)
	if lastZlib < 0 {
		return nil, reserr.New(reserr.FormatMismatch, "couldn't find the last zlib header")
	}

	zIndexStart := lastZlib + 4
	indexRegion := data[zIndexStart:]

	offsetMarker := make([]byte, 8)
	putU32LE(offsetMarker[0:4], uint32(zIndexStart))
	putU32LE(offsetMarker[4:8], 0)

	indexSize := searchBackwards(indexRegion, offsetMarker, maxReadBack)
	if indexSize < 0 {
		return nil, reserr.New(reserr.FormatMismatch, "couldn't find the index end marker")
	}

	return compress.InflateStreaming(indexRegion[:indexSize], windowBitsMax)
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// searchBackwards finds the last occurrence of pattern in data, scanning
// from the end, looking back at most maxReadBack bytes from the end of
// data. It returns -1 if pattern was not found in range.
func searchBackwards(data, pattern []byte, maxReadBack int) int {
	if len(pattern) == 0 || len(pattern) > len(data) {
		return -1
	}
	lo := 0
	if len(data)-maxReadBack > 0 {
		lo = len(data) - maxReadBack
	}
	for i := len(data) - len(pattern); i >= lo; i-- {
		if bytes.Equal(data[i:i+len(pattern)], pattern) {
			return i
		}
	}
	return -1
}

// ResourceList implements archive.Archive.
func (a *Archive) ResourceList() []archive.Resource { return a.entries }

// ResourceSize implements archive.Archive.
func (a *Archive) ResourceSize(i uint32) (int64, error) {
	r, err := a.iResource(i)
	if err != nil {
		return 0, err
	}
	return int64(r.uncompressedSize), nil
}

func (a *Archive) iResource(i uint32) (iResource, error) {
	if i >= uint32(len(a.iResources)) {
		return iResource{}, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
	}
	return a.iResources[i], nil
}

// GetResource implements archive.Archive. OBB stores each resource as a
// sequence of zlib chunks that each inflate to 4096 bytes except for the
// final, shorter one; GetResource decodes chunk after chunk until it has
// accumulated the resource's full uncompressed size.
func (a *Archive) GetResource(i uint32, _ bool) (stream.ReadStream, error) {
	r, err := a.iResource(i)
	if err != nil {
		return nil, err
	}

	out := make([]byte, r.uncompressedSize)
	cursor := a.data[r.offset:]
	cr := compress.NewChunkReader(cursor, windowBitsMax)

	offset := 0
	bytesLeft := int(r.uncompressedSize)
	for bytesLeft > 0 {
		capacity := 4096
		if capacity > bytesLeft {
			capacity = bytesLeft
		}
		n, err := cr.InflateChunk(out[offset:offset+capacity], capacity)
		if err != nil {
			return nil, reserr.Wrap(reserr.CompressionFailure, "failed decompressing OBB resource chunk", err).WithIndex(int64(i))
		}
		if n == 0 {
			return nil, reserr.New(reserr.CompressionFailure, "OBB chunk produced no data before resource was complete").WithIndex(int64(i))
		}
		offset += n
		bytesLeft -= n
	}

	return stream.NewMemStream(out), nil
}

// Close is a no-op: Archive holds its data in memory, with no separate
// file handle to release.
func (a *Archive) Close() error { return nil }
