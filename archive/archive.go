// Copyright (C) 2016 The Resource Authors.

// Package archive defines the uniform Archive contract that every
// container format (KEY/BIF, ERF, RIM, OBB, TheWitcherSave, HERF/NDS)
// implements, plus the AuroraBase header-detection helper ReadBase, which
// the ERF reader uses.
package archive

import (
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
)

// Resource is one entry in an archive's resource list.
type Resource struct {
	// Name is the ResRef: a case-insensitive, at-most-16-character
	// resource name with the extension stripped.
	Name string
	// Type is the resource's FileType, parsed from the stored filename's
	// extension when the archive carries full filenames, or from the
	// archive's numeric type tag otherwise.
	Type restype.FileType
	// Index is the resource's stable, archive-local index.
	Index uint32
}

// Archive is the uniform interface every container format reader
// implements. ResourceList is deterministic and stable across calls;
// ResourceSize(i) is the exact uncompressed size of resource i;
// GetResource(i, ...) returns a fresh seekable stream of the
// uncompressed bytes.
type Archive interface {
	// ResourceList returns the archive's resources as a stable,
	// deterministically ordered slice.
	ResourceList() []Resource
	// ResourceSize returns the exact uncompressed size of resource i.
	ResourceSize(i uint32) (int64, error)
	// GetResource returns a fresh seekable stream of resource i's
	// uncompressed bytes. tryNoCopy is a hint permitting the
	// implementation to return a subview of the backing file when the
	// resource is stored uncompressed; implementations that cannot
	// honor the hint still return a correct stream.
	GetResource(i uint32, tryNoCopy bool) (stream.ReadStream, error)
	// Close releases the archive's backing file handle.
	Close() error
}

// Base holds the (id, version, utf16le) triple every archive header
// shares, along with the auto-detection of a UTF-16LE-encoded ASCII
// magic (used by ERF v2.0/v2.2).
type Base struct {
	ID      uint32
	Version uint32
	UTF16LE bool
}

// ReadBase reads an 8-byte archive header (id, version) from rs,
// auto-detecting whether it is packed as two 32-bit BE words (the normal
// case) or as UTF-16LE-encoded ASCII (ERF v2.0/v2.2): it tests whether
// both of the first two 32-bit BE words have every other byte zero
// (mask 0x00FF00FF == 0). If so, it reconstructs the 8-byte id+version
// by packing every other byte and consumes eight additional bytes for
// the version's second half.
func ReadBase(rs stream.ReadStream) (Base, error) {
	w0, err := stream.ReadU32BE(rs)
	if err != nil {
		return Base{}, err
	}
	w1, err := stream.ReadU32BE(rs)
	if err != nil {
		return Base{}, err
	}

	if w0&0x00FF00FF == 0 && w1&0x00FF00FF == 0 {
		// UTF-16LE ASCII: every other byte (the high byte of each
		// 16-bit LE code unit) is zero. Reconstruct by keeping only
		// the low byte of each pair; id+version together are 8
		// ASCII characters, i.e. 16 bytes on disk, so read 8 more.
		w2, err := stream.ReadU32BE(rs)
		if err != nil {
			return Base{}, err
		}
		w3, err := stream.ReadU32BE(rs)
		if err != nil {
			return Base{}, err
		}
		packed := packUTF16LEWords(w0, w1, w2, w3)
		return Base{ID: packed[0], Version: packed[1], UTF16LE: true}, nil
	}

	return Base{ID: w0, Version: w1, UTF16LE: false}, nil
}

// packUTF16LEWords takes four big-endian 32-bit words, each holding two
// UTF-16LE code units (lowByte, 0x00, lowByte, 0x00), and repacks the
// four surviving ASCII bytes of each pair of words into two FourCC
// values.
func packUTF16LEWords(w0, w1, w2, w3 uint32) [2]uint32 {
	b := func(w uint32) (byte, byte) {
		return byte(w >> 24), byte(w >> 8)
	}
	a0, a1 := b(w0)
	a2, a3 := b(w1)
	a4, a5 := b(w2)
	a6, a7 := b(w3)
	id := stream.MakeTag(a0, a1, a2, a3)
	ver := stream.MakeTag(a4, a5, a6, a7)
	return [2]uint32{id, ver}
}

// ErrFormatMismatch builds a FormatMismatch error for a magic/version
// check failure, with path context attached by the caller.
func ErrFormatMismatch(msg string) error {
	return reserr.New(reserr.FormatMismatch, msg)
}
