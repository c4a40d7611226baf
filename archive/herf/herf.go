// Copyright (C) 2016 The Resource Authors.

// Package herf implements the HERF container, Nintendo DS Aurora
// titles' hashed variant of ERF v1.0: the 16-byte ResRef of every key
// table entry is replaced by a 64-bit hash of the resource's full
// "name.ext" string. A HERF archive alone cannot recover human-readable
// names; resolving them requires a companion dictionary file (hash,
// name) pairs, which titles ship alongside the archive.
package herf

import (
	"github.com/xeos/aurora-res/archive"
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
)

var (
	tagHERF = stream.MakeTag('H', 'E', 'R', 'F')
	tagV1_0 = stream.MakeTag('V', '1', '.', '0')
)

type keyEntry struct {
	hash uint64
	typ  restype.FileType
}

type tableEntry struct {
	offset uint32
	size   uint32
}

// Archive is the Archive implementation for a HERF file. Resource names
// are the lowercase-hex hash until a dictionary is applied with
// ResolveNames.
type Archive struct {
	data    []byte
	algo    restype.HashAlgorithm
	keys    []keyEntry
	table   []tableEntry
	entries []archive.Resource
	mgr     *restype.Manager
}

// Open parses a HERF archive from data (the entire file). algo is stored
// on the Archive and not consulted while parsing; resource names stay
// hash placeholders until ResolveNames supplies them.
func Open(data []byte, algo restype.HashAlgorithm) (*Archive, error) {
	rs := stream.NewMemStream(data)

	id, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	version, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	if id != tagHERF {
		return nil, archive.ErrFormatMismatch("not a HERF file")
	}
	if version != tagV1_0 {
		return nil, archive.ErrFormatMismatch("unsupported HERF version")
	}

	entryCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}
	keyTableOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}
	resourceTableOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}

	a := &Archive{data: data, algo: algo, mgr: restype.NewManager()}

	if _, err := rs.Seek(int64(keyTableOffset), stream.Begin); err != nil {
		return nil, err
	}
	a.keys = make([]keyEntry, entryCount)
	for i := range a.keys {
		hash, err := stream.ReadU64LE(rs)
		if err != nil {
			return nil, err
		}
		if _, err := stream.ReadU32LE(rs); err != nil { // resource id, unused
			return nil, err
		}
		typeID, err := stream.ReadU16LE(rs)
		if err != nil {
			return nil, err
		}
		if _, err := stream.ReadU16LE(rs); err != nil { // unused
			return nil, err
		}
		a.keys[i] = keyEntry{hash: hash, typ: restype.FileType(typeID)}
	}

	if _, err := rs.Seek(int64(resourceTableOffset), stream.Begin); err != nil {
		return nil, err
	}
	a.table = make([]tableEntry, entryCount)
	for i := range a.table {
		offset, err := stream.ReadU32LE(rs)
		if err != nil {
			return nil, err
		}
		size, err := stream.ReadU32LE(rs)
		if err != nil {
			return nil, err
		}
		a.table[i] = tableEntry{offset: offset, size: size}
	}

	a.rebuildEntries(nil)
	return a, nil
}

// ResolveNames overlays a hash->"name.ext" dictionary onto the archive,
// replacing the hex-hash placeholder names in ResourceList with the
// resolved stems (and re-deriving Type from the resolved extension,
// which may be more precise than the on-disk type ID for titles known to
// store non-canonical type IDs).
func (a *Archive) ResolveNames(dict map[uint64]string) {
	a.rebuildEntries(dict)
}

func (a *Archive) rebuildEntries(dict map[uint64]string) {
	a.entries = make([]archive.Resource, len(a.keys))
	for i, k := range a.keys {
		name := hashPlaceholder(k.hash)
		typ := k.typ
		if dict != nil {
			if full, ok := dict[k.hash]; ok {
				typ = a.mgr.GetFileType(full)
				name = a.mgr.SetFileType(full, restype.None)
			}
		}
		a.entries[i] = archive.Resource{Name: name, Type: typ, Index: uint32(i)}
	}
}

const hexDigits = "0123456789abcdef"

func hashPlaceholder(h uint64) string {
	b := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		b[i] = hexDigits[h&0xF]
		h >>= 4
	}
	return string(b)
}

// ResourceList implements archive.Archive.
func (a *Archive) ResourceList() []archive.Resource { return a.entries }

// ResourceSize implements archive.Archive.
func (a *Archive) ResourceSize(i uint32) (int64, error) {
	if i >= uint32(len(a.table)) {
		return 0, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
	}
	return int64(a.table[i].size), nil
}

// GetResource implements archive.Archive.
func (a *Archive) GetResource(i uint32, tryNoCopy bool) (stream.ReadStream, error) {
	if i >= uint32(len(a.table)) {
		return nil, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
	}
	e := a.table[i]
	end := int64(e.offset) + int64(e.size)
	if end > int64(len(a.data)) {
		return nil, reserr.New(reserr.OutOfRange, "resource extends past end of archive").WithIndex(int64(i))
	}
	if tryNoCopy {
		return stream.NewMemStream(a.data[e.offset:end]), nil
	}
	cp := make([]byte, e.size)
	copy(cp, a.data[e.offset:end])
	return stream.NewMemStream(cp), nil
}

// Close is a no-op: Archive holds its data in memory.
func (a *Archive) Close() error { return nil }
