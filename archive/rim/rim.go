// Copyright (C) 2016 The Resource Authors.

// Package rim implements BioWare's RIM (resource image) container: a
// flat, always-uncompressed resource table with no key/resource split
// and no compression, the simplest of the archive formats.
package rim

import (
	"github.com/xeos/aurora-res/archive"
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
)

var (
	tagRIM = stream.MakeTag('R', 'I', 'M', ' ')
	tagV10 = stream.MakeTag('V', '1', '.', '0')
)

type rimEntry struct {
	offset uint32
	size   uint32
}

// Archive is the Archive implementation for a RIM file.
type Archive struct {
	data    []byte
	entries []archive.Resource
	table   []rimEntry
}

// Open parses a RIM archive from data, which must hold the entire file.
func Open(data []byte) (*Archive, error) {
	rs := stream.NewMemStream(data)

	id, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	version, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	if id != tagRIM {
		return nil, archive.ErrFormatMismatch("not a RIM file")
	}
	if version != tagV10 {
		return nil, archive.ErrFormatMismatch("unsupported RIM version")
	}

	if _, err := rs.Seek(4, stream.Current); err != nil { // reserved
		return nil, err
	}
	entryCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}
	tableOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}
	if _, err := rs.Seek(100, stream.Current); err != nil { // reserved
		return nil, err
	}

	if _, err := rs.Seek(int64(tableOffset), stream.Begin); err != nil {
		return nil, err
	}

	a := &Archive{data: data}
	a.entries = make([]archive.Resource, entryCount)
	a.table = make([]rimEntry, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		nameBytes := make([]byte, 16)
		if _, err := rs.Read(nameBytes); err != nil {
			return nil, reserr.New(reserr.TruncatedInput, "RIM resref truncated")
		}
		name := trimTrailingNUL(nameBytes)

		typeID, err := stream.ReadU32LE(rs)
		if err != nil {
			return nil, err
		}
		if _, err := stream.ReadU32LE(rs); err != nil { // resource id, unused: position gives the index
			return nil, err
		}
		offset, err := stream.ReadU32LE(rs)
		if err != nil {
			return nil, err
		}
		size, err := stream.ReadU32LE(rs)
		if err != nil {
			return nil, err
		}

		a.entries[i] = archive.Resource{Name: name, Type: restype.FileType(typeID), Index: i}
		a.table[i] = rimEntry{offset: offset, size: size}
	}

	return a, nil
}

func trimTrailingNUL(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
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
