// Copyright (C) 2016 The Resource Authors.

// Package tws implements TheWitcherSave archive format: a fixed
// 8232-byte header (four constant signature words plus an embedded area
// name, repeated twice as a consistency check) followed by arbitrary
// resource bytes and, at the very end of the file, a resource table
// whose own location is recorded in the file's last 8 bytes.
package tws

import (
	"strings"

	"github.com/xeos/aurora-res/archive"
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
	"github.com/xeos/aurora-res/strenc"
)

var tagRGMH = stream.MakeTag('R', 'G', 'M', 'H')

const (
	sig1 = 0xEE7C4A60
	sig2 = 0x459E4568
	sig3 = 0x10D3DBBD
	sig4 = 0x1CBCF20B

	lightningStorm = "Lightning Storm"
)

type iResource struct {
	offset uint32
	length uint32
}

// Archive is the Archive implementation for a TheWitcherSave file.
type Archive struct {
	data     []byte
	areaName string
	entries  []archive.Resource
	table    []iResource
}

// AreaName returns the save's embedded area name.
func (a *Archive) AreaName() string { return a.areaName }

// Open parses a TheWitcherSave archive from data, which must hold the
// entire file.
func Open(data []byte) (*Archive, error) {
	rs := stream.NewMemStream(data)

	magic, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	if magic != tagRGMH {
		return nil, archive.ErrFormatMismatch("invalid TheWitcherSave file")
	}
	version, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, archive.ErrFormatMismatch("invalid TheWitcherSave file version")
	}

	dataOffset, err := stream.ReadU64LE(rs)
	if err != nil {
		return nil, err
	}
	if _, err := rs.Seek(8, stream.Current); err != nil { // unknown, possibly zero only
		return nil, err
	}

	for _, want := range [4]uint32{sig1, sig2, sig3, sig4} {
		got, err := stream.ReadU32LE(rs)
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, reserr.New(reserr.FormatMismatch, "unexpected TheWitcherSave signature word")
		}
	}

	storm, err := strenc.ReadFixed(rs, strenc.UTF16LE, 2048)
	if err != nil {
		return nil, err
	}
	if storm != lightningStorm {
		return nil, reserr.New(reserr.FormatMismatch, "missing \"Lightning Storm\" marker")
	}

	areaName1, err := strenc.ReadFixed(rs, strenc.UTF16LE, 2048)
	if err != nil {
		return nil, err
	}
	areaName2, err := strenc.ReadFixed(rs, strenc.UTF16LE, 2048)
	if err != nil {
		return nil, err
	}
	if areaName1 != areaName2 {
		return nil, reserr.New(reserr.FormatMismatch, "area name mismatch")
	}

	a := &Archive{data: data, areaName: areaName1}
	if err := a.readResourceTable(rs, dataOffset); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) readResourceTable(rs stream.ReadStream, dataOffset uint64) error {
	if _, err := rs.Seek(-8, stream.End); err != nil {
		return err
	}
	resourceOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	resourceCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}

	if _, err := rs.Seek(int64(resourceOffset), stream.Begin); err != nil {
		return err
	}

	mgr := restype.NewManager()
	a.entries = make([]archive.Resource, resourceCount)
	a.table = make([]iResource, resourceCount)
	for i := uint32(0); i < resourceCount; i++ {
		nameLength, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		name, err := strenc.ReadFixed(rs, strenc.UTF8, int(nameLength))
		if err != nil {
			return err
		}

		typ := mgr.GetFileType(name)
		name = mgr.SetFileType(name, restype.None)
		name = strings.ReplaceAll(name, "\\", "/")

		length, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		offset, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		if uint64(offset) < dataOffset {
			return reserr.New(reserr.OutOfRange, "invalid resource offset").WithIndex(int64(i))
		}

		a.entries[i] = archive.Resource{Name: name, Type: typ, Index: i}
		a.table[i] = iResource{offset: offset, length: length}
	}
	return nil
}

// ResourceList implements archive.Archive.
func (a *Archive) ResourceList() []archive.Resource { return a.entries }

// ResourceSize implements archive.Archive.
func (a *Archive) ResourceSize(i uint32) (int64, error) {
	if i >= uint32(len(a.table)) {
		return 0, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
	}
	return int64(a.table[i].length), nil
}

// GetResource implements archive.Archive.
func (a *Archive) GetResource(i uint32, tryNoCopy bool) (stream.ReadStream, error) {
	if i >= uint32(len(a.table)) {
		return nil, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
	}
	e := a.table[i]
	end := int64(e.offset) + int64(e.length)
	if end > int64(len(a.data)) {
		return nil, reserr.New(reserr.OutOfRange, "resource extends past end of archive").WithIndex(int64(i))
	}
	if tryNoCopy {
		return stream.NewMemStream(a.data[e.offset:end]), nil
	}
	cp := make([]byte, e.length)
	copy(cp, a.data[e.offset:end])
	return stream.NewMemStream(cp), nil
}

// Close is a no-op: Archive holds its data in memory.
func (a *Archive) Close() error { return nil }
