// Copyright (C) 2016 The Resource Authors.

// Package erf implements BioWare's ERF (encapsulated resource file)
// container in its three incompatible on-disk layouts: v1.0 (used by
// NWN/NWN2/KotOR under the ERF/MOD/HAK/SAV magics), v2.0 (Dragon Age)
// and v2.2 (Dragon Age II, adding per-resource zlib compression).
package erf

import (
	"github.com/xeos/aurora-res/archive"
	"github.com/xeos/aurora-res/compress"
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
	"github.com/xeos/aurora-res/strenc"
)

// Version identifies which of the three ERF layouts an archive uses.
type Version int

const (
	V1_0 Version = iota
	V2_0
	V2_2
)

// compressionType is the v2.2 per-resource compression scheme, decoded
// from the top bits of the flags word.
type compressionType int

const (
	compressionNone compressionType = iota
	compressionBiowareZlib
	compressionHeaderlessZlib
)

const (
	windowBitsMax    = 15
	windowBitsMaxRaw = -15
)

var (
	tagERF  = stream.MakeTag('E', 'R', 'F', ' ')
	tagMOD  = stream.MakeTag('M', 'O', 'D', ' ')
	tagHAK  = stream.MakeTag('H', 'A', 'K', ' ')
	tagSAV  = stream.MakeTag('S', 'A', 'V', ' ')
	tagV1_0 = stream.MakeTag('V', '1', '.', '0')
	tagV2_0 = stream.MakeTag('V', '2', '.', '0')
	tagV2_2 = stream.MakeTag('V', '2', '.', '2')
)

type v22Entry struct {
	offset           uint32
	size             uint32
	uncompressedSize uint32
}

// Archive is the Archive implementation shared by all three ERF
// versions.
type Archive struct {
	version     Version
	compression compressionType
	data        []byte
	entries     []archive.Resource

	// v1.0/v2.0: offset+size only, resource bytes are always stored
	// uncompressed.
	plainEntries []struct{ offset, size uint32 }
	// v2.2 only: additionally carries the uncompressed size, since
	// resources may be compressed.
	v22Entries []v22Entry
}

// Open parses an ERF archive from data, which must hold the entire file.
func Open(data []byte) (*Archive, error) {
	rs := stream.NewMemStream(data)
	base, err := archive.ReadBase(rs)
	if err != nil {
		return nil, err
	}

	a := &Archive{data: data}

	if !base.UTF16LE {
		switch base.ID {
		case tagERF, tagMOD, tagHAK, tagSAV:
		default:
			return nil, archive.ErrFormatMismatch("not an ERF v1.0 file")
		}
		if base.Version != tagV1_0 {
			return nil, archive.ErrFormatMismatch("unsupported ERF v1.0 sub-version")
		}
		a.version = V1_0
		if err := a.loadV10(rs); err != nil {
			return nil, err
		}
		return a, nil
	}

	if base.ID != tagERF {
		return nil, archive.ErrFormatMismatch("not an ERF v2 file")
	}
	switch base.Version {
	case tagV2_0:
		a.version = V2_0
		if err := a.loadV20(rs); err != nil {
			return nil, err
		}
	case tagV2_2:
		a.version = V2_2
		if err := a.loadV22(rs); err != nil {
			return nil, err
		}
	default:
		return nil, archive.ErrFormatMismatch("unsupported ERF v2 sub-version")
	}
	return a, nil
}

func (a *Archive) loadV10(rs stream.ReadStream) error {
	langCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	locStringSize, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	entryCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	locStringOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	keyTableOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	resourceTableOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	_ = locStringOffset
	_ = locStringSize
	_ = langCount

	type keyEntry struct {
		name string
		typ  restype.FileType
	}
	keys := make([]keyEntry, entryCount)
	if _, err := rs.Seek(int64(keyTableOffset), stream.Begin); err != nil {
		return err
	}
	for i := uint32(0); i < entryCount; i++ {
		nameBytes := make([]byte, 16)
		if _, err := rs.Read(nameBytes); err != nil {
			return reserr.New(reserr.TruncatedInput, "ERF v1.0 resref truncated")
		}
		name, err := strenc.Decode(nameBytes, strenc.CP1252)
		if err != nil {
			return err
		}
		name = trimNull(name)
		if _, err := stream.ReadU32LE(rs); err != nil { // resource ID, index order already gives us this
			return err
		}
		typeID, err := stream.ReadU16LE(rs)
		if err != nil {
			return err
		}
		if _, err := stream.ReadU16LE(rs); err != nil { // unused
			return err
		}
		keys[i] = keyEntry{name: name, typ: restype.FileType(typeID)}
	}

	if _, err := rs.Seek(int64(resourceTableOffset), stream.Begin); err != nil {
		return err
	}
	a.entries = make([]archive.Resource, entryCount)
	a.plainEntries = make([]struct{ offset, size uint32 }, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		offset, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		size, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		a.entries[i] = archive.Resource{Name: keys[i].name, Type: keys[i].typ, Index: i}
		a.plainEntries[i] = struct{ offset, size uint32 }{offset, size}
	}
	return nil
}

func (a *Archive) loadV20(rs stream.ReadStream) error {
	entryCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	if _, err := rs.Seek(8, stream.Current); err != nil { // build year/day
		return err
	}
	if _, err := stream.ReadU32LE(rs); err != nil { // 0xFFFFFFFF marker, unused
		return err
	}

	a.entries = make([]archive.Resource, entryCount)
	a.plainEntries = make([]struct{ offset, size uint32 }, entryCount)
	mgr := restype.NewManager()
	for i := uint32(0); i < entryCount; i++ {
		name, err := strenc.ReadFixed(rs, strenc.UTF16LE, 64)
		if err != nil {
			return err
		}
		offset, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		size, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		typ := mgr.GetFileType(name)
		stem := mgr.SetFileType(name, restype.None)
		a.entries[i] = archive.Resource{Name: stem, Type: typ, Index: i}
		a.plainEntries[i] = struct{ offset, size uint32 }{offset, size}
	}
	return nil
}

func (a *Archive) loadV22(rs stream.ReadStream) error {
	entryCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	if _, err := rs.Seek(8, stream.Current); err != nil { // build year/day
		return err
	}
	if _, err := stream.ReadU32BE(rs); err != nil { // 0xFFFFFFFF marker, unused
		return err
	}
	flags, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	switch flags & 0xF0000000 {
	case 0x20000000:
		a.compression = compressionBiowareZlib
	case 0xE0000000:
		a.compression = compressionHeaderlessZlib
	default:
		a.compression = compressionNone
	}
	if _, err := stream.ReadU32LE(rs); err != nil { // password, unused
		return err
	}
	if _, err := rs.Seek(16, stream.Current); err != nil { // module id
		return err
	}

	a.entries = make([]archive.Resource, entryCount)
	a.v22Entries = make([]v22Entry, entryCount)
	mgr := restype.NewManager()
	for i := uint32(0); i < entryCount; i++ {
		name, err := strenc.ReadFixed(rs, strenc.UTF16LE, 64)
		if err != nil {
			return err
		}
		offset, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		size, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		uncompressedSize, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		typ := mgr.GetFileType(name)
		stem := mgr.SetFileType(name, restype.None)
		a.entries[i] = archive.Resource{Name: stem, Type: typ, Index: i}
		a.v22Entries[i] = v22Entry{offset: offset, size: size, uncompressedSize: uncompressedSize}
	}
	return nil
}

func trimNull(s string) string {
	for i, r := range s {
		if r == 0 {
			return s[:i]
		}
	}
	return s
}

// ResourceList implements archive.Archive.
func (a *Archive) ResourceList() []archive.Resource { return a.entries }

// ResourceSize implements archive.Archive.
func (a *Archive) ResourceSize(i uint32) (int64, error) {
	switch a.version {
	case V2_2:
		if i >= uint32(len(a.v22Entries)) {
			return 0, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
		}
		return int64(a.v22Entries[i].uncompressedSize), nil
	default:
		if i >= uint32(len(a.plainEntries)) {
			return 0, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
		}
		return int64(a.plainEntries[i].size), nil
	}
}

// GetResource implements archive.Archive.
func (a *Archive) GetResource(i uint32, tryNoCopy bool) (stream.ReadStream, error) {
	if a.version != V2_2 {
		if i >= uint32(len(a.plainEntries)) {
			return nil, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
		}
		e := a.plainEntries[i]
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

	if i >= uint32(len(a.v22Entries)) {
		return nil, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
	}
	e := a.v22Entries[i]
	end := int64(e.offset) + int64(e.size)
	if end > int64(len(a.data)) {
		return nil, reserr.New(reserr.OutOfRange, "resource extends past end of archive").WithIndex(int64(i))
	}
	raw := a.data[e.offset:end]

	switch a.compression {
	case compressionNone:
		if tryNoCopy {
			return stream.NewMemStream(raw), nil
		}
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return stream.NewMemStream(cp), nil

	case compressionHeaderlessZlib:
		out, err := compress.InflateFixed(raw, int(e.uncompressedSize), windowBitsMaxRaw)
		if err != nil {
			return nil, reserr.Wrap(reserr.CompressionFailure, "failed decompressing ERF resource", err).WithIndex(int64(i))
		}
		return stream.NewMemStream(out), nil

	case compressionBiowareZlib:
		if len(raw) < 1 {
			return nil, reserr.New(reserr.TruncatedInput, "missing BioWare-zlib window-size byte").WithIndex(int64(i))
		}
		windowSize := int(raw[0] >> 4)
		if windowSize > windowBitsMax {
			return nil, reserr.New(reserr.UnsupportedVariant, "BioWare-zlib window size exceeds 15").WithIndex(int64(i))
		}
		out, err := compress.InflateFixed(raw[1:], int(e.uncompressedSize), -windowSize)
		if err != nil {
			return nil, reserr.Wrap(reserr.CompressionFailure, "failed decompressing ERF resource", err).WithIndex(int64(i))
		}
		return stream.NewMemStream(out), nil
	}

	return nil, reserr.New(reserr.UnsupportedVariant, "unknown ERF v2.2 compression type")
}

// Close is a no-op: Archive holds its data in memory.
func (a *Archive) Close() error { return nil }
