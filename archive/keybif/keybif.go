// Copyright (C) 2016 The Resource Authors.

// Package keybif implements BioWare's split KEY/BIF archive pair: KEY is
// a directory of resources, BIF holds the actual resource bytes. A KEY
// references zero or more BIF files by name; this package tolerates a
// referenced BIF being missing on disk until something actually tries to
// fetch a resource from it.
package keybif

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeos/aurora-res/archive"
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
)

var (
	tagKEY  = stream.MakeTag('K', 'E', 'Y', ' ')
	tagV1   = stream.MakeTag('V', '1', ' ', ' ')
	tagV11  = stream.MakeTag('V', '1', '.', '1')
	tagBIFF = stream.MakeTag('B', 'I', 'F', 'F')
)

type bifRef struct {
	filename string
	// archive, nil until the BIF is opened on first fetch; may stay nil
	// forever if the referenced BIF is missing.
	bif *bifArchive
}

// KEYArchive is the Archive implementation for a KEY file: its resource
// list resolves each entry's bytes by opening (lazily, and tolerating
// absence) the BIF file the entry's locator points into.
type KEYArchive struct {
	path     string
	baseDir  string
	bifs     []bifRef
	entries  []archive.Resource
	locators []uint32 // packed (bifIndex, bifLocalIndex), one per entry
}

// Open reads a KEY file's directory (the list of referenced BIFs and the
// resource table) from path. BIF files referenced by the KEY are
// resolved relative to baseDir (typically the KEY's own directory) and
// are not opened until a resource fetch needs them.
func Open(path, baseDir string) (*KEYArchive, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, reserr.Wrap(reserr.FormatMismatch, "cannot read KEY file", err).WithPath(path)
	}
	rs := stream.NewMemStream(f)

	k := &KEYArchive{path: path, baseDir: baseDir}
	if err := k.load(rs); err != nil {
		if rerr, ok := err.(*reserr.Error); ok {
			return nil, rerr.WithPath(path)
		}
		return nil, err
	}
	return k, nil
}

func (k *KEYArchive) load(rs stream.ReadStream) error {
	id, err := stream.ReadU32BE(rs)
	if err != nil {
		return err
	}
	version, err := stream.ReadU32BE(rs)
	if err != nil {
		return err
	}
	if id != tagKEY {
		return reserr.New(reserr.FormatMismatch, "not a KEY file")
	}
	if version != tagV1 && version != tagV11 {
		return reserr.New(reserr.FormatMismatch, "unsupported KEY version")
	}

	bifCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	keyCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	filesOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	keysOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return err
	}
	// buildYear, buildDay: 8 bytes, not needed.
	if _, err := rs.Seek(8, stream.Current); err != nil {
		return err
	}
	if _, err := rs.Seek(32, stream.Current); err != nil { // reserved
		return err
	}

	if _, err := rs.Seek(int64(filesOffset), stream.Begin); err != nil {
		return err
	}
	type fileTableEntry struct {
		size       uint32
		nameOffset uint32
		nameLength uint16
	}
	fileEntries := make([]fileTableEntry, bifCount)
	for i := range fileEntries {
		if _, err := stream.ReadU32LE(rs); err != nil { // bif size, unused
			return err
		}
		nameOff, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		nameLen, err := stream.ReadU16LE(rs)
		if err != nil {
			return err
		}
		if _, err := stream.ReadU16LE(rs); err != nil { // drive flags, unused
			return err
		}
		fileEntries[i] = fileTableEntry{nameOffset: nameOff, nameLength: nameLen}
	}

	k.bifs = make([]bifRef, bifCount)
	for i, fe := range fileEntries {
		if _, err := rs.Seek(int64(fe.nameOffset), stream.Begin); err != nil {
			return err
		}
		nameBytes := make([]byte, fe.nameLength)
		if _, err := rs.Read(nameBytes); err != nil {
			return reserr.New(reserr.TruncatedInput, "BIF filename truncated")
		}
		name := strings.TrimRight(string(nameBytes), "\x00")
		name = strings.ReplaceAll(name, "\\", "/")
		k.bifs[i] = bifRef{filename: name}
	}

	if _, err := rs.Seek(int64(keysOffset), stream.Begin); err != nil {
		return err
	}
	k.entries = make([]archive.Resource, keyCount)
	k.locators = make([]uint32, keyCount)
	for i := uint32(0); i < keyCount; i++ {
		nameBytes := make([]byte, 16)
		if _, err := rs.Read(nameBytes); err != nil {
			return reserr.New(reserr.TruncatedInput, "resource name truncated")
		}
		name := strings.ToLower(strings.TrimRight(string(nameBytes), "\x00"))
		typeID, err := stream.ReadU16LE(rs)
		if err != nil {
			return err
		}
		locator, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		k.entries[i] = archive.Resource{Name: name, Type: restype.FileType(typeID), Index: i}
		k.locators[i] = locator
	}

	return nil
}

// ResourceList implements archive.Archive.
func (k *KEYArchive) ResourceList() []archive.Resource { return k.entries }

func (k *KEYArchive) locatorFor(i uint32) (bifIndex, bifLocalIndex uint32, err error) {
	if i >= uint32(len(k.locators)) {
		return 0, 0, reserr.New(reserr.OutOfRange, "resource index out of range").WithIndex(int64(i))
	}
	loc := k.locators[i]
	// Locator packs (BIF-index: top 12 bits, BIF-local-entry-index:
	// bottom 20 bits), the conventional KEY/BIF split.
	bifIndex = loc >> 20
	bifLocalIndex = loc & 0xFFFFF
	return bifIndex, bifLocalIndex, nil
}

func (k *KEYArchive) openBIF(idx uint32) (*bifArchive, error) {
	if idx >= uint32(len(k.bifs)) {
		return nil, reserr.New(reserr.OutOfRange, "BIF index out of range").WithIndex(int64(idx))
	}
	ref := &k.bifs[idx]
	if ref.bif != nil {
		return ref.bif, nil
	}
	path := filepath.Join(k.baseDir, filepath.FromSlash(ref.filename))
	bif, err := openBIF(path)
	if err != nil {
		return nil, err
	}
	ref.bif = bif
	return bif, nil
}

// ResourceSize implements archive.Archive.
func (k *KEYArchive) ResourceSize(i uint32) (int64, error) {
	bifIdx, localIdx, err := k.locatorFor(i)
	if err != nil {
		return 0, err
	}
	bif, err := k.openBIF(bifIdx)
	if err != nil {
		return 0, fmt.Errorf("resolving BIF for resource %d: %w", i, err)
	}
	return bif.resourceSize(localIdx)
}

// GetResource implements archive.Archive.
func (k *KEYArchive) GetResource(i uint32, tryNoCopy bool) (stream.ReadStream, error) {
	bifIdx, localIdx, err := k.locatorFor(i)
	if err != nil {
		return nil, err
	}
	bif, err := k.openBIF(bifIdx)
	if err != nil {
		return nil, fmt.Errorf("resolving BIF for resource %d: %w", i, err)
	}
	return bif.getResource(localIdx, tryNoCopy)
}

// Close releases every BIF this KEY has opened so far.
func (k *KEYArchive) Close() error {
	var firstErr error
	for i := range k.bifs {
		if k.bifs[i].bif != nil {
			if err := k.bifs[i].bif.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// bifArchive is the (not independently exported) reader for a single
// BIF file's resource table and payload.
type bifArchive struct {
	path    string
	data    []byte
	entries []bifEntry
}

type bifEntry struct {
	offset uint32
	size   uint32
}

func openBIF(path string) (*bifArchive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, reserr.Wrap(reserr.FormatMismatch, "cannot read BIF file", err).WithPath(path)
	}
	rs := stream.NewMemStream(data)

	id, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	if id != tagBIFF {
		return nil, reserr.New(reserr.FormatMismatch, "not a BIF file").WithPath(path)
	}
	if _, err := stream.ReadU32BE(rs); err != nil { // version, not checked further
		return nil, err
	}

	varResCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}
	if _, err := stream.ReadU32LE(rs); err != nil { // fixed resource count, unused
		return nil, err
	}
	tableOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}

	if _, err := rs.Seek(int64(tableOffset), stream.Begin); err != nil {
		return nil, err
	}
	entries := make([]bifEntry, varResCount)
	for i := range entries {
		if _, err := stream.ReadU32LE(rs); err != nil { // id, unused: we index by position
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
		if _, err := stream.ReadU32LE(rs); err != nil { // type, unused here
			return nil, err
		}
		entries[i] = bifEntry{offset: offset, size: size}
	}

	return &bifArchive{path: path, data: data, entries: entries}, nil
}

func (b *bifArchive) resourceSize(localIdx uint32) (int64, error) {
	if localIdx >= uint32(len(b.entries)) {
		return 0, reserr.New(reserr.OutOfRange, "BIF-local index out of range").WithPath(b.path).WithIndex(int64(localIdx))
	}
	return int64(b.entries[localIdx].size), nil
}

func (b *bifArchive) getResource(localIdx uint32, tryNoCopy bool) (stream.ReadStream, error) {
	if localIdx >= uint32(len(b.entries)) {
		return nil, reserr.New(reserr.OutOfRange, "BIF-local index out of range").WithPath(b.path).WithIndex(int64(localIdx))
	}
	e := b.entries[localIdx]
	end := int64(e.offset) + int64(e.size)
	if end > int64(len(b.data)) {
		return nil, reserr.New(reserr.OutOfRange, "BIF resource extends past end of file").WithPath(b.path)
	}
	if tryNoCopy {
		return stream.NewMemStream(b.data[e.offset:end]), nil
	}
	cp := make([]byte, e.size)
	copy(cp, b.data[e.offset:end])
	return stream.NewMemStream(cp), nil
}

func (b *bifArchive) close() error { return nil }
