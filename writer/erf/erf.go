// Copyright (C) 2016 The Resource Authors.

// Package erf writes BioWare's ERF container in its three incompatible
// on-disk layouts (v1.0, v2.0, v2.2), the write-side counterpart of
// github.com/xeos/aurora-res/archive/erf.
package erf

import (
	"io"
	"time"

	"github.com/xeos/aurora-res/compress"
	"github.com/xeos/aurora-res/gff3"
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
	"github.com/xeos/aurora-res/strenc"
)

// Version identifies which of the three ERF layouts a Writer emits.
type Version int

const (
	V1_0 Version = iota
	V2_0
	V2_2
)

// Compression is the v2.2 per-resource compression scheme; it is ignored
// for v1.0/v2.0, which always store resources uncompressed.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionBiowareZlib
	CompressionHeaderlessZlib
)

const (
	windowBitsMax    = 15
	windowBitsMaxRaw = -15
)

var (
	tagV1_0 = stream.MakeTag('V', '1', '.', '0')
)

// Writer incrementally builds an ERF archive: construct it with the
// expected file count, Add each resource in turn, and discard it once
// every slot has been filled. Unlike TheWitcherSaveWriter there is no
// separate Finish step: the header and tables are fully determined at
// construction time and patched in place as each resource is added.
type Writer struct {
	ws          stream.WriteStream
	version     Version
	compression Compression

	currentFileCount uint32
	fileCount        uint32
	offsetToData     uint32
	keyTableOffset   uint32
	resourceTable    uint32

	mgr *restype.Manager
}

// New creates a Writer by writing id's version header into ws and
// reserving fileCount slots in the key and resource tables. description
// is only meaningful for v1.0; pass gff3.LocString{} for no description.
func New(ws stream.WriteStream, id uint32, fileCount uint32, version Version, compression Compression, description gff3.LocString) (*Writer, error) {
	w := &Writer{
		ws:          ws,
		version:     version,
		compression: compression,
		fileCount:   fileCount,
		mgr:         restype.NewManager(),
	}

	var err error
	switch version {
	case V1_0:
		err = w.initV10(id, description)
	case V2_0:
		err = w.initV20()
	case V2_2:
		err = w.initV22()
	default:
		return nil, reserr.New(reserr.UnsupportedVariant, "unsupported ERF version")
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Add packs resRef/resType's bytes, read in full from rs, into the next
// free slot. It fails with WriterCapacity once fileCount resources have
// already been added.
func (w *Writer) Add(resRef string, resType restype.FileType, rs stream.ReadStream) error {
	if w.currentFileCount == w.fileCount {
		return reserr.New(reserr.WriterCapacity, "ERF writer: more files added than reserved capacity")
	}

	// Files without a type, or with a type that has no numeric ID
	// usable inside an ERF archive, fall back to the generic RES type.
	if resType == restype.None || resType >= restype.MaxArchive {
		resType = restype.RES
	}

	var err error
	switch w.version {
	case V1_0:
		err = w.addV10(resRef, resType, rs)
	case V2_0:
		err = w.addV20(resRef, resType, rs)
	case V2_2:
		err = w.addV22(resRef, resType, rs)
	}
	if err != nil {
		return err
	}
	w.currentFileCount++
	return nil
}

func (w *Writer) initV10(id uint32, description gff3.LocString) error {
	if err := stream.WriteU32BE(w.ws, id); err != nil {
		return err
	}
	if err := stream.WriteU32BE(w.ws, tagV1_0); err != nil {
		return err
	}

	locStringSize := locStringWrittenSize(description)
	langCount := uint32(len(description.Strings))

	if err := stream.WriteU32LE(w.ws, langCount); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, locStringSize); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, w.fileCount); err != nil {
		return err
	}

	const locStringTableOffset = 160
	w.keyTableOffset = locStringTableOffset + locStringSize
	w.resourceTable = w.keyTableOffset + w.fileCount*24

	if err := stream.WriteU32LE(w.ws, locStringTableOffset); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, w.keyTableOffset); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, w.resourceTable); err != nil {
		return err
	}

	now := time.Now()
	if err := stream.WriteU32LE(w.ws, uint32(now.Year()-1900)); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, uint32(now.YearDay()-1)); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, uint32(description.StrRef)); err != nil {
		return err
	}
	if err := stream.WriteZeros(w.ws, 116); err != nil {
		return err
	}

	if err := writeLocString(w.ws, description); err != nil {
		return err
	}
	if err := stream.WriteZeros(w.ws, int(w.fileCount)*24); err != nil {
		return err
	}

	w.offsetToData = w.resourceTable + 8*w.fileCount
	return stream.WriteZeros(w.ws, int(w.fileCount)*8)
}

func (w *Writer) initV20() error {
	if err := strenc.WriteString(w.ws, "ERF V2.0", strenc.UTF16LE); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, w.fileCount); err != nil {
		return err
	}
	now := time.Now()
	if err := stream.WriteU32LE(w.ws, uint32(now.Year()-1900)); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, uint32(now.YearDay()-1)); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, 0xFFFFFFFF); err != nil {
		return err
	}

	w.resourceTable = uint32(w.ws.Pos())
	if err := stream.WriteZeros(w.ws, int(w.fileCount)*72); err != nil {
		return err
	}
	w.offsetToData = uint32(w.ws.Pos())
	return nil
}

func (w *Writer) initV22() error {
	if err := strenc.WriteString(w.ws, "ERF V2.2", strenc.UTF16LE); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, w.fileCount); err != nil {
		return err
	}
	now := time.Now()
	if err := stream.WriteU32LE(w.ws, uint32(now.Year()-1900)); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, uint32(now.YearDay()-1)); err != nil {
		return err
	}
	if err := stream.WriteU32BE(w.ws, 0xFFFFFFFF); err != nil {
		return err
	}

	var flags uint32
	switch w.compression {
	case CompressionBiowareZlib:
		flags |= 0x20000000
	case CompressionHeaderlessZlib:
		flags |= 0xE0000000
	}
	if err := stream.WriteU32LE(w.ws, flags); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, 0); err != nil { // password, unused
		return err
	}
	if err := stream.WriteZeros(w.ws, 16); err != nil { // module id
		return err
	}

	w.resourceTable = uint32(w.ws.Pos())
	if err := stream.WriteZeros(w.ws, int(w.fileCount)*76); err != nil {
		return err
	}
	w.offsetToData = uint32(w.ws.Pos())
	return nil
}

func (w *Writer) addV10(resRef string, resType restype.FileType, rs stream.ReadStream) error {
	if _, err := w.ws.Seek(int64(w.keyTableOffset)+int64(w.currentFileCount)*24, stream.Begin); err != nil {
		return err
	}
	if err := strenc.WriteFixed(w.ws, resRef, strenc.CP1252, 16); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, w.currentFileCount); err != nil {
		return err
	}
	if err := stream.WriteU16LE(w.ws, uint16(resType)); err != nil {
		return err
	}
	if err := stream.WriteU16LE(w.ws, 0); err != nil { // unused
		return err
	}

	if _, err := w.ws.Seek(int64(w.offsetToData), stream.Begin); err != nil {
		return err
	}
	n, err := stream.CopyStream(w.ws, rs)
	if err != nil {
		return err
	}

	if _, err := w.ws.Seek(int64(w.resourceTable)+int64(w.currentFileCount)*8, stream.Begin); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, w.offsetToData); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, uint32(n)); err != nil {
		return err
	}

	w.offsetToData += uint32(n)
	return nil
}

func (w *Writer) addV20(resRef string, resType restype.FileType, rs stream.ReadStream) error {
	if _, err := w.ws.Seek(int64(w.offsetToData), stream.Begin); err != nil {
		return err
	}
	n, err := stream.CopyStream(w.ws, rs)
	if err != nil {
		return err
	}

	if _, err := w.ws.Seek(int64(w.resourceTable)+int64(w.currentFileCount)*72, stream.Begin); err != nil {
		return err
	}
	fullName := w.mgr.AddFileType(resRef, resType)
	if err := strenc.WriteFixed(w.ws, fullName, strenc.UTF16LE, 64); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, w.offsetToData); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, uint32(n)); err != nil {
		return err
	}

	w.offsetToData += uint32(n)
	return nil
}

func (w *Writer) addV22(resRef string, resType restype.FileType, rs stream.ReadStream) error {
	if _, err := w.ws.Seek(int64(w.offsetToData), stream.Begin); err != nil {
		return err
	}

	uncompressedSize := rs.Size() - rs.Pos()
	var size int64
	switch w.compression {
	case CompressionNone:
		n, err := stream.CopyStream(w.ws, rs)
		if err != nil {
			return err
		}
		size = n

	case CompressionBiowareZlib:
		compressed, err := deflateRemaining(rs)
		if err != nil {
			return err
		}
		if err := stream.WriteU8(w.ws, byte(windowBitsMax<<4)); err != nil {
			return err
		}
		if _, err := w.ws.Write(compressed); err != nil {
			return err
		}
		size = int64(len(compressed)) + 1

	case CompressionHeaderlessZlib:
		compressed, err := deflateRemaining(rs)
		if err != nil {
			return err
		}
		if _, err := w.ws.Write(compressed); err != nil {
			return err
		}
		size = int64(len(compressed))
	}

	if _, err := w.ws.Seek(int64(w.resourceTable)+int64(w.currentFileCount)*76, stream.Begin); err != nil {
		return err
	}
	fullName := w.mgr.AddFileType(resRef, resType)
	if err := strenc.WriteFixed(w.ws, fullName, strenc.UTF16LE, 64); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, w.offsetToData); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, uint32(size)); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, uint32(uncompressedSize)); err != nil {
		return err
	}

	w.offsetToData += uint32(size)
	return nil
}

// deflateRemaining reads rs to the end and returns it headerless-deflated
// at window-bits-max, matching Common::compressDeflate's raw-DEFLATE
// convention for both ERF v2.2 compression modes.
func deflateRemaining(rs stream.ReadStream) ([]byte, error) {
	raw, err := io.ReadAll(io.NewSectionReader(rs, rs.Pos(), rs.Size()-rs.Pos()))
	if err != nil {
		return nil, reserr.Wrap(reserr.TruncatedInput, "failed reading resource payload", err)
	}
	return compress.Deflate(raw, windowBitsMaxRaw)
}

// locStringWrittenSize returns the exact byte length writeLocString will
// emit, matching the layout GFF3's ExoLocString field uses: a strref,
// an entry count, and per-entry (stringID, length, UTF-8 bytes) —
// omitting the total-size prefix, which has no meaning outside a GFF's
// own field-data framing.
func locStringWrittenSize(l gff3.LocString) uint32 {
	size := uint32(8) // strref + entry count
	for _, s := range l.Strings {
		size += 8 + uint32(len(s))
	}
	return size
}

func writeLocString(ws stream.WriteStream, l gff3.LocString) error {
	if err := stream.WriteU32LE(ws, uint32(l.StrRef)); err != nil {
		return err
	}
	if err := stream.WriteU32LE(ws, uint32(len(l.Strings))); err != nil {
		return err
	}
	for key, text := range l.Strings {
		stringID := uint32(key.Language)*2 + uint32(key.Gender)
		if err := stream.WriteU32LE(ws, stringID); err != nil {
			return err
		}
		if err := stream.WriteU32LE(ws, uint32(len(text))); err != nil {
			return err
		}
		if err := strenc.WriteString(ws, text, strenc.UTF8); err != nil {
			return err
		}
	}
	return nil
}
