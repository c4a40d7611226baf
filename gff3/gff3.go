// Copyright (C) 2016 The Resource Authors.

// Package gff3 implements BioWare's GFF3 structured-record format
// (versions V3.2 and V3.3): a tree of typed structs whose six parallel
// tables (structs, fields, labels, field-data, field-indices,
// list-indices) are all laid out as byte-offset/size pairs straight out
// of the 60-byte header (12-byte preamble plus six u32 pairs).
package gff3

import (
	"math"

	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/stream"
	"github.com/xeos/aurora-res/strenc"
)

// FieldType identifies the on-disk type of a GFF3 field.
type FieldType uint32

const (
	Byte FieldType = iota
	Char
	Word
	Short
	Dword
	Int
	Dword64
	Int64
	Float
	Double
	ExoString
	ResRef
	ExoLocString
	Void
	StructType
	List
	Orientation
	Vector
	StrRef
)

var tagGFF = stream.MakeTag('G', 'F', 'F', ' ')
var tagV3_2 = stream.MakeTag('V', '3', '.', '2')
var tagV3_3 = stream.MakeTag('V', '3', '.', '3')

type rawStruct struct {
	typ          uint32
	dataOrOffset uint32
	fieldCount   uint32
}

type rawField struct {
	typ          FieldType
	labelIndex   uint32
	dataOrOffset uint32
}

// File is a parsed GFF3 document.
type File struct {
	data    []byte
	subType string
	version uint32

	structs []rawStruct
	fields  []rawField
	labels  []string

	fieldDataOffset    uint32
	fieldIndicesOffset uint32
	listIndicesOffset  uint32
}

// Parse reads a complete GFF3 document out of data.
func Parse(data []byte) (*File, error) {
	rs := stream.NewMemStream(data)

	id, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	if id != tagGFF {
		return nil, reserr.New(reserr.FormatMismatch, "not a GFF file")
	}
	subTypeTag, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	version, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	if version != tagV3_2 && version != tagV3_3 {
		return nil, reserr.New(reserr.FormatMismatch, "unsupported GFF3 version")
	}

	f := &File{data: data, subType: stream.TagString(subTypeTag), version: version}

	structOffset, structCount, err := readOffsetCount(rs)
	if err != nil {
		return nil, err
	}
	fieldOffset, fieldCount, err := readOffsetCount(rs)
	if err != nil {
		return nil, err
	}
	labelOffset, labelCount, err := readOffsetCount(rs)
	if err != nil {
		return nil, err
	}
	fieldDataOffset, _, err := readOffsetCount(rs)
	if err != nil {
		return nil, err
	}
	fieldIndicesOffset, _, err := readOffsetCount(rs)
	if err != nil {
		return nil, err
	}
	listIndicesOffset, _, err := readOffsetCount(rs)
	if err != nil {
		return nil, err
	}
	f.fieldDataOffset = fieldDataOffset
	f.fieldIndicesOffset = fieldIndicesOffset
	f.listIndicesOffset = listIndicesOffset

	if err := f.readStructs(rs, structOffset, structCount); err != nil {
		return nil, err
	}
	if err := f.readFields(rs, fieldOffset, fieldCount); err != nil {
		return nil, err
	}
	if err := f.readLabels(rs, labelOffset, labelCount); err != nil {
		return nil, err
	}

	for _, lbl := range f.fieldLabelIndices() {
		if lbl >= uint32(len(f.labels)) {
			return nil, reserr.New(reserr.OutOfRange, "field label index out of range")
		}
	}

	return f, nil
}

func readOffsetCount(rs stream.ReadStream) (offset, count uint32, err error) {
	offset, err = stream.ReadU32LE(rs)
	if err != nil {
		return 0, 0, err
	}
	count, err = stream.ReadU32LE(rs)
	if err != nil {
		return 0, 0, err
	}
	return offset, count, nil
}

func (f *File) readStructs(rs stream.ReadStream, offset, count uint32) error {
	if _, err := rs.Seek(int64(offset), stream.Begin); err != nil {
		return err
	}
	f.structs = make([]rawStruct, count)
	for i := range f.structs {
		typ, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		dataOrOffset, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		fieldCount, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		f.structs[i] = rawStruct{typ: typ, dataOrOffset: dataOrOffset, fieldCount: fieldCount}
	}
	return nil
}

func (f *File) readFields(rs stream.ReadStream, offset, count uint32) error {
	if _, err := rs.Seek(int64(offset), stream.Begin); err != nil {
		return err
	}
	f.fields = make([]rawField, count)
	for i := range f.fields {
		typ, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		labelIndex, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		dataOrOffset, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		f.fields[i] = rawField{typ: FieldType(typ), labelIndex: labelIndex, dataOrOffset: dataOrOffset}
	}
	return nil
}

func (f *File) readLabels(rs stream.ReadStream, offset, count uint32) error {
	if _, err := rs.Seek(int64(offset), stream.Begin); err != nil {
		return err
	}
	f.labels = make([]string, count)
	for i := range f.labels {
		b := make([]byte, 16)
		if _, err := rs.Read(b); err != nil {
			return reserr.New(reserr.TruncatedInput, "label truncated")
		}
		f.labels[i] = trimNUL(b)
	}
	return nil
}

func trimNUL(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

func (f *File) fieldLabelIndices() []uint32 {
	out := make([]uint32, len(f.fields))
	for i, fl := range f.fields {
		out[i] = fl.labelIndex
	}
	return out
}

// SubType returns the four-character resource sub-type tag from the
// root header (e.g. "ARE ").
func (f *File) SubType() string { return f.subType }

// TopLevel returns the root struct (struct index 0).
func (f *File) TopLevel() (*Struct, error) {
	if len(f.structs) == 0 {
		return nil, reserr.New(reserr.FormatMismatch, "GFF3 file has no top-level struct")
	}
	return &Struct{file: f, index: 0}, nil
}

// exoStringEncoding returns the text encoding exo-strings use in this
// version of the format: V3.2 is CP-1252, V3.3 is UTF-16LE.
func (f *File) exoStringEncoding() strenc.Encoding {
	if f.version == tagV3_3 {
		return strenc.UTF16LE
	}
	return strenc.CP1252
}

// Struct is a single node of a parsed GFF3 tree; its lifetime is tied to
// the File that produced it.
type Struct struct {
	file  *File
	index uint32
}

// Type returns the struct's type tag.
func (s *Struct) Type() uint32 { return s.file.structs[s.index].typ }

func (s *Struct) fieldIndices() ([]uint32, error) {
	rs := s.file.structs[s.index]
	if rs.fieldCount == 0 {
		return nil, nil
	}
	if rs.fieldCount == 1 {
		return []uint32{rs.dataOrOffset}, nil
	}
	abs := int64(s.file.fieldIndicesOffset) + int64(rs.dataOrOffset)
	rstream := stream.NewMemStream(s.file.data)
	if _, err := rstream.Seek(abs, stream.Begin); err != nil {
		return nil, err
	}
	out := make([]uint32, rs.fieldCount)
	for i := range out {
		v, err := stream.ReadU32LE(rstream)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Struct) findField(label string) (*rawField, error) {
	indices, err := s.fieldIndices()
	if err != nil {
		return nil, err
	}
	for _, idx := range indices {
		if idx >= uint32(len(s.file.fields)) {
			return nil, reserr.New(reserr.OutOfRange, "field index out of range")
		}
		fl := &s.file.fields[idx]
		if fl.labelIndex < uint32(len(s.file.labels)) && s.file.labels[fl.labelIndex] == label {
			return fl, nil
		}
	}
	return nil, nil
}

// HasField reports whether label is present on this struct.
func (s *Struct) HasField(label string) bool {
	fl, err := s.findField(label)
	return err == nil && fl != nil
}

// GetType returns label's field type and whether it exists.
func (s *Struct) GetType(label string) (FieldType, bool) {
	fl, err := s.findField(label)
	if err != nil || fl == nil {
		return 0, false
	}
	return fl.typ, true
}

func (f *File) blobReader(absOffset uint32) (stream.ReadStream, error) {
	rs := stream.NewMemStream(f.data)
	if _, err := rs.Seek(int64(absOffset), stream.Begin); err != nil {
		return nil, err
	}
	return rs, nil
}

// GetUint64 returns label's value as an unsigned integer, or def if
// label is absent.
func (s *Struct) GetUint64(label string, def uint64) (uint64, error) {
	fl, err := s.findField(label)
	if err != nil {
		return def, err
	}
	if fl == nil {
		return def, nil
	}
	switch fl.typ {
	case Byte, Word, Dword:
		return uint64(fl.dataOrOffset), nil
	case Char, Short, Int:
		return uint64(int64(int32(fl.dataOrOffset))), nil
	case Dword64:
		rs, err := s.file.blobReader(s.file.fieldDataOffset + fl.dataOrOffset)
		if err != nil {
			return def, err
		}
		return stream.ReadU64LE(rs)
	case Int64:
		rs, err := s.file.blobReader(s.file.fieldDataOffset + fl.dataOrOffset)
		if err != nil {
			return def, err
		}
		v, err := stream.ReadU64LE(rs)
		return v, err
	default:
		return def, reserr.New(reserr.UnsupportedVariant, "field is not an integer type").WithResRef(label)
	}
}

// GetInt64 returns label's value as a signed integer, or def if label is
// absent.
func (s *Struct) GetInt64(label string, def int64) (int64, error) {
	v, err := s.GetUint64(label, uint64(def))
	return int64(v), err
}

// GetFloat64 returns label's value as a float, or def if label is
// absent.
func (s *Struct) GetFloat64(label string, def float64) (float64, error) {
	fl, err := s.findField(label)
	if err != nil {
		return def, err
	}
	if fl == nil {
		return def, nil
	}
	switch fl.typ {
	case Float:
		return float64(math.Float32frombits(fl.dataOrOffset)), nil
	case Double:
		rs, err := s.file.blobReader(s.file.fieldDataOffset + fl.dataOrOffset)
		if err != nil {
			return def, err
		}
		return stream.ReadF64LE(rs)
	default:
		return def, reserr.New(reserr.UnsupportedVariant, "field is not a float type").WithResRef(label)
	}
}

// GetString returns label's value as a string (CExoString or ResRef),
// or def if label is absent.
func (s *Struct) GetString(label string, def string) (string, error) {
	fl, err := s.findField(label)
	if err != nil {
		return def, err
	}
	if fl == nil {
		return def, nil
	}
	switch fl.typ {
	case ExoString:
		rs, err := s.file.blobReader(s.file.fieldDataOffset + fl.dataOrOffset)
		if err != nil {
			return def, err
		}
		length, err := stream.ReadU32LE(rs)
		if err != nil {
			return def, err
		}
		raw, err := readBytes(rs, int(length))
		if err != nil {
			return def, err
		}
		return strenc.Decode(raw, s.file.exoStringEncoding())
	case ResRef:
		rs, err := s.file.blobReader(s.file.fieldDataOffset + fl.dataOrOffset)
		if err != nil {
			return def, err
		}
		length, err := stream.ReadU8(rs)
		if err != nil {
			return def, err
		}
		raw, err := readBytes(rs, int(length))
		if err != nil {
			return def, err
		}
		return strenc.Decode(raw, strenc.CP1252)
	default:
		return def, reserr.New(reserr.UnsupportedVariant, "field is not a string type").WithResRef(label)
	}
}

func readBytes(rs stream.ReadStream, n int) ([]byte, error) {
	b := make([]byte, n)
	read := 0
	for read < n {
		m, err := rs.Read(b[read:])
		read += m
		if err != nil {
			if read < n {
				return nil, reserr.New(reserr.TruncatedInput, "blob read past end of stream")
			}
			break
		}
	}
	return b, nil
}

// Gender is the grammatical gender a LocString entry is written for.
type Gender int

const (
	Male Gender = iota
	Female
)

// LocKey identifies one translation inside a LocString.
type LocKey struct {
	Language int
	Gender   Gender
}

// LocString is a localized-string table: a talk-table reference plus
// zero or more inline (language, gender) -> text translations.
type LocString struct {
	StrRef  int32
	Strings map[LocKey]string
}

// Get returns the text for (language, gender), or "" if absent.
func (l LocString) Get(language int, gender Gender) string {
	return l.Strings[LocKey{Language: language, Gender: gender}]
}

// GetLocString returns label's value as a LocString, or def if label is
// absent.
func (s *Struct) GetLocString(label string, def LocString) (LocString, error) {
	fl, err := s.findField(label)
	if err != nil {
		return def, err
	}
	if fl == nil {
		return def, nil
	}
	if fl.typ != ExoLocString {
		return def, reserr.New(reserr.UnsupportedVariant, "field is not a LocString").WithResRef(label)
	}
	rs, err := s.file.blobReader(s.file.fieldDataOffset + fl.dataOrOffset)
	if err != nil {
		return def, err
	}
	if _, err := stream.ReadU32LE(rs); err != nil { // total size, unused: we know our own framing
		return def, err
	}
	strrefRaw, err := stream.ReadU32LE(rs)
	if err != nil {
		return def, err
	}
	count, err := stream.ReadU32LE(rs)
	if err != nil {
		return def, err
	}
	loc := LocString{StrRef: int32(strrefRaw), Strings: make(map[LocKey]string, count)}
	for i := uint32(0); i < count; i++ {
		stringID, err := stream.ReadU32LE(rs)
		if err != nil {
			return def, err
		}
		length, err := stream.ReadU32LE(rs)
		if err != nil {
			return def, err
		}
		raw, err := readBytes(rs, int(length))
		if err != nil {
			return def, err
		}
		text, err := strenc.Decode(raw, strenc.UTF8)
		if err != nil {
			return def, err
		}
		key := LocKey{Language: int(stringID / 2), Gender: Gender(stringID % 2)}
		loc.Strings[key] = text
	}
	return loc, nil
}

// GetData returns label's value as opaque (Void) bytes, or def if label
// is absent.
func (s *Struct) GetData(label string, def []byte) ([]byte, error) {
	fl, err := s.findField(label)
	if err != nil {
		return def, err
	}
	if fl == nil {
		return def, nil
	}
	if fl.typ != Void {
		return def, reserr.New(reserr.UnsupportedVariant, "field is not Void").WithResRef(label)
	}
	rs, err := s.file.blobReader(s.file.fieldDataOffset + fl.dataOrOffset)
	if err != nil {
		return def, err
	}
	length, err := stream.ReadU32LE(rs)
	if err != nil {
		return def, err
	}
	return readBytes(rs, int(length))
}

// GetVector returns label's value as a 3-float vector, or def if label
// is absent.
func (s *Struct) GetVector(label string, def [3]float32) ([3]float32, error) {
	fl, err := s.findField(label)
	if err != nil {
		return def, err
	}
	if fl == nil {
		return def, nil
	}
	if fl.typ != Vector {
		return def, reserr.New(reserr.UnsupportedVariant, "field is not Vector").WithResRef(label)
	}
	rs, err := s.file.blobReader(s.file.fieldDataOffset + fl.dataOrOffset)
	if err != nil {
		return def, err
	}
	var out [3]float32
	for i := range out {
		v, err := stream.ReadF32LE(rs)
		if err != nil {
			return def, err
		}
		out[i] = v
	}
	return out, nil
}

// GetOrientation returns label's value as a 4-float quaternion, or def
// if label is absent.
func (s *Struct) GetOrientation(label string, def [4]float32) ([4]float32, error) {
	fl, err := s.findField(label)
	if err != nil {
		return def, err
	}
	if fl == nil {
		return def, nil
	}
	if fl.typ != Orientation {
		return def, reserr.New(reserr.UnsupportedVariant, "field is not Orientation").WithResRef(label)
	}
	rs, err := s.file.blobReader(s.file.fieldDataOffset + fl.dataOrOffset)
	if err != nil {
		return def, err
	}
	var out [4]float32
	for i := range out {
		v, err := stream.ReadF32LE(rs)
		if err != nil {
			return def, err
		}
		out[i] = v
	}
	return out, nil
}

// GetStruct returns label's value as a child Struct, or nil if label is
// absent.
func (s *Struct) GetStruct(label string) (*Struct, error) {
	fl, err := s.findField(label)
	if err != nil {
		return nil, err
	}
	if fl == nil {
		return nil, nil
	}
	if fl.typ != StructType {
		return nil, reserr.New(reserr.UnsupportedVariant, "field is not Struct").WithResRef(label)
	}
	if fl.dataOrOffset >= uint32(len(s.file.structs)) {
		return nil, reserr.New(reserr.OutOfRange, "struct index out of range").WithResRef(label)
	}
	return &Struct{file: s.file, index: fl.dataOrOffset}, nil
}

// GetList returns label's value as a list of child Structs, or nil if
// label is absent.
func (s *Struct) GetList(label string) ([]*Struct, error) {
	fl, err := s.findField(label)
	if err != nil {
		return nil, err
	}
	if fl == nil {
		return nil, nil
	}
	if fl.typ != List {
		return nil, reserr.New(reserr.UnsupportedVariant, "field is not List").WithResRef(label)
	}
	rs, err := s.file.blobReader(s.file.listIndicesOffset + fl.dataOrOffset)
	if err != nil {
		return nil, err
	}
	count, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}
	out := make([]*Struct, count)
	for i := range out {
		idx, err := stream.ReadU32LE(rs)
		if err != nil {
			return nil, err
		}
		if idx >= uint32(len(s.file.structs)) {
			return nil, reserr.New(reserr.OutOfRange, "struct index out of range").WithResRef(label)
		}
		out[i] = &Struct{file: s.file, index: idx}
	}
	return out, nil
}
