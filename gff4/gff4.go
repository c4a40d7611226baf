// Copyright (C) 2016 The Resource Authors.

// Package gff4 implements BioWare's GFF V4.0/V4.1 structured-record
// format, used by the Dragon Age and Sonic Chronicles titles. Unlike
// GFF3, fields are indexed by a numeric label and structs reference a
// shared pool of struct templates rather than describing their own
// layout inline; a "generic" field can additionally hold a value of any
// other field type, resolved at load time into a synthetic struct.
package gff4

import (
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/stream"
	"github.com/xeos/aurora-res/strenc"
)

// FieldType identifies the on-disk type of a GFF4 field.
type FieldType int32

const (
	TypeNone        FieldType = -1
	TypeUint8       FieldType = 0
	TypeSint8       FieldType = 1
	TypeUint16      FieldType = 2
	TypeSint16      FieldType = 3
	TypeUint32      FieldType = 4
	TypeSint32      FieldType = 5
	TypeUint64      FieldType = 6
	TypeSint64      FieldType = 7
	TypeFloat32     FieldType = 8
	TypeFloat64     FieldType = 9
	TypeVector3f    FieldType = 10
	TypeVector4f    FieldType = 12
	TypeQuaternionf FieldType = 13
	TypeString      FieldType = 14
	TypeColor4f     FieldType = 15
	TypeMatrix4x4f  FieldType = 16
	TypeTlkString   FieldType = 17
	TypeNDSFixed    FieldType = 18
	TypeASCIIString FieldType = 20
	TypeStruct      FieldType = 65534
	TypeGeneric     FieldType = 65535
)

const nullOffset = 0xFFFFFFFF

const (
	flagList      = 0x8000
	flagStruct    = 0x4000
	flagReference = 0x2000
)

// Platform identifies the target platform a GFF4 was built for, which
// determines the endianness of its data section.
type Platform uint32

var (
	tagGFF   = stream.MakeTag('G', 'F', 'F', ' ')
	tagV4_0  = stream.MakeTag('V', '4', '.', '0')
	tagV4_1  = stream.MakeTag('V', '4', '.', '1')
	platformPC   = Platform(stream.MakeTag('P', 'C', ' ', ' '))
	platformPS3  = Platform(stream.MakeTag('P', 'S', '3', ' '))
	platformX360 = Platform(stream.MakeTag('X', '3', '6', '0'))
)

type templateField struct {
	label  uint32
	typ    uint16
	flags  uint16
	offset uint32
}

type structTemplate struct {
	index  uint32
	label  uint32
	size   uint32
	fields []templateField
}

// File is a parsed GFF4 document.
type File struct {
	data []byte

	platform    Platform
	bigEndian   bool
	typ         uint32
	typeVersion uint32
	dataOffset  uint32

	hasSharedStrings bool
	sharedStrings    []string

	templates []structTemplate
	structs   map[uint64]*Struct

	topLevel *Struct
}

// Parse reads a complete GFF4 document out of data. If wantType is not
// 0xFFFFFFFF, the header's type tag must match it exactly.
func Parse(data []byte, wantType uint32) (*File, error) {
	rs := stream.NewMemStream(data)

	id, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	if id != tagGFF {
		return nil, reserr.New(reserr.FormatMismatch, "not a GFF file")
	}
	version, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	if version != tagV4_0 && version != tagV4_1 {
		return nil, reserr.New(reserr.FormatMismatch, "unsupported GFF4 version")
	}
	isV41 := version == tagV4_1

	platformID, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	typ, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	if wantType != nullOffset && typ != wantType {
		return nil, reserr.New(reserr.FormatMismatch, "GFF4 has unexpected type tag")
	}
	typeVersion, err := stream.ReadU32BE(rs)
	if err != nil {
		return nil, err
	}
	structCount, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}
	if structCount == 0 {
		return nil, reserr.New(reserr.FormatMismatch, "GFF4 has no structs")
	}

	stringCount := uint32(0)
	stringOffset := uint32(nullOffset)
	if isV41 {
		stringCount, err = stream.ReadU32LE(rs)
		if err != nil {
			return nil, err
		}
		stringOffset, err = stream.ReadU32LE(rs)
		if err != nil {
			return nil, err
		}
	}
	dataOffset, err := stream.ReadU32LE(rs)
	if err != nil {
		return nil, err
	}

	f := &File{
		data:             data,
		platform:         Platform(platformID),
		bigEndian:        Platform(platformID) == platformPS3 || Platform(platformID) == platformX360,
		typ:              typ,
		typeVersion:      typeVersion,
		dataOffset:       dataOffset,
		hasSharedStrings: isV41 && (stringCount > 0 || stringOffset != nullOffset),
		structs:          make(map[uint64]*Struct),
	}

	if err := f.loadTemplates(rs, structCount); err != nil {
		return nil, err
	}
	if f.hasSharedStrings {
		if err := f.loadSharedStrings(stringOffset, stringCount); err != nil {
			return nil, err
		}
	}

	top, err := f.getOrCreateStruct(dataOffset, &f.templates[0])
	if err != nil {
		return nil, err
	}
	f.topLevel = top

	return f, nil
}

func (f *File) loadTemplates(rs stream.ReadStream, count uint32) error {
	const templateSize = 16
	start, err := rs.Seek(0, stream.Current)
	if err != nil {
		return err
	}

	f.templates = make([]structTemplate, count)
	for i := range f.templates {
		if _, err := rs.Seek(start+int64(i)*templateSize, stream.Begin); err != nil {
			return err
		}
		label, err := stream.ReadU32BE(rs)
		if err != nil {
			return err
		}
		fieldCount, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		fieldOffset, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}
		size, err := stream.ReadU32LE(rs)
		if err != nil {
			return err
		}

		tmpl := &f.templates[i]
		tmpl.index = uint32(i)
		tmpl.label = label
		tmpl.size = size

		if fieldOffset == nullOffset {
			if fieldCount != 0 {
				return reserr.New(reserr.FormatMismatch, "GFF4 struct template has fields but no offset")
			}
			continue
		}

		if _, err := rs.Seek(int64(fieldOffset), stream.Begin); err != nil {
			return err
		}
		tmpl.fields = make([]templateField, fieldCount)
		for j := range tmpl.fields {
			flLabel, err := stream.ReadU32LE(rs)
			if err != nil {
				return err
			}
			flType, err := stream.ReadU16LE(rs)
			if err != nil {
				return err
			}
			flFlags, err := stream.ReadU16LE(rs)
			if err != nil {
				return err
			}
			flOffset, err := stream.ReadU32LE(rs)
			if err != nil {
				return err
			}
			tmpl.fields[j] = templateField{label: flLabel, typ: flType, flags: flFlags, offset: flOffset}
		}
	}
	return nil
}

func (f *File) loadSharedStrings(offset, count uint32) error {
	rs := stream.NewMemStream(f.data)
	if _, err := rs.Seek(int64(offset), stream.Begin); err != nil {
		return err
	}
	f.sharedStrings = make([]string, count)
	for i := range f.sharedStrings {
		s, err := strenc.ReadNullTerminated(rs, strenc.UTF8)
		if err != nil {
			return err
		}
		f.sharedStrings[i] = s
	}
	return nil
}

func (f *File) sharedString(i uint32) (string, error) {
	if i == nullOffset {
		return "", nil
	}
	if i >= uint32(len(f.sharedStrings)) {
		return "", reserr.New(reserr.OutOfRange, "shared string index out of range").WithIndex(int64(i))
	}
	return f.sharedStrings[i], nil
}

// Platform returns the platform this GFF4 was built for.
func (f *File) Platform() Platform { return f.platform }

// Type returns the GFF4's specific type tag.
func (f *File) Type() uint32 { return f.typ }

// TypeVersion returns the version of the specific type this GFF4 describes.
func (f *File) TypeVersion() uint32 { return f.typeVersion }

// TopLevel returns the root struct.
func (f *File) TopLevel() *Struct { return f.topLevel }

func structID(offset uint32, templateIndex uint32) uint64 {
	return uint64(offset)<<32 | uint64(templateIndex)
}

const noTemplate = nullOffset

func (f *File) getOrCreateStruct(offset uint32, tmpl *structTemplate) (*Struct, error) {
	templateIndex := uint32(noTemplate)
	if tmpl != nil {
		templateIndex = tmpl.index
	}
	id := structID(offset, templateIndex)
	if s, ok := f.structs[id]; ok {
		return s, nil
	}

	s := &Struct{file: f, fields: make(map[uint32]*field)}
	f.structs[id] = s
	if tmpl != nil {
		s.label = tmpl.label
	}

	if err := s.load(offset, tmpl); err != nil {
		delete(f.structs, id)
		return nil, err
	}
	return s, nil
}

func (f *File) getOrCreateGeneric(parent *field) (*Struct, error) {
	id := structID(parent.offset, noTemplate)
	if s, ok := f.structs[id]; ok {
		return s, nil
	}

	s := &Struct{file: f, fields: make(map[uint32]*field)}
	f.structs[id] = s

	if err := s.loadGeneric(parent); err != nil {
		delete(f.structs, id)
		return nil, err
	}
	return s, nil
}

// reader returns a stream positioned at absolute offset within the file.
func (f *File) reader(offset uint32) (stream.ReadStream, error) {
	rs := stream.NewMemStream(f.data)
	if _, err := rs.Seek(int64(offset), stream.Begin); err != nil {
		return nil, err
	}
	return rs, nil
}

func (f *File) readU16(rs stream.ReadStream) (uint16, error) {
	if f.bigEndian {
		return stream.ReadU16BE(rs)
	}
	return stream.ReadU16LE(rs)
}

func (f *File) readU32(rs stream.ReadStream) (uint32, error) {
	if f.bigEndian {
		return stream.ReadU32BE(rs)
	}
	return stream.ReadU32LE(rs)
}

func (f *File) readU64(rs stream.ReadStream) (uint64, error) {
	if f.bigEndian {
		return stream.ReadU64BE(rs)
	}
	return stream.ReadU64LE(rs)
}

func (f *File) readF32(rs stream.ReadStream) (float32, error) {
	if f.bigEndian {
		return stream.ReadF32BE(rs)
	}
	return stream.ReadF32LE(rs)
}

func (f *File) readF64(rs stream.ReadStream) (float64, error) {
	if f.bigEndian {
		return stream.ReadF64BE(rs)
	}
	return stream.ReadF64LE(rs)
}

// field is one loaded field instance within a Struct.
type field struct {
	label       uint32
	typ         FieldType
	offset      uint32
	isList      bool
	isReference bool
	isGeneric   bool
	structIndex uint32
	children    []*Struct
}

func newField(label uint32, typ uint16, flags uint16, offset uint32, isGeneric bool) (*field, error) {
	fl := &field{label: label, offset: offset, isGeneric: isGeneric}
	fl.isList = flags&flagList != 0
	fl.isReference = flags&flagReference != 0
	isStruct := flags&flagStruct != 0
	if isStruct {
		fl.typ = TypeStruct
		fl.structIndex = uint32(typ)
	} else {
		fl.typ = FieldType(typ)
	}

	if fl.typ == TypeString {
		fl.isReference = false
	}

	unsupported := false
	if fl.isList && fl.typ == TypeASCIIString {
		unsupported = true
	}
	if fl.isList && fl.typ == TypeTlkString {
		unsupported = true
	}
	if fl.isList && fl.isReference && fl.typ != TypeStruct && fl.typ != TypeGeneric {
		unsupported = true
	}
	if fl.isList && !fl.isReference && fl.typ == TypeGeneric {
		unsupported = true
	}
	if unsupported {
		return nil, reserr.New(reserr.UnsupportedVariant, "unsupported GFF4 field configuration")
	}
	return fl, nil
}

// Struct is a single node of a parsed GFF4 tree.
type Struct struct {
	file   *File
	label  uint32
	fields map[uint32]*field
	order  []uint32
}

// Label returns the struct's 4-byte label, read from its template.
func (s *Struct) Label() uint32 { return s.label }

// FieldLabels returns every field label present on this struct, in
// declaration order.
func (s *Struct) FieldLabels() []uint32 { return s.order }

// HasField reports whether label is present on this struct.
func (s *Struct) HasField(label uint32) bool {
	_, ok := s.fields[label]
	return ok
}

// GetType returns label's field type, whether it is a list, and whether
// label exists; (TypeNone, false, false) if label doesn't exist.
func (s *Struct) GetType(label uint32) (FieldType, bool, bool) {
	fl, ok := s.fields[label]
	if !ok {
		return TypeNone, false, false
	}
	return fl.typ, fl.isList, true
}

func (s *Struct) load(offset uint32, tmpl *structTemplate) error {
	for _, tf := range tmpl.fields {
		fieldOffset := uint32(nullOffset)
		if offset != nullOffset && tf.offset != nullOffset {
			fieldOffset = offset + tf.offset
		}

		fl, err := newField(tf.label, tf.typ, tf.flags, fieldOffset, false)
		if err != nil {
			return err
		}
		s.fields[tf.label] = fl
		s.order = append(s.order, tf.label)

		if fl.typ == TypeStruct {
			if err := s.loadStructField(fl); err != nil {
				return err
			}
		}
		if fl.typ == TypeGeneric {
			if err := s.loadGenericField(fl); err != nil {
				return err
			}
		}
		if fl.typ == TypeASCIIString && s.file.hasSharedStrings {
			return reserr.New(reserr.UnsupportedVariant, "ASCII string field in a file with shared strings")
		}
	}
	return nil
}

func (s *Struct) getDataOffset(isReference bool, offset uint32) (uint32, error) {
	if !isReference || offset == nullOffset {
		return offset, nil
	}
	rs, err := s.file.reader(offset)
	if err != nil {
		return 0, err
	}
	ptr, err := s.file.readU32(rs)
	if err != nil {
		return 0, err
	}
	if ptr == nullOffset {
		return nullOffset, nil
	}
	return s.file.dataOffset + ptr, nil
}

func (s *Struct) fieldDataOffset(fl *field) (uint32, error) {
	if fl.typ == TypeStruct {
		return nullOffset, nil
	}
	return s.getDataOffset(fl.isReference, fl.offset)
}

// listCount reads a list field's element count. For a non-list field it
// reports 1 without touching rs. For a list field, rs holds an inline
// pointer (relative to the data section) to a count-prefixed run of
// elements; listCount follows that pointer and repositions rs to the
// start of those elements so the caller can read them off rs directly,
// mirroring the single shared stream cursor the format was designed
// around.
func (s *Struct) listCount(rs stream.ReadStream, fl *field) (uint32, error) {
	if !fl.isList {
		return 1, nil
	}
	listOffsetRaw, err := s.file.readU32(rs)
	if err != nil {
		return 0, err
	}
	if listOffsetRaw == nullOffset {
		return 0, nil
	}
	if _, err := rs.Seek(int64(s.file.dataOffset+listOffsetRaw), stream.Begin); err != nil {
		return 0, err
	}
	return s.file.readU32(rs)
}

func (s *Struct) loadStructField(fl *field) error {
	if fl.offset == nullOffset {
		return nil
	}
	if fl.structIndex >= uint32(len(s.file.templates)) {
		return reserr.New(reserr.OutOfRange, "GFF4 struct template index out of range")
	}
	tmpl := &s.file.templates[fl.structIndex]

	rs, err := s.file.reader(fl.offset)
	if err != nil {
		return err
	}
	count, err := s.listCount(rs, fl)
	if err != nil {
		return err
	}
	structSize := tmpl.size
	if fl.isReference {
		structSize = 4
	}
	structStart, err := rs.Seek(0, stream.Current)
	if err != nil {
		return err
	}

	fl.children = make([]*Struct, count)
	for i := uint32(0); i < count; i++ {
		elemOffset := uint32(structStart) + i*structSize
		resolved, err := s.getDataOffset(fl.isReference, elemOffset)
		if err != nil {
			return err
		}
		if resolved == nullOffset {
			continue
		}
		child, err := s.file.getOrCreateStruct(resolved, tmpl)
		if err != nil {
			return err
		}
		fl.children[i] = child
	}
	return nil
}

func (s *Struct) loadGenericField(fl *field) error {
	resolved, err := s.getDataOffset(fl.isList, fl.offset)
	if err != nil {
		return err
	}
	fl.offset = resolved
	if resolved == nullOffset {
		return nil
	}
	child, err := s.file.getOrCreateGeneric(fl)
	if err != nil {
		return err
	}
	fl.children = append(fl.children, child)
	return nil
}

func (s *Struct) loadGeneric(parent *field) error {
	const genericElemSize = 8

	rs, err := s.file.reader(parent.offset)
	if err != nil {
		return err
	}
	count := uint32(1)
	if parent.isList {
		count, err = s.file.readU32(rs)
		if err != nil {
			return err
		}
	}
	start, err := rs.Seek(0, stream.Current)
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		if _, err := rs.Seek(start+int64(i)*genericElemSize, stream.Begin); err != nil {
			return err
		}
		fieldType, err := stream.ReadU16LE(rs)
		if err != nil {
			return err
		}
		fieldFlags, err := stream.ReadU16LE(rs)
		if err != nil {
			return err
		}
		pos, err := rs.Seek(0, stream.Current)
		if err != nil {
			return err
		}
		fieldOffset, err := s.getDataOffset(parent.isReference, uint32(pos))
		if err != nil {
			return err
		}
		if fieldOffset == nullOffset {
			continue
		}

		fl, err := newField(i, fieldType, fieldFlags, fieldOffset, true)
		if err != nil {
			return err
		}
		s.fields[i] = fl
		s.order = append(s.order, i)

		if fl.typ == TypeStruct {
			if err := s.loadStructField(fl); err != nil {
				return err
			}
		}
		if fl.typ == TypeGeneric {
			return reserr.New(reserr.UnsupportedVariant, "a generic cannot contain a generic")
		}
		if fl.typ == TypeASCIIString && s.file.hasSharedStrings {
			return reserr.New(reserr.UnsupportedVariant, "ASCII string field in a file with shared strings")
		}
	}
	return nil
}

func (s *Struct) readUint(rs stream.ReadStream, typ FieldType) (uint64, error) {
	switch typ {
	case TypeUint8:
		v, err := stream.ReadU8(rs)
		return uint64(v), err
	case TypeSint8:
		v, err := stream.ReadI8(rs)
		return uint64(int64(v)), err
	case TypeUint16:
		v, err := s.file.readU16(rs)
		return uint64(v), err
	case TypeSint16:
		v, err := s.file.readU16(rs)
		return uint64(int64(int16(v))), err
	case TypeUint32:
		v, err := s.file.readU32(rs)
		return uint64(v), err
	case TypeSint32:
		v, err := s.file.readU32(rs)
		return uint64(int64(int32(v))), err
	case TypeUint64:
		return s.file.readU64(rs)
	case TypeSint64:
		v, err := s.file.readU64(rs)
		return v, err
	}
	return 0, reserr.New(reserr.UnsupportedVariant, "field is not an integer type")
}

func (s *Struct) readDouble(rs stream.ReadStream, typ FieldType) (float64, error) {
	switch typ {
	case TypeFloat32:
		v, err := s.file.readF32(rs)
		return float64(v), err
	case TypeFloat64:
		return s.file.readF64(rs)
	case TypeNDSFixed:
		v, err := s.file.readU32(rs)
		if err != nil {
			return 0, err
		}
		return decodeNDSFixed(v), nil
	}
	return 0, reserr.New(reserr.UnsupportedVariant, "field is not a float type")
}

// decodeNDSFixed decodes a Nintendo DS 32-bit fixed-point value with 19
// integer bits, 12 fractional bits, and a sign bit, matching Sonic
// Chronicles' GFF4 files.
func decodeNDSFixed(v uint32) float64 {
	return float64(int32(v)) / 4096.0
}

func (s *Struct) readString(rs stream.ReadStream, fl *field, encoding strenc.Encoding) (string, error) {
	if fl.typ == TypeString {
		if s.file.hasSharedStrings {
			idx, err := s.file.readU32(rs)
			if err != nil {
				return "", err
			}
			return s.file.sharedString(idx)
		}

		offset, err := rs.Seek(0, stream.Current)
		if err != nil {
			return "", err
		}
		if !fl.isGeneric {
			ptr, err := s.file.readU32(rs)
			if err != nil {
				return "", err
			}
			if ptr == nullOffset {
				return "", nil
			}
			offset = int64(s.file.dataOffset + ptr)
		}
		srs, err := s.file.reader(uint32(offset))
		if err != nil {
			return "", err
		}
		return s.readInlineString(srs, encoding)
	}
	if fl.typ == TypeASCIIString {
		return s.readInlineString(rs, strenc.ASCII)
	}
	return "", reserr.New(reserr.UnsupportedVariant, "field is not a string type")
}

func (s *Struct) readInlineString(rs stream.ReadStream, encoding strenc.Encoding) (string, error) {
	length, err := s.file.readU32(rs)
	if err != nil {
		return "", err
	}
	mult := 1
	if encoding != strenc.UTF8 && encoding != strenc.ASCII && encoding != strenc.CP1252 {
		mult = 2
	}
	raw := make([]byte, int(length)*mult)
	if _, err := readExact(rs, raw); err != nil {
		return "", err
	}
	return strenc.Decode(raw, encoding)
}

func readExact(rs stream.ReadStream, b []byte) (int, error) {
	read := 0
	for read < len(b) {
		n, err := rs.Read(b[read:])
		read += n
		if err != nil {
			if read < len(b) {
				return read, reserr.New(reserr.TruncatedInput, "blob read past end of stream")
			}
			return read, nil
		}
	}
	return read, nil
}

func (s *Struct) stringEncoding() strenc.Encoding {
	if s.file.bigEndian {
		return strenc.UTF16BE
	}
	return strenc.UTF16LE
}

// GetUint64 returns label's value as an unsigned integer, or def if
// label is absent.
func (s *Struct) GetUint64(label uint32, def uint64) (uint64, error) {
	fl, ok := s.fields[label]
	if !ok {
		return def, nil
	}
	if fl.isList {
		return def, reserr.New(reserr.UnsupportedVariant, "field is a list")
	}
	offset, err := s.fieldDataOffset(fl)
	if err != nil || offset == nullOffset {
		return def, err
	}
	rs, err := s.file.reader(offset)
	if err != nil {
		return def, err
	}
	return s.readUint(rs, fl.typ)
}

// GetInt64 returns label's value as a signed integer, or def if label
// is absent.
func (s *Struct) GetInt64(label uint32, def int64) (int64, error) {
	v, err := s.GetUint64(label, uint64(def))
	return int64(v), err
}

// GetBool returns label's value as a boolean (nonzero integer), or def
// if label is absent.
func (s *Struct) GetBool(label uint32, def bool) (bool, error) {
	defUint := uint64(0)
	if def {
		defUint = 1
	}
	v, err := s.GetUint64(label, defUint)
	return v != 0, err
}

// GetFloat64 returns label's value as a float (or a decoded NDSFixed
// value), or def if label is absent.
func (s *Struct) GetFloat64(label uint32, def float64) (float64, error) {
	fl, ok := s.fields[label]
	if !ok {
		return def, nil
	}
	if fl.isList {
		return def, reserr.New(reserr.UnsupportedVariant, "field is a list")
	}
	offset, err := s.fieldDataOffset(fl)
	if err != nil || offset == nullOffset {
		return def, err
	}
	rs, err := s.file.reader(offset)
	if err != nil {
		return def, err
	}
	return s.readDouble(rs, fl.typ)
}

// GetString returns label's value decoded with the GFF4's native
// UTF-16 encoding (UTF-16LE on PC, UTF-16BE on PS3/X360), or def if
// label is absent.
func (s *Struct) GetString(label uint32, def string) (string, error) {
	fl, ok := s.fields[label]
	if !ok {
		return def, nil
	}
	if fl.isList {
		return def, reserr.New(reserr.UnsupportedVariant, "field is a list")
	}
	offset, err := s.fieldDataOffset(fl)
	if err != nil || offset == nullOffset {
		return def, err
	}
	rs, err := s.file.reader(offset)
	if err != nil {
		return def, err
	}
	return s.readString(rs, fl, s.stringEncoding())
}

// TlkString is a talk-table reference with an optional inline string.
type TlkString struct {
	StrRef uint32
	Text   string
}

// GetTalkString returns label's value as a TlkString, or ok=false if
// label is absent.
func (s *Struct) GetTalkString(label uint32) (TlkString, bool, error) {
	fl, ok := s.fields[label]
	if !ok {
		return TlkString{}, false, nil
	}
	if fl.typ != TypeTlkString {
		return TlkString{}, false, reserr.New(reserr.UnsupportedVariant, "field is not a TlkString")
	}
	if fl.isList {
		return TlkString{}, false, reserr.New(reserr.UnsupportedVariant, "field is a list")
	}
	offset, err := s.fieldDataOffset(fl)
	if err != nil || offset == nullOffset {
		return TlkString{}, false, err
	}
	rs, err := s.file.reader(offset)
	if err != nil {
		return TlkString{}, false, err
	}
	strrefV, err := s.readUint(rs, TypeUint32)
	if err != nil {
		return TlkString{}, false, err
	}
	rawOffset, err := s.readUint(rs, TypeUint32)
	if err != nil {
		return TlkString{}, false, err
	}

	out := TlkString{StrRef: uint32(strrefV)}
	if rawOffset != nullOffset {
		if s.file.hasSharedStrings {
			out.Text, err = s.file.sharedString(uint32(rawOffset))
			if err != nil {
				return TlkString{}, false, err
			}
		} else if rawOffset != 0 {
			srs, err := s.file.reader(s.file.dataOffset + uint32(rawOffset))
			if err != nil {
				return TlkString{}, false, err
			}
			out.Text, err = s.readInlineString(srs, s.stringEncoding())
			if err != nil {
				return TlkString{}, false, err
			}
		}
	}
	return out, true, nil
}

func (s *Struct) vectorLength(typ FieldType) (int, error) {
	switch typ {
	case TypeVector3f:
		return 3, nil
	case TypeVector4f, TypeQuaternionf, TypeColor4f:
		return 4, nil
	case TypeMatrix4x4f:
		return 16, nil
	}
	return 0, reserr.New(reserr.UnsupportedVariant, "field is not a vector or matrix type")
}

// GetVector returns label's value as a slice of floats (length 3 for
// Vector3f, 4 for Vector4f/Quaternionf/Color4f, 16 for Matrix4x4f in
// row-major order), or nil if label is absent.
func (s *Struct) GetVector(label uint32) ([]float64, error) {
	fl, ok := s.fields[label]
	if !ok {
		return nil, nil
	}
	if fl.isList {
		return nil, reserr.New(reserr.UnsupportedVariant, "field is a list")
	}
	length, err := s.vectorLength(fl.typ)
	if err != nil {
		return nil, err
	}
	offset, err := s.fieldDataOffset(fl)
	if err != nil || offset == nullOffset {
		return nil, err
	}
	rs, err := s.file.reader(offset)
	if err != nil {
		return nil, err
	}
	out := make([]float64, length)
	for i := range out {
		v, err := s.file.readF32(rs)
		if err != nil {
			return nil, err
		}
		out[i] = float64(v)
	}
	return out, nil
}

// GetStruct returns label's singular Struct value, or nil if label is
// absent or not present at this index. A label that is not of Struct
// type is an UnsupportedVariant error.
func (s *Struct) GetStruct(label uint32) (*Struct, error) {
	fl, ok := s.fields[label]
	if !ok {
		return nil, nil
	}
	if fl.typ != TypeStruct {
		return nil, reserr.New(reserr.UnsupportedVariant, "field is not a struct")
	}
	if len(fl.children) == 0 {
		return nil, nil
	}
	return fl.children[0], nil
}

// GetGeneric returns label's resolved Generic value as a synthetic
// Struct, or nil if label is absent.
func (s *Struct) GetGeneric(label uint32) (*Struct, error) {
	fl, ok := s.fields[label]
	if !ok {
		return nil, nil
	}
	if fl.typ != TypeGeneric {
		return nil, reserr.New(reserr.UnsupportedVariant, "field is not a generic")
	}
	if len(fl.children) == 0 {
		return nil, nil
	}
	return fl.children[0], nil
}

// GetList returns label's list of child Structs (Struct or Generic
// element type), or nil if label is absent.
func (s *Struct) GetList(label uint32) ([]*Struct, error) {
	fl, ok := s.fields[label]
	if !ok {
		return nil, nil
	}
	if fl.typ != TypeStruct && fl.typ != TypeGeneric {
		return nil, reserr.New(reserr.UnsupportedVariant, "field is not a struct or generic list")
	}
	return fl.children, nil
}

// GetUint64List returns label's list of unsigned integers, or nil if
// label is absent.
func (s *Struct) GetUint64List(label uint32) ([]uint64, error) {
	fl, ok := s.fields[label]
	if !ok {
		return nil, nil
	}
	offset, err := s.fieldDataOffset(fl)
	if err != nil || offset == nullOffset {
		return nil, err
	}
	rs, err := s.file.reader(offset)
	if err != nil {
		return nil, err
	}
	count, err := s.listCount(rs, fl)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := range out {
		v, err := s.readUint(rs, fl.typ)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// GetFloat64List returns label's list of floats, or nil if label is
// absent.
func (s *Struct) GetFloat64List(label uint32) ([]float64, error) {
	fl, ok := s.fields[label]
	if !ok {
		return nil, nil
	}
	offset, err := s.fieldDataOffset(fl)
	if err != nil || offset == nullOffset {
		return nil, err
	}
	rs, err := s.file.reader(offset)
	if err != nil {
		return nil, err
	}
	count, err := s.listCount(rs, fl)
	if err != nil {
		return nil, err
	}
	out := make([]float64, count)
	for i := range out {
		v, err := s.readDouble(rs, fl.typ)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// GetStringList returns label's list of strings, or nil if label is
// absent.
func (s *Struct) GetStringList(label uint32) ([]string, error) {
	fl, ok := s.fields[label]
	if !ok {
		return nil, nil
	}
	offset, err := s.fieldDataOffset(fl)
	if err != nil || offset == nullOffset {
		return nil, err
	}
	rs, err := s.file.reader(offset)
	if err != nil {
		return nil, err
	}
	count, err := s.listCount(rs, fl)
	if err != nil {
		return nil, err
	}
	out := make([]string, count)
	for i := range out {
		v, err := s.readString(rs, fl, s.stringEncoding())
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
