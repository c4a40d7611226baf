// Copyright (C) 2016 The Resource Authors.

package gff4

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildGFF4 assembles a minimal GFF4 V4.0/PC document with a top-level
// struct carrying a Uint32 field, a String field, a nested Struct field,
// and a list-of-Uint32 field.
func buildGFF4(t *testing.T) []byte {
	t.Helper()

	const headerSize = 28
	const templateSize = 16
	const fieldDeclSize = 12

	structTemplateStart := uint32(headerSize)
	fieldsStart := structTemplateStart + 2*templateSize // two templates
	template1FieldsStart := fieldsStart + 4*fieldDeclSize
	dataOffset := template1FieldsStart + 1*fieldDeclSize

	var buf bytes.Buffer
	buf.WriteString("GFF ")
	buf.WriteString("V4.0")
	buf.WriteString("PC  ")
	buf.WriteString("TEST")
	binary.Write(&buf, binary.BigEndian, uint32(1)) // type version
	binary.Write(&buf, binary.LittleEndian, uint32(2)) // struct count
	binary.Write(&buf, binary.LittleEndian, dataOffset)

	if uint32(buf.Len()) != headerSize {
		t.Fatalf("header size = %d, want %d", buf.Len(), headerSize)
	}

	// Struct template 0 ("top"): 4 fields, size 16.
	buf.WriteString("TOP ")
	binary.Write(&buf, binary.LittleEndian, uint32(4))
	binary.Write(&buf, binary.LittleEndian, fieldsStart)
	binary.Write(&buf, binary.LittleEndian, uint32(16))

	// Struct template 1 ("child"): 1 field, size 4.
	buf.WriteString("CHLD")
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, template1FieldsStart)
	binary.Write(&buf, binary.LittleEndian, uint32(4))

	if uint32(buf.Len()) != fieldsStart {
		t.Fatalf("fieldsStart mismatch: buf.Len()=%d, want %d", buf.Len(), fieldsStart)
	}

	writeField := func(label uint32, typ, flags uint16, offset uint32) {
		binary.Write(&buf, binary.LittleEndian, label)
		binary.Write(&buf, binary.LittleEndian, typ)
		binary.Write(&buf, binary.LittleEndian, flags)
		binary.Write(&buf, binary.LittleEndian, offset)
	}

	// Template 0's fields.
	writeField(1, uint16(TypeUint32), 0, 0)
	writeField(2, uint16(TypeString), 0, 4)
	writeField(3, 1 /* template index */, flagStruct, 8)
	writeField(4, uint16(TypeUint32), flagList, 12)

	if uint32(buf.Len()) != template1FieldsStart {
		t.Fatalf("template1FieldsStart mismatch: buf.Len()=%d, want %d", buf.Len(), template1FieldsStart)
	}

	// Template 1's field.
	writeField(10, uint16(TypeUint32), 0, 0)

	if uint32(buf.Len()) != dataOffset {
		t.Fatalf("dataOffset mismatch: buf.Len()=%d, want %d", buf.Len(), dataOffset)
	}

	// Top struct's inline data (16 bytes): Uint32, String pointer, nested
	// struct (4 bytes inline), list pointer.
	binary.Write(&buf, binary.LittleEndian, uint32(42))
	listPtr := uint32(16) // relative to dataOffset: right after the 16-byte top struct span
	stringPtr := uint32(32)
	binary.Write(&buf, binary.LittleEndian, stringPtr)
	binary.Write(&buf, binary.LittleEndian, uint32(7)) // child's field 10
	binary.Write(&buf, binary.LittleEndian, listPtr)

	if uint32(buf.Len()) != dataOffset+16 {
		t.Fatalf("top struct span mismatch: buf.Len()=%d, want %d", buf.Len(), dataOffset+16)
	}

	// List block: count + 3 Uint32 elements.
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, uint32(100))
	binary.Write(&buf, binary.LittleEndian, uint32(200))
	binary.Write(&buf, binary.LittleEndian, uint32(300))

	if uint32(buf.Len()) != dataOffset+16+16 {
		t.Fatalf("list block mismatch: buf.Len()=%d, want %d", buf.Len(), dataOffset+16+16)
	}

	// String block: UTF-16LE "Hello", length given in characters.
	binary.Write(&buf, binary.LittleEndian, uint32(5))
	for _, c := range "Hello" {
		buf.WriteByte(byte(c))
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

func TestGFF4RoundTrip(t *testing.T) {
	data := buildGFF4(t)

	f, err := Parse(data, 0xFFFFFFFF)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Platform() != platformPC {
		t.Fatalf("Platform = %v, want PC", f.Platform())
	}

	top := f.TopLevel()
	if top == nil {
		t.Fatal("TopLevel is nil")
	}

	v, err := top.GetUint64(1, 0)
	if err != nil || v != 42 {
		t.Fatalf("GetUint64(1) = %d, err %v, want 42", v, err)
	}

	s, err := top.GetString(2, "")
	if err != nil {
		t.Fatalf("GetString(2): %v", err)
	}
	if s != "Hello" {
		t.Fatalf("GetString(2) = %q, want Hello", s)
	}

	child, err := top.GetStruct(3)
	if err != nil {
		t.Fatalf("GetStruct(3): %v", err)
	}
	if child == nil {
		t.Fatal("GetStruct(3) returned nil")
	}
	cv, err := child.GetUint64(10, 0)
	if err != nil || cv != 7 {
		t.Fatalf("child.GetUint64(10) = %d, err %v, want 7", cv, err)
	}

	list, err := top.GetUint64List(4)
	if err != nil {
		t.Fatalf("GetUint64List(4): %v", err)
	}
	want := []uint64{100, 200, 300}
	if len(list) != len(want) {
		t.Fatalf("list length = %d, want %d", len(list), len(want))
	}
	for i, v := range want {
		if list[i] != v {
			t.Fatalf("list[%d] = %d, want %d", i, list[i], v)
		}
	}

	if !top.HasField(1) || top.HasField(999) {
		t.Fatal("HasField behaved unexpectedly")
	}
}

func TestGFF4RejectsTypeMismatch(t *testing.T) {
	data := buildGFF4(t)
	if _, err := Parse(data, 0x12345678); err == nil {
		t.Fatal("expected an error for mismatched type tag")
	}
}

func TestGFF4RejectsBadMagic(t *testing.T) {
	data := buildGFF4(t)
	data[0] = 'X'
	if _, err := Parse(data, 0xFFFFFFFF); err == nil {
		t.Fatal("expected an error for corrupted magic")
	}
}

func TestNDSFixedDecode(t *testing.T) {
	// 1.0 in Q19.12 fixed point is 1<<12 = 4096.
	if got := decodeNDSFixed(4096); got != 1.0 {
		t.Fatalf("decodeNDSFixed(4096) = %v, want 1.0", got)
	}
	// -1.0 is the two's complement of 4096 within 32 bits.
	if got := decodeNDSFixed(0xFFFFF000); got != -1.0 {
		t.Fatalf("decodeNDSFixed(-4096) = %v, want -1.0", got)
	}
}
