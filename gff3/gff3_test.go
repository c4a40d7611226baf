// Copyright (C) 2016 The Resource Authors.

package gff3

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildGFF3 assembles a minimal but structurally complete GFF3 V3.2 document
// with one top-level struct carrying an Int field, a CExoString field, and a
// CExoLocString field with one translation.
func buildGFF3(t *testing.T) []byte {
	t.Helper()

	const (
		headerSize = 12 + 6*8
	)

	// Labels: "Count" (index 0), "Name" (index 1), "Greeting" (index 2).
	var labels bytes.Buffer
	writeLabel := func(s string) {
		b := make([]byte, 16)
		copy(b, s)
		labels.Write(b)
	}
	writeLabel("Count")
	writeLabel("Name")
	writeLabel("Greeting")

	// Field data blob.
	var fieldData bytes.Buffer
	nameOffset := uint32(fieldData.Len())
	nameBytes := []byte("Aurora")
	binary.Write(&fieldData, binary.LittleEndian, uint32(len(nameBytes)))
	fieldData.Write(nameBytes)

	locOffset := uint32(fieldData.Len())
	var loc bytes.Buffer
	binary.Write(&loc, binary.LittleEndian, uint32(0)) // total size placeholder, unused by reader
	binary.Write(&loc, binary.LittleEndian, uint32(42)) // strref
	binary.Write(&loc, binary.LittleEndian, uint32(1))  // string count
	binary.Write(&loc, binary.LittleEndian, uint32(0))  // stringID: language 0, male
	greeting := []byte("Hello")
	binary.Write(&loc, binary.LittleEndian, uint32(len(greeting)))
	loc.Write(greeting)
	fieldData.Write(loc.Bytes())

	// Fields: 0=Count(Int, inline=7), 1=Name(ExoString, offset=nameOffset),
	// 2=Greeting(ExoLocString, offset=locOffset).
	var fields bytes.Buffer
	binary.Write(&fields, binary.LittleEndian, uint32(Int))
	binary.Write(&fields, binary.LittleEndian, uint32(0)) // label index
	binary.Write(&fields, binary.LittleEndian, uint32(7)) // inline value
	binary.Write(&fields, binary.LittleEndian, uint32(ExoString))
	binary.Write(&fields, binary.LittleEndian, uint32(1))
	binary.Write(&fields, binary.LittleEndian, nameOffset)
	binary.Write(&fields, binary.LittleEndian, uint32(ExoLocString))
	binary.Write(&fields, binary.LittleEndian, uint32(2))
	binary.Write(&fields, binary.LittleEndian, locOffset)

	// Field indices: struct has 3 fields -> stored in field-indices blob.
	var fieldIndices bytes.Buffer
	binary.Write(&fieldIndices, binary.LittleEndian, uint32(0))
	binary.Write(&fieldIndices, binary.LittleEndian, uint32(1))
	binary.Write(&fieldIndices, binary.LittleEndian, uint32(2))

	// Structs: single top-level struct, type 0xFFFFFFFF, 3 fields at
	// field-indices offset 0.
	var structs bytes.Buffer
	binary.Write(&structs, binary.LittleEndian, uint32(0xFFFFFFFF))
	binary.Write(&structs, binary.LittleEndian, uint32(0)) // offset into field-indices
	binary.Write(&structs, binary.LittleEndian, uint32(3)) // field count

	structOffset := uint32(headerSize)
	fieldOffset := structOffset + uint32(structs.Len())
	labelOffset := fieldOffset + uint32(fields.Len())
	fieldDataOffset := labelOffset + uint32(labels.Len())
	fieldIndicesOffset := fieldDataOffset + uint32(fieldData.Len())
	listIndicesOffset := fieldIndicesOffset + uint32(fieldIndices.Len())

	var buf bytes.Buffer
	buf.WriteString("GFF ")
	buf.WriteString("ARE ")
	buf.WriteString("V3.2")

	binary.Write(&buf, binary.LittleEndian, structOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, fieldOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, labelOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, fieldDataOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(fieldData.Len()))
	binary.Write(&buf, binary.LittleEndian, fieldIndicesOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(fieldIndices.Len()))
	binary.Write(&buf, binary.LittleEndian, listIndicesOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(0))

	if uint32(buf.Len()) != headerSize {
		t.Fatalf("header size = %d, want %d", buf.Len(), headerSize)
	}

	buf.Write(structs.Bytes())
	buf.Write(fields.Bytes())
	buf.Write(labels.Bytes())
	buf.Write(fieldData.Bytes())
	buf.Write(fieldIndices.Bytes())

	return buf.Bytes()
}

func TestGFF3RoundTrip(t *testing.T) {
	data := buildGFF3(t)

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.SubType() != "ARE " {
		t.Fatalf("SubType = %q, want %q", f.SubType(), "ARE ")
	}

	top, err := f.TopLevel()
	if err != nil {
		t.Fatalf("TopLevel: %v", err)
	}

	count, err := top.GetInt64("Count", -1)
	if err != nil {
		t.Fatalf("GetInt64: %v", err)
	}
	if count != 7 {
		t.Fatalf("Count = %d, want 7", count)
	}

	name, err := top.GetString("Name", "")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if name != "Aurora" {
		t.Fatalf("Name = %q, want Aurora", name)
	}

	loc, err := top.GetLocString("Greeting", LocString{})
	if err != nil {
		t.Fatalf("GetLocString: %v", err)
	}
	if loc.StrRef != 42 {
		t.Fatalf("StrRef = %d, want 42", loc.StrRef)
	}
	if got := loc.Get(0, Male); got != "Hello" {
		t.Fatalf("Greeting(0,Male) = %q, want Hello", got)
	}

	if top.HasField("Missing") {
		t.Fatal("HasField(Missing) = true, want false")
	}
	if _, ok := top.GetType("Count"); !ok {
		t.Fatal("GetType(Count) not found")
	}
}

func TestGFF3RejectsBadMagic(t *testing.T) {
	data := buildGFF3(t)
	data[0] = 'X'
	if _, err := Parse(data); err == nil {
		t.Fatal("expected an error for corrupted magic")
	}
}

func TestGFF3List(t *testing.T) {
	// Build a document whose top-level struct has a single List field
	// containing two child structs, each with one Int field.
	const headerSize = 12 + 6*8

	var labels bytes.Buffer
	writeLabel := func(s string) {
		b := make([]byte, 16)
		copy(b, s)
		labels.Write(b)
	}
	writeLabel("Items")
	writeLabel("Value")

	var fields bytes.Buffer
	// field 0: top struct's List field, label 0 (Items)
	binary.Write(&fields, binary.LittleEndian, uint32(List))
	binary.Write(&fields, binary.LittleEndian, uint32(0))
	binary.Write(&fields, binary.LittleEndian, uint32(0)) // offset into list-indices
	// field 1: child struct A's Value field, label 1
	binary.Write(&fields, binary.LittleEndian, uint32(Int))
	binary.Write(&fields, binary.LittleEndian, uint32(1))
	binary.Write(&fields, binary.LittleEndian, uint32(1))
	// field 2: child struct B's Value field, label 1
	binary.Write(&fields, binary.LittleEndian, uint32(Int))
	binary.Write(&fields, binary.LittleEndian, uint32(1))
	binary.Write(&fields, binary.LittleEndian, uint32(2))

	var structs bytes.Buffer
	// struct 0: top-level, 1 field (inline index 0)
	binary.Write(&structs, binary.LittleEndian, uint32(0xFFFFFFFF))
	binary.Write(&structs, binary.LittleEndian, uint32(0))
	binary.Write(&structs, binary.LittleEndian, uint32(1))
	// struct 1: child A, 1 field (inline index 1)
	binary.Write(&structs, binary.LittleEndian, uint32(0))
	binary.Write(&structs, binary.LittleEndian, uint32(1))
	binary.Write(&structs, binary.LittleEndian, uint32(1))
	// struct 2: child B, 1 field (inline index 2)
	binary.Write(&structs, binary.LittleEndian, uint32(0))
	binary.Write(&structs, binary.LittleEndian, uint32(2))
	binary.Write(&structs, binary.LittleEndian, uint32(1))

	var listIndices bytes.Buffer
	binary.Write(&listIndices, binary.LittleEndian, uint32(2)) // count
	binary.Write(&listIndices, binary.LittleEndian, uint32(1)) // struct 1
	binary.Write(&listIndices, binary.LittleEndian, uint32(2)) // struct 2

	structOffset := uint32(headerSize)
	fieldOffset := structOffset + uint32(structs.Len())
	labelOffset := fieldOffset + uint32(fields.Len())
	fieldDataOffset := labelOffset + uint32(labels.Len())
	fieldIndicesOffset := fieldDataOffset
	listIndicesOffset := fieldIndicesOffset

	var buf bytes.Buffer
	buf.WriteString("GFF ")
	buf.WriteString("ARE ")
	buf.WriteString("V3.2")
	binary.Write(&buf, binary.LittleEndian, structOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, fieldOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, labelOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(2))
	binary.Write(&buf, binary.LittleEndian, fieldDataOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, fieldIndicesOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, listIndicesOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(listIndices.Len()))

	buf.Write(structs.Bytes())
	buf.Write(fields.Bytes())
	buf.Write(labels.Bytes())
	buf.Write(listIndices.Bytes())

	f, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	top, err := f.TopLevel()
	if err != nil {
		t.Fatalf("TopLevel: %v", err)
	}
	items, err := top.GetList("Items")
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	v0, err := items[0].GetInt64("Value", -1)
	if err != nil || v0 != 1 {
		t.Fatalf("items[0].Value = %d, err %v, want 1", v0, err)
	}
	v1, err := items[1].GetInt64("Value", -1)
	if err != nil || v1 != 2 {
		t.Fatalf("items[1].Value = %d, err %v, want 2", v1, err)
	}
}
