// Copyright (C) 2016 The Resource Authors.

package herf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/xeos/aurora-res/restype"
)

func buildHERF(t *testing.T, hash uint64, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("HERF")
	buf.WriteString("V1.0")
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // entry count

	const headerSize = 20
	keyTableOffset := uint32(headerSize)
	resourceTableOffset := keyTableOffset + 16

	binary.Write(&buf, binary.LittleEndian, keyTableOffset)
	binary.Write(&buf, binary.LittleEndian, resourceTableOffset)

	if uint32(buf.Len()) != headerSize {
		t.Fatalf("header size = %d, want %d", buf.Len(), headerSize)
	}

	binary.Write(&buf, binary.LittleEndian, hash)
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // resource id
	binary.Write(&buf, binary.LittleEndian, uint16(restype.ARE))
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	dataOffset := resourceTableOffset + 8
	binary.Write(&buf, binary.LittleEndian, dataOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))

	buf.Write(payload)
	return buf.Bytes()
}

func TestHERFWithoutDictUsesHashPlaceholder(t *testing.T) {
	payload := []byte("dungeon level data")
	data := buildHERF(t, 0xDEADBEEFCAFEBABE, payload)

	a, err := Open(data, restype.HashXXHash64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	list := a.ResourceList()
	if len(list) != 1 {
		t.Fatalf("ResourceList: got %d, want 1", len(list))
	}
	if list[0].Name != "deadbeefcafebabe" {
		t.Fatalf("placeholder name = %q, want deadbeefcafebabe", list[0].Name)
	}

	rs, err := a.GetResource(0, true)
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}
	got := make([]byte, len(payload))
	if _, err := rs.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestHERFResolveNames(t *testing.T) {
	data := buildHERF(t, 0x1, []byte("x"))
	a, err := Open(data, restype.HashXXHash64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	a.ResolveNames(map[uint64]string{0x1: "dungeon01.are"})

	list := a.ResourceList()
	if list[0].Name != "dungeon01" || list[0].Type != restype.ARE {
		t.Fatalf("entry = %+v, want dungeon01/ARE", list[0])
	}
}
