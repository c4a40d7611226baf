// Copyright (C) 2016 The Resource Authors.

package rim

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/xeos/aurora-res/restype"
)

func buildRIM(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RIM ")
	buf.WriteString("V1.0")
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // reserved
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // entry count

	const headerSize = 120
	binary.Write(&buf, binary.LittleEndian, uint32(headerSize)) // table offset
	buf.Write(make([]byte, 100))                                 // reserved

	if uint32(buf.Len()) != headerSize {
		t.Fatalf("header size = %d, want %d", buf.Len(), headerSize)
	}

	name := make([]byte, 16)
	copy(name, "module")
	buf.Write(name)
	binary.Write(&buf, binary.LittleEndian, uint32(restype.ARE))
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // resource id

	dataOffset := headerSize + 32
	binary.Write(&buf, binary.LittleEndian, uint32(dataOffset))
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))

	buf.Write(payload)
	return buf.Bytes()
}

func TestRIMRoundTrip(t *testing.T) {
	payload := []byte("rim payload bytes")
	data := buildRIM(t, payload)

	a, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	list := a.ResourceList()
	if len(list) != 1 {
		t.Fatalf("ResourceList: got %d, want 1", len(list))
	}
	if list[0].Name != "module" || list[0].Type != restype.ARE {
		t.Fatalf("entry = %+v", list[0])
	}

	rs, err := a.GetResource(0, false)
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

func TestRIMRejectsBadMagic(t *testing.T) {
	if _, err := Open([]byte("XXXX0000")); err == nil {
		t.Fatal("expected error for bad magic")
	}
}
