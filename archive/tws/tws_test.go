// Copyright (C) 2016 The Resource Authors.

package tws

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/xeos/aurora-res/restype"
)

func utf16leFixed(s string, length int) []byte {
	out := make([]byte, length)
	for i, c := range s {
		out[2*i] = byte(c)
	}
	return out
}

func buildTWS(t *testing.T, areaName string, resources map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RGMH")
	binary.Write(&buf, binary.LittleEndian, uint32(1))    // version
	binary.Write(&buf, binary.LittleEndian, uint64(8232)) // data offset
	buf.Write(make([]byte, 8))                            // unknown

	binary.Write(&buf, binary.LittleEndian, uint32(sig1))
	binary.Write(&buf, binary.LittleEndian, uint32(sig2))
	binary.Write(&buf, binary.LittleEndian, uint32(sig3))
	binary.Write(&buf, binary.LittleEndian, uint32(sig4))

	buf.Write(utf16leFixed(lightningStorm, 2048))
	buf.Write(utf16leFixed(areaName, 2048))
	buf.Write(utf16leFixed(areaName, 2048))
	buf.Write(make([]byte, 2048))

	if buf.Len() != 8232 {
		t.Fatalf("header size = %d, want 8232", buf.Len())
	}

	type placed struct {
		name   string
		offset uint32
		size   uint32
	}
	var placedResources []placed
	for name, payload := range resources {
		offset := uint32(buf.Len())
		buf.Write(payload)
		placedResources = append(placedResources, placed{name: name, offset: offset, size: uint32(len(payload))})
	}

	tableOffset := uint32(buf.Len())
	for _, p := range placedResources {
		binary.Write(&buf, binary.LittleEndian, uint32(len(p.name)))
		buf.WriteString(p.name)
		binary.Write(&buf, binary.LittleEndian, p.size)
		binary.Write(&buf, binary.LittleEndian, p.offset)
	}
	binary.Write(&buf, binary.LittleEndian, tableOffset)
	binary.Write(&buf, binary.LittleEndian, uint32(len(placedResources)))

	return buf.Bytes()
}

func TestTWSRoundTrip(t *testing.T) {
	payload := []byte("Geralt's stats")
	data := buildTWS(t, "kaer_morhen", map[string][]byte{"player.utc": payload})

	a, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if a.AreaName() != "kaer_morhen" {
		t.Fatalf("AreaName = %q, want kaer_morhen", a.AreaName())
	}

	list := a.ResourceList()
	if len(list) != 1 {
		t.Fatalf("ResourceList: got %d, want 1", len(list))
	}
	if list[0].Name != "player" || list[0].Type != restype.UTC {
		t.Fatalf("entry = %+v, want player/UTC", list[0])
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

func TestTWSRejectsAreaNameMismatch(t *testing.T) {
	data := buildTWS(t, "area1", nil)
	// Corrupt the second area-name copy so it no longer matches the first.
	copy(data[4232:4232+10], []byte{'X', 0, 'X', 0, 'X', 0, 'X', 0, 'X', 0})
	if _, err := Open(data); err == nil {
		t.Fatal("expected an error for mismatched area names")
	}
}
