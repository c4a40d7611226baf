// Copyright (C) 2016 The Resource Authors.

package keybif

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/xeos/aurora-res/restype"
)

// buildKEY assembles a minimal well-formed KEY file referencing one BIF
// (named bifName) with one resource entry named "module" of type ARE.
func buildKEY(t *testing.T, bifName string) []byte {
	t.Helper()

	const headerSize = 64
	fileTableOff := uint32(headerSize)
	fileEntrySize := uint32(12)
	keyTableOff := fileTableOff + fileEntrySize
	nameAreaOff := keyTableOff + 22 // one key entry: 16+2+4

	var buf bytes.Buffer
	buf.WriteString("KEY ")
	buf.WriteString("V1  ")
	binary.Write(&buf, binary.LittleEndian, uint32(1))           // bifCount
	binary.Write(&buf, binary.LittleEndian, uint32(1))           // keyCount
	binary.Write(&buf, binary.LittleEndian, fileTableOff)        // filesOffset
	binary.Write(&buf, binary.LittleEndian, keyTableOff)         // keysOffset
	binary.Write(&buf, binary.LittleEndian, uint32(0))           // buildYear
	binary.Write(&buf, binary.LittleEndian, uint32(0))           // buildDay
	buf.Write(make([]byte, 32))                                  // reserved

	if uint32(buf.Len()) != headerSize {
		t.Fatalf("header size mismatch: %d", buf.Len())
	}

	// file table entry
	binary.Write(&buf, binary.LittleEndian, uint32(0))         // bif size (unused)
	binary.Write(&buf, binary.LittleEndian, nameAreaOff)       // name offset
	binary.Write(&buf, binary.LittleEndian, uint16(len(bifName)+1))
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // drive flags

	// key table entry: 16-byte name, u16 type, u32 locator
	name := make([]byte, 16)
	copy(name, "module")
	buf.Write(name)
	binary.Write(&buf, binary.LittleEndian, uint16(restype.ARE))
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // locator: bif 0, local 0

	// name area
	nameBytes := make([]byte, len(bifName)+1)
	copy(nameBytes, bifName)
	buf.Write(nameBytes)

	return buf.Bytes()
}

func buildBIF(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("BIFF")
	buf.WriteString("V1  ")
	binary.Write(&buf, binary.LittleEndian, uint32(1))  // varResCount
	binary.Write(&buf, binary.LittleEndian, uint32(0))  // fixResCount
	binary.Write(&buf, binary.LittleEndian, uint32(20)) // tableOffset (right after this header)

	tableOffset := uint32(buf.Len())
	if tableOffset != 20 {
		t.Fatalf("unexpected BIF header size %d", tableOffset)
	}
	dataOffset := tableOffset + 16 // one 16-byte entry

	binary.Write(&buf, binary.LittleEndian, uint32(0))                  // id
	binary.Write(&buf, binary.LittleEndian, dataOffset)                 // offset
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))       // size
	binary.Write(&buf, binary.LittleEndian, uint32(restype.ARE))        // type

	buf.Write(payload)
	return buf.Bytes()
}

func TestKEYBIFRoundTrip(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("hello aurora")

	if err := os.WriteFile(filepath.Join(dir, "data.bif"), buildBIF(t, payload), 0o644); err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(dir, "module.key")
	if err := os.WriteFile(keyPath, buildKEY(t, "data.bif"), 0o644); err != nil {
		t.Fatal(err)
	}

	key, err := Open(keyPath, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer key.Close()

	list := key.ResourceList()
	if len(list) != 1 {
		t.Fatalf("ResourceList: got %d entries, want 1", len(list))
	}
	if list[0].Name != "module" || list[0].Type != restype.ARE {
		t.Fatalf("entry = %+v, want module/ARE", list[0])
	}

	size, err := key.ResourceSize(0)
	if err != nil {
		t.Fatalf("ResourceSize: %v", err)
	}
	if size != int64(len(payload)) {
		t.Fatalf("ResourceSize = %d, want %d", size, len(payload))
	}

	rs, err := key.GetResource(0, true)
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

func TestKEYMissingBIFToleratedUntilFetch(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "module.key")
	if err := os.WriteFile(keyPath, buildKEY(t, "missing.bif"), 0o644); err != nil {
		t.Fatal(err)
	}

	key, err := Open(keyPath, dir)
	if err != nil {
		t.Fatalf("Open should tolerate a missing BIF: %v", err)
	}
	defer key.Close()

	if _, err := key.GetResource(0, true); err == nil {
		t.Fatalf("GetResource against a missing BIF should fail")
	}
}
