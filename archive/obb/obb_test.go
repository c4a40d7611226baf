// Copyright (C) 2016 The Resource Authors.

package obb

import (
	"bytes"
	"testing"

	"github.com/xeos/aurora-res/compress"
	"github.com/xeos/aurora-res/restype"
)

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// buildOBB assembles a minimal OBB: one data chunk for a single resource
// ("hello.are", four zero marker bytes being the convention the real
// format uses after every field) followed by an index chunk describing
// that one resource, each individually zlib-compressed the way the real
// format concatenates chunks back to back.
func buildOBB(t *testing.T) ([]byte, []byte) {
	t.Helper()

	payload := []byte("hello aurora resource payload")
	payloadChunk, err := compress.Deflate(payload, windowBitsMax)
	if err != nil {
		t.Fatal(err)
	}

	dataOffset := uint32(0)
	dataTrailer := append(u32le(dataOffset), u32le(0)...) // 16 bytes total isn't enforced by our reader; 8 is enough for the marker.
	dataTrailer = append(dataTrailer, make([]byte, 8)...)

	name := "hello.are"
	var index bytes.Buffer
	index.Write(u32le(1)) // resCount
	index.Write(u32le(0)) // reserved
	index.Write(u32le(uint32(len(name))))
	index.Write(u32le(0))
	index.WriteString(name)
	index.Write(u32le(dataOffset))
	index.Write(u32le(0))
	index.Write(u32le(uint32(len(payload))))
	index.Write(u32le(0))
	index.Write(u32le(uint32(len(payloadChunk)))) // compressed size, unreliable/unused
	index.Write(u32le(0))

	indexChunk, err := compress.Deflate(index.Bytes(), windowBitsMax)
	if err != nil {
		t.Fatal(err)
	}

	indexChunkStart := uint32(len(payloadChunk) + len(dataTrailer))
	indexTrailer := append(u32le(indexChunkStart), u32le(0)...)

	var obb bytes.Buffer
	obb.Write(payloadChunk)
	obb.Write(dataTrailer)
	obb.Write(indexChunk)
	obb.Write(indexTrailer)

	return obb.Bytes(), payload
}

func TestOBBRoundTrip(t *testing.T) {
	data, payload := buildOBB(t)

	a, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	list := a.ResourceList()
	if len(list) != 1 {
		t.Fatalf("ResourceList: got %d entries, want 1", len(list))
	}
	if list[0].Name != "hello" || list[0].Type != restype.ARE {
		t.Fatalf("entry = %+v, want hello/ARE", list[0])
	}

	size, err := a.ResourceSize(0)
	if err != nil {
		t.Fatalf("ResourceSize: %v", err)
	}
	if size != int64(len(payload)) {
		t.Fatalf("ResourceSize = %d, want %d", size, len(payload))
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

func TestOBBRejectsMissingHeader(t *testing.T) {
	if _, err := Open([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Fatal("expected an error for data with no zlib header")
	}
}
