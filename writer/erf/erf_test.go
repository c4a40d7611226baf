// Copyright (C) 2016 The Resource Authors.

package erf

import (
	"bytes"
	"testing"

	readerf "github.com/xeos/aurora-res/archive/erf"
	"github.com/xeos/aurora-res/gff3"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
)

func TestWriterV10RoundTrip(t *testing.T) {
	mws := stream.NewMemWriteSeeker()
	ws := stream.NewWriteStream(mws)

	desc := gff3.LocString{
		StrRef: 7,
		Strings: map[gff3.LocKey]string{
			{Language: 0, Gender: gff3.Male}: "A test module",
		},
	}

	w, err := New(ws, stream.MakeTag('M', 'O', 'D', ' '), 2, V1_0, CompressionNone, desc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := w.Add("module", restype.IFO, stream.NewMemStream([]byte("module info"))); err != nil {
		t.Fatalf("Add(module): %v", err)
	}
	if err := w.Add("area01", restype.ARE, stream.NewMemStream([]byte("area data"))); err != nil {
		t.Fatalf("Add(area01): %v", err)
	}
	if err := w.Add("extra", restype.ARE, stream.NewMemStream([]byte("x"))); err == nil {
		t.Fatal("expected WriterCapacity error on third Add")
	}

	a, err := readerf.Open(mws.Bytes())
	if err != nil {
		t.Fatalf("readerf.Open: %v", err)
	}
	defer a.Close()

	list := a.ResourceList()
	if len(list) != 2 {
		t.Fatalf("ResourceList length = %d, want 2", len(list))
	}

	foundModule, foundArea := false, false
	for _, r := range list {
		rs, err := a.GetResource(r.Index, true)
		if err != nil {
			t.Fatalf("GetResource(%d): %v", r.Index, err)
		}
		got := make([]byte, rs.Size())
		if _, err := rs.Read(got); err != nil {
			t.Fatalf("Read: %v", err)
		}
		switch r.Name {
		case "module":
			if r.Type != restype.IFO || !bytes.Equal(got, []byte("module info")) {
				t.Fatalf("module entry = %+v %q", r, got)
			}
			foundModule = true
		case "area01":
			if r.Type != restype.ARE || !bytes.Equal(got, []byte("area data")) {
				t.Fatalf("area01 entry = %+v %q", r, got)
			}
			foundArea = true
		default:
			t.Fatalf("unexpected entry name %q", r.Name)
		}
	}
	if !foundModule || !foundArea {
		t.Fatal("missing expected entries")
	}
}

func TestWriterV22Compression(t *testing.T) {
	mws := stream.NewMemWriteSeeker()
	ws := stream.NewWriteStream(mws)

	w, err := New(ws, stream.MakeTag('E', 'R', 'F', ' '), 1, V2_2, CompressionBiowareZlib, gff3.LocString{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := bytes.Repeat([]byte("compress me please "), 50)
	if err := w.Add("big", restype.TXT, stream.NewMemStream(payload)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	a, err := readerf.Open(mws.Bytes())
	if err != nil {
		t.Fatalf("readerf.Open: %v", err)
	}
	defer a.Close()

	rs, err := a.GetResource(0, false)
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}
	got := make([]byte, rs.Size())
	if _, err := rs.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-tripped payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}
