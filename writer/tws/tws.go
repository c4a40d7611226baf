// Copyright (C) 2016 The Resource Authors.

// Package tws writes TheWitcherSave archives: the write-side counterpart
// of github.com/xeos/aurora-res/archive/tws.
package tws

import (
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
	"github.com/xeos/aurora-res/strenc"
)

var tagRGMH = stream.MakeTag('R', 'G', 'M', 'H')

const (
	sig1 = 0xEE7C4A60
	sig2 = 0x459E4568
	sig3 = 0x10D3DBBD
	sig4 = 0x1CBCF20B

	lightningStorm = "Lightning Storm"
	headerLength   = 8232
)

type pendingResource struct {
	name   string
	offset uint32
	size   uint32
}

// Writer builds a TheWitcherSave archive in two phases: Add appends
// resources as they arrive, and Finish writes the trailing resource
// table once, after which further Add calls fail.
type Writer struct {
	ws        stream.WriteStream
	mgr       *restype.Manager
	resources []pendingResource
	finished  bool
}

// New writes the 8232-byte fixed header (with areaName embedded twice,
// as the format's own consistency check requires) and returns a Writer
// positioned right after it, ready for Add.
func New(ws stream.WriteStream, areaName string) (*Writer, error) {
	if err := stream.WriteU32BE(ws, tagRGMH); err != nil {
		return nil, err
	}
	if err := stream.WriteU32LE(ws, 1); err != nil {
		return nil, err
	}
	if err := stream.WriteU64LE(ws, headerLength); err != nil {
		return nil, err
	}
	if err := stream.WriteZeros(ws, 8); err != nil {
		return nil, err
	}
	if err := stream.WriteU32LE(ws, sig1); err != nil {
		return nil, err
	}
	if err := stream.WriteU32LE(ws, sig2); err != nil {
		return nil, err
	}
	if err := stream.WriteU32LE(ws, sig3); err != nil {
		return nil, err
	}
	if err := stream.WriteU32LE(ws, sig4); err != nil {
		return nil, err
	}
	if err := strenc.WriteFixed(ws, lightningStorm, strenc.UTF16LE, 2048); err != nil {
		return nil, err
	}
	if err := strenc.WriteFixed(ws, areaName, strenc.UTF16LE, 2048); err != nil {
		return nil, err
	}
	if err := strenc.WriteFixed(ws, areaName, strenc.UTF16LE, 2048); err != nil {
		return nil, err
	}
	if err := stream.WriteZeros(ws, 2048); err != nil {
		return nil, err
	}
	return &Writer{ws: ws, mgr: restype.NewManager()}, nil
}

// Add appends resRef/resType's bytes, read in full from rs, at the
// writer's current position and records the entry for Finish.
func (w *Writer) Add(resRef string, resType restype.FileType, rs stream.ReadStream) error {
	if w.finished {
		return reserr.New(reserr.WriterCapacity, "TheWitcherSave writer: Add after Finish")
	}

	offset := uint32(w.ws.Pos())
	n, err := stream.CopyStream(w.ws, rs)
	if err != nil {
		return err
	}

	fullName := w.mgr.SetFileType(resRef, resType)
	w.resources = append(w.resources, pendingResource{name: fullName, offset: offset, size: uint32(n)})
	return nil
}

// Finish writes the resource table at the current position: for each
// resource, (name length, ASCII name, size, offset), then an 8-byte
// trailer giving the table's own offset and the resource count. Further
// Add or Finish calls fail once this has run.
func (w *Writer) Finish() error {
	if w.finished {
		return reserr.New(reserr.WriterCapacity, "TheWitcherSave writer: Finish called twice")
	}

	resourceTableOffset := uint32(w.ws.Pos())
	for _, r := range w.resources {
		if err := stream.WriteU32LE(w.ws, uint32(len(r.name))); err != nil {
			return err
		}
		if err := strenc.WriteString(w.ws, r.name, strenc.ASCII); err != nil {
			return err
		}
		if err := stream.WriteU32LE(w.ws, r.size); err != nil {
			return err
		}
		if err := stream.WriteU32LE(w.ws, r.offset); err != nil {
			return err
		}
	}
	if err := stream.WriteU32LE(w.ws, resourceTableOffset); err != nil {
		return err
	}
	if err := stream.WriteU32LE(w.ws, uint32(len(w.resources))); err != nil {
		return err
	}

	w.finished = true
	return nil
}
