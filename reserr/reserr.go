// Copyright (C) 2016 The Resource Authors.

// Package reserr defines the error taxonomy shared by the resource-access
// core: archive parsers, GFF readers, the resource manager and the
// writers all return errors built with New, wrapping a Kind and the
// file/resref/offset context that was active when the failure occurred.
package reserr

import "fmt"

// Kind classifies a failure into one of the eight categories the core
// distinguishes. Callers that only care whether a lookup failed can type
// switch on Kind via Is.
type Kind int

const (
	// FormatMismatch means a magic or version field did not match what
	// the reader expected.
	FormatMismatch Kind = iota
	// OutOfRange means an offset, index or length exceeded its container.
	OutOfRange
	// UnsupportedVariant means a field-type/flags combination is known
	// to be invalid (e.g. a GFF4 list of generics).
	UnsupportedVariant
	// TruncatedInput means a read ran past end-of-stream.
	TruncatedInput
	// CompressionFailure means inflate/deflate reported an error or
	// violated a size constraint.
	CompressionFailure
	// MissingResource means a lookup found no matching entry. Callers
	// see this as a plain "not found" result, not necessarily an error.
	MissingResource
	// WriterCapacity means a writer was used beyond its declared
	// capacity (the ERF writer's Add past its declared file count, or
	// the TheWitcherSave writer's Add or Finish after Finish).
	WriterCapacity
	// EncodingError means decoding bytes with a requested text encoding
	// failed.
	EncodingError
)

func (k Kind) String() string {
	switch k {
	case FormatMismatch:
		return "format mismatch"
	case OutOfRange:
		return "out of range"
	case UnsupportedVariant:
		return "unsupported variant"
	case TruncatedInput:
		return "truncated input"
	case CompressionFailure:
		return "compression failure"
	case MissingResource:
		return "missing resource"
	case WriterCapacity:
		return "writer capacity exceeded"
	case EncodingError:
		return "encoding error"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type produced throughout the core. It
// carries enough diagnostic context (path, resref, archive index, byte
// offset) to reconstruct where in a file the failure happened, mirroring
// xoreos's Common::Exception context chaining.
type Error struct {
	Kind   Kind
	Path   string
	ResRef string
	Index  int64 // -1 if not applicable
	Offset int64 // -1 if not applicable
	Msg    string
	Err    error // wrapped lower-level error, if any
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Path != "" {
		s += " in " + e.Path
	}
	if e.ResRef != "" {
		s += " (resref " + e.ResRef + ")"
	}
	if e.Index >= 0 {
		s += fmt.Sprintf(" [index %d]", e.Index)
	}
	if e.Offset >= 0 {
		s += fmt.Sprintf(" [offset %d]", e.Offset)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no path/resref/index/offset context. Use the
// With* helpers to attach it.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Index: -1, Offset: -1, Msg: msg}
}

// Wrap builds an Error that wraps a lower-level error, e.g. one coming
// out of the compress or stream packages.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Index: -1, Offset: -1, Msg: msg, Err: err}
}

// WithPath returns a copy of e with Path set, used when a subsystem
// boundary ("Failed loading X") wraps an error from a lower layer.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// WithResRef returns a copy of e with ResRef set.
func (e *Error) WithResRef(resref string) *Error {
	c := *e
	c.ResRef = resref
	return &c
}

// WithIndex returns a copy of e with Index set.
func (e *Error) WithIndex(index int64) *Error {
	c := *e
	c.Index = index
	return &c
}

// WithOffset returns a copy of e with Offset set.
func (e *Error) WithOffset(offset int64) *Error {
	c := *e
	c.Offset = offset
	return &c
}

// Is reports whether err is a *Error of the given Kind, walking the
// wrapped-error chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
