// Copyright (C) 2016 The Resource Authors.

// Package strenc converts between the handful of text encodings the
// Aurora file formats use (ASCII, CP-1252, UTF-8, UTF-16LE, UTF-16BE) and
// Go's canonical UTF-8 strings. Everything in the core stores strings as
// UTF-8 in memory; encoding only matters at the byte boundary.
package strenc

import (
	"unicode/utf16"

	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/stream"
)

// Encoding identifies one of the on-disk text encodings supported by the
// core.
type Encoding int

const (
	ASCII Encoding = iota
	CP1252
	UTF8
	UTF16LE
	UTF16BE
)

// cp1252Table maps bytes 0x80-0x9F to their Unicode code points; 0x00-0x7F
// and 0xA0-0xFF are identical to Latin-1/Unicode in CP-1252.
var cp1252Table = [32]rune{
	0x20AC, 0x81, 0x201A, 0x0192, 0x201E, 0x2026, 0x2020, 0x2021,
	0x02C6, 0x2030, 0x0160, 0x2039, 0x0152, 0x8D, 0x017D, 0x8F,
	0x90, 0x2018, 0x2019, 0x201C, 0x201D, 0x2022, 0x2013, 0x2014,
	0x02DC, 0x2122, 0x0161, 0x203A, 0x0153, 0x9D, 0x017E, 0x0178,
}

func decodeCP1252(b byte) rune {
	if b >= 0x80 && b <= 0x9F {
		return cp1252Table[b-0x80]
	}
	return rune(b)
}

// Decode converts raw bytes in the given encoding to a UTF-8 Go string.
func Decode(b []byte, enc Encoding) (string, error) {
	switch enc {
	case ASCII:
		out := make([]rune, len(b))
		for i, c := range b {
			if c > 0x7F {
				return "", reserr.New(reserr.EncodingError, "byte out of ASCII range")
			}
			out[i] = rune(c)
		}
		return string(out), nil
	case CP1252:
		out := make([]rune, len(b))
		for i, c := range b {
			out[i] = decodeCP1252(c)
		}
		return string(out), nil
	case UTF8:
		return string(b), nil
	case UTF16LE, UTF16BE:
		if len(b)%2 != 0 {
			return "", reserr.New(reserr.EncodingError, "odd byte length for UTF-16")
		}
		units := make([]uint16, len(b)/2)
		for i := range units {
			if enc == UTF16LE {
				units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
			} else {
				units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
			}
		}
		return string(utf16.Decode(units)), nil
	default:
		return "", reserr.New(reserr.EncodingError, "unknown encoding")
	}
}

// Encode converts a UTF-8 Go string to raw bytes in the given encoding.
func Encode(s string, enc Encoding) ([]byte, error) {
	switch enc {
	case ASCII:
		out := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0x7F {
				return nil, reserr.New(reserr.EncodingError, "rune out of ASCII range")
			}
			out = append(out, byte(r))
		}
		return out, nil
	case CP1252:
		out := make([]byte, 0, len(s))
		for _, r := range s {
			b, ok := encodeCP1252(r)
			if !ok {
				return nil, reserr.New(reserr.EncodingError, "rune not representable in CP-1252")
			}
			out = append(out, b)
		}
		return out, nil
	case UTF8:
		return []byte(s), nil
	case UTF16LE, UTF16BE:
		units := utf16.Encode([]rune(s))
		out := make([]byte, len(units)*2)
		for i, u := range units {
			if enc == UTF16LE {
				out[2*i] = byte(u)
				out[2*i+1] = byte(u >> 8)
			} else {
				out[2*i] = byte(u >> 8)
				out[2*i+1] = byte(u)
			}
		}
		return out, nil
	default:
		return nil, reserr.New(reserr.EncodingError, "unknown encoding")
	}
}

func encodeCP1252(r rune) (byte, bool) {
	if r < 0x80 || (r >= 0xA0 && r <= 0xFF) {
		return byte(r), true
	}
	for i, c := range cp1252Table {
		if c == r {
			return byte(0x80 + i), true
		}
	}
	return 0, false
}

// ReadFixed consumes exactly byteLength bytes from rs and decodes them.
func ReadFixed(rs stream.ReadStream, enc Encoding, byteLength int) (string, error) {
	buf := make([]byte, byteLength)
	n := 0
	for n < byteLength {
		m, err := rs.Read(buf[n:])
		n += m
		if err != nil {
			if n < byteLength {
				return "", reserr.New(reserr.TruncatedInput, "fixed string read past end of stream")
			}
			break
		}
	}
	// Fixed-width strings are NUL-padded; trim trailing NULs before
	// decoding (decoding a NUL-padded UTF-16 string would otherwise
	// leave embedded NUL runes at the end).
	return Decode(trimTrailingZeros(buf, enc), enc)
}

func trimTrailingZeros(b []byte, enc Encoding) []byte {
	unit := 1
	if enc == UTF16LE || enc == UTF16BE {
		unit = 2
	}
	end := len(b)
	for end >= unit {
		isZero := true
		for i := 0; i < unit; i++ {
			if b[end-unit+i] != 0 {
				isZero = false
				break
			}
		}
		if !isZero {
			break
		}
		end -= unit
	}
	return b[:end]
}

// ReadNullTerminated reads until the encoding's zero code unit (a single
// 0x00 byte for 8-bit encodings, a 0x0000 unit for UTF-16).
func ReadNullTerminated(rs stream.ReadStream, enc Encoding) (string, error) {
	var raw []byte
	unit := 1
	if enc == UTF16LE || enc == UTF16BE {
		unit = 2
	}
	for {
		b := make([]byte, unit)
		n := 0
		for n < unit {
			m, err := rs.Read(b[n:])
			n += m
			if err != nil {
				if n < unit {
					return "", reserr.New(reserr.TruncatedInput, "unterminated string")
				}
				break
			}
		}
		isZero := true
		for _, c := range b {
			if c != 0 {
				isZero = false
				break
			}
		}
		if isZero {
			break
		}
		raw = append(raw, b...)
	}
	return Decode(raw, enc)
}

// WriteFixed pads or truncates s to exactly byteLength bytes once encoded,
// writing zero padding as needed.
func WriteFixed(ws stream.WriteStream, s string, enc Encoding, byteLength int) error {
	b, err := Encode(s, enc)
	if err != nil {
		return err
	}
	if len(b) > byteLength {
		b = b[:byteLength]
	}
	if _, err := ws.Write(b); err != nil {
		return err
	}
	return stream.WriteZeros(ws, byteLength-len(b))
}

// WriteString writes s in the given encoding with no padding or
// terminator.
func WriteString(ws stream.WriteStream, s string, enc Encoding) error {
	b, err := Encode(s, enc)
	if err != nil {
		return err
	}
	_, err = ws.Write(b)
	return err
}
