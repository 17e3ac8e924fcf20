// Package scan finds candidate chunk boundaries in byte streams.
//
// Scanner is the rolling hash used for every stream. The
// OffsetScanner implementations recognise boundaries that suit a
// particular data format, such as the start of a function definition
// in source code.
package scan

import (
	"context"
	"io"
)

const (
	windowMask = 0x001fffff
	modulus    = 4093
	residue    = 4091
)

// Scanner is a rolling hash boundary detector. It carries the hash and
// the absolute offset between calls to Scan, so a stream may be fed in
// arbitrary pieces. The zero value starts at offset 0.
type Scanner struct {
	hash   uint32
	offset int64
}

// Offset is the number of bytes scanned so far.
func (s *Scanner) Offset() int64 {
	return s.offset
}

// Scan advances the hash over buf and returns the absolute offsets,
// just past the triggering byte, at which a boundary occurs.
func (s *Scanner) Scan(buf []byte) (offsets []int64) {
	h := s.hash
	for i, b := range buf {
		h = ((h & windowMask) << 7) | uint32((b&0x7f)^(b>>7))
		if h%modulus == residue {
			offsets = append(offsets, s.offset+int64(i)+1)
		}
	}
	s.hash = h
	s.offset += int64(len(buf))
	return
}

// ScanReader runs a fresh Scanner over r, calling fn for each
// boundary offset in increasing order.
func ScanReader(ctx context.Context, r io.Reader, fn func(offset int64) error) (err error) {
	var s Scanner
	buf := make([]byte, 64*1024)
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		n, rerr := r.Read(buf)
		for _, off := range s.Scan(buf[:n]) {
			if err = fn(off); err != nil {
				return
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// OffsetScanner is a stateful format aware boundary detector. Scan is
// called with consecutive pieces of a stream and returns absolute
// offsets in increasing order. An offset may be reported up to Lag
// bytes after the data containing it has been scanned.
type OffsetScanner interface {
	Scan(buf []byte) []int64
	Lag() int
}
