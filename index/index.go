// Package index maps hashcodes to the location of their data.
//
// Several backends implement Index. Ordered backends iterate their keys
// directly; unordered ones collect and sort, so KeysFrom is always in
// hashcode order whichever backend is in use.
package index

import (
	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
	"github.com/t7a/vt/serial"
)

// Stop may be returned by a KeysFrom callback to end the iteration
// early without error.
var Stop = errors.New("stop iteration")

// ErrNotFound is returned by Get for an absent hashcode.
var ErrNotFound = errors.New("not in index")

// Entry locates a stored chunk.
type Entry struct {
	FileID int
	Offset int64
	Length int
	Flags  uint64
}

// Encode returns BS(file) BS(offset) BS(length) BS(flags).
func (e Entry) Encode() []byte {
	buf := make([]byte, 0, 4*serial.MaxLen)
	buf = serial.AppendBS(buf, uint64(e.FileID))
	buf = serial.AppendBS(buf, uint64(e.Offset))
	buf = serial.AppendBS(buf, uint64(e.Length))
	return serial.AppendBS(buf, e.Flags)
}

// DecodeEntry is the inverse of Entry.Encode.
func DecodeEntry(buf []byte) (e Entry, err error) {
	var fields [4]uint64
	for i := range fields {
		n, used, err := serial.ReadBS(buf)
		if err != nil {
			return e, errors.Wrapf(err, "index entry field %d", i)
		}
		fields[i] = n
		buf = buf[used:]
	}
	if len(buf) != 0 {
		return e, errors.Errorf("index entry: %d trailing bytes", len(buf))
	}
	return Entry{
		FileID: int(fields[0]),
		Offset: int64(fields[1]),
		Length: int(fields[2]),
		Flags:  fields[3],
	}, nil
}

// Index is a persistent hashcode to Entry mapping for one algorithm.
type Index interface {
	Name() string
	Get(h hashcode.HashCode) (Entry, error)
	Contains(h hashcode.HashCode) (bool, error)
	Set(h hashcode.HashCode, e Entry) error
	// KeysFrom calls fn with hashcodes in order starting at start,
	// which is included if present. A zero start begins at the first
	// key, or at the last key when reverse is set.
	KeysFrom(start hashcode.HashCode, reverse bool, fn func(h hashcode.HashCode) error) error
	Flush() error
	Close() error
}

func key(h hashcode.HashCode) []byte {
	return h.Digest()
}

func keyHash(algo hashcode.Algo, k []byte) (hashcode.HashCode, error) {
	return hashcode.New(algo, k)
}

// stopped folds Stop into a clean return.
func stopped(err error) error {
	if err == Stop {
		return nil
	}
	return err
}
