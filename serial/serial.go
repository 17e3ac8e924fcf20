// Package serial implements the BS variable length unsigned integer
// encoding and the length prefixed byte strings built on it.
//
// A BS value is big-endian base 128: each octet carries 7 bits of the
// value and every octet except the last has its top bit set.
package serial

import (
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrTruncated means the buffer ended inside an encoded value.
	ErrTruncated = errors.New("truncated BS encoding")
	// ErrOverflow means the encoded value does not fit in 64 bits.
	ErrOverflow = errors.New("BS value overflows uint64")
)

// MaxLen is the longest BS encoding of a uint64.
const MaxLen = 10

// AppendBS appends the BS encoding of n to dst.
func AppendBS(dst []byte, n uint64) []byte {
	var tmp [MaxLen]byte
	i := len(tmp) - 1
	tmp[i] = byte(n & 0x7f)
	n >>= 7
	for n > 0 {
		i--
		tmp[i] = 0x80 | byte(n&0x7f)
		n >>= 7
	}
	return append(dst, tmp[i:]...)
}

// BS returns the BS encoding of n.
func BS(n uint64) []byte {
	return AppendBS(nil, n)
}

// Size returns the length of the BS encoding of n.
func Size(n uint64) (size int) {
	size = 1
	for n >>= 7; n > 0; n >>= 7 {
		size++
	}
	return
}

// ReadBS decodes a BS value from the front of buf, returning the value
// and the number of octets consumed.
func ReadBS(buf []byte) (n uint64, used int, err error) {
	for used < len(buf) {
		b := buf[used]
		used++
		if n > (1<<64-1)>>7 {
			return 0, used, ErrOverflow
		}
		n = n<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return n, used, nil
		}
	}
	return 0, used, ErrTruncated
}

// ReadBSFrom decodes a BS value from a byte stream. A clean end of
// stream before the first octet returns io.EOF.
func ReadBSFrom(r io.ByteReader) (n uint64, err error) {
	for i := 0; ; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && i > 0 {
				err = ErrTruncated
			}
			return 0, err
		}
		if n > (1<<64-1)>>7 {
			return 0, ErrOverflow
		}
		n = n<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return n, nil
		}
	}
}

// AppendData appends BS(len(data)) followed by data.
func AppendData(dst, data []byte) []byte {
	dst = AppendBS(dst, uint64(len(data)))
	return append(dst, data...)
}

// ReadData decodes a length prefixed byte string from the front of
// buf. The returned slice aliases buf.
func ReadData(buf []byte) (data []byte, used int, err error) {
	length, used, err := ReadBS(buf)
	if err != nil {
		return
	}
	if uint64(len(buf)-used) < length {
		return nil, used, errors.Wrapf(ErrTruncated, "need %d data bytes, have %d", length, len(buf)-used)
	}
	end := used + int(length)
	return buf[used:end], end, nil
}

// AppendString appends a length prefixed string.
func AppendString(dst []byte, s string) []byte {
	return AppendData(dst, []byte(s))
}

// ReadString decodes a length prefixed string from the front of buf.
func ReadString(buf []byte) (s string, used int, err error) {
	data, used, err := ReadData(buf)
	if err != nil {
		return
	}
	return string(data), used, nil
}
