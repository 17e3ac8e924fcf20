package serial

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
	"pgregory.net/rapid"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func TestBSKnown(t *testing.T) {
	cases := []struct {
		n   uint64
		enc []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x81, 0x00}},
		{300, []byte{0x82, 0x2c}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x81, 0x80, 0x00}},
	}
	for _, c := range cases {
		got := BS(c.n)
		tassert(t, bytes.Equal(got, c.enc), "BS(%d): expected %x got %x", c.n, c.enc, got)
		tassert(t, Size(c.n) == len(c.enc), "Size(%d): expected %d got %d", c.n, len(c.enc), Size(c.n))
		n, used, err := ReadBS(got)
		tassert(t, err == nil, "ReadBS: %v", err)
		tassert(t, n == c.n && used == len(c.enc), "ReadBS(%x): got %d used %d", got, n, used)
	}
}

func TestBSTruncated(t *testing.T) {
	_, _, err := ReadBS([]byte{0x81, 0x80})
	tassert(t, errors.Cause(err) == ErrTruncated, "expected ErrTruncated, got %v", err)
	_, _, err = ReadBS(nil)
	tassert(t, errors.Cause(err) == ErrTruncated, "expected ErrTruncated, got %v", err)

	_, err = ReadBSFrom(bufio.NewReader(bytes.NewReader(nil)))
	tassert(t, err == io.EOF, "expected io.EOF, got %v", err)
	_, err = ReadBSFrom(bufio.NewReader(bytes.NewReader([]byte{0x80})))
	tassert(t, err == ErrTruncated, "expected ErrTruncated, got %v", err)
}

func TestBSOverflow(t *testing.T) {
	buf := bytes.Repeat([]byte{0xff}, 11)
	buf = append(buf, 0x7f)
	_, _, err := ReadBS(buf)
	tassert(t, err == ErrOverflow, "expected ErrOverflow, got %v", err)
}

func TestData(t *testing.T) {
	buf := AppendData(nil, []byte("hello"))
	buf = AppendString(buf, "world")
	data, used, err := ReadData(buf)
	tassert(t, err == nil, "%v", err)
	tassert(t, string(data) == "hello", "got %q", data)
	s, used2, err := ReadString(buf[used:])
	tassert(t, err == nil, "%v", err)
	tassert(t, s == "world", "got %q", s)
	tassert(t, used+used2 == len(buf), "consumed %d of %d", used+used2, len(buf))

	_, _, err = ReadData([]byte{0x05, 'a'})
	tassert(t, errors.Cause(err) == ErrTruncated, "expected ErrTruncated, got %v", err)
}

func TestBSRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Uint64().Draw(t, "n")
		enc := BS(n)
		got, used, err := ReadBS(enc)
		if err != nil || got != n || used != len(enc) || Size(n) != len(enc) {
			t.Fatalf("round trip %d: got %d used %d len %d err %v", n, got, used, len(enc), err)
		}
		got, err = ReadBSFrom(bytes.NewReader(enc))
		if err != nil || got != n {
			t.Fatalf("stream round trip %d: got %d err %v", n, got, err)
		}
	})
}
