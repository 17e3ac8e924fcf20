package hashcode

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func TestSum(t *testing.T) {
	h := Sum(SHA1, []byte("hello"))
	expect := "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
	tassert(t, h.Hex() == expect, "expected %q got %q", expect, h.Hex())
	tassert(t, h.String() == "sha1:"+expect, "got %q", h.String())
	tassert(t, h.Matches([]byte("hello")), "Matches failed")
	tassert(t, !h.Matches([]byte("hellO")), "Matches should fail")

	h = Sum(SHA256, []byte("hello"))
	expect = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	tassert(t, h.Hex() == expect, "expected %q got %q", expect, h.Hex())

	h = Sum(BLAKE3, []byte("hello"))
	tassert(t, len(h.Digest()) == 32, "blake3 digest len %d", len(h.Digest()))
	tassert(t, h == Sum(BLAKE3, []byte("hello")), "blake3 not deterministic")
}

func TestAlgoByName(t *testing.T) {
	for _, name := range []string{"sha1", "sha256", "sha512", "blake3"} {
		a, err := AlgoByName(name)
		tassert(t, err == nil, "%s: %v", name, err)
		tassert(t, a.String() == name, "expected %s got %s", name, a)
	}
	_, err := AlgoByName("foobar")
	tassert(t, err != nil, "expected error, received none")
	tassert(t, len(Names()) >= 4, "names %v", Names())
}

func TestEncodeDecode(t *testing.T) {
	h := Sum(SHA1, []byte("hello"))
	enc := h.Encode()
	tassert(t, enc[0] == 0x00, "sha1 enum should encode as 0x00, got %x", enc[0])
	tassert(t, len(enc) == 21 && h.EncodedLen() == 21, "encoded len %d", len(enc))

	got, used, err := Decode(append(enc, 0xaa))
	tassert(t, err == nil, "%v", err)
	tassert(t, used == 21, "used %d", used)
	tassert(t, got == h, "expected %s got %s", h, got)

	_, _, err = Decode(enc[:10])
	tassert(t, err != nil, "expected truncation error")
	_, _, err = Decode([]byte{0x7e, 1, 2, 3})
	tassert(t, err != nil, "expected unknown algorithm error")
}

func TestParse(t *testing.T) {
	h := Sum(SHA256, []byte("x"))
	got, err := Parse(h.String())
	tassert(t, err == nil, "%v", err)
	tassert(t, got == h, "expected %s got %s", h, got)
	_, err = Parse("sha1:zz")
	tassert(t, err != nil, "expected hex error")
	_, err = Parse("sha1:abcd")
	tassert(t, err != nil, "expected length error")
	_, err = Parse("abcd")
	tassert(t, err != nil, "expected prefix error")
}

func TestSumOf(t *testing.T) {
	a := Sum(SHA1, []byte("a"))
	b := Sum(SHA1, []byte("b"))
	got := SumOf(SHA1, []HashCode{a, b})
	expect := "0056540ac6237d0263dd0faa45c71c73bc480f34"
	tassert(t, got.Hex() == expect, "expected %s got %s", expect, got.Hex())
	tassert(t, SumOf(SHA1, []HashCode{b, a}) != got, "order should matter")
}

func TestOrdering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(t, "n")
		var hs []HashCode
		for i := 0; i < n; i++ {
			data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
			hs = append(hs, Sum(SHA1, data))
		}
		Sort(hs)
		for i := 1; i < len(hs); i++ {
			if bytes.Compare(hs[i-1].Digest(), hs[i].Digest()) > 0 {
				t.Fatalf("not sorted at %d", i)
			}
		}
		var enc []byte
		for _, h := range hs {
			enc = h.AppendEncoded(enc)
		}
		got, err := DecodeAll(enc)
		if err != nil || !Equal(got, hs) {
			t.Fatalf("DecodeAll: %v", err)
		}
	})
}
