// Package hashcode provides content digests tagged with the algorithm
// that produced them.
package hashcode

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/t7a/vt/serial"
	"github.com/zeebo/blake3"
)

// Algo identifies a digest algorithm. The numeric value is the enum
// written into binary hashcode encodings and must never change.
type Algo uint

const (
	SHA1 Algo = iota
	SHA256
	SHA512
	BLAKE3
)

// DefaultAlgo is used by stores created without an explicit algorithm.
const DefaultAlgo = SHA1

type algoInfo struct {
	name string
	size int
	new  func() hash.Hash
}

var (
	registryMu sync.RWMutex
	byEnum     = map[Algo]algoInfo{}
	byName     = map[string]Algo{}
)

// Register makes a digest algorithm available under name and enum.
func Register(enum Algo, name string, newHash func() hash.Hash) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := byEnum[enum]; ok {
		panic(fmt.Sprintf("hashcode: enum %d already registered", enum))
	}
	if _, ok := byName[name]; ok {
		panic(fmt.Sprintf("hashcode: name %q already registered", name))
	}
	byEnum[enum] = algoInfo{name: name, size: newHash().Size(), new: newHash}
	byName[name] = enum
}

func init() {
	Register(SHA1, "sha1", sha1.New)
	Register(SHA256, "sha256", sha256.New)
	Register(SHA512, "sha512", sha512.New)
	Register(BLAKE3, "blake3", func() hash.Hash { return blake3.New() })
}

func lookup(a Algo) (info algoInfo, ok bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok = byEnum[a]
	return
}

// AlgoByName returns the algorithm registered under name.
func AlgoByName(name string) (a Algo, err error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := byName[name]
	if !ok {
		return 0, fmt.Errorf("not implemented: %s", name)
	}
	return a, nil
}

// Names lists the registered algorithm names.
func Names() (names []string) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

func (a Algo) String() string {
	info, ok := lookup(a)
	if !ok {
		return fmt.Sprintf("algo(%d)", uint(a))
	}
	return info.name
}

// Size is the digest length in bytes, or 0 for an unknown algorithm.
func (a Algo) Size() int {
	info, _ := lookup(a)
	return info.size
}

// Valid reports whether the algorithm is registered.
func (a Algo) Valid() bool {
	_, ok := lookup(a)
	return ok
}

// New returns a fresh hash.Hash for the algorithm.
func (a Algo) New() hash.Hash {
	info, ok := lookup(a)
	if !ok {
		panic(fmt.Sprintf("hashcode: unknown algorithm %d", uint(a)))
	}
	return info.new()
}

// HashCode is an immutable digest. The zero value is "no hashcode".
// HashCodes are comparable and may be used as map keys.
type HashCode struct {
	algo   Algo
	digest string
}

// Sum computes the hashcode of data.
func Sum(a Algo, data []byte) HashCode {
	h := a.New()
	h.Write(data)
	return HashCode{algo: a, digest: string(h.Sum(nil))}
}

// New wraps an existing digest.
func New(a Algo, digest []byte) (h HashCode, err error) {
	info, ok := lookup(a)
	if !ok {
		return h, fmt.Errorf("unknown hash algorithm %d", uint(a))
	}
	if len(digest) != info.size {
		return h, fmt.Errorf("%s digest must be %d bytes, got %d", info.name, info.size, len(digest))
	}
	return HashCode{algo: a, digest: string(digest)}, nil
}

// Algo returns the algorithm that produced h.
func (h HashCode) Algo() Algo {
	return h.algo
}

// Digest returns a copy of the raw digest bytes.
func (h HashCode) Digest() []byte {
	return []byte(h.digest)
}

// IsZero reports whether h is the zero HashCode.
func (h HashCode) IsZero() bool {
	return h.digest == ""
}

func (h HashCode) Hex() string {
	return hex.EncodeToString([]byte(h.digest))
}

// String is the text form "name:hex".
func (h HashCode) String() string {
	if h.IsZero() {
		return "<nil>"
	}
	return h.algo.String() + ":" + h.Hex()
}

// Compare orders hashcodes by algorithm and then digest bytes.
func (h HashCode) Compare(o HashCode) int {
	switch {
	case h.algo < o.algo:
		return -1
	case h.algo > o.algo:
		return 1
	}
	return strings.Compare(h.digest, o.digest)
}

// Less reports whether h sorts before o.
func (h HashCode) Less(o HashCode) bool {
	return h.Compare(o) < 0
}

// Matches reports whether h is the digest of data.
func (h HashCode) Matches(data []byte) bool {
	return Sum(h.algo, data) == h
}

// Encode returns the binary form BS(algo) followed by the digest.
func (h HashCode) Encode() []byte {
	return h.AppendEncoded(nil)
}

// AppendEncoded appends the binary form of h to dst.
func (h HashCode) AppendEncoded(dst []byte) []byte {
	dst = serial.AppendBS(dst, uint64(h.algo))
	return append(dst, h.digest...)
}

// EncodedLen is the length of the binary form.
func (h HashCode) EncodedLen() int {
	return serial.Size(uint64(h.algo)) + len(h.digest)
}

// Decode reads a binary hashcode from the front of buf.
func Decode(buf []byte) (h HashCode, used int, err error) {
	enum, used, err := serial.ReadBS(buf)
	if err != nil {
		return h, used, errors.Wrap(err, "hashcode algorithm")
	}
	a := Algo(enum)
	size := a.Size()
	if size == 0 {
		return h, used, fmt.Errorf("unknown hash algorithm %d", enum)
	}
	if len(buf)-used < size {
		return h, used, errors.Wrapf(serial.ErrTruncated, "%s digest needs %d bytes, have %d", a, size, len(buf)-used)
	}
	h = HashCode{algo: a, digest: string(buf[used : used+size])}
	return h, used + size, nil
}

// DecodeAll decodes a concatenation of binary hashcodes.
func DecodeAll(buf []byte) (hs []HashCode, err error) {
	for len(buf) > 0 {
		h, used, err := Decode(buf)
		if err != nil {
			return nil, err
		}
		hs = append(hs, h)
		buf = buf[used:]
	}
	return
}

// Parse accepts the text form "name:hex".
func Parse(s string) (h HashCode, err error) {
	name, hexdigest, ok := strings.Cut(s, ":")
	if !ok {
		return h, fmt.Errorf("hashcode %q: missing algorithm prefix", s)
	}
	a, err := AlgoByName(name)
	if err != nil {
		return
	}
	digest, err := hex.DecodeString(hexdigest)
	if err != nil {
		return h, errors.Wrapf(err, "hashcode %q", s)
	}
	return New(a, digest)
}

// SumOf computes the hash of the concatenated digests of hs. Stores
// use it to compare ranges of their keys without shipping the keys.
func SumOf(a Algo, hs []HashCode) HashCode {
	hh := a.New()
	for _, h := range hs {
		hh.Write([]byte(h.digest))
	}
	return HashCode{algo: a, digest: string(hh.Sum(nil))}
}

// Sort orders hs in place.
func Sort(hs []HashCode) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Less(hs[j]) })
}

// Equal reports whether two hashcode lists are identical.
func Equal(a, b []HashCode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
