package datafile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
	"pgregory.net/rapid"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func setup(t *testing.T, rollover int64) *Dir {
	var err error
	var dir string
	if os.Getenv("DEBUG") == "1" {
		dir, err = ioutil.TempDir("", "vtd")
		Ck(err)
		fmt.Println(dir)
		// no cleanup
	} else {
		dir = t.TempDir()
	}
	d, err := OpenDir(filepath.Join(dir, "data"), rollover)
	tassert(t, err == nil, "OpenDir: %v", err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRecordEmpty(t *testing.T) {
	rec := NewRecord(nil)
	tassert(t, bytes.Equal(rec.Encode(), []byte{0, 0}), "got %x", rec.Encode())
}

func TestRecordCompression(t *testing.T) {
	compressible := bytes.Repeat([]byte("abcd"), 1000)
	rec := NewRecord(compressible)
	tassert(t, rec.Compressed(), "expected compression")
	tassert(t, len(rec.Payload) < len(compressible), "payload not smaller")
	data, err := rec.Data()
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(data, compressible), "data mismatch")

	random := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(random)
	rec = NewRecord(random)
	tassert(t, !rec.Compressed(), "random data should be stored raw")

	short := []byte("aaaaaaaaaaaaaaa")
	tassert(t, !NewRecord(short).Compressed(), "short data should be stored raw")
}

func TestRecordParse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.SampledFrom([]byte("ab\x00"))).Draw(t, "data")
		rec := NewRecord(data)
		enc := rec.Encode()
		if len(enc) != rec.Len() {
			t.Fatalf("Len %d != encoded %d", rec.Len(), len(enc))
		}
		got, used, err := ParseRecord(enc)
		if err != nil || used != len(enc) {
			t.Fatalf("ParseRecord: used %d err %v", used, err)
		}
		out, err := got.Data()
		if err != nil || !bytes.Equal(out, data) {
			t.Fatalf("data mismatch: %v", err)
		}
		got, err = ReadRecord(bufio.NewReader(bytes.NewReader(enc)))
		if err != nil || !bytes.Equal(got.Payload, rec.Payload) {
			t.Fatalf("ReadRecord: %v", err)
		}
	})
}

func TestRecordBadFlags(t *testing.T) {
	_, _, err := ParseRecord([]byte{0x02, 0x00})
	tassert(t, err != nil, "expected flags error")
}

func TestAddFetch(t *testing.T) {
	d := setup(t, 0)
	var locs []int64
	var ids []int
	var datas [][]byte
	var allFlags []uint64
	for i := 0; i < 20; i++ {
		data := bytes.Repeat([]byte{byte(i)}, i*100)
		id, off, length, flags, err := d.Add(data)
		tassert(t, err == nil, "Add: %v", err)
		tassert(t, length > 0, "length %d", length)
		ids = append(ids, id)
		locs = append(locs, off)
		datas = append(datas, data)
		allFlags = append(allFlags, flags)
	}
	for i := range datas {
		got, err := d.Fetch(ids[i], locs[i])
		tassert(t, err == nil, "Fetch %d: %v", i, err)
		tassert(t, bytes.Equal(got, datas[i]), "Fetch %d: data mismatch", i)
	}

	var n int
	err := d.Scan(context.Background(), ids[0], 0, func(offset int64, flags uint64, data []byte, next int64) error {
		tassert(t, offset == locs[n], "scan offset %d expected %d", offset, locs[n])
		tassert(t, flags == allFlags[n], "scan flags %d expected %d", flags, allFlags[n])
		tassert(t, bytes.Equal(data, datas[n]), "scan data %d mismatch", n)
		n++
		return nil
	})
	tassert(t, err == nil, "Scan: %v", err)
	tassert(t, n == len(datas), "scanned %d records", n)
}

func TestRollover(t *testing.T) {
	d := setup(t, 1000)
	seen := map[int]bool{}
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 10; i++ {
		data := make([]byte, 400)
		rng.Read(data)
		id, off, _, _, err := d.Add(data)
		tassert(t, err == nil, "Add: %v", err)
		seen[id] = true
		got, err := d.Fetch(id, off)
		tassert(t, err == nil && bytes.Equal(got, data), "Fetch after rollover: %v", err)
	}
	tassert(t, len(seen) >= 3, "expected rollover into several files, got %d", len(seen))
	ids, err := d.Files()
	tassert(t, err == nil, "%v", err)
	tassert(t, len(ids) == len(seen), "Files %v seen %v", ids, seen)
	for _, id := range ids {
		tassert(t, d.Owns(id), "should own %d", id)
	}
}

func TestTwoWriters(t *testing.T) {
	d1 := setup(t, 0)
	d2, err := OpenDir(d1.Path, 0)
	tassert(t, err == nil, "%v", err)
	defer d2.Close()

	id1, off1, _, _, err := d1.Add([]byte("writer one"))
	tassert(t, err == nil, "%v", err)
	id2, off2, _, _, err := d2.Add([]byte("writer two"))
	tassert(t, err == nil, "%v", err)
	tassert(t, id1 != id2, "writers share file %d", id1)

	got, err := d1.Fetch(id2, off2)
	tassert(t, err == nil && string(got) == "writer two", "cross read: %q %v", got, err)
	tassert(t, !d1.Owns(id2), "d1 should not own d2's file")
	got, err = d2.Fetch(id1, off1)
	tassert(t, err == nil && string(got) == "writer one", "cross read: %q %v", got, err)
}

func TestShortRead(t *testing.T) {
	d := setup(t, 0)
	id, off, _, _, err := d.Add(bytes.Repeat([]byte("z"), 10))
	tassert(t, err == nil, "%v", err)
	df, err := d.File(id)
	tassert(t, err == nil, "%v", err)
	// truncate the payload behind the writer's back
	err = os.Truncate(df.Path, off+5)
	tassert(t, err == nil, "%v", err)
	_, err = d.Fetch(id, off)
	tassert(t, errors.Cause(err) == ErrShortRead, "expected ErrShortRead, got %v", err)
}

func TestFileName(t *testing.T) {
	id, ok := ParseFileName(FileName(42))
	tassert(t, ok && id == 42, "round trip %d %v", id, ok)
	_, ok = ParseFileName("x.vtd")
	tassert(t, !ok, "x.vtd should not parse")
	_, ok = ParseFileName("3.txt")
	tassert(t, !ok, "3.txt should not parse")
}
