package index

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/vt/hashcode"
	"github.com/vmihailenco/msgpack"
)

// journalRecord is one msgpack encoded Set in the hashmap journal.
type journalRecord struct {
	Key   []byte
	Entry []byte
}

// hashmapIndex keeps the whole mapping in memory and appends every Set
// to a msgpack journal which is replayed on open.
type hashmapIndex struct {
	path string
	algo hashcode.Algo

	mu  sync.RWMutex
	m   map[string]Entry
	fh  *os.File
	bw  *bufio.Writer
	enc *msgpack.Encoder
}

func openHashmap(path string, algo hashcode.Algo) (Index, error) {
	ix := &hashmapIndex{path: path, algo: algo, m: map[string]Entry{}}
	fh, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	err = ix.replay(fh)
	if err != nil {
		fh.Close()
		return nil, err
	}
	ix.fh = fh
	ix.bw = bufio.NewWriter(fh)
	ix.enc = msgpack.NewEncoder(ix.bw)
	return ix, nil
}

// countingReader counts the journal bytes the decoder has consumed.
type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (n int, err error) {
	n, err = c.r.Read(p)
	c.n += int64(n)
	return
}

func (c *countingReader) ReadByte() (b byte, err error) {
	b, err = c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return
}

func (c *countingReader) UnreadByte() (err error) {
	err = c.r.UnreadByte()
	if err == nil {
		c.n--
	}
	return
}

func (ix *hashmapIndex) replay(fh *os.File) (err error) {
	cr := &countingReader{r: bufio.NewReader(fh)}
	dec := msgpack.NewDecoder(cr)
	n := 0
	var good int64
	for {
		var rec journalRecord
		err = dec.Decode(&rec)
		if err == io.EOF && cr.n == good {
			break
		}
		if err != nil {
			// a torn final record is cut off so later Sets follow the
			// last good one
			log.Warnf("%s: journal replay stopped after %d records: %v", ix.path, n, err)
			err = fh.Truncate(good)
			if err != nil {
				return errors.Wrapf(err, "%s: truncate to %d", ix.path, good)
			}
			break
		}
		e, err := DecodeEntry(rec.Entry)
		if err != nil {
			return errors.Wrapf(err, "%s: record %d", ix.path, n)
		}
		ix.m[string(rec.Key)] = e
		good = cr.n
		n++
	}
	log.Debugf("%s: replayed %d records", ix.path, n)
	return nil
}

func (ix *hashmapIndex) Name() string { return "hashmap" }

func (ix *hashmapIndex) Get(h hashcode.HashCode) (e Entry, err error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.m[string(key(h))]
	if !ok {
		return e, ErrNotFound
	}
	return e, nil
}

func (ix *hashmapIndex) Contains(h hashcode.HashCode) (bool, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.m[string(key(h))]
	return ok, nil
}

func (ix *hashmapIndex) Set(h hashcode.HashCode, e Entry) (err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	k := key(h)
	err = ix.enc.Encode(&journalRecord{Key: k, Entry: e.Encode()})
	if err != nil {
		return
	}
	ix.m[string(k)] = e
	return
}

// KeysFrom sorts a snapshot of the keys; the map has no order of its own.
func (ix *hashmapIndex) KeysFrom(start hashcode.HashCode, reverse bool, fn func(hashcode.HashCode) error) (err error) {
	ix.mu.RLock()
	keys := make([]string, 0, len(ix.m))
	for k := range ix.m {
		keys = append(keys, k)
	}
	ix.mu.RUnlock()
	sort.Strings(keys)

	s := string(key(start))
	var i int
	if reverse {
		if start.IsZero() {
			i = len(keys) - 1
		} else {
			// last key <= start
			i = sort.Search(len(keys), func(i int) bool { return strings.Compare(keys[i], s) > 0 }) - 1
		}
	} else {
		i = sort.SearchStrings(keys, s)
	}
	for i >= 0 && i < len(keys) {
		h, err := keyHash(ix.algo, []byte(keys[i]))
		if err != nil {
			return err
		}
		if err = fn(h); err != nil {
			return stopped(err)
		}
		if reverse {
			i--
		} else {
			i++
		}
	}
	return nil
}

func (ix *hashmapIndex) Flush() (err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	err = ix.bw.Flush()
	if err != nil {
		return
	}
	return ix.fh.Sync()
}

func (ix *hashmapIndex) Close() (err error) {
	err = ix.Flush()
	if e := ix.fh.Close(); err == nil {
		err = e
	}
	return
}
