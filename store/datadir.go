package store

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/vt/datafile"
	"github.com/t7a/vt/hashcode"
	"github.com/t7a/vt/index"
	"github.com/t7a/vt/serial"
)

const (
	pendingShards = 64
	// index writes queued before Add blocks
	writeQueue = 1024
	// fetched data kept in memory, in bytes
	cacheSize = 64 * 1024 * 1024
)

// pending holds the locations of chunks written to a data file but not
// yet to the index.
type pending struct {
	mu sync.Mutex
	m  map[hashcode.HashCode]index.Entry
}

// indexWrite is one index update, or a marker when done is set.
type indexWrite struct {
	h     hashcode.HashCode
	e     index.Entry
	done  chan error
	flush bool
}

// DataDirStore keeps chunks in numbered data files under
// <dir>/data and their locations in an index. Several processes may
// add to the same directory; each appends only to files it created.
type DataDirStore struct {
	Dir    string
	Config Config

	algo  hashcode.Algo
	files *datafile.Dir
	index index.Index
	cache *ristretto.Cache

	shards [pendingShards]pending
	writes chan indexWrite
	done   chan struct{}

	// closing excludes sends on writes while it is being closed
	closing sync.RWMutex
	closed  bool

	// watermarks of files indexed by Watch or Rebuild
	markMu     sync.Mutex
	watermarks map[int]int64
}

// Open opens an existing store directory.
func Open(dir string) (S *DataDirStore, err error) {
	defer Return(&err)
	dir = filepath.Clean(dir)
	cfg, err := LoadConfig(dir)
	Ck(err)
	algo, err := hashcode.AlgoByName(cfg.Algo)
	Ck(err)

	files, err := datafile.OpenDir(filepath.Join(dir, dataName), cfg.RolloverSize)
	Ck(err)
	ix, err := index.Open(filepath.Join(dir, indexName), cfg.Index, algo)
	if err != nil {
		files.Close()
		return nil, err
	}
	if cfg.Index != ix.Name() {
		cfg.Index = ix.Name()
		err = SaveConfig(dir, cfg)
		Ck(err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100000,
		MaxCost:     cacheSize,
		BufferItems: 64,
	})
	Ck(err)

	S = &DataDirStore{
		Dir:        dir,
		Config:     cfg,
		algo:       algo,
		files:      files,
		index:      ix,
		cache:      cache,
		writes:     make(chan indexWrite, writeQueue),
		done:       make(chan struct{}),
		watermarks: map[int]int64{},
	}
	for i := range S.shards {
		S.shards[i].m = map[hashcode.HashCode]index.Entry{}
	}
	go S.writer()
	log.Debugf("opened store %s (%s, %s index)", dir, algo, ix.Name())
	return
}

func (S *DataDirStore) Algo() hashcode.Algo {
	return S.algo
}

func (S *DataDirStore) String() string {
	return "DataDirStore(" + S.Dir + ")"
}

func (S *DataDirStore) shard(h hashcode.HashCode) *pending {
	return &S.shards[xxhash.Sum64(h.Digest())%pendingShards]
}

func (S *DataDirStore) lookup(h hashcode.HashCode) (e index.Entry, ok bool, err error) {
	sh := S.shard(h)
	sh.mu.Lock()
	e, ok = sh.m[h]
	sh.mu.Unlock()
	if ok {
		return
	}
	e, err = S.index.Get(h)
	if errors.Cause(err) == index.ErrNotFound {
		return e, false, nil
	}
	return e, err == nil, err
}

// writer applies queued index updates in order.
func (S *DataDirStore) writer() {
	defer close(S.done)
	for w := range S.writes {
		if w.done != nil {
			var err error
			if w.flush {
				err = S.index.Flush()
			}
			w.done <- err
			continue
		}
		if err := S.index.Set(w.h, w.e); err != nil {
			// the entry stays pending, so the chunk remains readable
			log.Errorf("%s: index %s: %v", S.Dir, w.h, err)
			continue
		}
		sh := S.shard(w.h)
		sh.mu.Lock()
		delete(sh.m, w.h)
		sh.mu.Unlock()
	}
}

func (S *DataDirStore) send(w indexWrite) error {
	S.closing.RLock()
	defer S.closing.RUnlock()
	if S.closed {
		return errors.Errorf("%s: closed", S.Dir)
	}
	S.writes <- w
	return nil
}

// Add appends data to this writer's data file unless already stored.
func (S *DataDirStore) Add(ctx context.Context, data []byte) (h hashcode.HashCode, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	h = hashcode.Sum(S.algo, data)
	sh := S.shard(h)
	sh.mu.Lock()
	if _, ok := sh.m[h]; ok {
		sh.mu.Unlock()
		return
	}
	ok, err := S.index.Contains(h)
	if err != nil || ok {
		sh.mu.Unlock()
		return
	}
	id, offset, length, flags, err := S.files.Add(data)
	if err != nil {
		sh.mu.Unlock()
		return h, errors.Wrapf(err, "%s: add %s", S.Dir, h)
	}
	e := index.Entry{FileID: id, Offset: offset, Length: length, Flags: flags}
	sh.m[h] = e
	sh.mu.Unlock()
	err = S.send(indexWrite{h: h, e: e})
	return
}

func (S *DataDirStore) Get(ctx context.Context, h hashcode.HashCode) (data []byte, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	if h.Algo() != S.algo {
		return nil, &MissingHashcodeError{Hash: h}
	}
	key := string(h.Encode())
	if v, ok := S.cache.Get(key); ok {
		return v.([]byte), nil
	}
	e, ok, err := S.lookup(h)
	if err != nil {
		return
	}
	if !ok {
		return nil, &MissingHashcodeError{Hash: h}
	}
	data, err = S.files.Fetch(e.FileID, e.Offset)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: fetch %s", S.Dir, h)
	}
	S.cache.Set(key, data, int64(len(data)))
	return
}

func (S *DataDirStore) Contains(ctx context.Context, h hashcode.HashCode) (ok bool, err error) {
	if h.Algo() != S.algo {
		return false, nil
	}
	_, ok, err = S.lookup(h)
	return
}

// sync waits for the index writes queued so far.
func (S *DataDirStore) sync(ctx context.Context, flush bool) (err error) {
	done := make(chan error, 1)
	if err = S.send(indexWrite{done: done, flush: flush}); err != nil {
		return
	}
	select {
	case err = <-done:
		return
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (S *DataDirStore) Flush(ctx context.Context) (err error) {
	if err = S.sync(ctx, true); err != nil {
		return
	}
	return S.files.Sync()
}

func (S *DataDirStore) HashCodes(ctx context.Context, q Query) (hs []hashcode.HashCode, err error) {
	if err = S.sync(ctx, false); err != nil {
		return
	}
	return selectHashCodes(ctx, S.index.KeysFrom, q)
}

func (S *DataDirStore) HashOfHashCodes(ctx context.Context, q Query) (sum, final hashcode.HashCode, err error) {
	return hashOfHashCodes(ctx, S, q)
}

// Stats summarises the store.
type Stats struct {
	Files  int
	Bytes  int64
	Chunks int
	Index  string
}

func (S *DataDirStore) Stats(ctx context.Context) (st Stats, err error) {
	st.Index = S.index.Name()
	ids, err := S.files.Files()
	if err != nil {
		return
	}
	st.Files = len(ids)
	for _, id := range ids {
		df, err := S.files.File(id)
		if err != nil {
			return st, err
		}
		size, err := df.Size()
		if err != nil {
			return st, err
		}
		st.Bytes += size
	}
	hs, err := S.HashCodes(ctx, Query{})
	st.Chunks = len(hs)
	return
}

// Rebuild indexes every record in the data files. It is used to
// recover an index that was lost or left behind.
func (S *DataDirStore) Rebuild(ctx context.Context) (err error) {
	if err = S.sync(ctx, false); err != nil {
		return
	}
	ids, err := S.files.Files()
	if err != nil {
		return
	}
	var added, total int
	var size int64
	for _, id := range ids {
		n, m, end, err := S.indexFile(ctx, id, 0)
		if err != nil {
			return err
		}
		added += n
		total += m
		size += end
	}
	log.Infof("%s: rebuilt index: %d of %d chunks added from %s in %d files",
		S.Dir, added, total, humanize.IBytes(uint64(size)), len(ids))
	return S.index.Flush()
}

// indexFile indexes the complete records of file id from start. A
// partial record at the end is left for a later call.
func (S *DataDirStore) indexFile(ctx context.Context, id int, start int64) (added, total int, end int64, err error) {
	end = start
	err = S.files.Scan(ctx, id, start, func(offset int64, flags uint64, data []byte, next int64) error {
		h := hashcode.Sum(S.algo, data)
		total++
		end = next
		ok, err := S.index.Contains(h)
		if err != nil || ok {
			return err
		}
		added++
		return S.index.Set(h, index.Entry{FileID: id, Offset: offset, Length: int(next - offset), Flags: flags})
	})
	if errors.Is(err, serial.ErrTruncated) {
		err = nil
	}
	S.markMu.Lock()
	if end > S.watermarks[id] {
		S.watermarks[id] = end
	}
	S.markMu.Unlock()
	return
}

func (S *DataDirStore) Close() (err error) {
	S.closing.Lock()
	if S.closed {
		S.closing.Unlock()
		return nil
	}
	S.closed = true
	close(S.writes)
	S.closing.Unlock()
	<-S.done

	for _, e := range []error{S.index.Flush(), S.files.Sync(), S.index.Close(), S.files.Close()} {
		if e != nil && err == nil {
			err = e
		}
	}
	S.cache.Close()
	return
}
