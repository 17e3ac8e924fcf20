package datafile

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultRollover is the size at which a writer moves to a new file.
const DefaultRollover = 1 << 30

// Dir is a directory of numbered data files, N.vtd. A Dir only ever
// appends to files it created itself; files written by other
// processes are opened read-only.
type Dir struct {
	Path     string
	Rollover int64

	mu    sync.RWMutex
	files map[int]*DataFile
	cur   *DataFile
	addMu sync.Mutex
}

// OpenDir opens or creates the data file directory at path.
func OpenDir(path string, rollover int64) (d *Dir, err error) {
	if rollover <= 0 {
		rollover = DefaultRollover
	}
	err = os.MkdirAll(path, 0755)
	if err != nil {
		return
	}
	return &Dir{Path: path, Rollover: rollover, files: map[int]*DataFile{}}, nil
}

// FileName returns the base name of data file id.
func FileName(id int) string {
	return strconv.Itoa(id) + Ext
}

// ParseFileName returns the id of a data file base name.
func ParseFileName(name string) (id int, ok bool) {
	if !strings.HasSuffix(name, Ext) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSuffix(name, Ext))
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// Files lists the ids of the data files present, in increasing order.
func (d *Dir) Files() (ids []int, err error) {
	entries, err := ioutil.ReadDir(d.Path)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := ParseFileName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return
}

// File returns the data file with the given id, opening it for reading
// if necessary.
func (d *Dir) File(id int) (df *DataFile, err error) {
	d.mu.RLock()
	df = d.files[id]
	d.mu.RUnlock()
	if df != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if df = d.files[id]; df != nil {
		return
	}
	df, err = Open(filepath.Join(d.Path, FileName(id)), id, false)
	if err != nil {
		return nil, err
	}
	d.files[id] = df
	return
}

// claim creates the next free numbered file for this writer. Two
// writers racing for the same number see O_EXCL fail and move on.
func (d *Dir) claim() (df *DataFile, err error) {
	ids, err := d.Files()
	if err != nil {
		return
	}
	next := 0
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}
	for tries := 0; tries < 1000; tries++ {
		df, err = Create(filepath.Join(d.Path, FileName(next)), next)
		if err == nil {
			log.Infof("%s: claimed data file %s", d.Path, FileName(next))
			d.mu.Lock()
			d.files[next] = df
			d.mu.Unlock()
			return
		}
		if !os.IsExist(err) {
			return nil, err
		}
		next++
	}
	return nil, errors.Errorf("%s: could not claim a new data file", d.Path)
}

// current returns the file this writer appends to, rolling over when it
// has reached the threshold.
func (d *Dir) current() (df *DataFile, err error) {
	if d.cur != nil {
		size, err := d.cur.Size()
		if err != nil {
			return nil, err
		}
		if size < d.Rollover {
			return d.cur, nil
		}
		log.Infof("%s: rollover at %s", d.cur.Path, humanize.IBytes(uint64(size)))
	}
	d.cur, err = d.claim()
	return d.cur, err
}

// Add appends data to this writer's current file.
func (d *Dir) Add(data []byte) (id int, offset int64, length int, flags uint64, err error) {
	d.addMu.Lock()
	defer d.addMu.Unlock()
	df, err := d.current()
	if err != nil {
		return
	}
	offset, length, flags, err = df.Add(data)
	return df.ID, offset, length, flags, err
}

// Fetch returns the data of the record at offset in file id.
func (d *Dir) Fetch(id int, offset int64) (data []byte, err error) {
	df, err := d.File(id)
	if err != nil {
		return
	}
	return df.Fetch(offset)
}

// Owns reports whether file id was created by this writer.
func (d *Dir) Owns(id int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	df := d.files[id]
	return df != nil && df.writable
}

// Scan walks every record of file id from start.
func (d *Dir) Scan(ctx context.Context, id int, start int64, fn func(offset int64, flags uint64, data []byte, next int64) error) (err error) {
	df, err := d.File(id)
	if err != nil {
		return
	}
	return df.Scan(ctx, start, fn)
}

// Sync flushes the files this writer has appended to.
func (d *Dir) Sync() (err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, df := range d.files {
		if e := df.Sync(); e != nil && err == nil {
			err = e
		}
	}
	return
}

func (d *Dir) Close() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, df := range d.files {
		if e := df.Close(); e != nil && err == nil {
			err = e
		}
		delete(d.files, id)
	}
	d.cur = nil
	return
}
