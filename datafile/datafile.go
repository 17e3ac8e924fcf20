// Package datafile stores chunks in append-only log files.
//
// A data file is a sequence of records, each BS(flags) BS(length)
// payload, where flag 0x01 marks a zlib compressed payload. Records are
// never rewritten; a Dir rolls over to a new numbered file once the
// current one reaches a size threshold.
package datafile

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/vt/serial"
	"golang.org/x/sys/unix"
)

// Ext is the data file name extension.
const Ext = ".vtd"

// ErrShortRead means a record could not be read in full even after a
// retry of the missing remainder.
var ErrShortRead = errors.New("short read")

// headerMax bounds the encoded flags and length of a record.
const headerMax = 2 * serial.MaxLen

// DataFile is one append-only data file. Reads use positional I/O and
// never block on writers.
type DataFile struct {
	ID   int
	Path string

	fh       *os.File
	writable bool
	mu       sync.Mutex // serializes appends within this process
}

// Open opens an existing data file for reading, and for appending if
// writable is set.
func Open(path string, id int, writable bool) (df *DataFile, err error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR | os.O_APPEND
	}
	fh, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return
	}
	return &DataFile{ID: id, Path: path, fh: fh, writable: writable}, nil
}

// Create makes a new empty data file. It fails if the file exists, so
// concurrent writers never share a file.
func Create(path string, id int) (df *DataFile, err error) {
	fh, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return
	}
	return &DataFile{ID: id, Path: path, fh: fh, writable: true}, nil
}

// Size returns the current length of the file.
func (df *DataFile) Size() (size int64, err error) {
	info, err := df.fh.Stat()
	if err != nil {
		return
	}
	return info.Size(), nil
}

// Add appends data as a new record, returning the record offset, the
// encoded record length and its flags.
func (df *DataFile) Add(data []byte) (offset int64, length int, flags uint64, err error) {
	if !df.writable {
		return 0, 0, 0, errors.Errorf("%s: not open for writing", df.Path)
	}
	rec := NewRecord(data)
	enc := rec.Encode()

	df.mu.Lock()
	defer df.mu.Unlock()
	fd := int(df.fh.Fd())
	err = unix.Flock(fd, unix.LOCK_EX)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "%s: flock", df.Path)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	offset, err = df.fh.Seek(0, io.SeekEnd)
	if err != nil {
		return
	}
	n, err := df.fh.Write(enc)
	if err != nil {
		return
	}
	if n != len(enc) {
		return 0, 0, 0, errors.Errorf("%s: short write: %d of %d bytes", df.Path, n, len(enc))
	}
	log.Debugf("%s: added %d bytes at %d (flags 0x%02x)", df.Path, len(enc), offset, rec.Flags)
	return offset, len(enc), rec.Flags, nil
}

// readAt fills buf from off, retrying the missing remainder once.
func (df *DataFile) readAt(buf []byte, off int64) (err error) {
	n, err := df.fh.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err != nil && err != io.EOF {
		return
	}
	m, err := df.fh.ReadAt(buf[n:], off+int64(n))
	if n+m == len(buf) {
		return nil
	}
	if err != nil && err != io.EOF {
		return
	}
	return errors.Wrapf(ErrShortRead, "%s: read %d of %d bytes at %d", df.Path, n+m, len(buf), off)
}

// ReadRecord returns the raw record at offset.
func (df *DataFile) ReadRecord(offset int64) (rec Record, err error) {
	hdr := make([]byte, headerMax)
	n, err := df.fh.ReadAt(hdr, offset)
	if n == 0 {
		if err == nil || err == io.EOF {
			err = errors.Wrapf(ErrShortRead, "%s: no record at %d", df.Path, offset)
		}
		return
	}
	flags, length, used, err := ParseHeader(hdr[:n])
	if err != nil {
		return rec, errors.Wrapf(err, "%s: offset %d", df.Path, offset)
	}
	rec.Flags = flags
	rec.Payload = make([]byte, length)
	err = df.readAt(rec.Payload, offset+int64(used))
	return
}

// Fetch returns the uncompressed data of the record at offset.
func (df *DataFile) Fetch(offset int64) (data []byte, err error) {
	rec, err := df.ReadRecord(offset)
	if err != nil {
		return
	}
	return rec.Data()
}

// Scan calls fn for each record from start onward with the record
// offset and flags, its uncompressed data and the offset of the
// following record.
func (df *DataFile) Scan(ctx context.Context, start int64, fn func(offset int64, flags uint64, data []byte, next int64) error) (err error) {
	size, err := df.Size()
	if err != nil {
		return
	}
	br := bufio.NewReaderSize(io.NewSectionReader(df.fh, start, size-start), 256*1024)
	offset := start
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		rec, err := ReadRecord(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "%s: offset %d", df.Path, offset)
		}
		next := offset + int64(rec.Len())
		data, err := rec.Data()
		if err != nil {
			return errors.Wrapf(err, "%s: offset %d", df.Path, offset)
		}
		if err = fn(offset, rec.Flags, data, next); err != nil {
			return err
		}
		offset = next
	}
}

// Sync flushes the file to stable storage.
func (df *DataFile) Sync() error {
	if !df.writable {
		return nil
	}
	return df.fh.Sync()
}

func (df *DataFile) Close() error {
	return df.fh.Close()
}
