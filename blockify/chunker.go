// Package blockify turns byte streams into Blocks.
//
// A Chunker cuts a stream into content defined chunks, so that an edit
// in one place of a file leaves the chunks elsewhere unchanged. The
// chunks are stored and assembled into a tree of IndirectBlocks by
// BlockFor.
package blockify

import (
	"context"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/vt/scan"
)

const (
	kiB = 1024
	miB = 1024 * kiB

	DefaultMinBlock = 80
	DefaultMaxBlock = 16383
	// MaxBlockLimit bounds MaxBlock.
	MaxBlockLimit = 1 * miB

	readSize = 64 * kiB
	// pieces buffered between the reader and the cutter
	readAhead = 4
)

// ChunkSource cuts a stream into chunks, calling fn with each in order.
// Each chunk passed to fn is a new slice the callee may keep.
type ChunkSource interface {
	Chunks(ctx context.Context, r io.Reader, fn func(chunk []byte) error) error
}

// Chunker cuts at the rolling hash boundaries of scan.Scanner and, if
// Scanner is set, at the boundaries it proposes as well. Boundaries
// less than MinBlock after the previous cut are ignored and a cut is
// forced when MaxBlock bytes pass without one.
type Chunker struct {
	MinBlock int
	MaxBlock int
	Scanner  scan.OffsetScanner
}

// Init fills in defaults and validates the limits.
func (c Chunker) Init() (res *Chunker, err error) {
	if c.MinBlock == 0 {
		c.MinBlock = DefaultMinBlock
	}
	if c.MaxBlock == 0 {
		c.MaxBlock = DefaultMaxBlock
	}
	switch {
	case c.MinBlock < 8:
		return nil, errors.Errorf("MinBlock %d: must be at least 8", c.MinBlock)
	case c.MaxBlock >= MaxBlockLimit:
		return nil, errors.Errorf("MaxBlock %d: must be less than %d", c.MaxBlock, MaxBlockLimit)
	case c.MinBlock >= c.MaxBlock:
		return nil, errors.Errorf("MinBlock %d must be less than MaxBlock %d", c.MinBlock, c.MaxBlock)
	}
	return &c, nil
}

// piece is a block of input with the format boundaries found in it.
type piece struct {
	data    []byte
	offsets []int64
	// format offsets up to the end of data less lag are complete
	lag int
	err error
}

// read feeds input to the format scanner and passes both on. A failing
// format scanner is dropped and the stream continues without it.
func (c *Chunker) read(ctx context.Context, r io.Reader, out chan<- piece) {
	defer close(out)
	s := c.Scanner
	send := func(p piece) bool {
		select {
		case out <- p:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		buf := make([]byte, readSize)
		n, err := r.Read(buf)
		if n > 0 {
			p := piece{data: buf[:n]}
			if s != nil {
				p.offsets = s.Scan(p.data)
				if serr := scannerErr(s); serr != nil {
					log.Warnf("format scanner failed, continuing without it: %v", serr)
					s = nil
				} else {
					p.lag = s.Lag()
				}
			}
			if !send(p) {
				return
			}
		}
		if err != nil {
			send(piece{err: err})
			return
		}
	}
}

// scannerErr reports the failure of scanners that can fail.
func scannerErr(s scan.OffsetScanner) error {
	if e, ok := s.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

// queue is a sorted list of candidate boundaries.
type queue []int64

// first drops candidates before floor and returns the earliest left.
func (q *queue) first(floor int64) (c int64, ok bool) {
	i := 0
	for i < len(*q) && (*q)[i] < floor {
		i++
	}
	*q = (*q)[i:]
	if len(*q) == 0 {
		return 0, false
	}
	return (*q)[0], true
}

// Chunks implements ChunkSource.
func (c *Chunker) Chunks(ctx context.Context, r io.Reader, fn func(chunk []byte) error) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pieces := make(chan piece, readAhead)
	go c.read(ctx, r, pieces)

	var (
		roll    scan.Scanner
		rolling queue
		format  queue
		pending []byte
		base    int64 // offset of pending[0]
		lag     int64
		eof     bool
		count   int
	)
	emit := func(end int64) error {
		n := int(end - base)
		chunk := make([]byte, n)
		copy(chunk, pending[:n])
		pending = pending[n:]
		base = end
		count++
		return fn(chunk)
	}
	for {
		received := base + int64(len(pending))
		horizon := received - lag
		if eof {
			horizon = received
		}
		for {
			cut, ok := c.nextCut(base, horizon, &rolling, &format)
			if !ok {
				break
			}
			if err = emit(cut); err != nil {
				return
			}
		}
		if eof {
			if len(pending) > 0 {
				err = emit(received)
			}
			log.Debugf("chunked %d bytes into %d chunks", received, count)
			return
		}

		if err = ctx.Err(); err != nil {
			return
		}
		var p piece
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-pieces:
			if !ok {
				return ctx.Err()
			}
			p = q
		}
		if p.err != nil {
			if p.err != io.EOF {
				return errors.Wrap(p.err, "read")
			}
			eof = true
			continue
		}
		pending = append(pending, p.data...)
		rolling = append(rolling, roll.Scan(p.data)...)
		format = append(format, p.offsets...)
		lag = int64(p.lag)
	}
}

// nextCut decides the chunk starting at last, given that every
// candidate up to horizon is known. ok is false when more input is
// needed to decide.
func (c *Chunker) nextCut(last, horizon int64, rolling, format *queue) (cut int64, ok bool) {
	floor := last + int64(c.MinBlock)
	limit := last + int64(c.MaxBlock)
	cut, ok = rolling.first(floor)
	if f, fok := format.first(floor); fok && (!ok || f < cut) {
		cut, ok = f, true
	}
	if ok && cut <= limit {
		return cut, cut <= horizon
	}
	if limit <= horizon {
		return limit, true
	}
	return 0, false
}
