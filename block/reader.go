package block

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Reader reads the data of a Block. It implements io.ReadSeeker and
// io.ReaderAt.
type Reader struct {
	ctx context.Context
	S   Store
	b   Block
	pos int64
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(ctx context.Context, S Store, b Block) *Reader {
	return &Reader{ctx: ctx, S: S, b: b}
}

func (r *Reader) Read(p []byte) (n int, err error) {
	n, err = r.ReadAt(p, r.pos)
	r.pos += int64(n)
	return
}

// ReadAt reads len(p) bytes at off, returning io.EOF if fewer remain.
func (r *Reader) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errors.Errorf("negative offset %d", off)
	}
	span := r.b.Span()
	if off >= span {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), span)
	err = Slices(r.ctx, r.S, r.b, off, end, func(leaf Block, lstart, lend int64) error {
		data, err := leafRange(r.ctx, r.S, leaf, lstart, lend)
		if err != nil {
			return err
		}
		n += copy(p[n:], data)
		return nil
	})
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = r.pos + offset
	case io.SeekEnd:
		pos = r.b.Span() + offset
	default:
		return r.pos, errors.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return r.pos, errors.Errorf("seek to negative position %d", pos)
	}
	r.pos = pos
	return pos, nil
}
