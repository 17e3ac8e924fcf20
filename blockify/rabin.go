package blockify

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/restic/chunker"
)

const (
	// DefaultRabinMin is the default minimal size of a Rabin chunk.
	DefaultRabinMin = 512 * kiB
	// DefaultRabinMax is the default maximal size of a Rabin chunk.
	DefaultRabinMax = 8 * miB
)

// Rabin lightly wraps restic's chunker for callers that want large
// chunks cut by a Rabin fingerprint instead of the rolling hash.
type Rabin struct {
	Poly    chunker.Pol
	MinSize uint
	MaxSize uint
}

// Init fills in defaults. A zero Poly is replaced by a random
// irreducible polynomial, which must then be kept for chunks to be
// reproducible.
func (c Rabin) Init() (res *Rabin, err error) {
	if c.MinSize == 0 {
		c.MinSize = DefaultRabinMin
	}
	if c.MaxSize == 0 {
		c.MaxSize = DefaultRabinMax
	}
	if c.MinSize >= c.MaxSize {
		return nil, errors.Errorf("MinSize %d must be less than MaxSize %d", c.MinSize, c.MaxSize)
	}
	if c.Poly == 0 {
		c.Poly, err = chunker.RandomPolynomial()
		if err != nil {
			return nil, errors.Wrap(err, "random polynomial")
		}
	}
	if !c.Poly.Irreducible() {
		return nil, errors.Errorf("polynomial %v is not irreducible", c.Poly)
	}
	return &c, nil
}

// Chunks implements ChunkSource.
func (c *Rabin) Chunks(ctx context.Context, r io.Reader, fn func(chunk []byte) error) (err error) {
	ch := chunker.NewWithBoundaries(r, c.Poly, c.MinSize, c.MaxSize)
	// Next reuses buf; chunk.Data aliases it
	buf := make([]byte, c.MaxSize)
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		chunk, err := ch.Next(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "rabin chunker")
		}
		data := make([]byte, len(chunk.Data))
		copy(data, chunk.Data)
		if err = fn(data); err != nil {
			return err
		}
	}
}
