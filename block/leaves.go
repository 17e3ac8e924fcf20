package block

import (
	"context"

	"github.com/pkg/errors"
)

// Stop may be returned by a Leaves or Slices callback to end the walk
// early without error.
var Stop = errors.New("stop walk")

func stopped(err error) error {
	if err == Stop {
		return nil
	}
	return err
}

// Leaves calls fn with each non-indirect block of positive span under
// b, in order.
func Leaves(ctx context.Context, S Store, b Block, fn func(leaf Block) error) error {
	return stopped(leaves(ctx, S, b, fn))
}

func leaves(ctx context.Context, S Store, b Block, fn func(leaf Block) error) (err error) {
	if b.Span() == 0 {
		return
	}
	ib, ok := b.(*IndirectBlock)
	if !ok {
		return fn(b)
	}
	if err = ctx.Err(); err != nil {
		return
	}
	children, err := ib.Children(ctx, S)
	if err != nil {
		return
	}
	for _, child := range children {
		if err = leaves(ctx, S, child, fn); err != nil {
			return
		}
	}
	return
}

// leafIter walks the leaves of a tree one at a time.
type leafIter struct {
	S     Store
	stack [][]Block
}

func newLeafIter(S Store, b Block) *leafIter {
	return &leafIter{S: S, stack: [][]Block{{b}}}
}

// next returns the next leaf, or nil when the walk is complete.
func (it *leafIter) next(ctx context.Context) (leaf Block, err error) {
	for len(it.stack) > 0 {
		top := len(it.stack) - 1
		if len(it.stack[top]) == 0 {
			it.stack = it.stack[:top]
			continue
		}
		b := it.stack[top][0]
		it.stack[top] = it.stack[top][1:]
		if b.Span() == 0 {
			continue
		}
		ib, ok := b.(*IndirectBlock)
		if !ok {
			return b, nil
		}
		if err = ctx.Err(); err != nil {
			return
		}
		children, err := ib.Children(ctx, it.S)
		if err != nil {
			return nil, err
		}
		it.stack = append(it.stack, children)
	}
	return nil, nil
}

// Slices calls fn with (leaf, lstart, lend) for each leaf overlapping
// [start, end) of b, where [lstart, lend) is the overlapping part of
// the leaf. Empty overlaps are not reported.
func Slices(ctx context.Context, S Store, b Block, start, end int64, fn func(leaf Block, lstart, lend int64) error) error {
	if start < 0 || end > b.Span() || start > end {
		return errors.Errorf("slice %d:%d out of range for span %d", start, end, b.Span())
	}
	return stopped(slices(ctx, S, b, start, end, fn))
}

func slices(ctx context.Context, S Store, b Block, start, end int64, fn func(leaf Block, lstart, lend int64) error) (err error) {
	if start >= end {
		return
	}
	ib, ok := b.(*IndirectBlock)
	if !ok {
		return fn(b, start, end)
	}
	if err = ctx.Err(); err != nil {
		return
	}
	if bm := ib.BlockMap(); bm != nil {
		return bm.slices(start, end, fn)
	}
	children, err := ib.Children(ctx, S)
	if err != nil {
		return
	}
	var offset int64
	for _, child := range children {
		if offset >= end {
			break
		}
		span := child.Span()
		if start < offset+span && end > offset {
			err = slices(ctx, S, child, max(start-offset, 0), min(end-offset, span), fn)
			if err != nil {
				return
			}
		}
		offset += span
	}
	return
}

// ReadRange returns the data of [start, end) of b.
func ReadRange(ctx context.Context, S Store, b Block, start, end int64) (data []byte, err error) {
	if start > end {
		return nil, errors.Errorf("slice %d:%d out of range for span %d", start, end, b.Span())
	}
	data = make([]byte, 0, end-start)
	err = Slices(ctx, S, b, start, end, func(leaf Block, lstart, lend int64) error {
		chunk, err := leafRange(ctx, S, leaf, lstart, lend)
		if err != nil {
			return err
		}
		data = append(data, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return
}

// Data returns all the data of b.
func Data(ctx context.Context, S Store, b Block) (data []byte, err error) {
	return ReadRange(ctx, S, b, 0, b.Span())
}
