package block

import (
	"context"

	"github.com/pkg/errors"
)

// MaxIndirect bounds the encoded child list of an IndirectBlock built
// by IndirectFromBlocks.
const MaxIndirect = 16383

// TopSlices calls fn with (block, bstart, bend) covering [start, end)
// of b using the largest whole subtrees possible. Indirect blocks are
// only descended into when the range cuts them.
func TopSlices(ctx context.Context, S Store, b Block, start, end int64, fn func(b Block, bstart, bend int64) error) error {
	if start < 0 || end > b.Span() || start > end {
		return errors.Errorf("slice %d:%d out of range for span %d", start, end, b.Span())
	}
	return stopped(topSlices(ctx, S, b, start, end, fn))
}

func topSlices(ctx context.Context, S Store, b Block, start, end int64, fn func(b Block, bstart, bend int64) error) (err error) {
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
			cstart := max(start-offset, 0)
			cend := min(end-offset, span)
			if cstart == 0 && cend == span {
				err = fn(child, 0, span)
			} else {
				err = topSlices(ctx, S, child, cstart, cend, fn)
			}
			if err != nil {
				return
			}
		}
		offset += span
	}
	return
}

// TopBlocks returns blocks which concatenate to [start, end) of b.
// Whole subtrees are reused; partial direct blocks become SubBlocks,
// or trimmed literals and runs.
func TopBlocks(ctx context.Context, S Store, b Block, start, end int64) (blocks []Block, err error) {
	err = TopSlices(ctx, S, b, start, end, func(tb Block, bstart, bend int64) error {
		pb, err := partial(tb, bstart, bend)
		if err != nil {
			return err
		}
		blocks = append(blocks, pb)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return
}

func partial(b Block, start, end int64) (Block, error) {
	if start == 0 && end == b.Span() {
		return b, nil
	}
	switch b := b.(type) {
	case *LiteralBlock:
		return NewLiteralBlock(b.data[start:end]), nil
	case *RLEBlock:
		return NewRLEBlock(end-start, b.octet), nil
	}
	return NewSubBlock(b, start, end-start)
}

// Splice returns a block for the data of b with [start, end) replaced
// by the data of nb. Subtrees of b outside the range are reused, so
// only blocks along the two range edges are rewritten.
func Splice(ctx context.Context, S Store, b Block, start, end int64, nb Block) (Block, error) {
	if start < 0 || end > b.Span() || start > end {
		return nil, errors.Errorf("splice %d:%d out of range for span %d", start, end, b.Span())
	}
	head, err := TopBlocks(ctx, S, b, 0, start)
	if err != nil {
		return nil, err
	}
	tail, err := TopBlocks(ctx, S, b, end, b.Span())
	if err != nil {
		return nil, err
	}
	parts := append(head, nb)
	parts = append(parts, tail...)
	return IndirectFromBlocks(ctx, S, parts)
}

// IndirectFromBlocks returns a single block for the concatenation of
// blocks. No blocks give the empty block and one block is returned
// as is. Otherwise the blocks are grouped into IndirectBlocks whose
// encoded child lists fit in MaxIndirect bytes, level by level, until
// one block remains.
func IndirectFromBlocks(ctx context.Context, S Store, blocks []Block) (top Block, err error) {
	level := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Span() > 0 {
			level = append(level, b)
		}
	}
	for {
		switch len(level) {
		case 0:
			return Empty(), nil
		case 1:
			return level[0], nil
		}
		if err = ctx.Err(); err != nil {
			return
		}
		var next []Block
		next, err = packLevel(ctx, S, level)
		if err != nil {
			return
		}
		if len(next) >= len(level) {
			return nil, errors.Errorf("cannot pack %d blocks into fewer indirect blocks", len(level))
		}
		level = next
	}
}

func packLevel(ctx context.Context, S Store, blocks []Block) (level []Block, err error) {
	var group []Block
	var buf []byte
	flush := func() error {
		switch len(group) {
		case 0:
			return nil
		case 1:
			level = append(level, group[0])
		default:
			ib, err := packGroup(ctx, S, group, buf)
			if err != nil {
				return err
			}
			level = append(level, ib)
		}
		group = nil
		buf = nil
		return nil
	}
	for _, b := range blocks {
		enc := Encode(b)
		if len(group) > 0 && len(buf)+len(enc) > MaxIndirect {
			if err = flush(); err != nil {
				return
			}
		}
		group = append(group, b)
		buf = append(buf, enc...)
	}
	err = flush()
	return
}

func packGroup(ctx context.Context, S Store, children []Block, encoded []byte) (ib *IndirectBlock, err error) {
	var span int64
	for _, c := range children {
		span += c.Span()
	}
	super, err := FromBytes(ctx, S, encoded)
	if err != nil {
		return
	}
	ib, err = NewIndirectBlock(super, span)
	if err != nil {
		return
	}
	ib.children = children
	return
}

// Pack returns an IndirectBlock over children regardless of how many
// there are. It does not bound the size of the child list.
func Pack(ctx context.Context, S Store, children []Block) (ib *IndirectBlock, err error) {
	var buf []byte
	for _, c := range children {
		buf = AppendEncoded(buf, c)
	}
	return packGroup(ctx, S, children, buf)
}
