package block

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// BlockMap is the flattened leaf list of an IndirectBlock, so slices of
// deep trees need not walk the tree again.
type BlockMap struct {
	offsets []int64
	leaves  []Block
	span    int64
}

// NewBlockMap walks the leaves of b once.
func NewBlockMap(ctx context.Context, S Store, b Block) (bm *BlockMap, err error) {
	bm = &BlockMap{}
	err = Leaves(ctx, S, b, func(leaf Block) error {
		bm.offsets = append(bm.offsets, bm.span)
		bm.leaves = append(bm.leaves, leaf)
		bm.span += leaf.Span()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bm.span != b.Span() {
		return nil, errors.Errorf("%s: leaves total %d", b, bm.span)
	}
	return
}

// Len is the number of leaves.
func (bm *BlockMap) Len() int {
	return len(bm.leaves)
}

// Locate returns the index of the leaf containing offset.
func (bm *BlockMap) Locate(offset int64) int {
	return sort.Search(len(bm.offsets), func(i int) bool {
		return bm.offsets[i] > offset
	}) - 1
}

func (bm *BlockMap) slices(start, end int64, fn func(leaf Block, lstart, lend int64) error) (err error) {
	for i := bm.Locate(start); i < len(bm.leaves) && bm.offsets[i] < end; i++ {
		off := bm.offsets[i]
		span := bm.leaves[i].Span()
		err = fn(bm.leaves[i], max(start-off, 0), min(end-off, span))
		if err != nil {
			return
		}
	}
	return
}

// BlockMap returns the attached map, if any.
func (b *IndirectBlock) BlockMap() *BlockMap {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockmap
}

// AttachBlockMap builds and attaches a BlockMap to b, after which
// Slices and ReadRange over b use it.
func (b *IndirectBlock) AttachBlockMap(ctx context.Context, S Store) (bm *BlockMap, err error) {
	if bm = b.BlockMap(); bm != nil {
		return
	}
	bm, err = NewBlockMap(ctx, S, b)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.blockmap = bm
	b.mu.Unlock()
	return
}
