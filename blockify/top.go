package blockify

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/t7a/vt/block"
	"github.com/t7a/vt/datafile"
	"github.com/t7a/vt/scan"
)

// TopBlock returns a single block for the concatenation of blocks.
func TopBlock(ctx context.Context, S block.Store, blocks []block.Block) (block.Block, error) {
	return block.IndirectFromBlocks(ctx, S, blocks)
}

// Blocks chunks r with src and stores each chunk, calling fn with the
// resulting leaf blocks in order.
func Blocks(ctx context.Context, S block.Store, r io.Reader, src ChunkSource, fn func(b block.Block) error) error {
	return src.Chunks(ctx, r, func(chunk []byte) error {
		b, err := block.FromBytes(ctx, S, chunk)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

// BlockFor stores the data of r and returns its top block.
func BlockFor(ctx context.Context, S block.Store, r io.Reader, src ChunkSource) (top block.Block, err error) {
	var leaves []block.Block
	err = Blocks(ctx, S, r, src, func(b block.Block) error {
		leaves = append(leaves, b)
		return nil
	})
	if err != nil {
		return
	}
	return TopBlock(ctx, S, leaves)
}

// ScannerFor picks a format scanner by file name.
func ScannerFor(name string) scan.OffsetScanner {
	if strings.EqualFold(filepath.Ext(name), datafile.Ext) {
		return NewVTDScanner()
	}
	return scan.ForFilename(name)
}

// Insert places Block at Offset of the block being spliced.
type Insert struct {
	Offset int64
	Block  block.Block
}

// SplicedBlocks returns the top blocks of b with each insert placed at
// its offset. Offsets are positions in b and must not decrease;
// inserts at the same offset keep their order.
func SplicedBlocks(ctx context.Context, S block.Store, b block.Block, inserts []Insert) (blocks []block.Block, err error) {
	var upto int64
	for _, in := range inserts {
		if in.Offset < upto || in.Offset > b.Span() {
			return nil, errors.Errorf("insert at %d: out of order or beyond span %d", in.Offset, b.Span())
		}
		top, err := block.TopBlocks(ctx, S, b, upto, in.Offset)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, top...)
		blocks = append(blocks, in.Block)
		upto = in.Offset
	}
	top, err := block.TopBlocks(ctx, S, b, upto, b.Span())
	if err != nil {
		return nil, err
	}
	return append(blocks, top...), nil
}
