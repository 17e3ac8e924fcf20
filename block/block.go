// Package block implements Blocks, the references to spans of data
// that everything else in vt is built from.
//
// A Block is one of:
//
//   - HashBlock: data held in a Store under its hashcode
//   - LiteralBlock: short data carried in the reference itself
//   - RLEBlock: a run of one repeated octet
//   - SubBlock: a view onto part of another direct Block
//   - IndirectBlock: the concatenation of child Blocks whose encodings
//     are the data of a superblock
//
// Operations that may need to fetch or store data take an explicit
// Store; a Block never holds a reference to a Store.
package block

import (
	"bytes"
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
)

// Type is the block type code used in binary encodings.
type Type int

const (
	TypeIndirect Type = -1 // never encoded
	TypeHash     Type = 0
	TypeRLE      Type = 1
	TypeLiteral  Type = 2
	TypeSub      Type = 3
)

// LiteralThreshold is the longest data FromBytes keeps as a literal.
const LiteralThreshold = 32

// Store is what Blocks need from a chunk store.
type Store interface {
	Add(ctx context.Context, data []byte) (hashcode.HashCode, error)
	Get(ctx context.Context, h hashcode.HashCode) ([]byte, error)
	Algo() hashcode.Algo
}

// Block is a reference to a span of data.
type Block interface {
	// Span is the length of the data the block represents.
	Span() int64
	Type() Type
	Indirect() bool
	// String returns the text transcription.
	String() string
	isBlock()
}

// HashBlock refers to data in a Store by hashcode. The data are not
// kept; they are fetched from the Store when needed.
type HashBlock struct {
	hash hashcode.HashCode
	span int64
}

// NewHashBlock returns a reference to stored data without touching the
// Store. A span of -1 means unknown, which only occurs for the
// superblock of a decoded IndirectBlock.
func NewHashBlock(h hashcode.HashCode, span int64) *HashBlock {
	return &HashBlock{hash: h, span: span}
}

func (b *HashBlock) Hash() hashcode.HashCode { return b.hash }
func (b *HashBlock) Span() int64             { return b.span }
func (b *HashBlock) Type() Type              { return TypeHash }
func (b *HashBlock) Indirect() bool          { return false }
func (b *HashBlock) String() string          { return Transcribe(b) }
func (b *HashBlock) isBlock()                {}

// LiteralBlock carries its data. The data must not be modified.
type LiteralBlock struct {
	data []byte
}

var emptyLiteral = &LiteralBlock{data: []byte{}}

// NewLiteralBlock wraps data.
func NewLiteralBlock(data []byte) *LiteralBlock {
	if len(data) == 0 {
		return emptyLiteral
	}
	return &LiteralBlock{data: data}
}

// Empty returns the empty block.
func Empty() Block {
	return emptyLiteral
}

func (b *LiteralBlock) Data() []byte   { return b.data }
func (b *LiteralBlock) Span() int64    { return int64(len(b.data)) }
func (b *LiteralBlock) Type() Type     { return TypeLiteral }
func (b *LiteralBlock) Indirect() bool { return false }
func (b *LiteralBlock) String() string { return Transcribe(b) }
func (b *LiteralBlock) isBlock()       {}

// RLEBlock is span repetitions of one octet.
type RLEBlock struct {
	span  int64
	octet byte
}

func NewRLEBlock(span int64, octet byte) *RLEBlock {
	return &RLEBlock{span: span, octet: octet}
}

func (b *RLEBlock) Octet() byte    { return b.octet }
func (b *RLEBlock) Span() int64    { return b.span }
func (b *RLEBlock) Type() Type     { return TypeRLE }
func (b *RLEBlock) Indirect() bool { return false }
func (b *RLEBlock) String() string { return Transcribe(b) }
func (b *RLEBlock) isBlock()       {}

// SubBlock is the span [offset, offset+span) of a direct superblock.
// It is never empty, never covers all of its superblock and never
// wraps another SubBlock.
type SubBlock struct {
	super  Block
	offset int64
	span   int64
}

// NewSubBlock returns the view of span bytes at offset in super. An
// empty view is the empty literal, a view of all of super is super
// itself, and a view of a SubBlock is rebased onto its superblock.
func NewSubBlock(super Block, offset, span int64) (b Block, err error) {
	if span == 0 {
		return Empty(), nil
	}
	if super.Indirect() {
		return nil, errors.Errorf("SubBlock of indirect block %s", super)
	}
	if offset < 0 || offset >= super.Span() {
		return nil, errors.Errorf("SubBlock offset %d out of range 0:%d", offset, super.Span())
	}
	if span < 0 || span > super.Span()-offset {
		return nil, errors.Errorf("SubBlock span %d out of range 1:%d", span, super.Span()-offset)
	}
	if offset == 0 && span == super.Span() {
		return super, nil
	}
	if sb, ok := super.(*SubBlock); ok {
		return &SubBlock{super: sb.super, offset: sb.offset + offset, span: span}, nil
	}
	return &SubBlock{super: super, offset: offset, span: span}, nil
}

func (b *SubBlock) Super() Block   { return b.super }
func (b *SubBlock) Offset() int64  { return b.offset }
func (b *SubBlock) Span() int64    { return b.span }
func (b *SubBlock) Type() Type     { return TypeSub }
func (b *SubBlock) Indirect() bool { return false }
func (b *SubBlock) String() string { return Transcribe(b) }
func (b *SubBlock) isBlock()       {}

// IndirectBlock is the concatenation of its children. The children are
// stored as the data of the superblock, a Hash or Literal block, and
// are decoded once on first use.
type IndirectBlock struct {
	super Block
	span  int64

	mu       sync.Mutex
	children []Block
	blockmap *BlockMap
}

// NewIndirectBlock wraps a superblock holding encoded children whose
// spans total span.
func NewIndirectBlock(super Block, span int64) (b *IndirectBlock, err error) {
	switch super.(type) {
	case *HashBlock, *LiteralBlock:
	default:
		return nil, errors.Errorf("superblock must be a hash or literal block, not %s", super)
	}
	if span < 0 {
		return nil, errors.Errorf("negative indirect span %d", span)
	}
	return &IndirectBlock{super: super, span: span}, nil
}

func (b *IndirectBlock) Super() Block   { return b.super }
func (b *IndirectBlock) Span() int64    { return b.span }
func (b *IndirectBlock) Type() Type     { return TypeIndirect }
func (b *IndirectBlock) Indirect() bool { return true }
func (b *IndirectBlock) String() string { return Transcribe(b) }
func (b *IndirectBlock) isBlock()       {}

// Hash returns the superblock hashcode, if the superblock is stored.
func (b *IndirectBlock) Hash() (h hashcode.HashCode, ok bool) {
	hb, ok := b.super.(*HashBlock)
	if !ok {
		return h, false
	}
	return hb.hash, true
}

// Children decodes the child blocks.
func (b *IndirectBlock) Children(ctx context.Context, S Store) (children []Block, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.children != nil {
		return b.children, nil
	}
	data, err := directData(ctx, S, b.super)
	if err != nil {
		return
	}
	children, err = DecodeAll(data)
	if err != nil {
		return nil, errors.Wrapf(err, "children of %s", b)
	}
	if children == nil {
		children = []Block{}
	}
	b.children = children
	return
}

// hashOf returns the hashcode that identifies b's content, if any.
func hashOf(b Block) (h hashcode.HashCode, ok bool) {
	switch b := b.(type) {
	case *HashBlock:
		return b.hash, true
	case *IndirectBlock:
		return b.Hash()
	}
	return
}

// FromBytes returns a LiteralBlock for short data and otherwise stores
// data in S and returns a HashBlock.
func FromBytes(ctx context.Context, S Store, data []byte) (b Block, err error) {
	if len(data) <= LiteralThreshold {
		return NewLiteralBlock(data), nil
	}
	h, err := S.Add(ctx, data)
	if err != nil {
		return
	}
	return NewHashBlock(h, int64(len(data))), nil
}

// directData returns all the data of a non-indirect block.
func directData(ctx context.Context, S Store, b Block) (data []byte, err error) {
	switch b := b.(type) {
	case *LiteralBlock:
		return b.data, nil
	case *RLEBlock:
		return bytes.Repeat([]byte{b.octet}, int(b.span)), nil
	case *HashBlock:
		data, err = S.Get(ctx, b.hash)
		if err != nil {
			return
		}
		if b.span >= 0 && int64(len(data)) != b.span {
			return nil, errors.Errorf("%s: fetched %d bytes", b, len(data))
		}
		return
	case *SubBlock:
		return leafRange(ctx, S, b, 0, b.span)
	}
	return nil, errors.Errorf("no direct data for %s", b)
}

// leafRange returns [start,end) of a direct block without materializing
// more than necessary.
func leafRange(ctx context.Context, S Store, b Block, start, end int64) (data []byte, err error) {
	switch b := b.(type) {
	case *LiteralBlock:
		return b.data[start:end], nil
	case *RLEBlock:
		return bytes.Repeat([]byte{b.octet}, int(end-start)), nil
	case *SubBlock:
		return leafRange(ctx, S, b.super, b.offset+start, b.offset+end)
	}
	data, err = directData(ctx, S, b)
	if err != nil {
		return
	}
	if end > int64(len(data)) {
		return nil, errors.Errorf("%s: range %d:%d beyond %d bytes", b, start, end, len(data))
	}
	return data[start:end], nil
}
