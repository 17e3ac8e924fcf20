package block

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/vt/hashcode"
	"github.com/t7a/vt/serial"
)

// ErrDecode is wrapped by every BlockRecord decoding failure.
var ErrDecode = errors.New("bad block record")

// BlockRecord flags.
const (
	FlagIndirect  = 0x01
	FlagTyped     = 0x02
	FlagTypeFlags = 0x04

	knownFlags = FlagIndirect | FlagTyped | FlagTypeFlags
)

// Encode returns the BlockRecord for b:
//
//	BSData( BS(flags) BS(span) [BS(type)] payload )
//
// An untyped record is a hashcode reference. For an IndirectBlock the
// record carries the superblock with the indirect flag set.
func Encode(b Block) []byte {
	return AppendEncoded(nil, b)
}

// AppendEncoded appends the BlockRecord for b to dst.
func AppendEncoded(dst []byte, b Block) []byte {
	return serial.AppendData(dst, encodeBody(b))
}

func encodeBody(b Block) (buf []byte) {
	var flags uint64
	span := b.Span()
	if ib, ok := b.(*IndirectBlock); ok {
		flags |= FlagIndirect
		b = ib.super
	}
	typ := b.Type()
	if typ != TypeHash {
		flags |= FlagTyped
	}
	buf = serial.AppendBS(buf, flags)
	buf = serial.AppendBS(buf, uint64(span))
	if flags&FlagTyped != 0 {
		buf = serial.AppendBS(buf, uint64(typ))
	}
	switch b := b.(type) {
	case *HashBlock:
		buf = b.hash.AppendEncoded(buf)
	case *RLEBlock:
		buf = append(buf, b.octet)
	case *LiteralBlock:
		buf = append(buf, b.data...)
	case *SubBlock:
		buf = serial.AppendBS(buf, uint64(b.offset))
		buf = AppendEncoded(buf, b.super)
	}
	return
}

// EncodedLen is len(Encode(b)).
func EncodedLen(b Block) int {
	n := len(encodeBody(b))
	return serial.Size(uint64(n)) + n
}

// Decode parses one BlockRecord from the front of buf.
func Decode(buf []byte) (b Block, used int, err error) {
	body, used, err := serial.ReadData(buf)
	if err != nil {
		return nil, used, errors.Wrapf(ErrDecode, "record length: %v", err)
	}
	b, err = decodeBody(body)
	return
}

// DecodeAll parses a concatenation of BlockRecords.
func DecodeAll(buf []byte) (blocks []Block, err error) {
	for len(buf) > 0 {
		b, used, err := Decode(buf)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
		buf = buf[used:]
	}
	return
}

func decodeBody(p []byte) (b Block, err error) {
	next := func(what string) (n uint64, err error) {
		n, used, err := serial.ReadBS(p)
		if err != nil {
			return 0, errors.Wrapf(ErrDecode, "%s: %v", what, err)
		}
		p = p[used:]
		return
	}
	flags, err := next("flags")
	if err != nil {
		return
	}
	if flags&^knownFlags != 0 {
		return nil, errors.Wrapf(ErrDecode, "unknown flags 0x%x", flags)
	}
	uspan, err := next("span")
	if err != nil {
		return
	}
	if uspan > math.MaxInt64 {
		return nil, errors.Wrapf(ErrDecode, "span %d too large", uspan)
	}
	span := int64(uspan)
	indirect := flags&FlagIndirect != 0
	typ := TypeHash
	if flags&FlagTyped != 0 {
		t, err := next("type")
		if err != nil {
			return nil, err
		}
		typ = Type(t)
	}
	if flags&FlagTypeFlags != 0 {
		tf, err := next("type flags")
		if err != nil {
			return nil, err
		}
		if tf != 0 {
			log.Warnf("ignoring block type flags 0x%x", tf)
		}
	}

	// The span of an indirect record is the logical span, not the
	// superblock's.
	superSpan := span
	if indirect {
		superSpan = -1
	}

	switch typ {
	case TypeHash:
		h, used, err := hashcode.Decode(p)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, "hashcode: %v", err)
		}
		p = p[used:]
		b = NewHashBlock(h, superSpan)
	case TypeRLE:
		if len(p) < 1 {
			return nil, errors.Wrap(ErrDecode, "missing RLE octet")
		}
		b = NewRLEBlock(span, p[0])
		p = p[1:]
	case TypeLiteral:
		n := int64(len(p))
		if !indirect {
			if span > n {
				return nil, errors.Wrapf(ErrDecode, "literal needs %d bytes, have %d", span, n)
			}
			n = span
		}
		data := make([]byte, n)
		copy(data, p)
		p = p[n:]
		b = NewLiteralBlock(data)
	case TypeSub:
		offset, err := next("offset")
		if err != nil {
			return nil, err
		}
		if offset > math.MaxInt64 {
			return nil, errors.Wrapf(ErrDecode, "offset %d too large", offset)
		}
		super, used, err := Decode(p)
		if err != nil {
			return nil, err
		}
		p = p[used:]
		b, err = NewSubBlock(super, int64(offset), span)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, "%v", err)
		}
	default:
		return nil, errors.Wrapf(ErrDecode, "unknown block type %d", typ)
	}

	if len(p) > 0 {
		log.Warnf("%d unparsed bytes after %s", len(p), b)
	}
	if indirect {
		b, err = NewIndirectBlock(b, span)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, "%v", err)
		}
	}
	return
}
