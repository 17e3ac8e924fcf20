package block

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
)

// Transcribe returns the text form of b, one of
//
//	B{hash:sha1:HEX,span:N}
//	LB{data:HEX}
//	RLE{octet:N,span:N}
//	SubB{block:...,offset:N,span:N}
//	I{block:...,span:N}
func Transcribe(b Block) string {
	var sb strings.Builder
	transcribe(&sb, b)
	return sb.String()
}

func transcribe(sb *strings.Builder, b Block) {
	switch b := b.(type) {
	case *HashBlock:
		fmt.Fprintf(sb, "B{hash:%s", b.hash)
		if b.span >= 0 {
			fmt.Fprintf(sb, ",span:%d", b.span)
		}
		sb.WriteString("}")
	case *LiteralBlock:
		fmt.Fprintf(sb, "LB{data:%s}", hex.EncodeToString(b.data))
	case *RLEBlock:
		fmt.Fprintf(sb, "RLE{octet:%d,span:%d}", b.octet, b.span)
	case *SubBlock:
		sb.WriteString("SubB{block:")
		transcribe(sb, b.super)
		fmt.Fprintf(sb, ",offset:%d,span:%d}", b.offset, b.span)
	case *IndirectBlock:
		sb.WriteString("I{block:")
		if hb, ok := b.super.(*HashBlock); ok {
			// superblock spans are not recorded
			fmt.Fprintf(sb, "B{hash:%s}", hb.hash)
		} else {
			transcribe(sb, b.super)
		}
		fmt.Fprintf(sb, ",span:%d}", b.span)
	default:
		fmt.Fprintf(sb, "?%T", b)
	}
}

// Parse reads a transcription back into a Block.
func Parse(s string) (b Block, err error) {
	p := &parser{s: strings.TrimSpace(s)}
	b, err = p.block()
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q at %d", s, p.pos)
	}
	if p.pos != len(p.s) {
		return nil, errors.Errorf("parse %q: trailing text at %d", s, p.pos)
	}
	return
}

type parser struct {
	s   string
	pos int
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
			break
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) expect(c byte) error {
	if p.pos >= len(p.s) || p.s[p.pos] != c {
		return errors.Errorf("expected %q", c)
	}
	p.pos++
	return nil
}

// atom reads up to the next ',' or '}'.
func (p *parser) atom() string {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != ',' && p.s[p.pos] != '}' {
		p.pos++
	}
	return p.s[start:p.pos]
}

type fields struct {
	hash   hashcode.HashCode
	data   []byte
	super  Block
	ints   map[string]int64
	hasHex bool
}

func (p *parser) block() (b Block, err error) {
	kind := p.ident()
	if err = p.expect('{'); err != nil {
		return
	}
	f := fields{ints: map[string]int64{}}
	for {
		name := p.ident()
		if err = p.expect(':'); err != nil {
			return
		}
		switch name {
		case "block":
			f.super, err = p.block()
		case "hash":
			f.hash, err = hashcode.Parse(p.atom())
		case "data":
			f.data, err = hex.DecodeString(p.atom())
			f.hasHex = true
		case "span", "offset", "octet":
			f.ints[name], err = strconv.ParseInt(p.atom(), 10, 64)
		default:
			err = errors.Errorf("unknown field %q", name)
		}
		if err != nil {
			return
		}
		if p.pos < len(p.s) && p.s[p.pos] == ',' {
			p.pos++
			continue
		}
		if err = p.expect('}'); err != nil {
			return
		}
		break
	}
	return f.build(kind)
}

func (f fields) num(name string) (n int64, err error) {
	n, ok := f.ints[name]
	if !ok {
		return 0, errors.Errorf("missing %s", name)
	}
	return
}

func (f fields) build(kind string) (b Block, err error) {
	switch kind {
	case "B":
		if f.hash.IsZero() {
			return nil, errors.New("B without hash")
		}
		span, ok := f.ints["span"]
		if !ok {
			span = -1
		} else if span < 0 {
			return nil, errors.Errorf("bad B span %d", span)
		}
		return NewHashBlock(f.hash, span), nil
	case "LB":
		if !f.hasHex {
			return nil, errors.New("LB without data")
		}
		return NewLiteralBlock(f.data), nil
	case "RLE":
		span, err := f.num("span")
		if err != nil {
			return nil, err
		}
		octet, err := f.num("octet")
		if err != nil {
			return nil, err
		}
		if octet < 0 || octet > 255 || span < 0 {
			return nil, errors.Errorf("bad RLE octet %d span %d", octet, span)
		}
		return NewRLEBlock(span, byte(octet)), nil
	case "SubB", "I":
		if f.super == nil {
			return nil, errors.Errorf("%s without block", kind)
		}
		span, err := f.num("span")
		if err != nil {
			return nil, err
		}
		if kind == "I" {
			return NewIndirectBlock(f.super, span)
		}
		offset, err := f.num("offset")
		if err != nil {
			return nil, err
		}
		return NewSubBlock(f.super, offset, span)
	}
	return nil, errors.Errorf("unknown block kind %q", kind)
}
