package block

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Fsck checks that the data of b can be fetched and that spans agree.
// Hash blocks are fetched and checked against their hashcode. With
// recurse set the children of indirect blocks are checked too. Every
// checked block is passed to report with nil or the problem found;
// checking continues after a failure. ok is false if anything failed.
func Fsck(ctx context.Context, S Store, b Block, recurse bool, report func(b Block, problem error)) (ok bool, err error) {
	if report == nil {
		report = func(b Block, problem error) {
			if problem != nil {
				log.Warnf("fsck %s: %v", b, problem)
			}
		}
	}
	ok = true
	err = fsck(ctx, S, b, recurse, func(b Block, problem error) {
		if problem != nil {
			ok = false
		}
		report(b, problem)
	})
	if err != nil {
		ok = false
	}
	return
}

func fsck(ctx context.Context, S Store, b Block, recurse bool, report func(Block, error)) (err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	switch b := b.(type) {
	case *HashBlock:
		report(b, checkHash(ctx, S, b))
	case *SubBlock:
		var problem error
		if hb, ok := b.super.(*HashBlock); ok {
			problem = checkHash(ctx, S, hb)
		}
		if problem == nil && b.super.Span() >= 0 && b.offset+b.span > b.super.Span() {
			problem = errors.Errorf("range %d:%d beyond superblock span %d", b.offset, b.offset+b.span, b.super.Span())
		}
		report(b, problem)
	case *IndirectBlock:
		if hb, isHash := b.super.(*HashBlock); isHash {
			if problem := checkHash(ctx, S, hb); problem != nil {
				report(b, problem)
				return
			}
		}
		children, problem := b.Children(ctx, S)
		if problem != nil {
			report(b, problem)
			return
		}
		var span int64
		for _, c := range children {
			span += c.Span()
		}
		if span != b.span {
			report(b, errors.Errorf("children total %d", span))
		} else {
			report(b, nil)
		}
		if !recurse {
			return
		}
		for _, c := range children {
			if err = fsck(ctx, S, c, recurse, report); err != nil {
				return
			}
		}
	default:
		report(b, nil)
	}
	return ctx.Err()
}

func checkHash(ctx context.Context, S Store, b *HashBlock) error {
	data, err := S.Get(ctx, b.hash)
	if err != nil {
		return err
	}
	if !b.hash.Matches(data) {
		return errors.Errorf("data do not match %s", b.hash)
	}
	if b.span >= 0 && int64(len(data)) != b.span {
		return errors.Errorf("fetched %d bytes", len(data))
	}
	return nil
}
