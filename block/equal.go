package block

import (
	"bytes"
	"context"
)

// Equal reports whether a and b represent the same data. Hashcodes
// decide the answer where they can; otherwise the leaves of both sides
// are compared as two byte streams, so differently shaped trees over
// the same data are equal.
func Equal(ctx context.Context, S Store, a, b Block) (eq bool, err error) {
	if a == b {
		return true, nil
	}
	if a.Span() != b.Span() {
		return false, nil
	}
	ha, oka := hashOf(a)
	hb, okb := hashOf(b)
	if oka && okb && ha.Algo() == hb.Algo() && a.Indirect() == b.Indirect() {
		if ha == hb {
			return true, nil
		}
		if !a.Indirect() {
			return false, nil
		}
	}

	ia := newLeafIter(S, a)
	ib := newLeafIter(S, b)
	var da, db []byte
	for {
		switch {
		case len(da) == 0 && len(db) == 0:
			la, err := ia.next(ctx)
			if err != nil {
				return false, err
			}
			lb, err := ib.next(ctx)
			if err != nil {
				return false, err
			}
			if la == nil || lb == nil {
				return la == nil && lb == nil, nil
			}
			if sameHash(la, lb) {
				continue
			}
			if da, err = directData(ctx, S, la); err != nil {
				return false, err
			}
			if db, err = directData(ctx, S, lb); err != nil {
				return false, err
			}
		case len(da) == 0:
			la, err := ia.next(ctx)
			if err != nil || la == nil {
				return false, err
			}
			if da, err = directData(ctx, S, la); err != nil {
				return false, err
			}
		case len(db) == 0:
			lb, err := ib.next(ctx)
			if err != nil || lb == nil {
				return false, err
			}
			if db, err = directData(ctx, S, lb); err != nil {
				return false, err
			}
		}
		n := min(len(da), len(db))
		if !bytes.Equal(da[:n], db[:n]) {
			return false, nil
		}
		da, db = da[n:], db[n:]
	}
}

// sameHash reports whether two aligned leaves are known equal without
// fetching them.
func sameHash(a, b Block) bool {
	if a.Span() != b.Span() {
		return false
	}
	ha, ok := hashOf(a)
	if !ok {
		return false
	}
	hb, ok := hashOf(b)
	return ok && ha == hb
}
