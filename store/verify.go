package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
)

// Verify fetches every chunk of S and checks its data against its
// hashcode. Each chunk is passed to report with nil or the problem
// found; checking continues after a failure.
func Verify(ctx context.Context, S Store, report func(h hashcode.HashCode, problem error)) (ok bool, err error) {
	ok = true
	q := Query{Length: DefaultWindow}
	for {
		hs, err := S.HashCodes(ctx, q)
		if err != nil || len(hs) == 0 {
			return ok, err
		}
		for _, h := range hs {
			data, err := S.Get(ctx, h)
			if err == nil && !h.Matches(data) {
				err = errors.Errorf("data hashes to %s", hashcode.Sum(h.Algo(), data))
			}
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if err != nil {
				ok = false
			}
			report(h, err)
		}
		q = Query{Start: hs[len(hs)-1], After: true, Length: DefaultWindow}
	}
}
