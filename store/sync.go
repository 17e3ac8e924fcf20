package store

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/vt/hashcode"
)

func sameAlgo(A, B Store) error {
	if A.Algo() != B.Algo() {
		return errors.Errorf("stores use different algorithms: %s, %s", A.Algo(), B.Algo())
	}
	return nil
}

func hashSet(hs []hashcode.HashCode) map[hashcode.HashCode]bool {
	m := make(map[hashcode.HashCode]bool, len(hs))
	for _, h := range hs {
		m[h] = true
	}
	return m
}

// MissingHashCodes calls fn, in order, with each hashcode in B that is
// not in A. Both stores are walked in windows of window hashcodes.
func MissingHashCodes(ctx context.Context, A, B Store, window int, fn func(h hashcode.HashCode) error) (err error) {
	if err = sameAlgo(A, B); err != nil {
		return
	}
	if window <= 0 {
		window = DefaultWindow
	}
	var (
		have     map[hashcode.HashCode]bool
		haveLast hashcode.HashCode
		// A has nothing at or after haveLast
		exhausted bool
	)
	q := Query{Length: window}
	for {
		hs, err := B.HashCodes(ctx, q)
		if err != nil || len(hs) == 0 {
			return err
		}
		for _, h := range hs {
			if !exhausted && (have == nil || haveLast.Less(h)) {
				got, err := A.HashCodes(ctx, Query{Start: h, Length: window})
				if err != nil {
					return err
				}
				if len(got) == 0 {
					exhausted = true
				} else {
					have = hashSet(got)
					haveLast = got[len(got)-1]
				}
			}
			if exhausted || !have[h] {
				if err = fn(h); err != nil {
					return err
				}
			}
		}
		q = Query{Start: hs[len(hs)-1], After: true, Length: window}
	}
}

// MissingHashCodesByChecksum finds the same hashcodes as
// MissingHashCodes, but compares runs of hashcodes by checksum first
// and only lists the runs which differ, narrowing the run length while
// they do.
func MissingHashCodesByChecksum(ctx context.Context, A, B Store, window int, fn func(h hashcode.HashCode) error) (err error) {
	if err = sameAlgo(A, B); err != nil {
		return
	}
	if window <= 0 {
		window = DefaultWindow
	}
	size := window
	var start hashcode.HashCode
	after := false
	emit := func(hs []hashcode.HashCode) error {
		for _, h := range hs {
			if err := fn(h); err != nil {
				return err
			}
		}
		return nil
	}

scan:
	for {
		q := Query{Start: start, After: after, Length: size}
		sumA, finalA, err := A.HashOfHashCodes(ctx, q)
		if err != nil {
			return err
		}
		if finalA.IsZero() {
			break scan
		}
		sumB, finalB, err := B.HashOfHashCodes(ctx, q)
		if err != nil {
			return err
		}
		if finalB.IsZero() {
			return nil
		}
		if sumA == sumB {
			if finalA != finalB {
				return errors.Errorf("checksums match but final hashcodes differ: %s, %s", finalA, finalB)
			}
			start, after = finalA, true
			size = min(size*2, window)
			continue
		}
		if size >= 32 {
			size /= 2
			continue
		}

		hsB, err := B.HashCodes(ctx, q)
		if err != nil || len(hsB) == 0 {
			return err
		}
		hsA, err := A.HashCodes(ctx, q)
		if err != nil {
			return err
		}
		if len(hsA) == 0 {
			break scan
		}
		have := hashSet(hsA)
		lastA := hsA[len(hsA)-1]
		for i, h := range hsB {
			if have != nil && lastA.Less(h) {
				// A's run ended before B's; list more of A
				more, err := A.HashCodes(ctx, Query{Start: h, Length: len(hsB) - i})
				if err != nil {
					return err
				}
				if len(more) == 0 {
					have = nil
				} else {
					have = hashSet(more)
					lastA = more[len(more)-1]
				}
			}
			if have == nil || !have[h] {
				if err = fn(h); err != nil {
					return err
				}
			}
		}
		start, after = hsB[len(hsB)-1], true
	}

	// A has nothing further: everything left in B is missing
	for {
		hs, err := B.HashCodes(ctx, Query{Start: start, After: after, Length: window})
		if err != nil || len(hs) == 0 {
			return err
		}
		if err = emit(hs); err != nil {
			return err
		}
		start, after = hs[len(hs)-1], true
	}
}

// Pull copies the chunks of B missing from A into A.
func Pull(ctx context.Context, A, B Store, window int) (n int, err error) {
	err = MissingHashCodes(ctx, A, B, window, func(h hashcode.HashCode) error {
		data, err := B.Get(ctx, h)
		if err != nil {
			return err
		}
		got, err := A.Add(ctx, data)
		if err != nil {
			return err
		}
		if got != h {
			return errors.Errorf("%s gave data hashing to %s", h, got)
		}
		n++
		return nil
	})
	if err != nil {
		return
	}
	log.Debugf("pulled %d chunks", n)
	err = A.Flush(ctx)
	return
}
