package store

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t7a/vt/hashcode"
	"pgregory.net/rapid"
)

type missingFunc func(ctx context.Context, A, B Store, window int, fn func(h hashcode.HashCode) error) error

var missingFuncs = map[string]missingFunc{
	"lists":     MissingHashCodes,
	"checksums": MissingHashCodesByChecksum,
}

func missing(t *testing.T, f missingFunc, A, B Store, window int) (hs []hashcode.HashCode) {
	t.Helper()
	err := f(context.Background(), A, B, window, func(h hashcode.HashCode) error {
		hs = append(hs, h)
		return nil
	})
	require.NoError(t, err)
	return
}

func TestMissingHashCodes(t *testing.T) {
	shared := chunks("shared", 50)
	extra := chunks("extra", 10)
	onlyA := chunks("only in A", 7)

	for name, f := range missingFuncs {
		for _, window := range []int{1, 4, 16, 1024} {
			A := NewMemoryStore(hashcode.SHA1)
			B := NewMemoryStore(hashcode.SHA1)
			addAll(t, A, shared)
			addAll(t, B, shared)
			want := addAll(t, B, extra)
			hashcode.Sort(want)

			got := missing(t, f, A, B, window)
			assert.Equal(t, want, got, "%s window %d", name, window)
			assert.Empty(t, missing(t, f, B, A, window), "%s window %d", name, window)

			addAll(t, A, onlyA)
			got = missing(t, f, A, B, window)
			assert.Equal(t, want, got, "%s window %d with extra in A", name, window)

			// nothing is missing from an identical store
			assert.Empty(t, missing(t, f, B, B, window))
			// everything is missing from an empty one
			all, err := B.HashCodes(context.Background(), Query{})
			require.NoError(t, err)
			assert.Equal(t, all, missing(t, f, NewMemoryStore(hashcode.SHA1), B, window))
		}
	}
}

func TestMissingHashCodesProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 300).Draw(rt, "n")
		inA := rapid.SliceOfN(rapid.Bool(), n, n).Draw(rt, "inA")
		inB := rapid.SliceOfN(rapid.Bool(), n, n).Draw(rt, "inB")
		window := rapid.IntRange(1, 70).Draw(rt, "window")
		ctx := context.Background()
		A := NewMemoryStore(hashcode.SHA1)
		B := NewMemoryStore(hashcode.SHA1)
		want := map[hashcode.HashCode]bool{}
		for i, d := range chunks("prop", n) {
			if inA[i] {
				A.Add(ctx, d)
			}
			if inB[i] {
				h, _ := B.Add(ctx, d)
				if !inA[i] {
					want[h] = true
				}
			}
		}
		for name, f := range missingFuncs {
			var got []hashcode.HashCode
			err := f(ctx, A, B, window, func(h hashcode.HashCode) error {
				got = append(got, h)
				return nil
			})
			if err != nil {
				rt.Fatalf("%s: %v", name, err)
			}
			if len(got) != len(want) {
				rt.Fatalf("%s: got %d missing, want %d", name, len(got), len(want))
			}
			for i, h := range got {
				if !want[h] {
					rt.Fatalf("%s: %s is not missing", name, h)
				}
				if i > 0 && !got[i-1].Less(h) {
					rt.Fatalf("%s: out of order at %d", name, i)
				}
			}
		}
	})
}

func TestMissingHashCodesErrors(t *testing.T) {
	ctx := context.Background()
	A := NewMemoryStore(hashcode.SHA1)
	B := NewMemoryStore(hashcode.SHA256)
	for name, f := range missingFuncs {
		err := f(ctx, A, B, 0, func(h hashcode.HashCode) error { return nil })
		assert.Error(t, err, name)
	}

	B = NewMemoryStore(hashcode.SHA1)
	addAll(t, B, chunks("b", 5))
	stop := assert.AnError
	for name, f := range missingFuncs {
		calls := 0
		err := f(ctx, A, B, 2, func(h hashcode.HashCode) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop, name)
		assert.Equal(t, 1, calls, name)
	}
}

func TestPull(t *testing.T) {
	ctx := context.Background()
	A := newDataDir(t, Config{Algo: "sha1"})
	B := NewRemoteStore(hashcode.SHA1, Loopback(NewMemoryStore(hashcode.SHA1)))
	addAll(t, A, chunks("shared", 50))
	addAll(t, B, chunks("shared", 50))
	extra := chunks("extra", 10)
	hs := addAll(t, B, extra)

	n, err := Pull(ctx, A, B, 8)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	for i, h := range hs {
		got, err := A.Get(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, extra[i], got)
	}
	assert.Empty(t, missing(t, MissingHashCodes, A, B, 8))

	n, err = Pull(ctx, A, B, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// lying returns the wrong data for every hashcode.
type lying struct {
	*MemoryStore
}

func (S lying) Get(ctx context.Context, h hashcode.HashCode) ([]byte, error) {
	return []byte("not it"), nil
}

func TestPullVerifies(t *testing.T) {
	B := NewMemoryStore(hashcode.SHA1)
	addAll(t, B, chunks("b", 3))
	_, err := Pull(context.Background(), NewMemoryStore(hashcode.SHA1), lying{B}, 0)
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	S := NewMemoryStore(hashcode.SHA1)
	hs := addAll(t, S, chunks("verify", 12))
	checked := 0
	ok, err := Verify(ctx, S, func(h hashcode.HashCode, problem error) {
		checked++
		assert.NoError(t, problem)
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, len(hs), checked)

	var bad []hashcode.HashCode
	ok, err = Verify(ctx, lying{S}, func(h hashcode.HashCode, problem error) {
		if problem != nil {
			bad = append(bad, h)
		}
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, bad, len(hs))
}

func TestCancel(t *testing.T) {
	shared := chunks("shared", 50)
	extra := chunks("extra", 10)
	A := NewMemoryStore(hashcode.SHA1)
	B := NewMemoryStore(hashcode.SHA1)
	addAll(t, A, shared)
	addAll(t, B, shared)
	addAll(t, B, extra)

	for name, f := range missingFuncs {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := f(ctx, A, B, 4, func(hashcode.HashCode) error { return nil })
			assert.True(t, errors.Is(err, context.Canceled), "before start: %v", err)

			// stop after the first missing hashcode
			ctx, cancel = context.WithCancel(context.Background())
			defer cancel()
			n := 0
			err = f(ctx, A, B, 4, func(hashcode.HashCode) error {
				n++
				cancel()
				return nil
			})
			assert.True(t, errors.Is(err, context.Canceled), "mid scan: %v", err)
			tassert(t, n > 0 && n < len(extra), "%d hashcodes before stopping", n)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	checked := 0
	_, err := Verify(ctx, B, func(hashcode.HashCode, error) {
		checked++
		cancel()
	})
	assert.True(t, errors.Is(err, context.Canceled), "verify: %v", err)
	assert.Equal(t, 1, checked)
}
