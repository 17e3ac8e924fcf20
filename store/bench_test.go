package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/t7a/vt/hashcode"
	"github.com/t7a/vt/index"
)

func benchStore(b *testing.B, backend string) *DataDirStore {
	dir := filepath.Join(b.TempDir(), "bench")
	err := Init(dir, Config{Algo: "sha256", Index: backend})
	if err != nil {
		b.Fatal(err)
	}
	S, err := Open(dir)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { S.Close() })
	return S
}

func mkbuf(n int) []byte {
	return []byte(fmt.Sprintf("%0128d", n))
}

func BenchmarkAdd(b *testing.B) {
	ctx := context.Background()
	for _, backend := range index.Backends() {
		b.Run(backend.Name, func(b *testing.B) {
			S := benchStore(b, backend.Name)
			b.ResetTimer()
			for n := 0; n < b.N; n++ {
				_, err := S.Add(ctx, mkbuf(n))
				if err != nil {
					b.Fatal(err)
				}
			}
			if err := S.Flush(ctx); err != nil {
				b.Fatal(err)
			}
		})
	}
}

func BenchmarkAddSame(b *testing.B) {
	ctx := context.Background()
	S := benchStore(b, "")
	val := mkbuf(0)
	for n := 0; n < b.N; n++ {
		_, err := S.Add(ctx, val)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAddGet(b *testing.B) {
	ctx := context.Background()
	S := benchStore(b, "")
	for n := 0; n < b.N; n++ {
		h, err := S.Add(ctx, mkbuf(n))
		if err != nil {
			b.Fatal(err)
		}
		_, err = S.Get(ctx, h)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMissingHashCodes(b *testing.B) {
	ctx := context.Background()
	A := NewMemoryStore(hashcode.SHA256)
	B := NewMemoryStore(hashcode.SHA256)
	for n := 0; n < 10000; n++ {
		A.Add(ctx, mkbuf(n))
		B.Add(ctx, mkbuf(n))
	}
	B.Add(ctx, mkbuf(-1))
	for name, f := range missingFuncs {
		b.Run(name, func(b *testing.B) {
			for n := 0; n < b.N; n++ {
				err := f(ctx, A, B, DefaultWindow, func(h hashcode.HashCode) error { return nil })
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
