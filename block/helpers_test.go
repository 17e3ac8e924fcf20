package block

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

var errMissing = errors.New("missing")

// countStore is an in-memory Store counting its calls.
type countStore struct {
	mu   sync.Mutex
	data map[hashcode.HashCode][]byte
	adds int
	gets int
}

func newCountStore() *countStore {
	return &countStore{data: map[hashcode.HashCode][]byte{}}
}

func (S *countStore) Add(ctx context.Context, data []byte) (h hashcode.HashCode, err error) {
	S.mu.Lock()
	defer S.mu.Unlock()
	S.adds++
	h = hashcode.Sum(hashcode.SHA1, data)
	if _, ok := S.data[h]; !ok {
		S.data[h] = append([]byte(nil), data...)
	}
	return
}

func (S *countStore) Get(ctx context.Context, h hashcode.HashCode) (data []byte, err error) {
	S.mu.Lock()
	defer S.mu.Unlock()
	S.gets++
	data, ok := S.data[h]
	if !ok {
		return nil, errors.Wrapf(errMissing, "%s", h)
	}
	return
}

func (S *countStore) Algo() hashcode.Algo {
	return hashcode.SHA1
}

func (S *countStore) counts() (adds, gets int) {
	S.mu.Lock()
	defer S.mu.Unlock()
	return S.adds, S.gets
}

func randBytes(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

// leafBlocks cuts data into pieces of the given size and stores each.
func leafBlocks(t *testing.T, S Store, data []byte, size int) (blocks []Block) {
	t.Helper()
	ctx := context.Background()
	for len(data) > 0 {
		n := min(size, len(data))
		b, err := FromBytes(ctx, S, data[:n])
		tassert(t, err == nil, "FromBytes: %v", err)
		blocks = append(blocks, b)
		data = data[n:]
	}
	return
}

// tree builds a multi level block over data.
func tree(t *testing.T, S Store, data []byte, size int) Block {
	t.Helper()
	top, err := IndirectFromBlocks(context.Background(), S, leafBlocks(t, S, data, size))
	tassert(t, err == nil, "IndirectFromBlocks: %v", err)
	return top
}

func depth(t *testing.T, S Store, b Block) int {
	t.Helper()
	ib, ok := b.(*IndirectBlock)
	if !ok {
		return 0
	}
	children, err := ib.Children(context.Background(), S)
	tassert(t, err == nil, "Children: %v", err)
	d := 0
	for _, c := range children {
		d = max(d, depth(t, S, c))
	}
	return d + 1
}
