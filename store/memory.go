package store

import (
	"context"
	"sort"
	"sync"

	"github.com/t7a/vt/hashcode"
)

// MemoryStore keeps chunks in a map. It is used for tests and as a
// scratch store.
type MemoryStore struct {
	algo hashcode.Algo
	mu   sync.RWMutex
	data map[hashcode.HashCode][]byte
}

func NewMemoryStore(algo hashcode.Algo) *MemoryStore {
	return &MemoryStore{algo: algo, data: map[hashcode.HashCode][]byte{}}
}

func (S *MemoryStore) Algo() hashcode.Algo {
	return S.algo
}

func (S *MemoryStore) Add(ctx context.Context, data []byte) (h hashcode.HashCode, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	h = hashcode.Sum(S.algo, data)
	S.mu.Lock()
	defer S.mu.Unlock()
	if _, ok := S.data[h]; !ok {
		S.data[h] = append([]byte(nil), data...)
	}
	return
}

func (S *MemoryStore) Get(ctx context.Context, h hashcode.HashCode) (data []byte, err error) {
	S.mu.RLock()
	defer S.mu.RUnlock()
	data, ok := S.data[h]
	if !ok {
		return nil, &MissingHashcodeError{Hash: h}
	}
	return
}

func (S *MemoryStore) Contains(ctx context.Context, h hashcode.HashCode) (ok bool, err error) {
	S.mu.RLock()
	defer S.mu.RUnlock()
	_, ok = S.data[h]
	return
}

func (S *MemoryStore) Flush(ctx context.Context) error {
	return nil
}

// Len is the number of chunks held.
func (S *MemoryStore) Len() int {
	S.mu.RLock()
	defer S.mu.RUnlock()
	return len(S.data)
}

func (S *MemoryStore) keysFrom(start hashcode.HashCode, reverse bool, fn func(h hashcode.HashCode) error) error {
	S.mu.RLock()
	keys := make([]hashcode.HashCode, 0, len(S.data))
	for h := range S.data {
		keys = append(keys, h)
	}
	S.mu.RUnlock()
	hashcode.Sort(keys)
	if reverse {
		i := len(keys)
		if !start.IsZero() {
			i = sort.Search(len(keys), func(i int) bool { return start.Less(keys[i]) })
		}
		for i--; i >= 0; i-- {
			if err := fn(keys[i]); err != nil {
				return err
			}
		}
		return nil
	}
	i := 0
	if !start.IsZero() {
		i = sort.Search(len(keys), func(i int) bool { return !keys[i].Less(start) })
	}
	for ; i < len(keys); i++ {
		if err := fn(keys[i]); err != nil {
			return err
		}
	}
	return nil
}

func (S *MemoryStore) HashCodes(ctx context.Context, q Query) ([]hashcode.HashCode, error) {
	return selectHashCodes(ctx, S.keysFrom, q)
}

func (S *MemoryStore) HashOfHashCodes(ctx context.Context, q Query) (sum, final hashcode.HashCode, err error) {
	return hashOfHashCodes(ctx, S, q)
}

func (S *MemoryStore) Close() error {
	return nil
}
