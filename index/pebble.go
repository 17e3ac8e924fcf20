package index

import (
	"github.com/cockroachdb/pebble/v2"
	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
)

type pebbleIndex struct {
	db   *pebble.DB
	algo hashcode.Algo
}

func openPebble(path string, algo hashcode.Algo) (Index, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "pebble open %s", path)
	}
	return &pebbleIndex{db: db, algo: algo}, nil
}

func (ix *pebbleIndex) Name() string { return "pebble" }

func (ix *pebbleIndex) Get(h hashcode.HashCode) (e Entry, err error) {
	val, closer, err := ix.db.Get(key(h))
	if err == pebble.ErrNotFound {
		return e, ErrNotFound
	}
	if err != nil {
		return
	}
	defer closer.Close()
	return DecodeEntry(val)
}

func (ix *pebbleIndex) Contains(h hashcode.HashCode) (ok bool, err error) {
	_, err = ix.Get(h)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (ix *pebbleIndex) Set(h hashcode.HashCode, e Entry) error {
	return ix.db.Set(key(h), e.Encode(), pebble.NoSync)
}

func (ix *pebbleIndex) KeysFrom(start hashcode.HashCode, reverse bool, fn func(hashcode.HashCode) error) (err error) {
	iter, err := ix.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return
	}
	defer iter.Close()

	var valid bool
	switch {
	case start.IsZero() && reverse:
		valid = iter.Last()
	case start.IsZero():
		valid = iter.First()
	case reverse:
		// keys <= start are exactly the keys < start+"\x00"
		valid = iter.SeekLT(append(key(start), 0))
	default:
		valid = iter.SeekGE(key(start))
	}
	for ; valid; valid = step(iter, reverse) {
		h, err := keyHash(ix.algo, append([]byte(nil), iter.Key()...))
		if err != nil {
			return err
		}
		if err = fn(h); err != nil {
			return stopped(err)
		}
	}
	return iter.Error()
}

func step(iter *pebble.Iterator, reverse bool) bool {
	if reverse {
		return iter.Prev()
	}
	return iter.Next()
}

func (ix *pebbleIndex) Flush() error {
	return ix.db.Flush()
}

func (ix *pebbleIndex) Close() error {
	return ix.db.Close()
}
