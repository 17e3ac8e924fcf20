package index

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
)

type badgerIndex struct {
	db   *badger.DB
	algo hashcode.Algo
}

func openBadger(path string, algo hashcode.Algo) (Index, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "badger open %s", path)
	}
	return &badgerIndex{db: db, algo: algo}, nil
}

func (ix *badgerIndex) Name() string { return "badger" }

func (ix *badgerIndex) Get(h hashcode.HashCode) (e Entry, err error) {
	var val []byte
	err = ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(h))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return e, ErrNotFound
	}
	if err != nil {
		return
	}
	return DecodeEntry(val)
}

func (ix *badgerIndex) Contains(h hashcode.HashCode) (ok bool, err error) {
	_, err = ix.Get(h)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (ix *badgerIndex) Set(h hashcode.HashCode, e Entry) error {
	return ix.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(h), e.Encode())
	})
}

func (ix *badgerIndex) KeysFrom(start hashcode.HashCode, reverse bool, fn func(hashcode.HashCode) error) error {
	err := ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()
		var seek []byte
		switch {
		case !start.IsZero():
			seek = key(start)
		case reverse:
			// past every digest of this algorithm
			seek = bytes.Repeat([]byte{0xff}, ix.algo.Size()+1)
		}
		for it.Seek(seek); it.Valid(); it.Next() {
			h, err := keyHash(ix.algo, it.Item().KeyCopy(nil))
			if err != nil {
				return err
			}
			if err = fn(h); err != nil {
				return err
			}
		}
		return nil
	})
	return stopped(err)
}

func (ix *badgerIndex) Flush() error {
	return ix.db.Sync()
}

func (ix *badgerIndex) Close() error {
	return ix.db.Close()
}
