// Package store holds chunks of data keyed by their hashcode.
//
// A Store accepts data and returns its hashcode, returns data for a
// hashcode and enumerates the hashcodes it holds in order. Stores of
// the same algorithm can be compared and synchronised cheaply with
// HashOfHashCodes.
package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/t7a/vt/hashcode"
)

// Store is a content addressed chunk store for one hash algorithm.
type Store interface {
	// Add stores data and returns its hashcode. Adding data already
	// present is a no-op.
	Add(ctx context.Context, data []byte) (hashcode.HashCode, error)
	// Get returns the data for h or a *MissingHashcodeError. The
	// returned slice must not be modified.
	Get(ctx context.Context, h hashcode.HashCode) ([]byte, error)
	Contains(ctx context.Context, h hashcode.HashCode) (bool, error)
	// Flush makes earlier adds durable and visible to HashCodes.
	Flush(ctx context.Context) error
	// HashCodes lists stored hashcodes in order as selected by q.
	HashCodes(ctx context.Context, q Query) ([]hashcode.HashCode, error)
	// HashOfHashCodes returns the hash of the digests HashCodes would
	// return for q, and the last of them.
	HashOfHashCodes(ctx context.Context, q Query) (sum, final hashcode.HashCode, err error)
	Algo() hashcode.Algo
	Close() error
}

// Query selects a run of hashcodes.
type Query struct {
	// Start is the first hashcode considered. The zero value starts at
	// the first hashcode, or the last when Reverse is set.
	Start hashcode.HashCode
	// After excludes Start itself.
	After   bool
	Reverse bool
	// Length bounds the number of hashcodes; 0 means no bound.
	Length int
}

// DefaultWindow is the run length used when comparing stores.
const DefaultWindow = 1024

// ErrNotFound is matched by every MissingHashcodeError.
var ErrNotFound = errors.New("hashcode not found")

type MissingHashcodeError struct {
	Hash hashcode.HashCode
}

func (e *MissingHashcodeError) Error() string {
	return fmt.Sprintf("missing hashcode: %s", e.Hash)
}

func (e *MissingHashcodeError) Is(target error) bool {
	return target == ErrNotFound
}

type NotStoreError struct {
	Dir string
}

func (e *NotStoreError) Error() string {
	return fmt.Sprintf("not a store: %s", e.Dir)
}

type ExistsError struct {
	Dir string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("directory not empty: %s", e.Dir)
}

// keyWalker is the ordered key iteration a store provides to
// selectHashCodes.
type keyWalker func(start hashcode.HashCode, reverse bool, fn func(h hashcode.HashCode) error) error

var errEnough = errors.New("enough hashcodes")

// selectHashCodes applies q to an ordered key walk.
func selectHashCodes(ctx context.Context, walk keyWalker, q Query) (hs []hashcode.HashCode, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	err = walk(q.Start, q.Reverse, func(h hashcode.HashCode) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if q.After && h == q.Start {
			return nil
		}
		hs = append(hs, h)
		if q.Length > 0 && len(hs) >= q.Length {
			return errEnough
		}
		return nil
	})
	if errors.Cause(err) == errEnough {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return
}

// hashOfHashCodes implements HashOfHashCodes on top of HashCodes.
func hashOfHashCodes(ctx context.Context, S Store, q Query) (sum, final hashcode.HashCode, err error) {
	hs, err := S.HashCodes(ctx, q)
	if err != nil {
		return
	}
	sum = hashcode.SumOf(S.Algo(), hs)
	if len(hs) > 0 {
		final = hs[len(hs)-1]
	}
	return
}
