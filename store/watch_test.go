package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t7a/vt/datafile"
	"github.com/t7a/vt/hashcode"
)

// foreign appends to the data directory of S the way a second process
// would.
func foreign(t *testing.T, S *DataDirStore, data [][]byte) (hs []hashcode.HashCode) {
	t.Helper()
	d, err := datafile.OpenDir(filepath.Join(S.Dir, dataName), 0)
	require.NoError(t, err)
	defer d.Close()
	for _, buf := range data {
		_, _, _, _, err := d.Add(buf)
		require.NoError(t, err)
		hs = append(hs, hashcode.Sum(S.Algo(), buf))
	}
	require.NoError(t, d.Sync())
	return
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	S := newDataDir(t, Config{})
	addAll(t, S, chunks("own", 5))

	data := chunks("foreign", 8)
	hs := foreign(t, S, data)
	ok, err := S.Contains(ctx, hs[0])
	require.NoError(t, err)
	tassert(t, !ok, "foreign chunk indexed before refresh")

	added, err := S.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, added)
	for i, h := range hs {
		got, err := S.Get(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, data[i], got)
	}

	// only new records are looked at again
	added, err = S.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	more := foreign(t, S, chunks("later", 3))
	added, err = S.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	ok, err = S.Contains(ctx, more[2])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	S := newDataDir(t, Config{})
	done := make(chan error, 1)
	go func() {
		done <- S.Watch(ctx)
	}()

	hs := foreign(t, S, chunks("watched", 4))
	deadline := time.Now().Add(10 * time.Second)
	for _, h := range hs {
		for {
			ok, err := S.Contains(ctx, h)
			require.NoError(t, err)
			if ok {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("%s not indexed", h)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}
