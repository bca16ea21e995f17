package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *Badger {
	t.Helper()
	db, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerGetPutDelete(t *testing.T) {
	db := newTestBadger(t)
	ctx := context.Background()

	_, err := db.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put(ctx, "user:1", []byte("alice")))
	value, err := db.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), value)

	require.NoError(t, db.Delete(ctx, "user:1"))
	assert.ErrorIs(t, db.Delete(ctx, "user:1"), ErrNotFound)
}

func TestBadgerPutIfAbsent(t *testing.T) {
	db := newTestBadger(t)
	ctx := context.Background()

	ok, err := db.PutIfAbsent(ctx, "email:a@example.com", []byte("1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.PutIfAbsent(ctx, "email:a@example.com", []byte("2"))
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := db.Get(ctx, "email:a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)
}

func TestBadgerScan(t *testing.T) {
	db := newTestBadger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Put(ctx, fmt.Sprintf("user:%d", i), []byte{byte(i)}))
	}
	require.NoError(t, db.Put(ctx, "email:x", []byte("x")))

	entries, err := db.Scan(ctx, "user:", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	assert.Equal(t, "user:0", entries[0].Key)

	entries, err = db.Scan(ctx, "user:", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBadgerClosed(t *testing.T) {
	db, err := OpenBadger("")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.ErrorIs(t, db.Ping(context.Background()), ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(configWithDriver("cassandra"))
	assert.Error(t, err)
}
