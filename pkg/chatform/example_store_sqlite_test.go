package chatform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestExampleStore(t *testing.T) *ExampleStore {
	t.Helper()
	store, err := NewExampleStore("file::memory:?mode=memory")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestExampleStore_PutGetRoundTrip(t *testing.T) {
	store := newTestExampleStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "hello", strptr("hi there")))

	response, hit, err := store.Get(ctx, "hello")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, strptr("hi there"), response)
}

func TestExampleStore_MissReportsNoHit(t *testing.T) {
	store := newTestExampleStore(t)

	response, hit, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, hit)
	require.Nil(t, response)
}

func TestExampleStore_NilResponseIsAHit(t *testing.T) {
	store := newTestExampleStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "silent", nil))

	response, hit, err := store.Get(ctx, "silent")
	require.NoError(t, err)
	require.True(t, hit)
	require.Nil(t, response)
}

func TestExampleStore_PutReplaces(t *testing.T) {
	store := newTestExampleStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "in", strptr("v1")))
	require.NoError(t, store.Put(ctx, "in", strptr("v2")))

	response, hit, err := store.Get(ctx, "in")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, strptr("v2"), response)
}

func TestSQLiteDSNForFile(t *testing.T) {
	dsn, err := SQLiteDSNForFile("chat.db")
	require.NoError(t, err)
	require.Contains(t, dsn, "chat.db")
	require.Contains(t, dsn, "_journal_mode=WAL")

	_, err = SQLiteDSNForFile("")
	require.Error(t, err)
}
