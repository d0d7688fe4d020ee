package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jellysync/jellysync/internal/serverdir"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func creds(address, serverID string) serverdir.ServerCredentials {
	return serverdir.ServerCredentials{
		PublicAddress: address,
		ServerID:      serverID,
		AccessToken:   "token-" + serverID,
		UserID:        "user-" + serverID,
		UserName:      "alice",
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, creds("https://s1", "srv-1")))
	require.NoError(t, store.Add(ctx, creds("https://s2", "srv-2")))

	got, err := store.GetByAddress(ctx, "https://s1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ServerID)
	assert.Equal(t, "token-srv-1", got.AccessToken)

	index, err := store.IndexByAddress(ctx, "https://s2")
	require.NoError(t, err)
	assert.Equal(t, 1, index)

	servers, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "https://s1", servers[0].PublicAddress)
}

func TestStoreNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetByAddress(ctx, "https://nowhere")
	assert.ErrorIs(t, err, serverdir.ErrNotFound)

	_, err = store.IndexByAddress(ctx, "https://nowhere")
	assert.ErrorIs(t, err, serverdir.ErrNotFound)

	err = store.RemoveByAddress(ctx, "https://nowhere")
	assert.ErrorIs(t, err, serverdir.ErrNotFound)
}

func TestStoreUpsertKeepsOneRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, creds("https://s1", "srv-1")))
	updated := creds("https://s1", "srv-1")
	updated.AccessToken = "rotated"
	require.NoError(t, store.Add(ctx, updated))

	servers, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "rotated", servers[0].AccessToken)
}

func TestStoreNormalizesAddresses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, creds("https://s1/", "srv-1")))

	got, err := store.GetByAddress(ctx, "  https://s1")
	require.NoError(t, err)
	assert.Equal(t, "https://s1", got.PublicAddress)
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, creds("https://s1", "srv-1")))
	require.NoError(t, store.RemoveByAddress(ctx, "https://s1"))

	_, err := store.GetByAddress(ctx, "https://s1")
	assert.ErrorIs(t, err, serverdir.ErrNotFound)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, creds("https://s1", "srv-1")))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.GetByAddress(ctx, "https://s1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ServerID)
}
