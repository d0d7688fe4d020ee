package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jellysync/jellysync/internal/serverdir"
)

func TestDirectoryOrderAndLookup(t *testing.T) {
	dir := NewDirectory()
	ctx := context.Background()

	require.NoError(t, dir.Add(ctx, serverdir.ServerCredentials{PublicAddress: "https://s1/", ServerID: "srv-1"}))
	require.NoError(t, dir.Add(ctx, serverdir.ServerCredentials{PublicAddress: "https://s2", ServerID: "srv-2"}))

	index, err := dir.IndexByAddress(ctx, "https://s2")
	require.NoError(t, err)
	assert.Equal(t, 1, index)

	// trailing slashes never split one server into two entries
	got, err := dir.GetByAddress(ctx, "https://s1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ServerID)

	require.NoError(t, dir.Add(ctx, serverdir.ServerCredentials{PublicAddress: "https://s1", ServerID: "srv-1b"}))
	servers, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "srv-1b", servers[0].ServerID)

	require.NoError(t, dir.RemoveByAddress(ctx, "https://s1"))
	_, err = dir.GetByAddress(ctx, "https://s1")
	assert.ErrorIs(t, err, serverdir.ErrNotFound)
}
