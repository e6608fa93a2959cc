//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/pkg/domain"
	"relay/pkg/platform/sentinel"
	"relay/pkg/testutil/containers"
)

func TestAccountStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	store := New(pg.Pool)
	require.NoError(t, store.Migrate(ctx))

	_, err := store.FindByID(ctx, "u1")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	account := &domain.Account{Principal: domain.Principal{ID: "u1", Role: "admin", Name: "Ada"}, Active: true}
	require.NoError(t, store.Save(ctx, account))
	account.Active = false
	require.NoError(t, store.Save(ctx, account))

	found, err := store.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "admin", found.Role)
	assert.Equal(t, "Ada", found.Name)
	assert.False(t, found.Active)
}
