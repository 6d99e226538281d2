package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (CartRepository, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, EnsureIndexes(ctx, repo))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func TestListItems_Empty(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	items, err := repo.ListItems(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAddItem_ThenList(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	option := "XL"

	added, err := repo.AddItem(ctx, domain.CartItem{OwnerID: "user-1", ProductID: "P1", Quantity: 2, Option: &option})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)

	_, err = repo.AddItem(ctx, domain.CartItem{OwnerID: "user-2", ProductID: "P9", Quantity: 1})
	require.NoError(t, err)

	items, err := repo.ListItems(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, added.ID, items[0].ID)
	assert.Equal(t, "P1", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	require.NotNil(t, items[0].Option)
	assert.Equal(t, "XL", *items[0].Option)
}

func TestListItems_RepeatableRead(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for _, p := range []string{"P1", "P2", "P3"} {
		_, err := repo.AddItem(ctx, domain.CartItem{OwnerID: "user-1", ProductID: p, Quantity: 1})
		require.NoError(t, err)
	}

	first, err := repo.ListItems(ctx, "user-1")
	require.NoError(t, err)
	second, err := repo.ListItems(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDeleteItem(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	added, err := repo.AddItem(ctx, domain.CartItem{OwnerID: "user-1", ProductID: "P1", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteItem(ctx, "user-1", added.ID))

	items, err := repo.ListItems(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, repo.DeleteItem(ctx, "user-1", added.ID), ErrItemNotFound)
}

func TestDeleteItem_OtherOwner(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	added, err := repo.AddItem(ctx, domain.CartItem{OwnerID: "user-1", ProductID: "P1", Quantity: 1})
	require.NoError(t, err)

	assert.ErrorIs(t, repo.DeleteItem(ctx, "user-2", added.ID), ErrItemNotFound)
	assert.ErrorIs(t, repo.DeleteItem(ctx, "user-1", "not-an-object-id"), ErrItemNotFound)
}

func TestContextCancellation(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	time.Sleep(10 * time.Millisecond) // Ensure context is cancelled

	_, err := repo.ListItems(ctx, "user123")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}
