package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestIdempotencyRepository_PostgresCompleteStoresOrderResponse(t *testing.T) {
	store := openPostgresStoreForIdempotencyTest(t)
	ctx := context.Background()
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)
	created, err := repo.CreateProcessing(ctx, "order-key-created", "hash-1", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)
	require.Zero(t, created.Response.HTTPStatus)

	err = repo.Complete(ctx, "order-key-created", domain.IdempotencyStatusCompleted, domain.OrderResponse{
		HTTPStatus:   201,
		ContentType:  "application/json",
		Location:     "/orders/42",
		DroppedLines: 1,
		Body:         []byte(`{"id":42,"lines":[]}`),
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "order-key-created")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusCompleted, got.Status)
	require.Equal(t, 201, got.Response.HTTPStatus)
	require.Equal(t, "/orders/42", got.Response.Location)
	require.Equal(t, "application/json", got.Response.ContentType)
	require.Equal(t, 1, got.Response.DroppedLines)
	require.JSONEq(t, `{"id":42,"lines":[]}`, string(got.Response.Body))
	require.True(t, got.TTLAt.Equal(ttl), "ttl mismatch: expected %s, got %s", ttl, got.TTLAt)

	err = repo.Complete(ctx, "order-key-created", domain.IdempotencyStatusRejected, domain.OrderResponse{HTTPStatus: 422})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_PostgresConflictReturnsExistingRecord(t *testing.T) {
	store := openPostgresStoreForIdempotencyTest(t)
	ctx := context.Background()
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(time.Hour)
	_, err := repo.CreateProcessing(ctx, "order-key-conflict", "hash-a", ttl)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, "order-key-conflict", domain.IdempotencyStatusRejected, domain.OrderResponse{
		HTTPStatus:  404,
		ContentType: "application/json",
		Body:        []byte(`{"code":"customer_not_found"}`),
	}))

	existing, err := repo.CreateProcessing(ctx, "order-key-conflict", "hash-a", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, domain.IdempotencyStatusRejected, existing.Status)
	require.Equal(t, 404, existing.Response.HTTPStatus)

	_, err = repo.CreateProcessing(ctx, "order-key-conflict", "hash-b", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestIdempotencyRepository_PostgresReleaseFreesProcessingKey(t *testing.T) {
	store := openPostgresStoreForIdempotencyTest(t)
	ctx := context.Background()
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(time.Hour)
	_, err := repo.CreateProcessing(ctx, "order-key-release", "hash", ttl)
	require.NoError(t, err)
	require.NoError(t, repo.Release(ctx, "order-key-release"))

	_, err = repo.Get(ctx, "order-key-release")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	_, err = repo.CreateProcessing(ctx, "order-key-release", "hash", ttl)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, "order-key-release", domain.IdempotencyStatusCompleted, domain.OrderResponse{HTTPStatus: 201}))
	require.ErrorIs(t, repo.Release(ctx, "order-key-release"), domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_PostgresDeleteExpiredOldestFirst(t *testing.T) {
	store := openPostgresStoreForIdempotencyTest(t)
	ctx := context.Background()
	repo := NewIdempotencyRepository(store)

	now := time.Now().UTC()
	for i, offset := range []time.Duration{-5 * time.Minute, -4 * time.Minute, -3 * time.Minute, time.Hour} {
		_, err := repo.CreateProcessing(ctx, "order-key-ttl-"+string(rune('a'+i)), "hash", now.Add(offset))
		require.NoError(t, err)
	}

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = repo.Get(ctx, "order-key-ttl-c")
	require.NoError(t, err, "youngest expired key must survive the limited pass")

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "order-key-ttl-d")
	require.NoError(t, err)
}

func openPostgresStoreForIdempotencyTest(t *testing.T) *Store {
	t.Helper()

	store := openPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := store.DB().ExecContext(ctx, `TRUNCATE TABLE idempotency_keys`)
	require.NoError(t, err)

	return store
}
