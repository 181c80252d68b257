package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return New(client, "tally:items", nil), mr
}

func TestStore_InsertAndList(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	ref, err := s.Insert(ctx, core.LineItem{Item: "Bread", Category: "Food", Price: decimal.RequireFromString("2.50")})
	require.NoError(t, err)
	assert.Equal(t, "redis:1", ref)

	ref, err = s.Insert(ctx, core.LineItem{Category: "Drinks"})
	require.NoError(t, err)
	assert.Equal(t, "redis:2", ref)

	recs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, "Bread", recs[0].Item)
	assert.True(t, recs[0].Price.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "Drinks", recs[1].Category)

	seq, err := mr.Get("tally:items:seq")
	require.NoError(t, err)
	assert.Equal(t, "2", seq)
}

func TestStore_SkipsMalformed(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, core.LineItem{Category: "Food"})
	require.NoError(t, err)
	_, err = mr.RPush("tally:items", "{not json")
	require.NoError(t, err)

	recs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestStore_Unavailable(t *testing.T) {
	s, mr := setupStore(t)
	mr.Close()

	_, err := s.Insert(context.Background(), core.LineItem{Category: "Food"})
	assert.Error(t, err)
	_, err = s.List(context.Background())
	assert.Error(t, err)
}
