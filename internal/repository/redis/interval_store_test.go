package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/localnotify/internal/model"
)

func newStore(t *testing.T) (*IntervalStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewIntervalStore(client, ""), mr
}

func TestIntervalStoreSaveGet(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	require.NoError(t, store.Save(ctx, "weekly", model.RepeatWeek))
	assert.Equal(t, "week", mr.HGet(DefaultKey, "weekly"))

	interval, found, err := store.Get(ctx, "weekly")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, model.RepeatWeek, interval)

	_, found, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Error(t, store.Save(ctx, "bad", model.RepeatInterval("fortnight")))
}

func TestIntervalStoreUnknownValueIsAbsent(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	mr.HSet(DefaultKey, "legacy", "month")
	_, found, err := store.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIntervalStoreDeleteClear(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	require.NoError(t, store.Save(ctx, "a", model.RepeatDay))
	require.NoError(t, store.Save(ctx, "b", model.RepeatHour))
	require.NoError(t, store.Delete(ctx, "a", "never-saved"))
	require.NoError(t, store.Delete(ctx))

	_, found, _ := store.Get(ctx, "a")
	assert.False(t, found)
	_, found, _ = store.Get(ctx, "b")
	assert.True(t, found)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists(DefaultKey))
}

func TestIntervalStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)
	mr.Close()

	_, _, err := store.Get(ctx, "a")
	assert.Error(t, err)
}
