package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmarket/internal/config"
)

type payload struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func TestMemory_SetGetClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemory(time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", payload{Name: "demand_ranking", Count: 3}, 0))

	var got payload
	require.NoError(t, c.Get(ctx, "a", &got))
	assert.Equal(t, payload{Name: "demand_ranking", Count: 3}, got)

	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrNotFound)

	require.NoError(t, c.Delete(ctx, "a"))
	assert.ErrorIs(t, c.Get(ctx, "a", &got), ErrNotFound)

	require.NoError(t, c.Set(ctx, "b", 1, 0))
	require.NoError(t, c.Set(ctx, "c", 2, 0))
	assert.Equal(t, 2, c.Len())
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestMemory_Expires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemory(time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	var s string
	assert.ErrorIs(t, c.Get(ctx, "short", &s), ErrNotFound)
}

func TestMemory_Closed(t *testing.T) {
	t.Parallel()

	c := NewMemory(0)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Set(context.Background(), "k", 1, 0), ErrClosed)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var n Noop
	require.NoError(t, n.Set(context.Background(), "k", 1, 0))
	var v int
	assert.ErrorIs(t, n.Get(context.Background(), "k", &v), ErrNotFound)
}

func TestKey_EscapesSeparator(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "run%3Afp:pay_ranking:x", Key("run:fp", "pay_ranking", "x"))
}

func TestNew_Kinds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, err := New(ctx, config.Cache{Kind: "none"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, c)

	c, err = New(ctx, config.Cache{Kind: "memory", TTLSeconds: 5})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)
	require.NoError(t, c.Close())

	_, err = New(ctx, config.Cache{Kind: "redis"})
	assert.Error(t, err)

	_, err = New(ctx, config.Cache{Kind: "memcached"})
	assert.Error(t, err)
}
