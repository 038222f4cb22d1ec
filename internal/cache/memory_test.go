package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/model"
)

func TestLatestKey(t *testing.T) {
	assert.Equal(t, "server:42:latest", LatestKey(42))
}

func TestMemorySetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	snap := model.MetricSnapshot{ServerID: 3, CPUPct: 42.5, MemoryPct: 61.0}
	require.NoError(t, c.Set(ctx, LatestKey(3), snap, time.Minute))

	var got model.MetricSnapshot
	require.NoError(t, c.Get(ctx, LatestKey(3), &got))
	assert.Equal(t, snap.ServerID, got.ServerID)
	assert.Equal(t, snap.CPUPct, got.CPUPct)
	assert.Equal(t, snap.MemoryPct, got.MemoryPct)
}

func TestMemoryMiss(t *testing.T) {
	c := NewMemory()

	var got model.MetricSnapshot
	err := c.Get(context.Background(), LatestKey(99), &got)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var got string
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrMiss)
}

func TestMemoryOverwrite(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "k", 2, time.Minute))

	var got int
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 2, got)
}
