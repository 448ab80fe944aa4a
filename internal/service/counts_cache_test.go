package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountsCache(t *testing.T) {
	ctx := context.Background()

	t.Run("serves cached value within ttl", func(t *testing.T) {
		cache := NewCountsCache(time.Minute)
		fetches := 0
		fetch := func(ctx context.Context) (CodeCounts, error) {
			fetches++
			return CodeCounts{Available: 3, Total: 5}, nil
		}

		first, err := cache.Get(ctx, fetch)
		require.NoError(t, err)
		second, err := cache.Get(ctx, fetch)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, fetches)
	})

	t.Run("refetches after expiry", func(t *testing.T) {
		cache := NewCountsCache(time.Nanosecond)
		fetches := 0
		fetch := func(ctx context.Context) (CodeCounts, error) {
			fetches++
			return CodeCounts{Available: fetches}, nil
		}

		_, err := cache.Get(ctx, fetch)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		counts, err := cache.Get(ctx, fetch)
		require.NoError(t, err)

		assert.Equal(t, 2, fetches)
		assert.Equal(t, 2, counts.Available)
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		cache := NewCountsCache(time.Minute)
		fetches := 0
		fetch := func(ctx context.Context) (CodeCounts, error) {
			fetches++
			return CodeCounts{}, nil
		}

		_, err := cache.Get(ctx, fetch)
		require.NoError(t, err)
		cache.Invalidate()
		_, err = cache.Get(ctx, fetch)
		require.NoError(t, err)

		assert.Equal(t, 2, fetches)
	})

	t.Run("fetch error does not poison the cache", func(t *testing.T) {
		cache := NewCountsCache(time.Minute)
		boom := errors.New("connection refused")

		_, err := cache.Get(ctx, func(ctx context.Context) (CodeCounts, error) {
			return CodeCounts{}, boom
		})
		assert.ErrorIs(t, err, boom)

		counts, err := cache.Get(ctx, func(ctx context.Context) (CodeCounts, error) {
			return CodeCounts{Available: 7, Total: 9}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, CodeCounts{Available: 7, Total: 9}, counts)
	})
}
