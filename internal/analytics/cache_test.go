package analytics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	rows  []Row
	calls int
}

func (r *countingRepo) Rows(context.Context, int64, Filters) ([]Row, error) {
	r.calls++
	return r.rows, nil
}

func cacheFixture(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheVersioning(t *testing.T) {
	cache, _ := cacheFixture(t)
	ctx := context.Background()

	v, err := cache.Version(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, v, "unset version reads as zero")

	require.NoError(t, cache.Bump(ctx, 1))
	require.NoError(t, cache.Bump(ctx, 1))
	v, err = cache.Version(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, v)

	// Organizations version independently.
	v, err = cache.Version(ctx, 2)
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestServiceCachesViews(t *testing.T) {
	cache, _ := cacheFixture(t)
	repo := &countingRepo{rows: abcRows()}
	svc := NewService(repo, defaultEngine(), cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	first, err := svc.Overview(ctx, 1, Filters{})
	require.NoError(t, err)
	second, err := svc.Overview(ctx, 1, Filters{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls, "second read is served from cache")
	require.True(t, first.TotalSpend.Equal(second.TotalSpend))
}

func TestServiceInvalidatesOnBump(t *testing.T) {
	cache, _ := cacheFixture(t)
	repo := &countingRepo{rows: abcRows()}
	svc := NewService(repo, defaultEngine(), cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := svc.Pareto(ctx, 1, Filters{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	require.NoError(t, svc.InvalidateOrg(ctx, 1))

	_, err = svc.Pareto(ctx, 1, Filters{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls, "bumped version forces recomputation")
}

func TestServiceFilterKeysAreDistinct(t *testing.T) {
	cache, _ := cacheFixture(t)
	repo := &countingRepo{rows: abcRows()}
	svc := NewService(repo, defaultEngine(), cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := svc.Overview(ctx, 1, Filters{})
	require.NoError(t, err)

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Overview(ctx, 1, Filters{DateFrom: &from})
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls, "different filters never share a cache entry")
}

func TestServiceWithoutCache(t *testing.T) {
	repo := &countingRepo{rows: abcRows()}
	svc := NewService(repo, defaultEngine(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := svc.Overview(ctx, 1, Filters{})
	require.NoError(t, err)
	_, err = svc.Overview(ctx, 1, Filters{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
	require.NoError(t, svc.InvalidateOrg(ctx, 1))
}
