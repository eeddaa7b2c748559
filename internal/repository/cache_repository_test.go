package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheRepository(client, zap.NewNop()), srv
}

func TestCacheRoundTrip(t *testing.T) {
	repo, _ := newCacheRepo(t)
	ctx := context.Background()

	payload := map[string]int{"cards": 4}
	require.NoError(t, repo.Set(ctx, "board:school-1:all", payload, time.Minute))

	var out map[string]int
	require.NoError(t, repo.Get(ctx, "board:school-1:all", &out))
	assert.Equal(t, 4, out["cards"])
}

func TestCacheGetMiss(t *testing.T) {
	repo, _ := newCacheRepo(t)

	var out map[string]int
	err := repo.Get(context.Background(), "board:absent", &out)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheDeleteByPattern(t *testing.T) {
	repo, srv := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "board:school-1:all", 1, time.Minute))
	require.NoError(t, repo.Set(ctx, "board:school-1:student-1", 2, time.Minute))
	require.NoError(t, repo.Set(ctx, "board:school-2:all", 3, time.Minute))

	require.NoError(t, repo.DeleteByPattern(ctx, "board:school-1:*"))

	assert.False(t, srv.Exists("board:school-1:all"))
	assert.False(t, srv.Exists("board:school-1:student-1"))
	assert.True(t, srv.Exists("board:school-2:all"))
}
