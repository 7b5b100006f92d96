package services

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostats/config"
	"autostats/models"
)

func newMemoryCache(t *testing.T) *CacheService {
	t.Helper()
	cfg := config.Default()
	cfg.Redis.Enabled = false
	cs := NewCacheService(cfg)
	t.Cleanup(cs.Stop)
	return cs
}

func TestCacheService_InMemoryMode(t *testing.T) {
	cs := newMemoryCache(t)
	assert.Equal(t, CacheModeInMemory, cs.GetCacheMode())

	require.NoError(t, cs.Set("k", map[string]int{"a": 1}, time.Minute))
	var got map[string]int
	found, err := cs.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got["a"])

	require.NoError(t, cs.Set("expired", 1, -time.Second))
	var n int
	found, err = cs.Get("expired", &n)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheService_Lock(t *testing.T) {
	cs := newMemoryCache(t)
	ctx := context.Background()

	token, ok, err := cs.AcquireLock(ctx, "collect", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = cs.AcquireLock(ctx, "collect", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	// a stale token does not release someone else's lock
	require.NoError(t, cs.ReleaseLock(ctx, "collect", "not-the-token"))
	_, ok, _ = cs.AcquireLock(ctx, "collect", time.Minute)
	assert.False(t, ok)

	require.NoError(t, cs.ReleaseLock(ctx, "collect", token))
	_, ok, err = cs.AcquireLock(ctx, "collect", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheService_LockExpires(t *testing.T) {
	cs := newMemoryCache(t)
	ctx := context.Background()

	_, ok, err := cs.AcquireLock(ctx, "collect", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok, err = cs.AcquireLock(ctx, "collect", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheService_Snapshots(t *testing.T) {
	cs := newMemoryCache(t)

	_, found := cs.GetLatestSnapshot("mainnet")
	assert.False(t, found)

	pledged, _ := new(big.Int).SetString("1152921504606846976", 10)
	nodes := "1234"
	cs.SetLatestSnapshot(&models.Snapshot{
		Network:      "mainnet",
		Sheet:        "mainnet",
		Timestamp:    time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
		Stats:        models.NetworkStats{NodeCount: &nodes},
		SpacePledged: pledged,
		Metrics:      &models.DerivedMetrics{SpacePledgedPiB: "1024.00"},
		Row:          models.Row{"2024-05-02T10:00:00.000Z", "1234"},
	})

	snap, found := cs.GetLatestSnapshot("mainnet")
	require.True(t, found)
	assert.Equal(t, 0, pledged.Cmp(snap.SpacePledged))
	require.NotNil(t, snap.Stats.NodeCount)
	assert.Equal(t, "1234", *snap.Stats.NodeCount)
	assert.Equal(t, "1024.00", snap.Metrics.SpacePledgedPiB)

	cs.SetLastRun(&models.RunResult{Status: models.RunSkipped, Attempts: 1})
	run, found := cs.GetLastRun()
	require.True(t, found)
	assert.Equal(t, models.RunSkipped, run.Status)

	stats := cs.GetCacheStats()
	assert.Equal(t, "in-memory", stats["mode"])
	assert.Equal(t, 2, stats["in_memory_keys"])
}

func TestCacheService_LockKeysAreSyncedWithSetNX(t *testing.T) {
	cs := newMemoryCache(t)

	_, ok, err := cs.AcquireLock(context.Background(), "collect", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	cs.SetLastRun(&models.RunResult{Status: models.RunSuccess})

	kinds := map[string]bool{}
	cs.inMemoryStore.Range(func(key, _ interface{}) bool {
		kinds[key.(string)] = isLockKey(key.(string))
		return true
	})
	assert.Equal(t, map[string]bool{
		keyLockPrefix + "collect": true,
		keyLastRun:                false,
	}, kinds)
}
