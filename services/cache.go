package services

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"autostats/config"
	"autostats/models"
)

// CacheMode indicates which cache backend is active
type CacheMode string

const (
	CacheModeRedis    CacheMode = "redis"
	CacheModeInMemory CacheMode = "in-memory"
)

const (
	keyPrefix         = "autostats:"
	keyLastRun        = keyPrefix + "last_run"
	keyLatestSnapshot = keyPrefix + "latest:"
	keyLockPrefix     = keyPrefix + "lock:"

	snapshotTTL = 7 * 24 * time.Hour
)

// compare-and-delete so an expired holder cannot release a newer lock
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// CacheItem for in-memory fallback
type CacheItem struct {
	Data      []byte
	ExpiresAt time.Time
}

// CacheService keeps the run lock and the latest collected snapshots. It uses
// Redis when configured and reachable and falls back to process memory.
type CacheService struct {
	cfg *config.Config

	// Redis
	redis       *redis.Client
	redisCtx    context.Context
	redisCancel context.CancelFunc
	mode        CacheMode
	modeMutex   sync.RWMutex

	// In-memory fallback
	inMemoryStore sync.Map
	lockMutex     sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewCacheService(cfg *config.Config) *CacheService {
	ctx, cancel := context.WithCancel(context.Background())

	cs := &CacheService{
		cfg:         cfg,
		redisCtx:    ctx,
		redisCancel: cancel,
		stopChan:    make(chan struct{}),
		mode:        CacheModeInMemory,
	}

	if cfg.Redis.Enabled {
		cs.connectRedis()
	} else {
		log.Info().Msg("Redis disabled in config, using in-memory cache only")
	}

	return cs
}

func (cs *CacheService) connectRedis() {
	if cs.cfg.Redis.Address == "" {
		log.Warn().Msg("Redis address not configured, using in-memory cache")
		return
	}

	options := &redis.Options{
		Addr:         cs.cfg.Redis.Address,
		Password:     cs.cfg.Redis.Password,
		DB:           cs.cfg.Redis.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     4,
		MaxRetries:   3,
	}

	if cs.cfg.Redis.UseTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		log.Debug().Msg("TLS enabled for Redis connection")
	}

	cs.redis = redis.NewClient(options)

	ctx, cancel := context.WithTimeout(cs.redisCtx, 10*time.Second)
	defer cancel()

	if err := cs.redis.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis connection failed, running in in-memory mode")
		cs.setMode(CacheModeInMemory)
		return
	}

	log.Info().Str("address", cs.cfg.Redis.Address).Msg("Redis connected")
	cs.setMode(CacheModeRedis)
}

func (cs *CacheService) setMode(mode CacheMode) {
	cs.modeMutex.Lock()
	defer cs.modeMutex.Unlock()
	cs.mode = mode
}

func (cs *CacheService) getMode() CacheMode {
	cs.modeMutex.RLock()
	defer cs.modeMutex.RUnlock()
	return cs.mode
}

// StartHealthCheck watches Redis and switches modes when it goes away or comes back.
func (cs *CacheService) StartHealthCheck() {
	if cs.redis == nil {
		return
	}
	go cs.runHealthCheckLoop()
}

func (cs *CacheService) Stop() {
	cs.stopOnce.Do(func() {
		close(cs.stopChan)
		cs.redisCancel()
		if cs.redis != nil {
			_ = cs.redis.Close()
		}
	})
}

func (cs *CacheService) runHealthCheckLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.checkRedisHealth()
		case <-cs.stopChan:
			return
		}
	}
}

func (cs *CacheService) checkRedisHealth() {
	if cs.redis == nil {
		return
	}

	mode := cs.getMode()
	ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
	defer cancel()

	err := cs.redis.Ping(ctx).Err()

	if mode == CacheModeRedis && err != nil {
		log.Warn().Err(err).Msg("Redis health check failed, switching to in-memory mode")
		cs.setMode(CacheModeInMemory)
	} else if mode == CacheModeInMemory && err == nil {
		log.Info().Msg("Redis reconnected, switching back to redis mode")
		cs.syncInMemoryToRedis()
		cs.setMode(CacheModeRedis)
	}
}

// syncInMemoryToRedis copies live entries to Redis on reconnection. Locks are
// copied too so a run that took one in memory can still release it, but only
// with SET NX: a lock another instance took in Redis meanwhile wins.
func (cs *CacheService) syncInMemoryToRedis() {
	synced := 0
	cs.inMemoryStore.Range(func(key, value interface{}) bool {
		item := value.(*CacheItem)
		ttl := time.Until(item.ExpiresAt)
		if ttl <= 0 {
			return true
		}
		k := key.(string)
		var err error
		if isLockKey(k) {
			err = cs.redis.SetNX(cs.redisCtx, k, item.Data, ttl).Err()
		} else {
			err = cs.setRedis(k, item.Data, ttl)
		}
		if err == nil {
			synced++
		}
		return true
	})
	log.Debug().Int("items", synced).Msg("Synced in-memory cache to Redis")
}

func isLockKey(key string) bool {
	return strings.HasPrefix(key, keyLockPrefix)
}

// Set stores data as JSON in the active cache backend
func (cs *CacheService) Set(key string, data interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	if cs.getMode() == CacheModeRedis {
		err := cs.setRedis(key, raw, ttl)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Str("key", key).Msg("Redis SET failed, falling back to in-memory")
	}
	cs.setInMemory(key, raw, ttl)
	return nil
}

// Get decodes the cached value for key into dest.
func (cs *CacheService) Get(key string, dest interface{}) (bool, error) {
	var raw []byte
	var found bool

	if cs.getMode() == CacheModeRedis {
		var err error
		raw, found, err = cs.getRedis(key)
		if err != nil {
			raw, found = cs.getInMemory(key)
		}
	} else {
		raw, found = cs.getInMemory(key)
	}

	if !found {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (cs *CacheService) setRedis(key string, data []byte, ttl time.Duration) error {
	if cs.redis == nil {
		return fmt.Errorf("redis client not initialized")
	}
	ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
	defer cancel()
	return cs.redis.Set(ctx, key, data, ttl).Err()
}

func (cs *CacheService) getRedis(key string) ([]byte, bool, error) {
	if cs.redis == nil {
		return nil, false, fmt.Errorf("redis client not initialized")
	}
	ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
	defer cancel()

	data, err := cs.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (cs *CacheService) setInMemory(key string, data []byte, ttl time.Duration) {
	cs.inMemoryStore.Store(key, &CacheItem{
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
	})
}

func (cs *CacheService) getInMemory(key string) ([]byte, bool) {
	val, ok := cs.inMemoryStore.Load(key)
	if !ok {
		return nil, false
	}
	item := val.(*CacheItem)
	if time.Now().After(item.ExpiresAt) {
		cs.inMemoryStore.Delete(key)
		return nil, false
	}
	return item.Data, true
}

// ============================================
// Run lock
// ============================================

// AcquireLock takes the named lock for ttl. ok is false when another holder has it.
// The returned token must be passed to ReleaseLock.
func (cs *CacheService) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token, err := newLockToken()
	if err != nil {
		return "", false, err
	}
	key := keyLockPrefix + name

	if cs.getMode() == CacheModeRedis {
		ok, err := cs.redis.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		return token, ok, nil
	}

	cs.lockMutex.Lock()
	defer cs.lockMutex.Unlock()

	if _, held := cs.getInMemory(key); held {
		return "", false, nil
	}
	cs.setInMemory(key, []byte(token), ttl)
	return token, true, nil
}

func (cs *CacheService) ReleaseLock(ctx context.Context, name, token string) error {
	key := keyLockPrefix + name

	if cs.getMode() == CacheModeRedis {
		if err := releaseScript.Run(ctx, cs.redis, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to release lock %s: %w", name, err)
		}
		return nil
	}

	cs.lockMutex.Lock()
	defer cs.lockMutex.Unlock()

	if held, ok := cs.getInMemory(key); ok && string(held) == token {
		cs.inMemoryStore.Delete(key)
	}
	return nil
}

func newLockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ============================================
// Typed Helper Methods
// ============================================

func (cs *CacheService) SetLatestSnapshot(snap *models.Snapshot) {
	if err := cs.Set(keyLatestSnapshot+snap.Network, snap, snapshotTTL); err != nil {
		log.Warn().Err(err).Str("network", snap.Network).Msg("Failed to cache snapshot")
	}
}

func (cs *CacheService) GetLatestSnapshot(network string) (*models.Snapshot, bool) {
	var snap models.Snapshot
	found, err := cs.Get(keyLatestSnapshot+network, &snap)
	if err != nil {
		log.Warn().Err(err).Str("network", network).Msg("Failed to read cached snapshot")
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &snap, true
}

func (cs *CacheService) SetLastRun(result *models.RunResult) {
	if err := cs.Set(keyLastRun, result, snapshotTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to cache run result")
	}
}

func (cs *CacheService) GetLastRun() (*models.RunResult, bool) {
	var result models.RunResult
	found, err := cs.Get(keyLastRun, &result)
	if err != nil || !found {
		return nil, false
	}
	return &result, true
}

func (cs *CacheService) GetCacheMode() CacheMode {
	return cs.getMode()
}

func (cs *CacheService) GetCacheStats() map[string]interface{} {
	stats := map[string]interface{}{
		"mode":    string(cs.getMode()),
		"enabled": cs.cfg.Redis.Enabled,
	}

	if cs.getMode() == CacheModeRedis && cs.redis != nil {
		ctx, cancel := context.WithTimeout(cs.redisCtx, 2*time.Second)
		defer cancel()
		if dbSize, err := cs.redis.DBSize(ctx).Result(); err == nil {
			stats["redis_keys"] = dbSize
		}
	}

	inMemCount := 0
	cs.inMemoryStore.Range(func(_, _ interface{}) bool {
		inMemCount++
		return true
	})
	stats["in_memory_keys"] = inMemCount

	return stats
}
