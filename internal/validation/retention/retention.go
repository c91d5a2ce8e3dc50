// Package retention caches completed run results with a TTL and cleans up
// the injector's temp files. The run store stays authoritative; the cache
// only serves hot result lookups and ages them out.
package retention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "veritax:run:"

// Cache holds serialized run results until their TTL expires.
type Cache interface {
	Put(ctx context.Context, runID string, payload any) error
	// Get decodes the cached payload into out. ok is false on a miss.
	Get(ctx context.Context, runID string, out any) (bool, error)
}

// RedisCache stores results in Redis with per-key expiry.
type RedisCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisCache wraps a connected client. ttl must be positive.
func NewRedisCache(client *goredis.Client, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("retention ttl must be positive, got %s", ttl)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Put(ctx context.Context, runID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode cached run: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+runID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache run %s: %w", runID, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, runID string, out any) (bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+runID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cached run %s: %w", runID, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode cached run %s: %w", runID, err)
	}
	return true, nil
}

// MemoryCache is an in-process Cache for development and tests.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// NewMemoryCache creates a memory cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Put(ctx context.Context, runID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode cached run: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[runID] = memoryEntry{raw: raw, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, runID string, out any) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[runID]
	if ok && c.now().After(entry.expiresAt) {
		delete(c.entries, runID)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.raw, out); err != nil {
		return false, fmt.Errorf("decode cached run %s: %w", runID, err)
	}
	return true, nil
}

// CleanupTempFiles removes injector temp files older than maxAge from dir.
// A missing directory is not an error; nothing has been injected yet.
func CleanupTempFiles(dir string, maxAge time.Duration, logger *slog.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove temp file", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("temp files cleaned up", "dir", dir, "removed", removed)
	}
	return removed, nil
}
