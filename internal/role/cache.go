package role

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (m *MemoryCache) Get(_ context.Context, sessionID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sessionID]
	return e, ok
}

func (m *MemoryCache) Put(_ context.Context, sessionID string, e Entry) {
	m.mu.Lock()
	m.entries[sessionID] = e
	m.mu.Unlock()
}

func (m *MemoryCache) Drop(_ context.Context, sessionID string) {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
}

func (m *MemoryCache) DropEmail(_ context.Context, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, e := range m.entries {
		if strings.EqualFold(e.Email, email) {
			delete(m.entries, sid)
		}
	}
}

// RedisCache shares resolutions between replicas. Values are "email|role"
// under role:<sessionID>, expiring with the session.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(sessionID string) string { return fmt.Sprintf("role:%s", sessionID) }

func (c *RedisCache) Get(ctx context.Context, sessionID string) (Entry, bool) {
	val, err := c.client.Get(ctx, redisKey(sessionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[role] redis get: %v", err)
		}
		return Entry{}, false
	}
	return decodeEntry(val)
}

func (c *RedisCache) Put(ctx context.Context, sessionID string, e Entry) {
	if err := c.client.Set(ctx, redisKey(sessionID), encodeEntry(e), c.ttl).Err(); err != nil {
		log.Printf("[role] redis set: %v", err)
	}
}

func (c *RedisCache) Drop(ctx context.Context, sessionID string) {
	if err := c.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		log.Printf("[role] redis del: %v", err)
	}
}

func (c *RedisCache) DropEmail(ctx context.Context, email string) {
	iter := c.client.Scan(ctx, 0, "role:*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		if e, ok := decodeEntry(val); ok && strings.EqualFold(e.Email, email) {
			c.client.Del(ctx, key)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("[role] redis scan: %v", err)
	}
}

func encodeEntry(e Entry) string {
	return e.Email + "|" + e.Role.String()
}

func decodeEntry(val string) (Entry, bool) {
	i := strings.LastIndex(val, "|")
	if i < 0 {
		return Entry{}, false
	}
	r, err := Parse(val[i+1:])
	if err != nil {
		return Entry{}, false
	}
	return Entry{Email: val[:i], Role: r}, true
}
