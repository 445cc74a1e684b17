package access

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on Redis so that multiple API replicas share
// one membership view. Expiry is delegated to Redis TTLs.
type RedisCache struct {
	client     *redis.Client
	ttl        time.Duration
	permPrefix string
	namePrefix string
}

// NewRedisCache connects to Redis at the given URL. ttl <= 0 uses DefaultTTL.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client:     client,
		ttl:        ttl,
		permPrefix: "perm:",
		namePrefix: "projname:",
	}
}

type redisEntry struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Roles map[string]string `json:"roles"`
}

func (c *RedisCache) GetProject(ctx context.Context, projectID string) (ProjectEntry, bool) {
	payload, err := c.client.Get(ctx, c.permPrefix+projectID).Bytes()
	if err == redis.Nil {
		return ProjectEntry{}, false
	}
	if err != nil {
		log.Printf("access: redis get %s: %v", projectID, err)
		return ProjectEntry{}, false
	}

	var stored redisEntry
	if err := json.Unmarshal(payload, &stored); err != nil {
		log.Printf("access: corrupt cache entry for %s: %v", projectID, err)
		return ProjectEntry{}, false
	}

	roles := make(Membership, len(stored.Roles))
	for member, role := range stored.Roles {
		roles[member] = Normalize(role)
	}
	return ProjectEntry{ID: stored.ID, Name: stored.Name, Roles: roles}, true
}

func (c *RedisCache) SetProject(ctx context.Context, entry ProjectEntry) {
	roles := make(map[string]string, len(entry.Roles))
	for member, role := range entry.Roles {
		roles[member] = string(role)
	}
	payload, err := json.Marshal(redisEntry{ID: entry.ID, Name: entry.Name, Roles: roles})
	if err != nil {
		log.Printf("access: marshal cache entry for %s: %v", entry.ID, err)
		return
	}
	if err := c.client.Set(ctx, c.permPrefix+entry.ID, payload, c.ttl).Err(); err != nil {
		log.Printf("access: redis set %s: %v", entry.ID, err)
	}
}

func (c *RedisCache) GetProjectID(ctx context.Context, name string) (string, bool) {
	id, err := c.client.Get(ctx, c.namePrefix+name).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("access: redis get name %s: %v", name, err)
		return "", false
	}
	return id, true
}

func (c *RedisCache) SetProjectID(ctx context.Context, name, id string) {
	if err := c.client.Set(ctx, c.namePrefix+name, id, c.ttl).Err(); err != nil {
		log.Printf("access: redis set name %s: %v", name, err)
	}
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping verifies connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
