package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const slugKeyPrefix = "storefront:slug:"

// releaseScript deletes the reservation only when it still belongs to the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// SlugRegistry reserves store URL slugs across service instances in Redis
type SlugRegistry struct {
	client *redis.Client
}

// NewSlugRegistry connects to Redis. When Redis is unreachable the registry
// degrades to accepting every reservation and uniqueness rests on the local
// cache and the document store.
func NewSlugRegistry(redisURL string) (*SlugRegistry, error) {
	if redisURL == "" {
		return &SlugRegistry{}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return &SlugRegistry{}, nil
	}
	return &SlugRegistry{client: client}, nil
}

// NewSlugRegistryWithClient wraps an existing client
func NewSlugRegistryWithClient(client *redis.Client) *SlugRegistry {
	return &SlugRegistry{client: client}
}

// Available reports whether the registry is backed by Redis
func (r *SlugRegistry) Available() bool {
	return r.client != nil
}

func (r *SlugRegistry) key(slug string) string {
	return slugKeyPrefix + slug
}

// Reserve claims slug for storeID. It returns false when another store holds
// it; reserving a slug the store already holds succeeds.
func (r *SlugRegistry) Reserve(ctx context.Context, slug, storeID string) (bool, error) {
	if r.client == nil {
		return true, nil
	}

	ok, err := r.client.SetNX(ctx, r.key(slug), storeID, 0).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	owner, err := r.client.Get(ctx, r.key(slug)).Result()
	if err == redis.Nil {
		return r.Reserve(ctx, slug, storeID)
	}
	if err != nil {
		return false, err
	}
	return owner == storeID, nil
}

// Release frees slug if storeID still holds it
func (r *SlugRegistry) Release(ctx context.Context, slug, storeID string) error {
	if r.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, r.client, []string{r.key(slug)}, storeID).Err()
}

// Ping checks the Redis connection
func (r *SlugRegistry) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (r *SlugRegistry) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
