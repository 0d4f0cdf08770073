package rdx

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Conn is the shared Redis client. When no Redis address is configured it
// stays nil and the package falls back to an in-process map, so single-node
// deployments and tests work without Redis. The fallback does not survive
// restarts; run Redis wherever webhook retries may span a deploy.
var Conn *redis.Client

var (
	localMu   sync.Mutex
	localKeys = map[string]time.Time{} // key -> expiry
)

// Init connects the shared client. An empty addr keeps the in-process
// fallback.
func Init(addr string) error {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return err
	}
	Conn = client
	return nil
}

// RdxSetNX sets key only if absent, with a TTL. Returns true when this call
// acquired the key.
func RdxSetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if Conn != nil {
		return Conn.SetNX(ctx, key, value, ttl).Result()
	}

	localMu.Lock()
	defer localMu.Unlock()
	now := time.Now()
	if exp, ok := localKeys[key]; ok && exp.After(now) {
		return false, nil
	}
	localKeys[key] = now.Add(ttl)
	return true, nil
}

// RdxDel removes a key.
func RdxDel(ctx context.Context, key string) error {
	if Conn != nil {
		return Conn.Del(ctx, key).Err()
	}
	localMu.Lock()
	defer localMu.Unlock()
	delete(localKeys, key)
	return nil
}
