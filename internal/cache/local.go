package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LocalClient is the in-process CounterClient used when no memcached servers are configured.
type LocalClient struct {
	store *gocache.Cache
	mu    sync.Mutex
}

func NewLocalClient(cleanup time.Duration) *LocalClient {
	return &LocalClient{store: gocache.New(gocache.NoExpiration, cleanup)}
}

func (lc *LocalClient) Increment(key string, ttl time.Duration) (uint64, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if v, err := lc.store.IncrementUint64(key, 1); err == nil {
		return v, nil
	}
	if err := lc.store.Add(key, uint64(1), ttl); err != nil {
		return 0, err
	}
	return 1, nil
}

func (lc *LocalClient) Get(key string) (uint64, error) {
	if v, ok := lc.store.Get(key); ok {
		return v.(uint64), nil
	}
	return 0, nil
}

func (lc *LocalClient) Close() {
	lc.store.Flush()
}
