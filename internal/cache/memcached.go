package cache

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/lead-scrape-worker/config"
	"github.com/bradfitz/gomemcache/memcache"
	jsoniter "github.com/json-iterator/go"
)

// CounterClient keeps expiring counters shared by every worker process.
type CounterClient interface {
	Increment(key string, ttl time.Duration) (uint64, error)
	Get(key string) (uint64, error)
	Close()
}

type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.CacheConfig
	log    *slog.Logger
	mu     sync.Mutex
}

func NewMemcachedClient(cacheConfig *config.CacheConfig, log *slog.Logger) (*MemcachedClient, error) {
	log.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	servers := strings.Split(cacheConfig.Servers, ",")
	if err := ss.SetServers(servers...); err != nil {
		return nil, err
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    cacheConfig,
		log:    log,
	}
	c.log.Info("pinging the memcached.")
	if err := c.client.Ping(); err != nil {
		return nil, err
	}
	c.log.Info("connected to memcached!")

	return c, nil
}

// Increment bumps the counter, creating it with the given ttl on first use.
func (mc *MemcachedClient) Increment(key string, ttl time.Duration) (uint64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	v, err := mc.client.Increment(key, 1)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, memcache.ErrCacheMiss) {
		mc.log.Warn("failed to increment the counter.", slog.String("key", key), slog.String("err", err.Error()))
		return 0, err
	}

	err = mc.add(key, 1, int32(ttl.Seconds()))
	if errors.Is(err, memcache.ErrNotStored) {
		// another process created the key in between
		return mc.client.Increment(key, 1)
	}
	if err != nil {
		return 0, err
	}
	mc.log.Debug("counter created.", slog.String("key", key))

	return 1, nil
}

func (mc *MemcachedClient) Get(key string) (uint64, error) {
	item, err := mc.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(item.Value)), 10, 64)
}

func (mc *MemcachedClient) Close() {
	mc.log.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		mc.log.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func (mc *MemcachedClient) add(key string, value any, expiration int32) error {
	byteValue, err := jsoniter.Marshal(value)
	if err != nil {
		return err
	}
	item := &memcache.Item{
		Key:        key,
		Value:      byteValue,
		Expiration: expiration,
	}

	return mc.client.Add(item)
}
