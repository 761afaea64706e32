package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

const (
	maxShards = 1024
	// DefaultMaxEntryBytes 单条缓存值的默认上限。
	DefaultMaxEntryBytes = 1 << 20
	// bigcache 每条记录的头部与键开销预留。
	entryOverhead = 512
	// 仅用于分片初始分配，不限制单条大小。
	initialEntryBytes = 1 << 10
)

// ErrEntryTooLarge 序列化后的值超过单条上限，未写入缓存。
var ErrEntryTooLarge = errors.New("cache entry too large")

// BigCache 实现了 Cache 接口，使用 allegro/bigcache 作为底层存储。
// 值以 JSON 序列化后存放，所有键共享构造时的 TTL。
type BigCache struct {
	cache         *bigcache.BigCache
	maxEntryBytes int
}

type bigCacheOptions struct {
	maxEntryBytes int
}

// BigCacheOption 配置 BigCache。
type BigCacheOption func(*bigCacheOptions)

// WithMaxEntryBytes 设置单条值的上限，分片数据按此上限划分。
func WithMaxEntryBytes(n int) BigCacheOption {
	return func(o *bigCacheOptions) {
		if n > 0 {
			o.maxEntryBytes = n
		}
	}
}

// shardLayout 在总容量 maxMB 下选择分片数（2 的幂），保证单个分片至少能容纳两条最大记录。
// 容量不足以满足时退化为 1 个分片，并把单条上限收紧到分片的一半。
func shardLayout(maxMB, maxEntryBytes int) (shards, entryLimit int) {
	if maxMB <= 0 {
		return maxShards, maxEntryBytes
	}
	total := maxMB << 20
	need := 2 * (maxEntryBytes + entryOverhead)
	shards = maxShards
	for shards > 1 && total/shards < need {
		shards /= 2
	}
	if shardBytes := total / shards; shardBytes < need {
		entryLimit = shardBytes/2 - entryOverhead
		return shards, entryLimit
	}
	return shards, maxEntryBytes
}

// NewBigCache 创建并返回一个新的 BigCache 实例。
// maxMB 为 0 时不限制容量。
func NewBigCache(ctx context.Context, ttl time.Duration, maxMB int, opts ...BigCacheOption) (*BigCache, error) {
	o := bigCacheOptions{maxEntryBytes: DefaultMaxEntryBytes}
	for _, opt := range opts {
		opt(&o)
	}
	shards, entryLimit := shardLayout(maxMB, o.maxEntryBytes)

	config := bigcache.DefaultConfig(ttl)
	config.Shards = shards
	config.HardMaxCacheSize = maxMB
	config.MaxEntriesInWindow = shards * 8
	config.MaxEntrySize = initialEntryBytes
	config.CleanWindow = ttl
	config.Verbose = false

	cache, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("初始化 bigcache 失败: %w", err)
	}

	return &BigCache{cache: cache, maxEntryBytes: entryLimit}, nil
}

// MaxEntryBytes 返回实际生效的单条上限。
func (c *BigCache) MaxEntryBytes() int {
	return c.maxEntryBytes
}

// Get 读取键对应的值并反序列化到 value（必须为指针）。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, value)
}

// Set 序列化并写入一个键值对，超过单条上限时返回 ErrEntryTooLarge。
func (c *BigCache) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if len(data)+len(key) > c.maxEntryBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrEntryTooLarge, len(data)+len(key), c.maxEntryBytes)
	}
	return c.cache.Set(key, data)
}

// Delete 删除一个或多个键，键不存在时不报错。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Len 返回当前缓存项数量。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close 关闭 BigCache 实例，释放后台清理协程。
func (c *BigCache) Close() error {
	return c.cache.Close()
}
