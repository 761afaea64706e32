// Package cache 提供进程内缓存抽象及基于 bigcache 的实现。
package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss 表示键不存在或已过期。
var ErrCacheMiss = errors.New("cache miss")

// Cache 定义缓存接口。过期策略由具体实现在构造时统一设定。
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
	Len() int
	Close() error
}
