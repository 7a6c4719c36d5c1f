// Package cache provides the LLM completion cache.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss 缓存未命中哨兵错误
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断错误是否为缓存未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config 缓存配置
type Config struct {
	// Redis 地址（为空则仅使用内存层）
	Addr string `yaml:"addr" json:"addr"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 内存层最大条目数
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 10 * time.Minute,
		MaxEntries: 1024,
	}
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// CompletionCache 两级补全缓存：进程内存 + 可选 Redis。
// 键为 prompt 的 SHA-256；命中返回缓存的补全文本。
type CompletionCache struct {
	config Config
	redis  *redis.Client
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// New 创建补全缓存。Addr 为空时退化为纯内存缓存。
func New(config Config, logger *zap.Logger) (*CompletionCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1024
	}

	c := &CompletionCache{
		config:  config,
		logger:  logger.With(zap.String("component", "completion_cache")),
		entries: make(map[string]memoryEntry),
	}

	if config.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: config.Addr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		c.redis = client
	}

	return c, nil
}

// Key 计算 prompt 的缓存键
func Key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "cortexflow:completion:" + hex.EncodeToString(sum[:])
}

// Get 读取缓存的补全
func (c *CompletionCache) Get(ctx context.Context, prompt string) (string, error) {
	key := Key(prompt)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			c.storeMemory(key, val)
			return val, nil
		}
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.Error(err))
		}
	}

	return "", ErrCacheMiss
}

// Set 写入补全结果
func (c *CompletionCache) Set(ctx context.Context, prompt, completion string) {
	key := Key(prompt)
	c.storeMemory(key, completion)

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, completion, c.config.DefaultTTL).Err(); err != nil {
			c.logger.Warn("redis set failed", zap.Error(err))
		}
	}
}

func (c *CompletionCache) storeMemory(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 简单容量控制：超限时丢弃已过期项，仍超限则整体重置。
	if len(c.entries) >= c.config.MaxEntries {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.config.MaxEntries {
			c.entries = make(map[string]memoryEntry)
		}
	}

	c.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(c.config.DefaultTTL),
	}
}

// Close 释放底层 Redis 连接
func (c *CompletionCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
