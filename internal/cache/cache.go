// Package cache горячий кеш геометрии чанков перед BadgerDB.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// CacheRepo определяет интерфейс для кеширования данных.
//
// Использование:
//
//	cache := NewRedisCache(config)
//	data, err := cache.Get(ctx, "key")
//	err = cache.Set(ctx, "key", data, 30*time.Second)
//	n, err := cache.DeletePrefix(ctx, "voxmesh:mesh:")
type CacheRepo interface {
	// Get получает значение по ключу. Возвращает ErrCacheMiss если ключ не найден.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение с указанным TTL. TTL = 0 означает TTL по умолчанию.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ из кеша.
	Delete(ctx context.Context, key string) error

	// DeletePrefix удаляет все ключи с префиксом и возвращает их число.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Close закрывает соединение с кешем.
	Close() error

	// GetMetrics возвращает метрики кеша.
	GetMetrics() CacheMetrics
}

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
}

// CacheConfig содержит конфигурацию для кеша.
type CacheConfig struct {
	RedisURL      string        `yaml:"redis_url"` // host:port или redis://
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	MaxTTL        time.Duration `yaml:"max_ttl"`
	PoolSize      int           `yaml:"pool_size"`
}

func (c *CacheConfig) applyDefaults() {
	if c.DefaultTTL == 0 {
		c.DefaultTTL = 5 * time.Minute
	}
	if c.MaxTTL == 0 {
		c.MaxTTL = time.Hour
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
}

// clampTTL приводит ttl к диапазону (0, MaxTTL]
func (c *CacheConfig) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.DefaultTTL
	}
	if ttl > c.MaxTTL {
		ttl = c.MaxTTL
	}
	return ttl
}

// ErrCacheMiss ключ не найден или истёк
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// tracker считает попадания и задержки; общий для всех реализаций
type tracker struct {
	requests     atomic.Int64
	hits         atomic.Int64
	misses       atomic.Int64
	latencySum   atomic.Int64 // нс
	latencyCount atomic.Int64
	maxLatency   atomic.Int64
}

func (t *tracker) hit()  { t.requests.Add(1); t.hits.Add(1) }
func (t *tracker) miss() { t.requests.Add(1); t.misses.Add(1) }

func (t *tracker) recordLatency(start time.Time) {
	latency := time.Since(start).Nanoseconds()
	t.latencySum.Add(latency)
	t.latencyCount.Add(1)
	for {
		current := t.maxLatency.Load()
		if latency <= current || t.maxLatency.CompareAndSwap(current, latency) {
			break
		}
	}
}

func (t *tracker) snapshot() CacheMetrics {
	m := CacheMetrics{
		TotalRequests: t.requests.Load(),
		CacheHits:     t.hits.Load(),
		CacheMisses:   t.misses.Load(),
		MaxLatencyMs:  float64(t.maxLatency.Load()) / 1e6,
	}
	if total := m.CacheHits + m.CacheMisses; total > 0 {
		m.HitRatio = float64(m.CacheHits) / float64(total)
	}
	if n := t.latencyCount.Load(); n > 0 {
		m.AvgLatencyMs = float64(t.latencySum.Load()) / float64(n) / 1e6
	}
	return m
}
