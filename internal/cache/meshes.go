package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/voxmesh/internal/eventbus"
	"github.com/annel0/voxmesh/internal/logging"
	"github.com/annel0/voxmesh/internal/meshstore"
	"github.com/annel0/voxmesh/internal/vec"
)

// MeshKeyPrefix префикс ключей геометрии в кеше
const MeshKeyPrefix = "voxmesh:mesh:"

// MeshLoader источник геометрии за кешем (обычно *meshstore.Store)
type MeshLoader interface {
	Load(root vec.Vec3) (*meshstore.Record, error)
	Roots() ([]vec.Vec3, error)
}

// CachedMeshes read-through кеш записей геометрии.
// Ошибки кеша не ломают чтение: запрос уходит в источник.
type CachedMeshes struct {
	source  MeshLoader
	cache   CacheRepo
	ttl     time.Duration
	timeout time.Duration
	logger  *logging.Logger
}

// NewCachedMeshes оборачивает source кешем; ttl 0 означает TTL кеша по умолчанию
func NewCachedMeshes(source MeshLoader, cache CacheRepo, ttl time.Duration, logger *logging.Logger) *CachedMeshes {
	if logger == nil {
		logger = logging.GetStorageLogger()
	}
	return &CachedMeshes{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

func meshKey(root vec.Vec3) string {
	return fmt.Sprintf("%s%d:%d:%d", MeshKeyPrefix, root.X, root.Y, root.Z)
}

// Load возвращает запись из кеша или из источника с заполнением кеша
func (c *CachedMeshes) Load(root vec.Vec3) (*meshstore.Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	key := meshKey(root)
	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var rec meshstore.Record
		if err := json.Unmarshal(data, &rec); err == nil {
			return &rec, nil
		}
		c.logger.Warn("Повреждённая запись кеша %s, удаляем", key)
		_ = c.cache.Delete(ctx, key)
	case !IsCacheMiss(err):
		c.logger.Warn("Кеш недоступен для %s: %v", key, err)
	}

	rec, err := c.source.Load(root)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rec); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("Не удалось закешировать %s: %v", key, err)
		}
	}
	return rec, nil
}

// Roots всегда читается из источника
func (c *CachedMeshes) Roots() ([]vec.Vec3, error) {
	return c.source.Roots()
}

// Invalidate удаляет всю геометрию из кеша
func (c *CachedMeshes) Invalidate(ctx context.Context) (int, error) {
	return c.cache.DeletePrefix(ctx, MeshKeyPrefix)
}

// InvalidateOnBuild сбрасывает кеш при каждом событии BuildCompleted
func (c *CachedMeshes) InvalidateOnBuild(ctx context.Context, bus eventbus.EventBus) (eventbus.Subscription, error) {
	return bus.Subscribe(ctx, eventbus.Filter{Types: []string{eventbus.EventBuildCompleted}}, func(ctx context.Context, ev *eventbus.Envelope) {
		var payload eventbus.BuildCompletedPayload
		if err := ev.Decode(&payload); err != nil {
			c.logger.Warn("Некорректное событие %s: %v", ev.ID, err)
		}
		n, err := c.Invalidate(ctx)
		if err != nil {
			c.logger.Error("Ошибка сброса кеша после сборки %s: %v", payload.BuildID, err)
			return
		}
		c.logger.Info("Сборка %s: из кеша удалено %d записей", payload.BuildID, n)
	})
}

// Metrics метрики нижележащего кеша
func (c *CachedMeshes) Metrics() CacheMetrics {
	return c.cache.GetMetrics()
}
