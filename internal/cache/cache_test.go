package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxmesh/internal/eventbus"
	"github.com/annel0/voxmesh/internal/logging"
	"github.com/annel0/voxmesh/internal/meshstore"
	"github.com/annel0/voxmesh/internal/vec"
)

// mockLoader считает обращения к источнику
type mockLoader struct {
	mu      sync.Mutex
	records map[vec.Vec3]*meshstore.Record
	loads   int
}

func newMockLoader(roots ...vec.Vec3) *mockLoader {
	m := &mockLoader{records: make(map[vec.Vec3]*meshstore.Record)}
	for i, root := range roots {
		m.records[root] = &meshstore.Record{BuildID: "b1", Root: root, Faces: i + 1}
	}
	return m
}

func (m *mockLoader) Load(root vec.Vec3) (*meshstore.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	rec, ok := m.records[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", meshstore.ErrNotFound, root)
	}
	copied := *rec
	return &copied, nil
}

func (m *mockLoader) Roots() ([]vec.Vec3, error) {
	roots := make([]vec.Vec3, 0, len(m.records))
	for root := range m.records {
		roots = append(roots, root)
	}
	return roots, nil
}

func (m *mockLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// brokenCache имитирует недоступный Redis
type brokenCache struct{ *MemoryCache }

var errDown = errors.New("connection refused")

func (b *brokenCache) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (b *brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}

func quietLogger() *logging.Logger {
	return logging.NewWriterLogger("cache-test", &bytes.Buffer{}, logging.ERROR)
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(CacheConfig{DefaultTTL: time.Minute, MaxTTL: 10 * time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err), "TTL по умолчанию истёк")

	_, err = c.Get(ctx, "b")
	assert.NoError(t, err)
	now = now.Add(10 * time.Minute)
	_, err = c.Get(ctx, "b")
	assert.True(t, IsCacheMiss(err), "TTL ограничен MaxTTL")

	m := c.GetMetrics()
	assert.Equal(t, int64(4), m.TotalRequests)
	assert.Equal(t, int64(2), m.CacheHits)
	assert.InDelta(t, 0.5, m.HitRatio, 1e-9)
}

func TestMemoryCacheDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(CacheConfig{})

	for _, key := range []string{"p:1", "p:2", "q:1"} {
		require.NoError(t, c.Set(ctx, key, []byte(key), 0))
	}
	require.NoError(t, c.Delete(ctx, "q:1"))

	n, err := c.DeletePrefix(ctx, "p:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, c.Len())

	// Изменение исходного среза не влияет на кеш
	buf := []byte("x")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'y'
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	require.NoError(t, c.Close())
	assert.Zero(t, c.Len())
}

func TestCachedMeshesReadThrough(t *testing.T) {
	root := vec.New(0, 16, 0)
	loader := newMockLoader(root)
	meshes := NewCachedMeshes(loader, NewMemoryCache(CacheConfig{}), 0, quietLogger())

	for i := 0; i < 3; i++ {
		rec, err := meshes.Load(root)
		require.NoError(t, err)
		assert.Equal(t, root, rec.Root)
		assert.Equal(t, 1, rec.Faces)
	}
	assert.Equal(t, 1, loader.count(), "повторные чтения из кеша")

	_, err := meshes.Load(vec.New(9, 9, 9))
	assert.ErrorIs(t, err, meshstore.ErrNotFound)

	n, err := meshes.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = meshes.Load(root)
	require.NoError(t, err)
	assert.Equal(t, 3, loader.count())

	roots, err := meshes.Roots()
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec3{root}, roots)
	assert.Equal(t, int64(2), meshes.Metrics().CacheHits)
}

func TestCachedMeshesSurvivesBrokenCache(t *testing.T) {
	root := vec.Zero
	loader := newMockLoader(root)
	broken := &brokenCache{MemoryCache: NewMemoryCache(CacheConfig{})}
	meshes := NewCachedMeshes(loader, broken, 0, quietLogger())

	rec, err := meshes.Load(root)
	require.NoError(t, err)
	assert.Equal(t, root, rec.Root)

	// Повреждённое значение удаляется и перечитывается из источника
	mem := NewMemoryCache(CacheConfig{})
	require.NoError(t, mem.Set(context.Background(), meshKey(root), []byte("{oops"), 0))
	meshes = NewCachedMeshes(loader, mem, 0, quietLogger())
	rec, err = meshes.Load(root)
	require.NoError(t, err)
	assert.Equal(t, "b1", rec.BuildID)
}

func TestInvalidateOnBuild(t *testing.T) {
	loader := newMockLoader(vec.Zero, vec.New(16, 0, 0))
	mem := NewMemoryCache(CacheConfig{})
	meshes := NewCachedMeshes(loader, mem, 0, quietLogger())

	for _, root := range []vec.Vec3{vec.Zero, vec.New(16, 0, 0)} {
		_, err := meshes.Load(root)
		require.NoError(t, err)
	}
	require.Equal(t, 2, mem.Len())

	bus := eventbus.NewMemoryBus(4)
	_, err := meshes.InvalidateOnBuild(context.Background(), bus)
	require.NoError(t, err)

	ev, err := eventbus.NewEnvelope("test", eventbus.EventBuildCompleted, eventbus.BuildCompletedPayload{BuildID: "b2"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Close())

	assert.Zero(t, mem.Len())
}

// Требует запущенный Redis: VOXMESH_TEST_REDIS_URL=localhost:6379
func TestRedisCache(t *testing.T) {
	url := os.Getenv("VOXMESH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("VOXMESH_TEST_REDIS_URL не задан")
	}

	ctx := context.Background()
	c, err := NewRedisCache(CacheConfig{RedisURL: url})
	require.NoError(t, err)
	defer c.Close()

	prefix := fmt.Sprintf("voxmesh:test:%d:", time.Now().UnixNano())
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("%s%d", prefix, i), []byte{byte(i)}, time.Minute))
	}

	got, err := c.Get(ctx, prefix+"1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got)

	_, err = c.Get(ctx, prefix+"missing")
	assert.True(t, IsCacheMiss(err))

	n, err := c.DeletePrefix(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
