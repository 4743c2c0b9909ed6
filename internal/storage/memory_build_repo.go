package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryBuildRepo реализует BuildRepo в памяти.
// Используется, когда MariaDB и MongoDB не настроены.
// ВНИМАНИЕ: история теряется при перезапуске!
type MemoryBuildRepo struct {
	mu   sync.RWMutex
	data map[string]BuildRecord
}

// NewMemoryBuildRepo создает репозиторий в памяти.
func NewMemoryBuildRepo() *MemoryBuildRepo {
	return &MemoryBuildRepo{data: make(map[string]BuildRecord)}
}

func (r *MemoryBuildRepo) Save(ctx context.Context, rec BuildRecord) error {
	if rec.BuildID == "" {
		return ErrInvalidBuild
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.data[rec.BuildID] = rec
	r.mu.Unlock()
	return nil
}

func (r *MemoryBuildRepo) Get(ctx context.Context, buildID string) (BuildRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return BuildRecord{}, false, err
	}
	r.mu.RLock()
	rec, ok := r.data[buildID]
	r.mu.RUnlock()
	return rec, ok, nil
}

func (r *MemoryBuildRepo) List(ctx context.Context, limit int) ([]BuildRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]BuildRecord, 0, len(r.data))
	for _, rec := range r.data {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].BuildID > out[j].BuildID
		}
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close очищает данные
func (r *MemoryBuildRepo) Close() error {
	r.mu.Lock()
	r.data = make(map[string]BuildRecord)
	r.mu.Unlock()
	return nil
}
