// Package storage хранит историю сборок геометрии.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/annel0/voxmesh/internal/eventbus"
)

// ErrInvalidBuild запись без идентификатора сборки
var ErrInvalidBuild = errors.New("пустой идентификатор сборки")

// BuildRecord одна завершённая сборка
type BuildRecord struct {
	BuildID    string        `json:"build_id" bson:"build_id"`
	Chunks     int           `json:"chunks" bson:"chunks"`
	Surfaces   int           `json:"surfaces" bson:"surfaces"`
	Faces      int           `json:"faces" bson:"faces"`
	Triangles  int           `json:"triangles" bson:"triangles"`
	Duration   time.Duration `json:"duration" bson:"duration"`
	FinishedAt time.Time     `json:"finished_at" bson:"finished_at"`
}

// RecordFromEvent переводит событие BuildCompleted в запись истории
func RecordFromEvent(p eventbus.BuildCompletedPayload, at time.Time) BuildRecord {
	return BuildRecord{
		BuildID:    p.BuildID,
		Chunks:     p.Chunks,
		Surfaces:   p.Surfaces,
		Faces:      p.Faces,
		Triangles:  p.Triangles,
		Duration:   p.Duration,
		FinishedAt: at.UTC(),
	}
}

// BuildRepo определяет интерфейс истории сборок.
// Повторное сохранение того же BuildID заменяет запись.
type BuildRepo interface {
	// Save сохраняет запись о сборке.
	Save(ctx context.Context, rec BuildRecord) error

	// Get возвращает сборку по идентификатору; bool = false если не найдена.
	Get(ctx context.Context, buildID string) (BuildRecord, bool, error)

	// List возвращает последние limit сборок, новые первыми.
	List(ctx context.Context, limit int) ([]BuildRecord, error)

	// Close освобождает соединение.
	Close() error
}

const defaultListLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}
