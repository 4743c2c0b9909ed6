package storage

import (
	"context"
	"time"

	"github.com/annel0/voxmesh/internal/eventbus"
	"github.com/annel0/voxmesh/internal/logging"
)

// RecordBuilds сохраняет в repo каждое событие BuildCompleted из шины
func RecordBuilds(ctx context.Context, bus eventbus.EventBus, repo BuildRepo, logger *logging.Logger) (eventbus.Subscription, error) {
	if logger == nil {
		logger = logging.GetStorageLogger()
	}
	filter := eventbus.Filter{Types: []string{eventbus.EventBuildCompleted}}
	return bus.Subscribe(ctx, filter, func(ctx context.Context, ev *eventbus.Envelope) {
		var payload eventbus.BuildCompletedPayload
		if err := ev.Decode(&payload); err != nil {
			logger.Warn("Некорректное событие %s: %v", ev.ID, err)
			return
		}

		at := ev.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		if err := repo.Save(ctx, RecordFromEvent(payload, at)); err != nil {
			logger.Error("Сборка %s не записана в историю: %v", payload.BuildID, err)
			return
		}
		logger.Debug("Сборка %s записана в историю", payload.BuildID)
	})
}
