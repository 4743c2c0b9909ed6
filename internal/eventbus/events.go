package eventbus

import "time"

// EventBuildCompleted геометрия всех чанков пересобрана и сохранена
const EventBuildCompleted = "BuildCompleted"

// BuildCompletedPayload полезная нагрузка EventBuildCompleted
type BuildCompletedPayload struct {
	BuildID   string        `json:"build_id"`
	Chunks    int           `json:"chunks"`
	Surfaces  int           `json:"surfaces"`
	Faces     int           `json:"faces"`
	Triangles int           `json:"triangles"`
	Duration  time.Duration `json:"duration"`
}
