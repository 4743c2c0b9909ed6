// Package app связывает генерацию ландшафта, мешинг и сохранение геометрии в один прогон.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxmesh/internal/config"
	"github.com/annel0/voxmesh/internal/eventbus"
	"github.com/annel0/voxmesh/internal/logging"
	"github.com/annel0/voxmesh/internal/material"
	"github.com/annel0/voxmesh/internal/mesher"
	"github.com/annel0/voxmesh/internal/meshstore"
	"github.com/annel0/voxmesh/internal/terrain"
	"github.com/annel0/voxmesh/internal/voxel"
)

// Result итог одного прогона
type Result struct {
	BuildID   string
	Chunks    int
	Surfaces  int
	Faces     int
	Vertices  int
	Triangles int
	Strips    int
	Duration  time.Duration
}

// EventSource имя источника событий сборки
const EventSource = "voxmesh-pipeline"

// Pipeline генерирует мир, строит геометрию всех чанков и сохраняет её
type Pipeline struct {
	cfg       *config.Config
	materials *material.Registry
	meshes    *meshstore.Store
	metrics   *mesher.Metrics
	logger    *logging.Logger
	bus       eventbus.EventBus
	tracer    trace.Tracer
}

// Option настройка прогона
type Option func(*Pipeline)

// WithMetrics счётчики мешера
func WithMetrics(m *mesher.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger логгер прогона
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithEventBus шина, в которую публикуется BuildCompleted
func WithEventBus(bus eventbus.EventBus) Option {
	return func(p *Pipeline) { p.bus = bus }
}

// WithTracerProvider провайдер спанов вместо глобального
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = tp.Tracer("github.com/annel0/voxmesh/internal/app") }
}

// NewPipeline создаёт прогон
func NewPipeline(cfg *config.Config, materials *material.Registry, meshes *meshstore.Store, opts ...Option) (*Pipeline, error) {
	if cfg == nil || materials == nil || meshes == nil {
		return nil, errors.New("конфигурация, материалы и хранилище обязательны")
	}
	p := &Pipeline{
		cfg:       cfg,
		materials: materials,
		meshes:    meshes,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Default()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/annel0/voxmesh/internal/app")
	}
	return p, nil
}

// Generate строит воксельный мир по настройкам конфигурации
func (p *Pipeline) Generate() (*voxel.Store, error) {
	dims := p.cfg.World.Dims()
	gen := terrain.NewGenerator(p.cfg.World.GetSeed())

	world, err := gen.Generate(dims)
	if err != nil {
		return nil, fmt.Errorf("генерация мира %s: %w", dims, err)
	}
	p.checkPalette(world)
	return world, nil
}

// checkPalette предупреждает о кодах, которых нет в таблице материалов
func (p *Pipeline) checkPalette(world *voxel.Store) {
	seen := make(map[uint16]bool)
	for _, strip := range world.Strips() {
		if seen[strip.Code] {
			continue
		}
		seen[strip.Code] = true
		if _, ok := p.materials.Lookup(strip.Code); !ok {
			p.logger.Warn("Код %d не описан в таблице материалов, его грани будут пропущены", strip.Code)
		}
	}
}

// Run выполняет полный прогон: генерация, мешинг, сохранение, событие
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	_, genSpan := p.tracer.Start(ctx, "pipeline.generate")
	world, err := p.Generate()
	genSpan.End()
	if err != nil {
		return nil, err
	}
	p.logger.Info("Мир %s сгенерирован: %d полос", world.Dims(), world.StripCount())

	opts := []mesher.Option{mesher.WithLogger(logging.GetMesherLogger())}
	if p.metrics != nil {
		opts = append(opts, mesher.WithMetrics(p.metrics))
	}

	meshCtx, meshSpan := p.tracer.Start(ctx, "pipeline.mesh")
	chunks, err := mesher.BuildGrid(meshCtx, world, p.materials, p.cfg.World.ChunkDims(), opts...)
	meshSpan.End()
	if err != nil {
		return nil, fmt.Errorf("мешинг: %w", err)
	}

	res = &Result{
		BuildID: meshstore.NewBuildID(),
		Chunks:  len(chunks),
		Strips:  world.StripCount(),
	}
	for _, c := range chunks {
		mesh := c.Mesh()
		res.Surfaces += c.SurfaceCount()
		res.Faces += c.FaceCount()
		res.Vertices += mesh.VertexCount()
		res.Triangles += mesh.TriangleCount()
	}

	_, saveSpan := p.tracer.Start(ctx, "pipeline.save")
	err = p.meshes.SaveChunks(chunks, res.BuildID)
	saveSpan.End()
	if err != nil {
		return nil, fmt.Errorf("сохранение геометрии: %w", err)
	}

	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.String("build.id", res.BuildID),
		attribute.Int("build.chunks", res.Chunks),
		attribute.Int("build.surfaces", res.Surfaces),
		attribute.Int("build.faces", res.Faces),
	)
	p.logger.Info("Сборка %s: %d чанков, %d поверхностей, %d граней, %d треугольников за %s",
		res.BuildID, res.Chunks, res.Surfaces, res.Faces, res.Triangles, res.Duration)

	p.publish(ctx, res)
	return res, nil
}

// publish сообщает подписчикам о новой сборке. Ошибка шины не отменяет сохранённый результат.
func (p *Pipeline) publish(ctx context.Context, res *Result) {
	if p.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(EventSource, eventbus.EventBuildCompleted, eventbus.BuildCompletedPayload{
		BuildID:   res.BuildID,
		Chunks:    res.Chunks,
		Surfaces:  res.Surfaces,
		Faces:     res.Faces,
		Triangles: res.Triangles,
		Duration:  res.Duration,
	})
	if err != nil {
		p.logger.Error("Событие сборки %s: %v", res.BuildID, err)
		return
	}
	ev.Priority = 7
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.Warn("Не удалось опубликовать BuildCompleted %s: %v", res.BuildID, err)
	}
}
