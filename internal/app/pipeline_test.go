package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/annel0/voxmesh/internal/config"
	"github.com/annel0/voxmesh/internal/eventbus"
	"github.com/annel0/voxmesh/internal/logging"
	"github.com/annel0/voxmesh/internal/material"
	"github.com/annel0/voxmesh/internal/mesher"
	"github.com/annel0/voxmesh/internal/meshstore"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.World = config.WorldConfig{SizeX: 12, SizeY: 8, SizeZ: 10, ChunkSize: 4, Seed: 3}
	return cfg
}

func TestPipelineRun(t *testing.T) {
	materials, err := material.LoadFile("../../configs/materials.yaml")
	require.NoError(t, err)

	store, err := meshstore.Open("", meshstore.InMemory())
	require.NoError(t, err)
	defer store.Close()

	reg := prometheus.NewRegistry()
	metrics := mesher.NewMetrics(reg)
	var buf bytes.Buffer
	logger := logging.NewWriterLogger("app-test", &buf, logging.INFO)

	bus := eventbus.NewMemoryBus(4)
	events := make(chan eventbus.BuildCompletedPayload, 1)
	_, err = bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.EventBuildCompleted}}, func(ctx context.Context, ev *eventbus.Envelope) {
		var payload eventbus.BuildCompletedPayload
		if ev.Decode(&payload) == nil {
			events <- payload
		}
	})
	require.NoError(t, err)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer tp.Shutdown(context.Background())

	p, err := NewPipeline(testConfig(), materials, store,
		WithMetrics(metrics), WithLogger(logger), WithEventBus(bus), WithTracerProvider(tp))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	// 12x8x10 чанками 4x4x4: 3 * 2 * 3
	assert.Equal(t, 18, res.Chunks)
	assert.NotEmpty(t, res.BuildID)
	assert.Positive(t, res.Faces)
	assert.GreaterOrEqual(t, res.Faces, res.Surfaces)
	assert.Equal(t, res.Triangles*2, res.Vertices, "каждая поверхность даёт один квад")

	roots, err := store.Roots()
	require.NoError(t, err)
	assert.Len(t, roots, res.Chunks)

	faces := 0
	for _, root := range roots {
		rec, err := store.Load(root)
		require.NoError(t, err)
		assert.Equal(t, res.BuildID, rec.BuildID)
		faces += rec.Faces
	}
	assert.Equal(t, res.Faces, faces)

	count, err := testutil.GatherAndCount(reg, "voxmesh_build_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "voxmesh_surfaces_built_total" {
			assert.Equal(t, float64(res.Surfaces), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.Contains(t, buf.String(), res.BuildID)

	select {
	case payload := <-events:
		assert.Equal(t, res.BuildID, payload.BuildID)
		assert.Equal(t, res.Chunks, payload.Chunks)
		assert.Equal(t, res.Faces, payload.Faces)
	default:
		t.Fatal("BuildCompleted не опубликован")
	}

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"pipeline.generate", "pipeline.mesh", "pipeline.save", "pipeline.run"}, names)

	assert.NotContains(t, buf.String(), "не описан", "палитра генератора описана в configs/materials.yaml")
}

func TestPipelineWarnsAboutUnknownCodes(t *testing.T) {
	materials := material.NewRegistry()
	require.NoError(t, materials.Register(material.Properties{ID: 0, Name: "air"}))

	store, err := meshstore.Open("", meshstore.InMemory())
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	p, err := NewPipeline(testConfig(), materials, store, WithLogger(logging.NewWriterLogger("app-test", &buf, logging.WARN)))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Faces, "неизвестные материалы не дают граней")
	assert.Contains(t, buf.String(), "не описан")
}

func TestPipelineCancelled(t *testing.T) {
	materials := material.NewRegistry()
	store, err := meshstore.Open("", meshstore.InMemory())
	require.NoError(t, err)
	defer store.Close()

	bus := eventbus.NewMemoryBus(4)
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer tp.Shutdown(context.Background())

	p, err := NewPipeline(testConfig(), materials, store,
		WithLogger(logging.NewWriterLogger("app-test", &bytes.Buffer{}, logging.ERROR)),
		WithEventBus(bus), WithTracerProvider(tp))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, bus.Close())
	assert.Zero(t, bus.Metrics().Published, "отменённая сборка не публикуется")

	var runSpan sdktrace.ReadOnlySpan
	for _, s := range spans.Ended() {
		if s.Name() == "pipeline.run" {
			runSpan = s
		}
	}
	require.NotNil(t, runSpan)
	assert.Equal(t, "Error", runSpan.Status().Code.String())

	roots, err := store.Roots()
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestNewPipelineValidates(t *testing.T) {
	_, err := NewPipeline(nil, nil, nil)
	assert.Error(t, err)
}
