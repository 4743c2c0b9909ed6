package mesher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus-метрики построения поверхностей.
// Нулевой указатель допустим: методы ничего не делают.
type Metrics struct {
	surfacesBuilt prometheus.Counter
	facesClaimed  prometheus.Counter
	buildDuration prometheus.Histogram
	chunkSurfaces prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil: без регистрации)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		surfacesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxmesh",
			Name:      "surfaces_built_total",
			Help:      "Общее число построенных поверхностей.",
		}),
		facesClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxmesh",
			Name:      "faces_claimed_total",
			Help:      "Общее число граней, покрытых поверхностями.",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxmesh",
			Name:      "build_duration_seconds",
			Help:      "Время BuildAllFaces для одного чанка.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		chunkSurfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxmesh",
			Name:      "chunk_surfaces",
			Help:      "Число поверхностей в последнем построенном чанке.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.surfacesBuilt, m.facesClaimed, m.buildDuration, m.chunkSurfaces)
	}
	return m
}

func (m *Metrics) observeBuild(surfaces, faces int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.surfacesBuilt.Add(float64(surfaces))
	m.facesClaimed.Add(float64(faces))
	m.buildDuration.Observe(elapsed.Seconds())
	m.chunkSurfaces.Set(float64(surfaces))
}
