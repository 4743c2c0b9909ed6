package terrain

import (
	"github.com/aquilax/go-perlin"
)

// Noise двумерный шум Перлина с фиксированным сидом
type Noise struct {
	seed int64
	p    *perlin.Perlin
}

// NewNoise создаёт генератор шума
func NewNoise(seed int64) *Noise {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Noise{seed: seed, p: perlin.NewPerlin(alpha, beta, n, seed)}
}

// Seed возвращает сид генератора
func (n *Noise) Seed() int64 {
	return n.seed
}

// At значение шума в точке, приведённое к [0, 1]
func (n *Noise) At(x, y float64) float64 {
	v := (n.p.Noise2D(x, y) + 1.0) / 2.0
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
