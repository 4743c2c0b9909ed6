// Package terrain заполняет воксельное хранилище ландшафтом по карте высот.
package terrain

import (
	"fmt"

	"github.com/annel0/voxmesh/internal/vec"
	"github.com/annel0/voxmesh/internal/voxel"
)

// Palette коды материалов, которыми заполняется ландшафт
type Palette struct {
	Air     uint16 `yaml:"air"`
	Rock    uint16 `yaml:"rock"`
	Filler  uint16 `yaml:"filler"`
	Surface uint16 `yaml:"surface"`
	Shore   uint16 `yaml:"shore"`
	Water   uint16 `yaml:"water"`
}

// DefaultPalette соответствует configs/materials.yaml
var DefaultPalette = Palette{
	Air:     0,
	Rock:    1,
	Filler:  2,
	Surface: 3,
	Water:   4,
	Shore:   5,
}

// Generator строит колонны: камень, слой наполнителя, поверхность, выше вода до уровня моря.
type Generator struct {
	Noise       *Noise
	Palette     Palette
	NoiseScale  float64 // Масштаб шума высот
	FillerDepth int     // Толщина слоя под поверхностью
	SeaLevel    float64 // Доля высоты, ниже которой колонны заливаются водой
	MinHeight   int     // Минимальная высота колонны
}

// NewGenerator создаёт генератор с настройками по умолчанию
func NewGenerator(seed int64) *Generator {
	return &Generator{
		Noise:       NewNoise(seed),
		Palette:     DefaultPalette,
		NoiseScale:  0.05, // Настройка сглаженности ландшафта
		FillerDepth: 3,
		SeaLevel:    0.30,
		MinHeight:   1,
	}
}

// ColumnHeight высота колонны (x, z) для хранилища высотой dimY, в диапазоне [MinHeight, dimY]
func (g *Generator) ColumnHeight(x, z, dimY int) int {
	h := g.Noise.At(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
	height := int(h * float64(dimY))
	if height < g.MinHeight {
		height = g.MinHeight
	}
	if height > dimY {
		height = dimY
	}
	return height
}

// Material материал вокселя на высоте y в колонне высотой height
func (g *Generator) Material(y, height, seaLevel int) uint16 {
	switch {
	case y >= height:
		if y < seaLevel {
			return g.Palette.Water
		}
		return g.Palette.Air
	case y == height-1:
		if height <= seaLevel {
			return g.Palette.Shore
		}
		return g.Palette.Surface
	case y >= height-1-g.FillerDepth:
		return g.Palette.Filler
	default:
		return g.Palette.Rock
	}
}

// Fill записывает ландшафт во всё хранилище
func (g *Generator) Fill(store *voxel.Store) error {
	if store == nil {
		return fmt.Errorf("%w: нет хранилища", voxel.ErrInvalidArgument)
	}

	dims := store.Dims()
	seaLevel := int(g.SeaLevel * float64(dims.Y))

	for z := 0; z < dims.Z; z++ {
		for x := 0; x < dims.X; x++ {
			height := g.ColumnHeight(x, z, dims.Y)
			for y := 0; y < dims.Y; y++ {
				if err := store.Set(vec.New(x, y, z), g.Material(y, height, seaLevel)); err != nil {
					return fmt.Errorf("колонна (%d, %d): %w", x, z, err)
				}
			}
		}
	}
	return nil
}

// Generate создаёт новое хранилище dims и заполняет его
func (g *Generator) Generate(dims vec.Vec3) (*voxel.Store, error) {
	store, err := voxel.NewFilled(dims, g.Palette.Air)
	if err != nil {
		return nil, err
	}
	if err := g.Fill(store); err != nil {
		return nil, err
	}
	return store, nil
}
