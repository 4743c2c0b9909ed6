package mesher

import (
	"fmt"

	"github.com/annel0/voxmesh/internal/material"
	"github.com/annel0/voxmesh/internal/vec"
)

// JoinType отношение края поверхности к соседней геометрии
type JoinType uint8

const (
	JoinNone   JoinType = iota // соседа того же материала нет
	JoinFlat                   // сосед в той же плоскости
	JoinLifted                 // сосед и воксель над ним того же материала
)

func (j JoinType) String() string {
	switch j {
	case JoinNone:
		return "none"
	case JoinFlat:
		return "flat"
	case JoinLifted:
		return "lifted"
	default:
		return fmt.Sprintf("JoinType(%d)", uint8(j))
	}
}

// Edge сторона прямоугольника в порядке обхода по часовой стрелке
type Edge uint8

const (
	EdgeUpper Edge = iota
	EdgeRight
	EdgeLower
	EdgeLeft
)

func (e Edge) String() string {
	switch e {
	case EdgeUpper:
		return "upper"
	case EdgeRight:
		return "right"
	case EdgeLower:
		return "lower"
	case EdgeLeft:
		return "left"
	default:
		return fmt.Sprintf("Edge(%d)", uint8(e))
	}
}

// EdgeJoin классификация соседства в конкретной координате
type EdgeJoin struct {
	Coord vec.Vec3 `json:"coord"`
	Join  JoinType `json:"join"`
}

// Diagonal индексы углов в DiagonalJoins
const (
	CornerUL = iota
	CornerUR
	CornerLR
	CornerLL
)

// Surface прямоугольник W×H одинаковых видимых граней одного направления.
// Root нижний левый воксель; ширина идёт вдоль первой оси плоскости, высота вдоль второй.
type Surface struct {
	Style    material.FaceStyle
	Root     vec.Vec3
	Width    int
	Height   int
	Facing   vec.Direction
	Material uint16

	// Заполняются только для FaceBeveledJoin
	EdgeJoins     [4][]EdgeJoin
	DiagonalJoins [4]EdgeJoin

	Mesh   Mesh
	meshed bool
}

// Area число граней, покрытых поверхностью
func (s *Surface) Area() int {
	return s.Width * s.Height
}

// Meshed сообщает, построена ли геометрия
func (s *Surface) Meshed() bool {
	return s.meshed
}

// PlaneCoord координата плоскости поверхности вдоль оси направления (со знаком направления)
func (s *Surface) PlaneCoord() (int, error) {
	if !s.Facing.Valid() {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, s.Facing)
	}
	return s.Root.Dot(s.Facing.Vec()), nil
}

// ContainsFace проверяет, покрывает ли поверхность грань (p, d)
func (s *Surface) ContainsFace(p vec.Vec3, d vec.Direction) bool {
	if s.Facing != d {
		return false
	}
	plane, err := s.PlaneCoord()
	if err != nil || p.Dot(d.Vec()) != plane {
		return false
	}

	local, err := s.LocalizeWorld(p.ToFloat(), s.Root)
	if err != nil {
		return false
	}

	x, y := int(local.X()), int(local.Y())
	return x >= 0 && x < s.Width && y >= 0 && y < s.Height
}

// FaceCoords возвращает все координаты граней поверхности построчно
func (s *Surface) FaceCoords() ([]vec.Vec3, error) {
	u, v, err := vec.PlaneAxes(s.Facing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	coords := make([]vec.Vec3, 0, s.Area())
	for h := 0; h < s.Height; h++ {
		for w := 0; w < s.Width; w++ {
			coords = append(coords, s.Root.Add(u.Vec().Scale(w)).Add(v.Vec().Scale(h)))
		}
	}
	return coords, nil
}

// EdgeCoordsCW координаты граничных вокселей стороны в порядке обхода по часовой стрелке:
// верх слева направо, правая сверху вниз, низ справа налево, левая снизу вверх.
func (s *Surface) EdgeCoordsCW(edge Edge) ([]vec.Vec3, error) {
	u, v, err := vec.PlaneAxes(s.Facing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	uv, vv := u.Vec(), v.Vec()

	var coords []vec.Vec3
	switch edge {
	case EdgeUpper:
		for i := 0; i < s.Width; i++ {
			coords = append(coords, s.Root.Add(uv.Scale(i)).Add(vv.Scale(s.Height-1)))
		}
	case EdgeRight:
		for i := s.Height - 1; i >= 0; i-- {
			coords = append(coords, s.Root.Add(uv.Scale(s.Width-1)).Add(vv.Scale(i)))
		}
	case EdgeLower:
		for i := s.Width - 1; i >= 0; i-- {
			coords = append(coords, s.Root.Add(uv.Scale(i)))
		}
	case EdgeLeft:
		for i := 0; i < s.Height; i++ {
			coords = append(coords, s.Root.Add(vv.Scale(i)))
		}
	default:
		return nil, fmt.Errorf("%w: сторона %s", ErrInvalidArgument, edge)
	}
	return coords, nil
}

func (s *Surface) String() string {
	return fmt.Sprintf("Surface{%s %s %dx%d mat=%d %s}", s.Facing, s.Root, s.Width, s.Height, s.Material, s.Style)
}
