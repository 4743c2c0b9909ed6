package vec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDirection возвращается, когда вектор не является одним из шести
// единичных направлений по осям.
var ErrInvalidDirection = errors.New("недопустимое направление")

// Direction одно из шести направлений вдоль осей
type Direction uint8

const (
	XPos Direction = iota // +X
	XNeg                  // -X
	YPos                  // +Y
	YNeg                  // -Y
	ZPos                  // +Z
	ZNeg                  // -Z

	directionCount // всегда последний
)

// Directions перечисляет все направления в порядке обхода при поиске граней
var Directions = [directionCount]Direction{XPos, XNeg, YPos, YNeg, ZPos, ZNeg}

var directionVecs = [directionCount]Vec3{
	XPos: {X: 1},
	XNeg: {X: -1},
	YPos: {Y: 1},
	YNeg: {Y: -1},
	ZPos: {Z: 1},
	ZNeg: {Z: -1},
}

// planeAxes задаёт для каждого направления пару осей плоскости грани:
// первая ось ширины (U), вторая высоты (V).
var planeAxes = [directionCount][2]Direction{
	XPos: {ZPos, YPos},
	XNeg: {ZNeg, YPos},
	YPos: {XPos, ZPos},
	YNeg: {XNeg, ZPos},
	ZPos: {XNeg, YPos},
	ZNeg: {XPos, YPos},
}

// Valid проверяет, что значение входит в шесть канонических направлений
func (d Direction) Valid() bool {
	return d < directionCount
}

// Vec возвращает единичный вектор направления. Для значений вне Directions
// возвращает Zero: вызывающий код проверяет Valid или получает оси через PlaneAxes.
func (d Direction) Vec() Vec3 {
	if !d.Valid() {
		return Zero
	}
	return directionVecs[d]
}

// String возвращает строковое представление направления
func (d Direction) String() string {
	switch d {
	case XPos:
		return "+X"
	case XNeg:
		return "-X"
	case YPos:
		return "+Y"
	case YNeg:
		return "-Y"
	case ZPos:
		return "+Z"
	case ZNeg:
		return "-Z"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// DirectionFromVec находит направление по единичному вектору
func DirectionFromVec(v Vec3) (Direction, error) {
	for _, d := range Directions {
		if directionVecs[d].Equals(v) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidDirection, v)
}

// ParseDirection разбирает запись вида "+X" или "-z"
func ParseDirection(s string) (Direction, error) {
	for _, d := range Directions {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// PlaneAxes возвращает оси ширины и высоты для грани, смотрящей в d
func PlaneAxes(d Direction) (u, v Direction, err error) {
	if !d.Valid() {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidDirection, d)
	}
	axes := planeAxes[d]
	return axes[0], axes[1], nil
}

// Neighbor возвращает соседнюю координату в направлении d (для недопустимого d сама v)
func (v Vec3) Neighbor(d Direction) Vec3 {
	return v.Add(d.Vec())
}
