package mesher

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxmesh/internal/vec"
)

// Локальная система поверхности: x вдоль оси ширины, y вдоль оси высоты,
// z вдоль направления грани. Таблицы ниже взаимно обратны.

// LocalizeWorld переводит мировую точку в локальные координаты поверхности
// относительно origin.
func (s *Surface) LocalizeWorld(p mgl32.Vec3, origin vec.Vec3) (mgl32.Vec3, error) {
	l := origin.ToFloat().Sub(p)

	switch s.Facing {
	case vec.XPos:
		return mgl32.Vec3{-l.Z(), -l.Y(), -l.X()}, nil
	case vec.XNeg:
		return mgl32.Vec3{l.Z(), -l.Y(), l.X()}, nil
	case vec.YPos:
		return mgl32.Vec3{-l.X(), -l.Z(), -l.Y()}, nil
	case vec.YNeg:
		return mgl32.Vec3{l.X(), -l.Z(), l.Y()}, nil
	case vec.ZNeg:
		return mgl32.Vec3{-l.X(), -l.Y(), l.Z()}, nil
	case vec.ZPos:
		return mgl32.Vec3{l.X(), -l.Y(), -l.Z()}, nil
	default:
		return mgl32.Vec3{}, fmt.Errorf("%w: направление %s", ErrInvalidArgument, s.Facing)
	}
}

// LocalToWorldAxes переводит локальный вектор в мировые оси и сдвигает на origin
func (s *Surface) LocalToWorldAxes(local, origin mgl32.Vec3) (mgl32.Vec3, error) {
	var w mgl32.Vec3

	switch s.Facing {
	case vec.XPos:
		w = mgl32.Vec3{local.Z(), local.Y(), local.X()}
	case vec.XNeg:
		w = mgl32.Vec3{-local.Z(), local.Y(), -local.X()}
	case vec.YPos:
		w = mgl32.Vec3{local.X(), local.Z(), local.Y()}
	case vec.YNeg:
		w = mgl32.Vec3{-local.X(), -local.Z(), local.Y()}
	case vec.ZNeg:
		w = mgl32.Vec3{local.X(), local.Y(), -local.Z()}
	case vec.ZPos:
		w = mgl32.Vec3{-local.X(), local.Y(), local.Z()}
	default:
		return mgl32.Vec3{}, fmt.Errorf("%w: направление %s", ErrInvalidArgument, s.Facing)
	}
	return origin.Add(w), nil
}

// MirrorCW отражает смещение угла относительно центра вокселя в следующий
// по часовой стрелке квадрант грани, count раз.
func (s *Surface) MirrorCW(offset mgl32.Vec3, count int) (mgl32.Vec3, error) {
	local, err := s.LocalizeWorld(offset, vec.Zero)
	if err != nil {
		return mgl32.Vec3{}, err
	}

	for i := 0; i < count; i++ {
		switch {
		case local[0] < 0 && local[1] > 0: // верхний левый
			local[0] = -local[0]
		case local[0] < 0: // нижний левый
			local[1] = -local[1]
		case local[1] > 0: // верхний правый
			local[1] = -local[1]
		default: // нижний правый
			local[0] = -local[0]
		}
	}

	return s.LocalToWorldAxes(local, mgl32.Vec3{})
}
