package voxel

import (
	"fmt"

	"github.com/annel0/voxmesh/internal/vec"
)

// Slice отрезок вдоль оси X с одним материалом. Begin и End включительно.
type Slice struct {
	Begin vec.Vec3 `json:"begin"`
	End   vec.Vec3 `json:"end"`
	Code  uint16   `json:"code"`
}

// Len возвращает количество вокселей в отрезке
func (sl Slice) Len() int {
	return sl.End.X - sl.Begin.X + 1
}

// SliceAt возвращает максимальный X-отрезок, проходящий через координату,
// обрезанный границами строки хранилища.
func (s *Store) SliceAt(p vec.Vec3) (Slice, error) {
	idx, offset, err := s.locate(p)
	if err != nil {
		return Slice{}, err
	}

	target := s.linear(p)
	stripStart := target - offset
	stripEnd := stripStart + s.strips[idx].Run - 1

	rowStart := s.linear(vec.Vec3{Y: p.Y, Z: p.Z})
	rowEnd := rowStart + s.dims.X - 1

	begin := max(stripStart, rowStart) - rowStart
	end := min(stripEnd, rowEnd) - rowStart

	return Slice{
		Begin: vec.New(begin, p.Y, p.Z),
		End:   vec.New(end, p.Y, p.Z),
		Code:  s.strips[idx].Code,
	}, nil
}

// SlicesIn возвращает X-отрезки, ровно один раз покрывающие бокс root..root+size
// (пересечённый с размерами хранилища), в порядке z, затем y, затем x.
func (s *Store) SlicesIn(root, size vec.Vec3) ([]Slice, error) {
	lo := vec.New(max(root.X, 0), max(root.Y, 0), max(root.Z, 0))
	hi := vec.New(
		min(root.X+size.X, s.dims.X),
		min(root.Y+size.Y, s.dims.Y),
		min(root.Z+size.Z, s.dims.Z),
	)
	if lo.X >= hi.X || lo.Y >= hi.Y || lo.Z >= hi.Z {
		return nil, nil
	}

	var out []Slice
	for z := lo.Z; z < hi.Z; z++ {
		for y := lo.Y; y < hi.Y; y++ {
			idx, offset, err := s.locate(vec.New(lo.X, y, z))
			if err != nil {
				return nil, err
			}

			x := lo.X
			for x < hi.X {
				if idx >= len(s.strips) {
					return nil, fmt.Errorf("%w: строка (y=%d, z=%d) выходит за последнюю полосу", ErrInternalInvariant, y, z)
				}
				st := s.strips[idx]
				n := min(st.Run-offset, hi.X-x)
				out = append(out, Slice{
					Begin: vec.New(x, y, z),
					End:   vec.New(x+n-1, y, z),
					Code:  st.Code,
				})
				x += n
				idx++
				offset = 0
			}
		}
	}
	return out, nil
}

// AllSlices обходит всё хранилище так же, как SlicesIn
func (s *Store) AllSlices() ([]Slice, error) {
	return s.SlicesIn(vec.Zero, s.dims)
}

// SubCopy создаёт независимое хранилище с копией бокса root..root+size.
// Отрезки SlicesIn идут в линейном порядке нового хранилища, поэтому
// полосы собираются напрямую, со слиянием соседних равных кодов.
func (s *Store) SubCopy(root, size vec.Vec3) (*Store, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("%w: размер %s", ErrInvalidArgument, size)
	}
	last := root.Add(size).Sub(vec.New(1, 1, 1))
	if !s.InRange(root) || !s.InRange(last) {
		return nil, fmt.Errorf("%w: бокс %s..%s, размеры %s", ErrOutOfRange, root, last, s.dims)
	}

	runs, err := s.SlicesIn(root, size)
	if err != nil {
		return nil, err
	}

	sub := &Store{dims: size, strips: make([]Strip, 0, len(runs))}
	for _, sl := range runs {
		n := len(sub.strips)
		if n > 0 && sub.strips[n-1].Code == sl.Code {
			sub.strips[n-1].Run += sl.Len()
			continue
		}
		sub.strips = append(sub.strips, Strip{Code: sl.Code, Run: sl.Len()})
	}
	return sub, nil
}
