package mesher

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxmesh/internal/material"
	"github.com/annel0/voxmesh/internal/vec"
)

// Mesh нейтральная геометрия для загрузки в движок
type Mesh struct {
	Positions []mgl32.Vec3 `json:"positions"`
	UVs       []mgl32.Vec2 `json:"uvs"`
	Indices   []uint32     `json:"indices"`
	Normals   []mgl32.Vec3 `json:"normals"`
}

// VertexCount число вершин
func (m Mesh) VertexCount() int {
	return len(m.Positions)
}

// TriangleCount число треугольников
func (m Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Empty true, если геометрии нет
func (m Mesh) Empty() bool {
	return len(m.Positions) == 0
}

// Append дописывает other, сдвигая его индексы
func (m *Mesh) Append(other Mesh) {
	base := uint32(len(m.Positions))
	m.Positions = append(m.Positions, other.Positions...)
	m.UVs = append(m.UVs, other.UVs...)
	m.Normals = append(m.Normals, other.Normals...)
	for _, idx := range other.Indices {
		m.Indices = append(m.Indices, base+idx)
	}
}

// Facing оставляет только треугольники, нормаль первой вершины которых
// смотрит в d. Индексы и вершины перенумеровываются.
func (m Mesh) Facing(d vec.Direction) (Mesh, error) {
	if !d.Valid() {
		return Mesh{}, fmt.Errorf("%w: направление %v", ErrInvalidArgument, d)
	}
	if err := m.Validate(); err != nil {
		return Mesh{}, err
	}

	var out Mesh
	remap := make(map[uint32]uint32)
	for i := 0; i+2 < len(m.Indices); i += 3 {
		tri := m.Indices[i : i+3]
		facing, err := vec.DirectionFromVec(vec.FromFloat(m.Normals[tri[0]]))
		if err != nil {
			return Mesh{}, fmt.Errorf("%w: треугольник %d: %v", ErrInvalidArgument, i/3, err)
		}
		if facing != d {
			continue
		}
		for _, idx := range tri {
			next, ok := remap[idx]
			if !ok {
				next = uint32(len(out.Positions))
				remap[idx] = next
				out.Positions = append(out.Positions, m.Positions[idx])
				out.UVs = append(out.UVs, m.UVs[idx])
				out.Normals = append(out.Normals, m.Normals[idx])
			}
			out.Indices = append(out.Indices, next)
		}
	}
	return out, nil
}

// Validate проверяет согласованность массивов
func (m Mesh) Validate() error {
	n := len(m.Positions)
	if len(m.UVs) != n || len(m.Normals) != n {
		return fmt.Errorf("%w: вершин %d, uv %d, нормалей %d", ErrInvalidArgument, n, len(m.UVs), len(m.Normals))
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: число индексов %d не кратно 3", ErrInvalidArgument, len(m.Indices))
	}
	for _, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("%w: индекс %d вне %d вершин", ErrInvalidArgument, idx, n)
		}
	}
	return nil
}

// BuildMesh строит геометрию поверхности в мировых координатах.
// FaceFlat и FaceBeveledJoin дают один квад (фаски пока не строятся),
// остальные стили оставляют сетку пустой.
func (s *Surface) BuildMesh() error {
	u, v, err := vec.PlaneAxes(s.Facing)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	s.Mesh = Mesh{}
	s.meshed = false

	switch s.Style {
	case material.FaceFlat, material.FaceBeveledJoin:
		mesh, err := s.flatQuad(u.Vec().ToFloat(), v.Vec().ToFloat())
		if err != nil {
			return err
		}
		s.Mesh = mesh
		s.meshed = true
	}
	return nil
}

// flatQuad вершины UL, UR, LR, LL. Смещение верхнего левого угла считается
// явно, остальные получаются отражением по часовой стрелке.
func (s *Surface) flatQuad(u, v mgl32.Vec3) (Mesh, error) {
	w, h := float32(s.Width), float32(s.Height)
	facing := s.Facing.Vec().ToFloat()

	ulCoord := v.Mul(h - 1)
	urCoord := ulCoord.Add(u.Mul(w - 1))
	lrCoord := u.Mul(w - 1)
	llCoord := mgl32.Vec3{}

	ulOff := u.Mul(-0.5).Add(v.Mul(0.5)).Add(facing.Mul(0.5))
	urOff, err := s.MirrorCW(ulOff, 1)
	if err != nil {
		return Mesh{}, err
	}
	lrOff, err := s.MirrorCW(urOff, 1)
	if err != nil {
		return Mesh{}, err
	}
	llOff, err := s.MirrorCW(lrOff, 1)
	if err != nil {
		return Mesh{}, err
	}

	origin := s.Root.ToFloat()
	return Mesh{
		Positions: []mgl32.Vec3{
			origin.Add(ulCoord).Add(ulOff),
			origin.Add(urCoord).Add(urOff),
			origin.Add(lrCoord).Add(lrOff),
			origin.Add(llCoord).Add(llOff),
		},
		UVs: []mgl32.Vec2{
			{0, 0},
			{w, 0},
			{w, h},
			{0, h},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
		Normals: []mgl32.Vec3{facing, facing, facing, facing},
	}, nil
}
