package mesher

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxmesh/internal/material"
	"github.com/annel0/voxmesh/internal/vec"
)

func axesOf(t *testing.T, d vec.Direction) (u, v, f mgl32.Vec3) {
	t.Helper()
	ud, vd, err := vec.PlaneAxes(d)
	require.NoError(t, err)
	return ud.Vec().ToFloat(), vd.Vec().ToFloat(), d.Vec().ToFloat()
}

func TestFlatQuadGeometry(t *testing.T) {
	for _, d := range vec.Directions {
		s := &Surface{
			Style:  material.FaceFlat,
			Root:   vec.New(3, -2, 5),
			Width:  3,
			Height: 2,
			Facing: d,
		}
		require.NoError(t, s.BuildMesh(), "направление %s", d)
		require.True(t, s.Meshed())

		u, v, f := axesOf(t, d)
		root := s.Root.ToFloat()
		w, h := float32(s.Width), float32(s.Height)
		half := f.Mul(0.5)

		want := []mgl32.Vec3{
			root.Add(v.Mul(h - 1)).Add(u.Mul(-0.5)).Add(v.Mul(0.5)).Add(half),
			root.Add(u.Mul(w - 1)).Add(v.Mul(h - 1)).Add(u.Mul(0.5)).Add(v.Mul(0.5)).Add(half),
			root.Add(u.Mul(w - 1)).Add(u.Mul(0.5)).Add(v.Mul(-0.5)).Add(half),
			root.Add(u.Mul(-0.5)).Add(v.Mul(-0.5)).Add(half),
		}

		mesh := s.Mesh
		require.NoError(t, mesh.Validate())
		require.Len(t, mesh.Positions, 4)
		for i := range want {
			assert.True(t, mesh.Positions[i].ApproxEqual(want[i]), "%s вершина %d: %v, ожидалось %v", d, i, mesh.Positions[i], want[i])
		}

		assert.Equal(t, []mgl32.Vec2{{0, 0}, {w, 0}, {w, h}, {0, h}}, mesh.UVs)
		assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)
		for _, n := range mesh.Normals {
			assert.Equal(t, f, n)
		}

		// Оба треугольника смотрят наружу, в сторону грани
		for tri := 0; tri < 2; tri++ {
			a := mesh.Positions[mesh.Indices[tri*3]]
			b := mesh.Positions[mesh.Indices[tri*3+1]]
			c := mesh.Positions[mesh.Indices[tri*3+2]]
			normal := b.Sub(a).Cross(c.Sub(a))
			assert.Greater(t, normal.Dot(f), float32(0), "%s треугольник %d", d, tri)
		}
	}
}

func TestBuildMeshStyles(t *testing.T) {
	s := &Surface{Style: material.FaceBeveledJoin, Width: 1, Height: 1, Facing: vec.YPos}
	require.NoError(t, s.BuildMesh())
	assert.Equal(t, 4, s.Mesh.VertexCount())

	s = &Surface{Style: material.FacePile, Width: 1, Height: 1, Facing: vec.YPos}
	require.NoError(t, s.BuildMesh())
	assert.False(t, s.Meshed())
	assert.True(t, s.Mesh.Empty())

	s = &Surface{Style: material.FaceFlat, Width: 1, Height: 1, Facing: vec.Direction(9)}
	assert.ErrorIs(t, s.BuildMesh(), ErrInvalidArgument)
}

func TestAxesRoundTrip(t *testing.T) {
	points := []mgl32.Vec3{{1, 2, 3}, {-0.5, 0.5, 0.5}, {4, -7, 0}}

	for _, d := range vec.Directions {
		s := &Surface{Facing: d}
		u, v, f := axesOf(t, d)

		for _, p := range points {
			local, err := s.LocalizeWorld(p, vec.Zero)
			require.NoError(t, err)
			assert.Equal(t, p.Dot(u), local.X(), "%s: x вдоль ширины", d)
			assert.Equal(t, p.Dot(v), local.Y(), "%s: y вдоль высоты", d)
			assert.Equal(t, p.Dot(f), local.Z(), "%s: z вдоль нормали", d)

			world, err := s.LocalToWorldAxes(local, mgl32.Vec3{})
			require.NoError(t, err)
			assert.True(t, world.ApproxEqual(p), "%s: %v -> %v", d, p, world)
		}

		shifted, err := s.LocalToWorldAxes(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})
		require.NoError(t, err)
		assert.Equal(t, mgl32.Vec3{1, 1, 1}, shifted)
	}

	bad := &Surface{Facing: vec.Direction(7)}
	_, err := bad.LocalizeWorld(mgl32.Vec3{}, vec.Zero)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = bad.LocalToWorldAxes(mgl32.Vec3{}, mgl32.Vec3{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = bad.MirrorCW(mgl32.Vec3{}, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMirrorCW(t *testing.T) {
	for _, d := range vec.Directions {
		s := &Surface{Facing: d}
		u, v, f := axesOf(t, d)
		ul := u.Mul(-0.5).Add(v.Mul(0.5)).Add(f.Mul(0.5))

		ur, err := s.MirrorCW(ul, 1)
		require.NoError(t, err)
		assert.True(t, ur.ApproxEqual(u.Mul(0.5).Add(v.Mul(0.5)).Add(f.Mul(0.5))), "%s: %v", d, ur)

		lr, err := s.MirrorCW(ul, 2)
		require.NoError(t, err)
		assert.True(t, lr.ApproxEqual(u.Mul(0.5).Add(v.Mul(-0.5)).Add(f.Mul(0.5))), "%s: %v", d, lr)

		full, err := s.MirrorCW(ul, 4)
		require.NoError(t, err)
		assert.True(t, full.ApproxEqual(ul), "%s: четыре отражения возвращают исходный угол", d)
	}
}

func TestSurfaceContainsFace(t *testing.T) {
	s := &Surface{Root: vec.New(2, 1, 0), Width: 3, Height: 2, Facing: vec.ZPos}

	// Для +Z ширина идёт вдоль -X
	for _, p := range []vec.Vec3{
		vec.New(2, 1, 0), vec.New(1, 1, 0), vec.New(0, 1, 0),
		vec.New(2, 2, 0), vec.New(1, 2, 0), vec.New(0, 2, 0),
	} {
		assert.True(t, s.ContainsFace(p, vec.ZPos), "грань %s", p)
	}

	for _, p := range []vec.Vec3{vec.New(3, 1, 0), vec.New(-1, 1, 0), vec.New(2, 0, 0), vec.New(2, 3, 0), vec.New(2, 1, 1)} {
		assert.False(t, s.ContainsFace(p, vec.ZPos), "грань %s", p)
	}
	assert.False(t, s.ContainsFace(vec.New(2, 1, 0), vec.ZNeg))

	coords, err := s.FaceCoords()
	require.NoError(t, err)
	assert.Len(t, coords, s.Area())
	for _, p := range coords {
		assert.True(t, s.ContainsFace(p, vec.ZPos))
	}
}

func TestEdgeCoordsCW(t *testing.T) {
	s := &Surface{Root: vec.Zero, Width: 3, Height: 2, Facing: vec.YPos}

	cases := map[Edge][]vec.Vec3{
		EdgeUpper: {vec.New(0, 0, 1), vec.New(1, 0, 1), vec.New(2, 0, 1)},
		EdgeRight: {vec.New(2, 0, 1), vec.New(2, 0, 0)},
		EdgeLower: {vec.New(2, 0, 0), vec.New(1, 0, 0), vec.New(0, 0, 0)},
		EdgeLeft:  {vec.New(0, 0, 0), vec.New(0, 0, 1)},
	}
	for edge, want := range cases {
		got, err := s.EdgeCoordsCW(edge)
		require.NoError(t, err)
		assert.Equal(t, want, got, "сторона %s", edge)
	}

	_, err := s.EdgeCoordsCW(Edge(4))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPlaneCoord(t *testing.T) {
	cases := []struct {
		surface *Surface
		want    int
	}{
		{&Surface{Root: vec.New(4, 1, 1), Facing: vec.XPos}, 4},
		{&Surface{Root: vec.New(4, 1, 1), Facing: vec.XNeg}, -4},
		{&Surface{Root: vec.New(4, 1, 0), Facing: vec.ZPos}, 0},
	}
	for _, tc := range cases {
		got, err := tc.surface.PlaneCoord()
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s", tc.surface)
	}

	bad := &Surface{Root: vec.New(1, 1, 1), Width: 1, Height: 1, Facing: vec.Direction(6)}
	_, err := bad.PlaneCoord()
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, bad.ContainsFace(vec.New(1, 1, 1), vec.Direction(6)))

	// Грань в соседней плоскости не принадлежит поверхности
	s := &Surface{Root: vec.New(1, 1, 1), Width: 2, Height: 2, Facing: vec.YPos}
	assert.True(t, s.ContainsFace(vec.New(2, 1, 2), vec.YPos))
	assert.False(t, s.ContainsFace(vec.New(2, 2, 2), vec.YPos))
}

func TestMeshFacing(t *testing.T) {
	var m Mesh
	for _, s := range []*Surface{
		{Style: material.FaceFlat, Width: 1, Height: 1, Facing: vec.XPos},
		{Style: material.FaceFlat, Root: vec.New(0, 1, 0), Width: 2, Height: 1, Facing: vec.YPos},
		{Style: material.FaceFlat, Root: vec.New(3, 1, 0), Width: 1, Height: 1, Facing: vec.YPos},
	} {
		require.NoError(t, s.BuildMesh())
		m.Append(s.Mesh)
	}

	up, err := m.Facing(vec.YPos)
	require.NoError(t, err)
	require.NoError(t, up.Validate())
	assert.Equal(t, 8, up.VertexCount())
	assert.Equal(t, 4, up.TriangleCount())
	assert.Equal(t, m.Positions[4:], up.Positions)
	for _, n := range up.Normals {
		assert.Equal(t, mgl32.Vec3{0, 1, 0}, n)
	}

	down, err := m.Facing(vec.YNeg)
	require.NoError(t, err)
	assert.True(t, down.Empty())

	_, err = m.Facing(vec.Direction(6))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	skewed := Mesh{
		Positions: []mgl32.Vec3{{}, {}, {}},
		UVs:       []mgl32.Vec2{{}, {}, {}},
		Normals:   []mgl32.Vec3{{0.7, 0.7, 0}, {}, {}},
		Indices:   []uint32{0, 1, 2},
	}
	_, err = skewed.Facing(vec.XPos)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMeshAppendAndValidate(t *testing.T) {
	a := &Surface{Style: material.FaceFlat, Width: 1, Height: 1, Facing: vec.XPos}
	b := &Surface{Style: material.FaceFlat, Root: vec.New(0, 1, 0), Width: 2, Height: 1, Facing: vec.YPos}
	require.NoError(t, a.BuildMesh())
	require.NoError(t, b.BuildMesh())

	var m Mesh
	m.Append(a.Mesh)
	m.Append(b.Mesh)
	require.NoError(t, m.Validate())
	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 4, m.TriangleCount())
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3, 4, 5, 6, 4, 6, 7}, m.Indices)

	broken := Mesh{Positions: []mgl32.Vec3{{}}, UVs: []mgl32.Vec2{{}}, Normals: []mgl32.Vec3{{}}, Indices: []uint32{0, 0, 1}}
	assert.ErrorIs(t, broken.Validate(), ErrInvalidArgument)

	broken = Mesh{Positions: []mgl32.Vec3{{}}, Indices: []uint32{0, 0, 0}}
	assert.ErrorIs(t, broken.Validate(), ErrInvalidArgument)

	broken = Mesh{Indices: []uint32{0}}
	assert.ErrorIs(t, broken.Validate(), ErrInvalidArgument)
}
