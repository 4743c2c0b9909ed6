package vec

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVec3Arithmetic(t *testing.T) {
	a := New(1, 2, 3)
	b := New(-4, 5, 0)

	assert.Equal(t, New(-3, 7, 3), a.Add(b))
	assert.Equal(t, New(5, -3, 3), a.Sub(b))
	assert.Equal(t, New(3, 6, 9), a.Scale(3))
	assert.Equal(t, New(-1, -2, -3), a.Neg())
	assert.Equal(t, 6, a.Dot(b))
	assert.Equal(t, 6, a.Volume())
	assert.True(t, a.Equals(New(1, 2, 3)))
	assert.False(t, a.Equals(b))
}

func TestVec3FloatConversion(t *testing.T) {
	v := New(2, -3, 7)
	assert.Equal(t, mgl32.Vec3{2, -3, 7}, v.ToFloat())
	assert.Equal(t, v, FromFloat(v.ToFloat()))
	// Усечение к нулю, как у приведения типов
	assert.Equal(t, New(0, -1, 2), FromFloat(mgl32.Vec3{0.9, -1.5, 2.2}))
}

func TestDirectionVectors(t *testing.T) {
	for _, d := range Directions {
		v := d.Vec()
		assert.Equal(t, 1, v.Dot(v), "направление %s должно быть единичным", d)
		assert.Equal(t, v.Neg(), Directions[d^1].Vec(), "пары направлений идут подряд")

		back, err := DirectionFromVec(v)
		require.NoError(t, err)
		assert.Equal(t, d, back)
	}
}

func TestDirectionFromVecInvalid(t *testing.T) {
	for _, v := range []Vec3{Zero, New(1, 1, 0), New(2, 0, 0), New(0, 0, -3)} {
		_, err := DirectionFromVec(v)
		assert.True(t, errors.Is(err, ErrInvalidDirection), "вектор %s", v)
	}
}

func TestInvalidDirection(t *testing.T) {
	bad := Direction(9)
	assert.False(t, bad.Valid())
	assert.Equal(t, Zero, bad.Vec())
	assert.Equal(t, New(1, 2, 3), New(1, 2, 3).Neighbor(bad))

	_, _, err := PlaneAxes(bad)
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestParseDirection(t *testing.T) {
	for _, d := range Directions {
		got, err := ParseDirection(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}

	got, err := ParseDirection("-z")
	require.NoError(t, err)
	assert.Equal(t, ZNeg, got)

	for _, s := range []string{"", "X", "up", "Direction(7)"} {
		_, err := ParseDirection(s)
		assert.ErrorIs(t, err, ErrInvalidDirection, "строка %q", s)
	}
}

func TestPlaneAxesTable(t *testing.T) {
	expected := map[Direction][2]Direction{
		XPos: {ZPos, YPos},
		XNeg: {ZNeg, YPos},
		YPos: {XPos, ZPos},
		YNeg: {XNeg, ZPos},
		ZPos: {XNeg, YPos},
		ZNeg: {XPos, YPos},
	}

	for d, want := range expected {
		u, v, err := PlaneAxes(d)
		require.NoError(t, err)
		assert.Equal(t, want[0], u, "ось U для %s", d)
		assert.Equal(t, want[1], v, "ось V для %s", d)

		// Оси плоскости ортогональны нормали и друг другу
		n := d.Vec()
		assert.Zero(t, n.Dot(u.Vec()))
		assert.Zero(t, n.Dot(v.Vec()))
		assert.Zero(t, u.Vec().Dot(v.Vec()))
	}

	_, _, err := PlaneAxes(Direction(42))
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestNeighbor(t *testing.T) {
	p := New(4, 4, 4)
	assert.Equal(t, New(5, 4, 4), p.Neighbor(XPos))
	assert.Equal(t, New(4, 4, 3), p.Neighbor(ZNeg))
	assert.Equal(t, "(4, 4, 4)", p.String())
	assert.Equal(t, "-Y", YNeg.String())
}
