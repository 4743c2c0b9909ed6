package voxel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxmesh/internal/vec"
)

func newStore(t *testing.T, x, y, z int) *Store {
	t.Helper()
	s, err := New(vec.New(x, y, z))
	require.NoError(t, err)
	return s
}

func TestNewStore(t *testing.T) {
	s := newStore(t, 4, 3, 2)

	assert.Equal(t, vec.New(4, 3, 2), s.Dims())
	assert.Equal(t, 24, s.Volume())
	assert.Equal(t, []Strip{{Code: 0, Run: 24}}, s.Strips())
	assert.Equal(t, "24x0, ", s.String())
	require.NoError(t, s.Validate())

	for _, dims := range []vec.Vec3{vec.New(0, 1, 1), vec.New(1, -1, 1), vec.New(1, 1, 0)} {
		_, err := New(dims)
		assert.ErrorIs(t, err, ErrInvalidArgument, "размеры %s", dims)
	}
}

func TestSplitMiddleOfRun(t *testing.T) {
	s := newStore(t, 10, 1, 1)

	require.NoError(t, s.Set(vec.New(5, 0, 0), 7))
	assert.Equal(t, []Strip{{0, 5}, {7, 1}, {0, 4}}, s.Strips())

	// Повторная запись того же кода ничего не меняет
	require.NoError(t, s.Set(vec.New(5, 0, 0), 7))
	assert.Equal(t, 3, s.StripCount())
	require.NoError(t, s.Validate())
}

func TestSingleStripReplaceMergesBothSides(t *testing.T) {
	s := newStore(t, 10, 1, 1)
	require.NoError(t, s.Set(vec.New(5, 0, 0), 7))

	require.NoError(t, s.Set(vec.New(5, 0, 0), 0))
	assert.Equal(t, []Strip{{0, 10}}, s.Strips())
}

func TestFrontAndBackWrites(t *testing.T) {
	s := newStore(t, 6, 1, 1)
	for x := 0; x < 3; x++ {
		require.NoError(t, s.Set(vec.New(x, 0, 0), 1))
		require.NoError(t, s.Validate())
	}
	assert.Equal(t, []Strip{{1, 3}, {0, 3}}, s.Strips())

	// Первый элемент полосы: слияние с предыдущей
	require.NoError(t, s.Set(vec.New(3, 0, 0), 1))
	assert.Equal(t, []Strip{{1, 4}, {0, 2}}, s.Strips())

	// Последний элемент полосы: слияние со следующей
	require.NoError(t, s.Set(vec.New(3, 0, 0), 0))
	assert.Equal(t, []Strip{{1, 3}, {0, 3}}, s.Strips())

	// Последний элемент без совпадения со следующей полосой
	require.NoError(t, s.Set(vec.New(5, 0, 0), 2))
	assert.Equal(t, []Strip{{1, 3}, {0, 2}, {2, 1}}, s.Strips())

	// Полоса длины 2: запись в начало
	require.NoError(t, s.Set(vec.New(3, 0, 0), 9))
	assert.Equal(t, []Strip{{1, 3}, {9, 1}, {0, 1}, {2, 1}}, s.Strips())
	require.NoError(t, s.Validate())
}

func TestOutOfRange(t *testing.T) {
	s := newStore(t, 2, 2, 2)

	for _, p := range []vec.Vec3{vec.New(-1, 0, 0), vec.New(2, 0, 0), vec.New(0, 2, 0), vec.New(0, 0, -1)} {
		_, err := s.Get(p)
		assert.ErrorIs(t, err, ErrOutOfRange, "Get %s", p)
		assert.ErrorIs(t, s.Set(p, 1), ErrOutOfRange, "Set %s", p)
		assert.Equal(t, OutOfRange, s.Lookup(p).Status)
		assert.False(t, s.Lookup(p).Ok())
	}

	res := s.Lookup(vec.New(1, 1, 1))
	assert.True(t, res.Ok())
	assert.Equal(t, uint16(0), res.Code)
}

func TestZeroLengthStripIsInternalError(t *testing.T) {
	s := &Store{
		dims:   vec.New(4, 1, 1),
		strips: []Strip{{Code: 1, Run: 0}, {Code: 2, Run: 4}},
	}

	err := s.Set(vec.New(2, 0, 0), 3)
	assert.ErrorIs(t, err, ErrInternalInvariant)
	assert.ErrorIs(t, s.Validate(), ErrInternalInvariant)
}

// Случайные записи сверяются с плотным массивом; инварианты проверяются после каждой записи.
func TestRandomWritesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := newStore(t, 5, 4, 3)
	dense := make([]uint16, s.Volume())

	for i := 0; i < 2000; i++ {
		p := vec.New(rng.Intn(5), rng.Intn(4), rng.Intn(3))
		code := uint16(rng.Intn(4))

		require.NoError(t, s.Set(p, code))
		dense[s.linear(p)] = code
		require.NoError(t, s.Validate(), "после записи %d в %s: %s", code, p, s)

		got, err := s.Get(p)
		require.NoError(t, err)
		require.Equal(t, code, got)

		before := s.StripCount()
		require.NoError(t, s.Set(p, code))
		require.Equal(t, before, s.StripCount(), "повторная запись должна быть идемпотентной")
	}

	for z := 0; z < 3; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 5; x++ {
				p := vec.New(x, y, z)
				got, err := s.Get(p)
				require.NoError(t, err)
				assert.Equal(t, dense[s.linear(p)], got, "координата %s", p)
			}
		}
	}
}
