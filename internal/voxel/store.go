// Package voxel реализует сжатое (RLE) хранилище трёхмерной сетки
// 16-битных кодов материалов.
//
// Линейный порядок: x меняется быстрее всего, затем y, затем z.
// Хранилище не потокобезопасно: параллельные читатели допустимы только
// при отсутствии писателя.
package voxel

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/annel0/voxmesh/internal/vec"
)

var (
	// ErrOutOfRange координата вне размеров хранилища
	ErrOutOfRange = errors.New("координата вне диапазона")
	// ErrInternalInvariant нарушен инвариант полос (ошибка в логике split/merge)
	ErrInternalInvariant = errors.New("нарушен внутренний инвариант")
	// ErrInvalidArgument недопустимые размеры или параметры
	ErrInvalidArgument = errors.New("недопустимый аргумент")
)

// Strip полоса: код материала и длина повторения
type Strip struct {
	Code uint16 `json:"code"`
	Run  int    `json:"run"`
}

// Status результат поиска материала
type Status uint8

const (
	Found Status = iota
	OutOfRange
)

// Result размеченный результат чтения вместо nullable-кода
type Result struct {
	Code   uint16
	Status Status
}

// Ok возвращает true, если код найден
func (r Result) Ok() bool {
	return r.Status == Found
}

// Store хранит сетку Dims как упорядоченную последовательность полос.
// Соседние полосы никогда не имеют одинаковый код, длина каждой >= 1.
type Store struct {
	dims   vec.Vec3
	strips []Strip
}

// New создаёт хранилище, заполненное материалом 0
func New(dims vec.Vec3) (*Store, error) {
	return NewFilled(dims, 0)
}

// NewFilled создаёт хранилище, целиком заполненное указанным кодом
func NewFilled(dims vec.Vec3, code uint16) (*Store, error) {
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return nil, fmt.Errorf("%w: размеры %s", ErrInvalidArgument, dims)
	}
	return &Store{
		dims:   dims,
		strips: []Strip{{Code: code, Run: dims.Volume()}},
	}, nil
}

// Dims возвращает размеры хранилища
func (s *Store) Dims() vec.Vec3 {
	return s.dims
}

// Volume возвращает общее число вокселей
func (s *Store) Volume() int {
	return s.dims.Volume()
}

// StripCount возвращает текущее количество полос
func (s *Store) StripCount() int {
	return len(s.strips)
}

// Strips возвращает копию последовательности полос
func (s *Store) Strips() []Strip {
	return slices.Clone(s.strips)
}

// InRange проверяет, что координата лежит внутри Dims
func (s *Store) InRange(p vec.Vec3) bool {
	return p.X >= 0 && p.Y >= 0 && p.Z >= 0 &&
		p.X < s.dims.X && p.Y < s.dims.Y && p.Z < s.dims.Z
}

func (s *Store) linear(p vec.Vec3) int {
	return p.X + p.Y*s.dims.X + p.Z*s.dims.X*s.dims.Y
}

// locate находит индекс полосы, покрывающей координату, и смещение внутри неё.
// Сложность O(количество полос).
func (s *Store) locate(p vec.Vec3) (idx, offset int, err error) {
	if !s.InRange(p) {
		return 0, 0, fmt.Errorf("%w: %s, размеры %s", ErrOutOfRange, p, s.dims)
	}

	target := s.linear(p)
	start := 0
	for i, st := range s.strips {
		if st.Run <= 0 {
			return i, 0, fmt.Errorf("%w: полоса нулевой длины на индексе %d", ErrInternalInvariant, i)
		}
		if target < start+st.Run {
			return i, target - start, nil
		}
		start += st.Run
	}

	return 0, 0, fmt.Errorf("%w: сумма полос %d меньше объёма %d", ErrInternalInvariant, start, s.Volume())
}

// Get возвращает код материала в координате
func (s *Store) Get(p vec.Vec3) (uint16, error) {
	idx, _, err := s.locate(p)
	if err != nil {
		return 0, err
	}
	return s.strips[idx].Code, nil
}

// Lookup как Get, но возвращает размеченный результат вместо ошибки диапазона
func (s *Store) Lookup(p vec.Vec3) Result {
	code, err := s.Get(p)
	if err != nil {
		return Result{Status: OutOfRange}
	}
	return Result{Code: code, Status: Found}
}

type mergeDir uint8

const (
	mergeBoth mergeDir = iota
	mergeFront
	mergeBack
)

// merge сливает полосу idx с соседями, если коды совпадают.
// mergeFront смотрит только в сторону меньших индексов, mergeBack только в сторону больших.
func (s *Store) merge(idx int, dir mergeDir) {
	if dir != mergeBack && idx > 0 && s.strips[idx-1].Code == s.strips[idx].Code {
		s.strips[idx-1].Run += s.strips[idx].Run
		s.strips = slices.Delete(s.strips, idx, idx+1)
		idx--
	}

	if dir != mergeFront && idx < len(s.strips)-1 && s.strips[idx+1].Code == s.strips[idx].Code {
		s.strips[idx].Run += s.strips[idx+1].Run
		s.strips = slices.Delete(s.strips, idx+1, idx+2)
	}
}

// Set записывает код материала в координату.
// Вставка и удаление полос стоят O(количество полос).
func (s *Store) Set(p vec.Vec3, code uint16) error {
	idx, offset, err := s.locate(p)
	if err != nil {
		return err
	}

	cur := s.strips[idx]
	if cur.Code == code {
		return nil
	}

	switch {
	case cur.Run == 1:
		s.strips[idx].Code = code
		s.merge(idx, mergeBoth)

	case offset > 0 && offset < cur.Run-1:
		// Середина полосы: front | new | back, слияние не требуется
		s.strips[idx].Run = offset
		back := Strip{Code: cur.Code, Run: cur.Run - offset - 1}
		s.strips = slices.Insert(s.strips, idx+1, Strip{Code: code, Run: 1}, back)

	case offset == 0:
		s.strips[idx].Run--
		s.strips = slices.Insert(s.strips, idx, Strip{Code: code, Run: 1})
		s.merge(idx, mergeFront)

	default:
		s.strips[idx].Run--
		s.strips = slices.Insert(s.strips, idx+1, Strip{Code: code, Run: 1})
		s.merge(idx+1, mergeBack)
	}

	return nil
}

// Validate проверяет инварианты полос
func (s *Store) Validate() error {
	total := 0
	for i, st := range s.strips {
		if st.Run <= 0 {
			return fmt.Errorf("%w: полоса %d имеет длину %d", ErrInternalInvariant, i, st.Run)
		}
		if i > 0 && s.strips[i-1].Code == st.Code {
			return fmt.Errorf("%w: полосы %d и %d имеют одинаковый код %d", ErrInternalInvariant, i-1, i, st.Code)
		}
		total += st.Run
	}
	if total != s.Volume() {
		return fmt.Errorf("%w: сумма полос %d, объём %d", ErrInternalInvariant, total, s.Volume())
	}
	return nil
}

// String отладочный дамп в формате "NxC, NxC, "
func (s *Store) String() string {
	var sb strings.Builder
	for _, st := range s.strips {
		fmt.Fprintf(&sb, "%dx%d, ", st.Run, st.Code)
	}
	return sb.String()
}
