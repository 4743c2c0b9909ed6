// Package mesher находит видимые грани в области воксельного хранилища
// и жадно объединяет их в максимальные прямоугольные поверхности.
package mesher

import (
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxmesh/internal/logging"
	"github.com/annel0/voxmesh/internal/material"
	"github.com/annel0/voxmesh/internal/vec"
	"github.com/annel0/voxmesh/internal/voxel"
)

// ErrInvalidArgument недопустимое направление, размер или отсутствующая зависимость
var ErrInvalidArgument = errors.New("mesher: недопустимый аргумент")

type faceKey struct {
	coord vec.Vec3
	dir   vec.Direction
}

// Chunk область хранилища и построенные для неё поверхности.
// Хранилище не принадлежит чанку; во время BuildAllFaces его нельзя изменять.
type Chunk struct {
	store  *voxel.Store
	lookup material.Lookup
	root   vec.Vec3
	size   vec.Vec3

	surfaces []*Surface
	claims   map[faceKey]int

	metrics *Metrics
	logger  *logging.Logger
}

// Option настройка чанка
type Option func(*Chunk)

// WithMetrics подключает Prometheus метрики
func WithMetrics(m *Metrics) Option {
	return func(c *Chunk) { c.metrics = m }
}

// WithLogger задаёт логгер (по умолчанию логгер компонента mesher)
func WithLogger(l *logging.Logger) Option {
	return func(c *Chunk) { c.logger = l }
}

// NewChunk создаёт экстрактор для области [root, root+size) хранилища
func NewChunk(store *voxel.Store, lookup material.Lookup, root, size vec.Vec3, opts ...Option) (*Chunk, error) {
	if store == nil || lookup == nil {
		return nil, fmt.Errorf("%w: нужны хранилище и таблица материалов", ErrInvalidArgument)
	}
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("%w: размер чанка %s", ErrInvalidArgument, size)
	}

	c := &Chunk{
		store:  store,
		lookup: lookup,
		root:   root,
		size:   size,
		claims: make(map[faceKey]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.GetMesherLogger()
	}
	return c, nil
}

// Root мировая координата начала области
func (c *Chunk) Root() vec.Vec3 { return c.root }

// Size размеры области
func (c *Chunk) Size() vec.Vec3 { return c.size }

// ContainsCoord проверяет принадлежность координаты области.
// С peek область расширяется на один воксель в каждую сторону.
func (c *Chunk) ContainsCoord(p vec.Vec3, peek bool) bool {
	l := p.Sub(c.root)
	lo, hi := 0, 0
	if peek {
		lo, hi = -1, 1
	}
	return l.X >= lo && l.Y >= lo && l.Z >= lo &&
		l.X < c.size.X+hi && l.Y < c.size.Y+hi && l.Z < c.size.Z+hi
}

// Material возвращает код материала, если координата в области и в хранилище
func (c *Chunk) Material(p vec.Vec3, peek bool) voxel.Result {
	if !c.ContainsCoord(p, peek) {
		return voxel.Result{Status: voxel.OutOfRange}
	}
	return c.store.Lookup(p)
}

// IsFace сообщает, видна ли грань вокселя p в направлении d.
// Неизвестные материалы считаются невидимыми.
func (c *Chunk) IsFace(p vec.Vec3, d vec.Direction) bool {
	if !d.Valid() {
		return false
	}

	src := c.Material(p, false)
	if !src.Ok() {
		return false
	}
	props, ok := c.lookup.Lookup(src.Code)
	if !ok || !props.Visible {
		return false
	}

	nbr := c.Material(p.Neighbor(d), true)
	if !nbr.Ok() {
		return true
	}
	nprops, ok := c.lookup.Lookup(nbr.Code)
	if !ok {
		return true
	}
	return nprops.Transparent || !nprops.Visible
}

// ContainsFace сообщает, занята ли грань уже построенной поверхностью
func (c *Chunk) ContainsFace(p vec.Vec3, d vec.Direction) bool {
	_, ok := c.claims[faceKey{p, d}]
	return ok
}

// SurfaceAt возвращает поверхность, занявшую грань
func (c *Chunk) SurfaceAt(p vec.Vec3, d vec.Direction) (*Surface, bool) {
	idx, ok := c.claims[faceKey{p, d}]
	if !ok {
		return nil, false
	}
	return c.surfaces[idx], true
}

// BuildAllFaces заново находит все грани области.
// Порядок обхода: x, затем y, затем z (z во внутреннем цикле), направления в порядке vec.Directions.
func (c *Chunk) BuildAllFaces() error {
	start := time.Now()

	c.surfaces = nil
	c.claims = make(map[faceKey]int)

	for x := c.root.X; x < c.root.X+c.size.X; x++ {
		for y := c.root.Y; y < c.root.Y+c.size.Y; y++ {
			for z := c.root.Z; z < c.root.Z+c.size.Z; z++ {
				p := vec.New(x, y, z)
				for _, d := range vec.Directions {
					if !c.IsFace(p, d) || c.ContainsFace(p, d) {
						continue
					}
					surf, err := c.growSurface(p, d)
					if err != nil {
						return fmt.Errorf("грань %s %s: %w", p, d, err)
					}
					if err := c.claim(surf); err != nil {
						return err
					}
				}
			}
		}
	}

	elapsed := time.Since(start)
	faces := c.FaceCount()
	c.metrics.observeBuild(len(c.surfaces), faces, elapsed)
	c.logger.Debug("Чанк %s: %d поверхностей, %d граней за %v", c.root, len(c.surfaces), faces, elapsed)
	return nil
}

func (c *Chunk) claim(s *Surface) error {
	coords, err := s.FaceCoords()
	if err != nil {
		return err
	}
	idx := len(c.surfaces)
	c.surfaces = append(c.surfaces, s)
	for _, p := range coords {
		c.claims[faceKey{p, s.Facing}] = idx
	}
	return nil
}

// growSurface растит прямоугольник от seed: сначала ширина вдоль U в обе стороны,
// затем высота вдоль V построчно. Ширина после этого не пересматривается.
func (c *Chunk) growSurface(seed vec.Vec3, d vec.Direction) (*Surface, error) {
	u, v, err := vec.PlaneAxes(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	src := c.Material(seed, false)
	if !src.Ok() {
		return nil, fmt.Errorf("%w: seed %s вне области", ErrInvalidArgument, seed)
	}
	props, ok := c.lookup.Lookup(src.Code)
	if !ok {
		return nil, fmt.Errorf("%w: неизвестный материал %d", ErrInvalidArgument, src.Code)
	}

	matches := func(p vec.Vec3) bool {
		if !c.ContainsCoord(p, false) {
			return false
		}
		m := c.Material(p, false)
		return m.Ok() && m.Code == src.Code && c.IsFace(p, d) && !c.ContainsFace(p, d)
	}

	uv, vv := u.Vec(), v.Vec()

	wp, wn := 1, 0
	for p := seed.Add(uv); matches(p); p = p.Add(uv) {
		wp++
	}
	for p := seed.Sub(uv); matches(p); p = p.Sub(uv) {
		wn++
	}

	rowMatches := func(h int) bool {
		for w := -wn; w < wp; w++ {
			if !matches(seed.Add(uv.Scale(w)).Add(vv.Scale(h))) {
				return false
			}
		}
		return true
	}

	hp, hn := 1, 0
	for h := 1; rowMatches(h); h++ {
		hp++
	}
	for h := 1; rowMatches(-h); h++ {
		hn++
	}

	surf := &Surface{
		Style:    props.Style,
		Root:     seed.Sub(uv.Scale(wn)).Sub(vv.Scale(hn)),
		Width:    wn + wp,
		Height:   hn + hp,
		Facing:   d,
		Material: src.Code,
	}

	if surf.Style == material.FaceBeveledJoin {
		if err := c.classifyJoins(surf); err != nil {
			return nil, err
		}
	}
	if err := surf.BuildMesh(); err != nil {
		return nil, err
	}
	return surf, nil
}

// Surfaces возвращает копию списка поверхностей в порядке построения
func (c *Chunk) Surfaces() []*Surface {
	out := make([]*Surface, len(c.surfaces))
	copy(out, c.surfaces)
	return out
}

// SurfaceCount число поверхностей
func (c *Chunk) SurfaceCount() int {
	return len(c.surfaces)
}

// FaceCount суммарная площадь поверхностей
func (c *Chunk) FaceCount() int {
	n := 0
	for _, s := range c.surfaces {
		n += s.Area()
	}
	return n
}

// Mesh объединяет геометрию всех поверхностей
func (c *Chunk) Mesh() Mesh {
	var m Mesh
	for _, s := range c.surfaces {
		m.Append(s.Mesh)
	}
	return m
}
