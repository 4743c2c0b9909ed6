package mesher

import (
	"fmt"

	"github.com/annel0/voxmesh/internal/vec"
)

// joinType сравнивает материал source с target и вокселем над target
func (c *Chunk) joinType(source, target vec.Vec3, facing vec.Direction) JoinType {
	src := c.Material(source, false)
	if !src.Ok() {
		return JoinNone
	}

	t := c.Material(target, true)
	if !t.Ok() || t.Code != src.Code {
		return JoinNone
	}

	lifted := c.Material(target.Neighbor(facing), true)
	if lifted.Ok() && lifted.Code == src.Code {
		return JoinLifted
	}
	return JoinFlat
}

// classifyJoins заполняет соседство углов (UL, UR, LR, LL) и сторон.
// На верхней стороне записываются только смены типа, остальные стороны
// записываются в каждой координате.
func (c *Chunk) classifyJoins(s *Surface) error {
	u, v, err := vec.PlaneAxes(s.Facing)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	uv, vv := u.Vec(), v.Vec()

	ul := s.Root.Add(vv.Scale(s.Height - 1))
	ur := ul.Add(uv.Scale(s.Width - 1))
	lr := s.Root.Add(uv.Scale(s.Width - 1))
	ll := s.Root

	corners := [4]struct{ corner, diag vec.Vec3 }{
		CornerUL: {ul, ul.Sub(uv).Add(vv)},
		CornerUR: {ur, ur.Add(uv).Add(vv)},
		CornerLR: {lr, lr.Add(uv).Sub(vv)},
		CornerLL: {ll, ll.Sub(uv).Sub(vv)},
	}
	for i, cr := range corners {
		s.DiagonalJoins[i] = EdgeJoin{Coord: cr.diag, Join: c.joinType(cr.corner, cr.diag, s.Facing)}
	}

	outward := [4]vec.Vec3{
		EdgeUpper: vv,
		EdgeRight: uv,
		EdgeLower: vv.Neg(),
		EdgeLeft:  uv.Neg(),
	}
	for edge := EdgeUpper; edge <= EdgeLeft; edge++ {
		coords, err := s.EdgeCoordsCW(edge)
		if err != nil {
			return err
		}

		joins := make([]EdgeJoin, 0, len(coords))
		for _, p := range coords {
			j := c.joinType(p, p.Add(outward[edge]), s.Facing)
			if edge == EdgeUpper && len(joins) > 0 && joins[len(joins)-1].Join == j {
				continue
			}
			joins = append(joins, EdgeJoin{Coord: p, Join: j})
		}
		s.EdgeJoins[edge] = joins
	}
	return nil
}
