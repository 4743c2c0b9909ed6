package mesher

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/annel0/voxmesh/internal/material"
	"github.com/annel0/voxmesh/internal/vec"
	"github.com/annel0/voxmesh/internal/voxel"
)

// BuildGrid разбивает всё хранилище на чанки chunkSize (крайние обрезаются)
// и строит поверхности каждого. Чанки только читают хранилище, поэтому
// строятся параллельно; хранилище нельзя менять до возврата.
// Результат упорядочен по z, затем y, затем x корня чанка.
func BuildGrid(ctx context.Context, store *voxel.Store, lookup material.Lookup, chunkSize vec.Vec3, opts ...Option) ([]*Chunk, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: нет хранилища", ErrInvalidArgument)
	}
	if chunkSize.X <= 0 || chunkSize.Y <= 0 || chunkSize.Z <= 0 {
		return nil, fmt.Errorf("%w: размер чанка %s", ErrInvalidArgument, chunkSize)
	}

	dims := store.Dims()
	var chunks []*Chunk
	for z := 0; z < dims.Z; z += chunkSize.Z {
		for y := 0; y < dims.Y; y += chunkSize.Y {
			for x := 0; x < dims.X; x += chunkSize.X {
				root := vec.New(x, y, z)
				size := vec.New(
					min(chunkSize.X, dims.X-x),
					min(chunkSize.Y, dims.Y-y),
					min(chunkSize.Z, dims.Z-z),
				)
				c, err := NewChunk(store, lookup, root, size, opts...)
				if err != nil {
					return nil, err
				}
				chunks = append(chunks, c)
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, c := range chunks {
		c := c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.BuildAllFaces(); err != nil {
				return fmt.Errorf("чанк %s: %w", c.Root(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}
