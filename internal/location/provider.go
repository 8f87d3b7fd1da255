package location

import (
	"context"

	"github.com/example/delivery-broadcast/internal/models"
)

// StaticProvider serves a fixed coordinate, for hosts whose position is
// known at deploy time (a depot terminal, a test rig).
type StaticProvider struct {
	Coord models.Coord
}

func (p *StaticProvider) Current(ctx context.Context) (models.Coord, error) {
	if err := ctx.Err(); err != nil {
		return models.Coord{}, err
	}
	return p.Coord, nil
}
