package flow

import (
	"math"
	"math/rand"

	"github.com/diwise/water-network/pkg/types"
)

const (
	MinPressure float64 = 15
	MaxPressure float64 = 40
	MinFlowRate float64 = 100
	MaxFlowRate float64 = 150
)

// GateWallLookup resolves a gate wall by id.
type GateWallLookup func(id string) (*types.GateWall, bool)

// Propagator derives the flow state of pipelines from their connected gate walls.
type Propagator struct {
	rnd *rand.Rand
}

func New(rnd *rand.Rand) *Propagator {
	return &Propagator{rnd: rnd}
}

// Recompute updates p from the current state of its connected gate walls and
// reports whether flowActive or color changed.
func (fp *Propagator) Recompute(p *types.Pipeline, lookup GateWallLookup) bool {
	active := false

	for _, id := range p.ConnectedGateWalls {
		g, ok := lookup(id)
		if ok && g.IsActive && g.FlowDirection != types.FlowNone {
			active = true
			break
		}
	}

	before := p.FlowActive
	color := p.Color

	p.FlowActive = active

	if active {
		p.Color = types.ColorActive
		p.Pressure = fp.sample(MinPressure, MaxPressure)
		p.FlowRate = fp.sample(MinFlowRate, MaxFlowRate)
	} else {
		p.Color = types.ColorInactive
		p.Pressure = 0
		p.FlowRate = 0
	}

	return before != p.FlowActive || color != p.Color
}

// RecomputeAll recomputes every pipeline and returns all of them in order.
func (fp *Propagator) RecomputeAll(pipelines []*types.Pipeline, lookup GateWallLookup) []*types.Pipeline {
	for _, p := range pipelines {
		fp.Recompute(p, lookup)
	}
	return pipelines
}

func (fp *Propagator) sample(min, max float64) float64 {
	return math.Floor((fp.rnd.Float64()*(max-min)+min)*10) / 10
}
