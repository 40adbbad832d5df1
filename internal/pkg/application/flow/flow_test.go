package flow

import (
	"math/rand"
	"testing"

	"github.com/diwise/water-network/pkg/types"
	"github.com/matryer/is"
)

func TestPipelineWithoutActiveGateWallIsInactive(t *testing.T) {
	is, fp, lookup := testSetup(t)

	p := &types.Pipeline{ID: "p1", ConnectedGateWalls: []string{"closed", "unknown"}, Pressure: 12, FlowRate: 30}

	fp.Recompute(p, lookup)

	is.True(!p.FlowActive)
	is.Equal(p.Color, types.ColorInactive)
	is.Equal(p.Pressure, 0.0)
	is.Equal(p.FlowRate, 0.0)
}

func TestPipelineWithOneActiveGateWallIsActive(t *testing.T) {
	is, fp, lookup := testSetup(t)

	p := &types.Pipeline{ID: "p1", ConnectedGateWalls: []string{"closed", "open"}}

	changed := fp.Recompute(p, lookup)

	is.True(changed)
	is.True(p.FlowActive)
	is.Equal(p.Color, types.ColorActive)
	is.True(p.Pressure >= MinPressure && p.Pressure < MaxPressure)
	is.True(p.FlowRate >= MinFlowRate && p.FlowRate < MaxFlowRate)
}

func TestInconsistentGateWallDoesNotActivatePipeline(t *testing.T) {
	is, fp, _ := testSetup(t)

	broken := &types.GateWall{ID: "broken", IsActive: true, FlowDirection: types.FlowNone}
	lookup := func(id string) (*types.GateWall, bool) { return broken, id == "broken" }

	p := &types.Pipeline{ID: "p1", ConnectedGateWalls: []string{"broken"}}
	fp.Recompute(p, lookup)

	is.True(!p.FlowActive)
}

func TestRecomputeAllIsStable(t *testing.T) {
	is, fp, lookup := testSetup(t)

	pipelines := []*types.Pipeline{
		{ID: "p1", ConnectedGateWalls: []string{"open"}},
		{ID: "p2", ConnectedGateWalls: []string{"closed"}},
		{ID: "p3"},
	}

	fp.RecomputeAll(pipelines, lookup)
	first := []bool{pipelines[0].FlowActive, pipelines[1].FlowActive, pipelines[2].FlowActive}

	for i := 0; i < 20; i++ {
		fp.RecomputeAll(pipelines, lookup)

		for j, p := range pipelines {
			is.Equal(p.FlowActive, first[j])
			if p.FlowActive {
				is.Equal(p.Color, types.ColorActive)
				is.True(p.Pressure >= MinPressure && p.Pressure < MaxPressure)
				is.True(p.FlowRate >= MinFlowRate && p.FlowRate < MaxFlowRate)
			} else {
				is.Equal(p.Color, types.ColorInactive)
				is.Equal(p.Pressure, 0.0)
				is.Equal(p.FlowRate, 0.0)
			}
		}
	}

	is.Equal(first, []bool{true, false, false})
}

func TestRecomputeReportsUnchangedState(t *testing.T) {
	is, fp, lookup := testSetup(t)

	p := &types.Pipeline{ID: "p1", ConnectedGateWalls: []string{"open"}}

	is.True(fp.Recompute(p, lookup))
	is.True(!fp.Recompute(p, lookup))
}

func testSetup(t *testing.T) (*is.I, *Propagator, GateWallLookup) {
	gateWalls := map[string]*types.GateWall{
		"open":   {ID: "open", IsActive: true, FlowDirection: types.FlowStraight, Pressure: 30},
		"closed": {ID: "closed", IsActive: false, FlowDirection: types.FlowNone},
	}

	lookup := func(id string) (*types.GateWall, bool) {
		g, ok := gateWalls[id]
		return g, ok
	}

	return is.New(t), New(rand.New(rand.NewSource(7))), lookup
}
