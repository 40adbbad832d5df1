package network

import (
	"fmt"

	"github.com/diwise/water-network/pkg/types"
	"github.com/samber/lo"
)

var ErrValidation = fmt.Errorf("validation failed")
var ErrDuplicateID = fmt.Errorf("id already exists")
var ErrNotFound = fmt.Errorf("not found")

// Network owns the device, gate wall and pipeline collections. Pipelines and
// gate walls reference each other by id and those references are only ever
// changed through Link and Unlink.
type Network struct {
	devices   registry[types.Device]
	gateWalls registry[types.GateWall]
	pipelines registry[types.Pipeline]
}

func New() *Network {
	return &Network{
		devices:   newRegistry[types.Device](),
		gateWalls: newRegistry[types.GateWall](),
		pipelines: newRegistry[types.Pipeline](),
	}
}

func (n *Network) Devices() []*types.Device {
	return n.devices.all()
}

func (n *Network) Device(id string) (*types.Device, bool) {
	return n.devices.get(id)
}

func (n *Network) GateWalls() []*types.GateWall {
	return n.gateWalls.all()
}

func (n *Network) GateWall(id string) (*types.GateWall, bool) {
	return n.gateWalls.get(id)
}

func (n *Network) Pipelines() []*types.Pipeline {
	return n.pipelines.all()
}

func (n *Network) Pipeline(id string) (*types.Pipeline, bool) {
	return n.pipelines.get(id)
}

func (n *Network) PipelineCount() int {
	return n.pipelines.len()
}

func (n *Network) AddDevice(d types.Device) (*types.Device, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("%w: device id is missing", ErrValidation)
	}

	err := n.devices.add(d.ID, &d)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", d.ID, err)
	}

	return &d, nil
}

// RemoveDevice deletes the device and prunes it from every pipeline. The ids
// of the pipelines that referenced it are returned.
func (n *Network) RemoveDevice(id string) ([]string, error) {
	if _, ok := n.devices.remove(id); !ok {
		return nil, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}

	affected := []string{}
	for _, p := range n.pipelines.all() {
		if lo.Contains(p.ConnectedDevices, id) {
			p.ConnectedDevices = lo.Without(p.ConnectedDevices, id)
			affected = append(affected, p.ID)
		}
	}

	return affected, nil
}

func (n *Network) AddGateWall(g types.GateWall) (*types.GateWall, error) {
	if g.ID == "" {
		return nil, fmt.Errorf("%w: gate wall id is missing", ErrValidation)
	}

	// links are established from the pipeline side
	links := g.ConnectedPipelines
	g.ConnectedPipelines = []string{}

	err := n.gateWalls.add(g.ID, &g)
	if err != nil {
		return nil, fmt.Errorf("gate wall %s: %w", g.ID, err)
	}

	for _, pipelineID := range links {
		if p, ok := n.pipelines.get(pipelineID); ok && lo.Contains(p.ConnectedGateWalls, g.ID) {
			n.Link(pipelineID, g.ID)
		}
	}

	return &g, nil
}

// RemoveGateWall unlinks the gate wall from all of its pipelines before
// deleting it. The ids of the pipelines that referenced it are returned.
func (n *Network) RemoveGateWall(id string) ([]string, error) {
	g, ok := n.gateWalls.get(id)
	if !ok {
		return nil, fmt.Errorf("gate wall %s: %w", id, ErrNotFound)
	}

	affected := []string{}
	for _, p := range n.pipelines.all() {
		if lo.Contains(p.ConnectedGateWalls, id) {
			affected = append(affected, p.ID)
		}
	}

	for _, pipelineID := range lo.Union(affected, g.ConnectedPipelines) {
		n.Unlink(pipelineID, id)
	}

	n.gateWalls.remove(id)

	return affected, nil
}

// AddPipeline registers p. Connected device and gate wall ids that are not
// known are dropped and every remaining gate wall is linked back to p.
func (n *Network) AddPipeline(p types.Pipeline) (*types.Pipeline, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: pipeline id is missing", ErrValidation)
	}

	if p.PointCount() < types.MinPipelinePoints {
		return nil, fmt.Errorf("%w: pipeline %s has %d points, needs at least %d", ErrValidation, p.ID, p.PointCount(), types.MinPipelinePoints)
	}

	if _, exists := n.pipelines.get(p.ID); exists {
		return nil, fmt.Errorf("pipeline %s: %w", p.ID, ErrDuplicateID)
	}

	p.ConnectedDevices = lo.Filter(lo.Uniq(p.ConnectedDevices), func(id string, _ int) bool {
		_, ok := n.devices.get(id)
		return ok
	})

	gateWalls := lo.Uniq(p.ConnectedGateWalls)
	p.ConnectedGateWalls = []string{}

	if err := n.pipelines.add(p.ID, &p); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.ID, err)
	}

	for _, gateWallID := range gateWalls {
		n.Link(p.ID, gateWallID)
	}

	return &p, nil
}

// RemovePipeline unlinks the pipeline from its gate walls and deletes it.
func (n *Network) RemovePipeline(id string) (*types.Pipeline, error) {
	p, ok := n.pipelines.get(id)
	if !ok {
		return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}

	for _, gateWallID := range append([]string{}, p.ConnectedGateWalls...) {
		n.Unlink(id, gateWallID)
	}

	// eager links left behind by a drawing session are pruned as well
	for _, g := range n.gateWalls.all() {
		if lo.Contains(g.ConnectedPipelines, id) {
			n.Unlink(id, g.ID)
		}
	}

	n.pipelines.remove(id)

	return p, nil
}

// Link connects a pipeline and a gate wall. The gate wall must exist. The
// pipeline side is only updated when the pipeline is registered, which lets a
// drawing session attach its draft id to a gate wall before the pipeline is
// committed. Linking an already linked pair is a no-op.
func (n *Network) Link(pipelineID, gateWallID string) bool {
	g, ok := n.gateWalls.get(gateWallID)
	if !ok {
		return false
	}

	if !lo.Contains(g.ConnectedPipelines, pipelineID) {
		g.ConnectedPipelines = append(g.ConnectedPipelines, pipelineID)
	}

	if p, ok := n.pipelines.get(pipelineID); ok {
		if !lo.Contains(p.ConnectedGateWalls, gateWallID) {
			p.ConnectedGateWalls = append(p.ConnectedGateWalls, gateWallID)
		}
	}

	return true
}

// Unlink removes the reference in both directions, whichever sides exist.
func (n *Network) Unlink(pipelineID, gateWallID string) {
	if g, ok := n.gateWalls.get(gateWallID); ok {
		g.ConnectedPipelines = lo.Without(g.ConnectedPipelines, pipelineID)
	}

	if p, ok := n.pipelines.get(pipelineID); ok {
		p.ConnectedGateWalls = lo.Without(p.ConnectedGateWalls, gateWallID)
	}
}

// Verify checks that every pipeline to gate wall reference has a matching back
// reference. Draft ids of open drawing sessions can be passed as pending.
func (n *Network) Verify(pending ...string) error {
	for _, p := range n.pipelines.all() {
		for _, gid := range p.ConnectedGateWalls {
			g, ok := n.gateWalls.get(gid)
			if !ok {
				return fmt.Errorf("pipeline %s references unknown gate wall %s", p.ID, gid)
			}
			if !lo.Contains(g.ConnectedPipelines, p.ID) {
				return fmt.Errorf("gate wall %s is missing back reference to pipeline %s", gid, p.ID)
			}
		}
	}

	for _, g := range n.gateWalls.all() {
		for _, pid := range g.ConnectedPipelines {
			if lo.Contains(pending, pid) {
				continue
			}
			p, ok := n.pipelines.get(pid)
			if !ok {
				return fmt.Errorf("gate wall %s references unknown pipeline %s", g.ID, pid)
			}
			if !lo.Contains(p.ConnectedGateWalls, g.ID) {
				return fmt.Errorf("pipeline %s is missing back reference to gate wall %s", pid, g.ID)
			}
		}
	}

	return nil
}

// Snapshot returns deep copies of all three collections.
func (n *Network) Snapshot() ([]types.Device, []types.GateWall, []types.Pipeline) {
	devices := lo.Map(n.devices.all(), func(d *types.Device, _ int) types.Device {
		return *d
	})

	gateWalls := lo.Map(n.gateWalls.all(), func(g *types.GateWall, _ int) types.GateWall {
		c := *g
		c.ConnectedPipelines = append([]string{}, g.ConnectedPipelines...)
		c.History = append([]types.HistoryEntry{}, g.History...)
		return c
	})

	pipelines := lo.Map(n.pipelines.all(), func(p *types.Pipeline, _ int) types.Pipeline {
		return ClonePipeline(*p)
	})

	return devices, gateWalls, pipelines
}

func ClonePipeline(p types.Pipeline) types.Pipeline {
	c := p
	c.Segments = lo.Map(p.Segments, func(s types.Segment, _ int) types.Segment {
		return append(types.Segment{}, s...)
	})
	c.ConnectedDevices = append([]string{}, p.ConnectedDevices...)
	c.ConnectedGateWalls = append([]string{}, p.ConnectedGateWalls...)
	return c
}
