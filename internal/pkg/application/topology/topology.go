package topology

import (
	"fmt"
	"math"
	"time"

	"github.com/diwise/water-network/internal/pkg/application/geoindex"
	"github.com/diwise/water-network/pkg/types"
	"github.com/samber/lo"
)

var ErrTooFewPoints = fmt.Errorf("a pipeline needs at least 2 points")

const (
	DoubleClickWindow    time.Duration = 300 * time.Millisecond
	DoubleClickTolerance float64       = 0.0001
)

// Graph is the part of the network a drawing session reads from and links into.
type Graph interface {
	Devices() []*types.Device
	GateWalls() []*types.GateWall
	Link(pipelineID, gateWallID string) bool
	Unlink(pipelineID, gateWallID string)
}

// Connections holds the ids of the entities a point connected to.
type Connections struct {
	Devices   []string
	GateWalls []string
}

func (c Connections) Empty() bool {
	return len(c.Devices) == 0 && len(c.GateWalls) == 0
}

// Draft is the pipeline under construction.
type Draft struct {
	ID                 string
	Name               string
	Current            types.Segment
	Segments           []types.Segment
	ConnectedDevices   []string
	ConnectedGateWalls []string
}

// Session collects points for a single pipeline. Connections found along the
// way are never dropped until the session is finalized or cancelled.
type Session struct {
	graph     Graph
	threshold float64
	draft     Draft

	lastSubmit time.Time
	lastPoint  *types.Point
}

func NewSession(graph Graph, id, name string) *Session {
	return &Session{
		graph:     graph,
		threshold: geoindex.ConnectionThreshold,
		draft: Draft{
			ID:                 id,
			Name:               name,
			Current:            types.Segment{},
			Segments:           []types.Segment{},
			ConnectedDevices:   []string{},
			ConnectedGateWalls: []string{},
		},
	}
}

func (s *Session) ID() string {
	return s.draft.ID
}

// Draft returns a copy of the pipeline under construction.
func (s *Session) Draft() Draft {
	d := s.draft
	d.Current = append(types.Segment{}, s.draft.Current...)
	d.Segments = lo.Map(s.draft.Segments, func(seg types.Segment, _ int) types.Segment {
		return append(types.Segment{}, seg...)
	})
	d.ConnectedDevices = append([]string{}, s.draft.ConnectedDevices...)
	d.ConnectedGateWalls = append([]string{}, s.draft.ConnectedGateWalls...)
	return d
}

// AddPoint appends p to the open segment and connects the draft to every
// device and gate wall near p. Only the newly connected entities are returned.
func (s *Session) AddPoint(p types.Point) Connections {
	s.draft.Current = append(s.draft.Current, p)

	found := Connections{Devices: []string{}, GateWalls: []string{}}

	for _, id := range geoindex.Nearby(s.graph.Devices(), p, s.threshold) {
		if !lo.Contains(s.draft.ConnectedDevices, id) {
			s.draft.ConnectedDevices = append(s.draft.ConnectedDevices, id)
			found.Devices = append(found.Devices, id)
		}
	}

	for _, id := range geoindex.Nearby(s.graph.GateWalls(), p, s.threshold) {
		if !lo.Contains(s.draft.ConnectedGateWalls, id) {
			s.draft.ConnectedGateWalls = append(s.draft.ConnectedGateWalls, id)
			s.graph.Link(s.draft.ID, id)
			found.GateWalls = append(found.GateWalls, id)
		}
	}

	return found
}

// BreakSegment closes the open segment and starts a new one at p. A segment
// with fewer than 2 points is discarded.
func (s *Session) BreakSegment(p types.Point) {
	if len(s.draft.Current) >= 2 {
		s.draft.Segments = append(s.draft.Segments, s.draft.Current)
	}
	s.draft.Current = types.Segment{p}
}

// Submit interprets a point as a segment break when it repeats the previous
// submission within DoubleClickWindow, and as a new point otherwise.
func (s *Session) Submit(p types.Point, now time.Time) (Connections, bool) {
	isDoubleClick := s.lastPoint != nil &&
		now.Sub(s.lastSubmit) < DoubleClickWindow &&
		math.Abs(p.Lat()-s.lastPoint.Lat()) < DoubleClickTolerance &&
		math.Abs(p.Lon()-s.lastPoint.Lon()) < DoubleClickTolerance

	s.lastSubmit = now
	s.lastPoint = &p

	if isDoubleClick {
		s.BreakSegment(p)
		return Connections{Devices: []string{}, GateWalls: []string{}}, true
	}

	return s.AddPoint(p), false
}

// Finalize closes the open segment and returns the finished pipeline. The
// session is left untouched when the pipeline would have fewer than 2 points.
func (s *Session) Finalize() (types.Pipeline, error) {
	segments := append([]types.Segment{}, s.draft.Segments...)
	if len(s.draft.Current) >= 2 {
		segments = append(segments, s.draft.Current)
	}

	p := types.Pipeline{
		ID:                 s.draft.ID,
		Name:               s.draft.Name,
		Segments:           segments,
		ConnectedDevices:   append([]string{}, s.draft.ConnectedDevices...),
		ConnectedGateWalls: append([]string{}, s.draft.ConnectedGateWalls...),
		Color:              types.ColorInactive,
	}

	if p.PointCount() < types.MinPipelinePoints {
		return types.Pipeline{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, p.PointCount())
	}

	return p, nil
}

// Cancel rolls back the links made while drawing.
func (s *Session) Cancel() {
	for _, id := range s.draft.ConnectedGateWalls {
		s.graph.Unlink(s.draft.ID, id)
	}
	s.draft.ConnectedGateWalls = []string{}
	s.draft.ConnectedDevices = []string{}
}
