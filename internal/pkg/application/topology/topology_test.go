package topology

import (
	"errors"
	"testing"
	"time"

	"github.com/diwise/water-network/internal/pkg/application/network"
	"github.com/diwise/water-network/pkg/types"
	"github.com/matryer/is"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPointNearGateWallConnectsBothWays(t *testing.T) {
	is, n, s := testSetup(t)

	found := s.AddPoint(types.Point{17.00002, 78.00002})
	is.Equal(found.GateWalls, []string{"g1"})

	g1, _ := n.GateWall("g1")
	is.Equal(g1.ConnectedPipelines, []string{"pipeline_1"})

	s.AddPoint(types.Point{17.001, 78.001})

	p, err := s.Finalize()
	is.NoErr(err)
	is.Equal(p.ConnectedGateWalls, []string{"g1"})

	_, err = n.AddPipeline(p)
	is.NoErr(err)
	is.NoErr(n.Verify())
}

func TestPointNearDeviceConnectsOnce(t *testing.T) {
	is, _, s := testSetup(t)

	first := s.AddPoint(types.Point{17.1, 78.1})
	second := s.AddPoint(types.Point{17.1001, 78.1001})

	is.Equal(first.Devices, []string{"d1"})
	is.True(second.Empty())
	is.Equal(s.Draft().ConnectedDevices, []string{"d1"})
}

func TestPointFarAwayConnectsNothing(t *testing.T) {
	is, n, s := testSetup(t)

	found := s.AddPoint(types.Point{18.0, 79.0})
	is.True(found.Empty())

	g1, _ := n.GateWall("g1")
	is.Equal(len(g1.ConnectedPipelines), 0)
}

func TestDoubleClickBreaksSegment(t *testing.T) {
	is, _, s := testSetup(t)

	_, broke := s.Submit(types.Point{18.0, 79.0}, start)
	is.True(!broke)
	_, broke = s.Submit(types.Point{18.01, 79.01}, start.Add(time.Second))
	is.True(!broke)
	_, broke = s.Submit(types.Point{18.01005, 79.01005}, start.Add(time.Second+100*time.Millisecond))
	is.True(broke)
	_, broke = s.Submit(types.Point{18.02, 79.02}, start.Add(2*time.Second))
	is.True(!broke)

	p, err := s.Finalize()
	is.NoErr(err)
	is.Equal(len(p.Segments), 2)
	is.Equal(len(p.Segments[0]), 2)
	is.Equal(p.Segments[1], types.Segment{{18.01005, 79.01005}, {18.02, 79.02}})
}

func TestSlowRepeatIsNotADoubleClick(t *testing.T) {
	is, _, s := testSetup(t)

	s.Submit(types.Point{18.0, 79.0}, start)
	_, broke := s.Submit(types.Point{18.0, 79.0}, start.Add(DoubleClickWindow))
	is.True(!broke)

	is.Equal(len(s.Draft().Current), 2)
}

func TestShortSegmentIsDiscardedOnBreak(t *testing.T) {
	is, _, s := testSetup(t)

	s.AddPoint(types.Point{18.0, 79.0})
	s.BreakSegment(types.Point{18.1, 79.1})

	d := s.Draft()
	is.Equal(len(d.Segments), 0)
	is.Equal(d.Current, types.Segment{{18.1, 79.1}})
}

func TestFinalizeWithTooFewPointsKeepsSession(t *testing.T) {
	is, _, s := testSetup(t)

	s.AddPoint(types.Point{17.00002, 78.00002})

	_, err := s.Finalize()
	is.True(errors.Is(err, ErrTooFewPoints))

	d := s.Draft()
	is.Equal(len(d.Current), 1)
	is.Equal(d.ConnectedGateWalls, []string{"g1"})

	s.AddPoint(types.Point{17.002, 78.002})
	_, err = s.Finalize()
	is.NoErr(err)
}

func TestCancelRollsBackLinks(t *testing.T) {
	is, n, s := testSetup(t)

	s.AddPoint(types.Point{17.00002, 78.00002})
	s.Cancel()

	g1, _ := n.GateWall("g1")
	is.Equal(len(g1.ConnectedPipelines), 0)
	is.NoErr(n.Verify())
}

func testSetup(t *testing.T) (*is.I, *network.Network, *Session) {
	is := is.New(t)
	n := network.New()

	_, err := n.AddGateWall(types.GateWall{
		ID:       "g1",
		Name:     "gate one",
		Location: types.Location{Latitude: 17.0, Longitude: 78.0},
		Type:     types.GateWallStraight,
	})
	is.NoErr(err)

	_, err = n.AddDevice(types.Device{
		ID:       "d1",
		Name:     "tank",
		Location: types.Location{Latitude: 17.1, Longitude: 78.1},
	})
	is.NoErr(err)

	return is, n, NewSession(n, "pipeline_1", "Pipeline 1")
}
