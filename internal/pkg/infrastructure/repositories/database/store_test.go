package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/diwise/water-network/pkg/types"
	"github.com/matryer/is"
)

func TestLoadWithoutSaveReturnsNoSnapshot(t *testing.T) {
	is, ctx, s := testSetup(t)

	_, err := s.Load(ctx)
	is.Equal(err, ErrNoSnapshot)
}

func TestSaveAndLoad(t *testing.T) {
	is, ctx, s := testSetup(t)

	doc := testDocument()
	is.NoErr(s.Save(ctx, doc))

	loaded, err := s.Load(ctx)
	is.NoErr(err)

	is.Equal(loaded.Version, types.DocumentVersion)
	is.Equal(len(loaded.Devices), 2)
	is.Equal(loaded.Devices[0].ID, "d1")
	is.Equal(loaded.Devices[1].ID, "d2")
	is.Equal(loaded.GateWalls[0].BatteryLevel, 42.0)
	is.Equal(loaded.GateWalls[0].ConnectedPipelines, []string{"p1"})
	is.Equal(loaded.Pipelines[0].ConnectedGateWalls, []string{"g1"})
	is.Equal(loaded.Pipelines[0].Segments[0][1], types.Point{17.001, 78.001})
}

func TestSaveReplacesPreviousNetwork(t *testing.T) {
	is, ctx, s := testSetup(t)

	is.NoErr(s.Save(ctx, testDocument()))
	is.NoErr(s.Save(ctx, types.Document{
		Devices:   []types.Device{{ID: "d3", Name: "d3"}},
		Version:   types.DocumentVersion,
		Timestamp: time.Now().UTC(),
	}))

	loaded, err := s.Load(ctx)
	is.NoErr(err)
	is.Equal(len(loaded.Devices), 1)
	is.Equal(loaded.Devices[0].ID, "d3")
	is.Equal(len(loaded.GateWalls), 0)
	is.Equal(len(loaded.Pipelines), 0)
}

func TestSaveEmptyNetwork(t *testing.T) {
	is, ctx, s := testSetup(t)

	is.NoErr(s.Save(ctx, types.Document{Version: types.DocumentVersion}))

	loaded, err := s.Load(ctx)
	is.NoErr(err)
	is.Equal(len(loaded.Devices), 0)
	is.True(loaded.Pipelines != nil)
}

func testDocument() types.Document {
	return types.Document{
		Devices: []types.Device{
			{ID: "d1", Name: "OHSR", Kind: types.DeviceKindOHSR},
			{ID: "d2", Name: "Gateway", Kind: types.DeviceKindGateway},
		},
		GateWalls: []types.GateWall{
			{ID: "g1", Name: "Gate", Type: types.GateWallStraight, FlowDirection: types.FlowNone, BatteryLevel: 42, ConnectedPipelines: []string{"p1"}},
		},
		Pipelines: []types.Pipeline{
			{ID: "p1", Name: "Pipeline 1", Segments: []types.Segment{{{17.0, 78.0}, {17.001, 78.001}}}, ConnectedGateWalls: []string{"g1"}, Color: types.ColorInactive},
		},
		Version:   types.DocumentVersion,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testSetup(t *testing.T) (*is.I, context.Context, *NetworkStore) {
	is := is.New(t)
	ctx := context.Background()

	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := NewNetworkStore(NewSQLiteConnector(ctx, path))
	is.NoErr(err)

	return is, ctx, s
}
