package hierarchy

import (
	"errors"
	"testing"

	"github.com/diwise/water-network/pkg/types"
	"github.com/matryer/is"
)

func TestTwoHabitationsUnderOneMandal(t *testing.T) {
	is, idx, _, _ := testSetup(t)

	countries, err := idx.Query()
	is.NoErr(err)
	is.Equal(countries, []string{"India"})

	mandals, err := idx.Query("India", "Telangana", "Warangal")
	is.NoErr(err)
	is.Equal(mandals, []string{"Warangal Urban"})

	habitations, err := idx.Query("India", "Telangana", "Warangal", "Warangal Urban")
	is.NoErr(err)
	is.Equal(habitations, []string{"Hanamkonda", "Kazipet"})
}

func TestMissingLevelsAreBucketedAsUnassigned(t *testing.T) {
	is, idx, _, _ := testSetup(t)

	states, err := idx.Query("India")
	is.NoErr(err)
	is.Equal(states, []string{"Telangana", types.UnassignedLevel})

	leaf, err := idx.Leaf("India", "Unassigned", "Unassigned", "Unassigned", "Unassigned")
	is.NoErr(err)
	is.Equal(leaf.Devices, []string{})
	is.Equal(leaf.GateWalls, []string{"gw1"})
}

func TestLeafListsDevicesAndGateWalls(t *testing.T) {
	is, idx, _, _ := testSetup(t)

	leaf, err := idx.Leaf("India", "Telangana", "Warangal", "Warangal Urban", "Kazipet")
	is.NoErr(err)
	is.Equal(leaf.Devices, []string{"d2"})
}

func TestUnknownPathIsNotFound(t *testing.T) {
	is, idx, _, _ := testSetup(t)

	_, err := idx.Query("India", "Kerala")
	is.True(errors.Is(err, ErrPathNotFound))

	_, err = idx.Leaf("India", "Telangana")
	is.True(errors.Is(err, ErrPathNotFound))

	_, err = idx.Query("India", "Telangana", "Warangal", "Warangal Urban", "Madikonda")
	is.True(errors.Is(err, ErrPathNotFound))

	_, err = idx.Query("India", "Telangana", "Warangal", "Warangal Urban", "Kazipet", "Ward 4")
	is.True(errors.Is(err, ErrPathNotFound))
}

func TestQueryOnHabitationHasNoKeys(t *testing.T) {
	is, idx, _, _ := testSetup(t)

	keys, err := idx.Query("India", "Telangana", "Warangal", "Warangal Urban", "Kazipet")
	is.NoErr(err)
	is.Equal(keys, []string{})
}

func TestRebuildReplacesTree(t *testing.T) {
	is, idx, _, _ := testSetup(t)

	idx.Rebuild(nil, nil)

	countries, err := idx.Query()
	is.NoErr(err)
	is.Equal(len(countries), 0)
}

func TestSearchIgnoresShortQueries(t *testing.T) {
	is, _, devices, gateWalls := testSetup(t)

	is.Equal(len(Search("k", devices, gateWalls, nil)), 0)
	is.Equal(len(Search("", devices, gateWalls, nil)), 0)
}

func TestSearchMatchesInEntityOrder(t *testing.T) {
	is, _, devices, gateWalls := testSetup(t)

	pipelines := []*types.Pipeline{{ID: "pipeline_1", Name: "Kazipet main"}}

	results := Search("KAZ", devices, gateWalls, pipelines)
	is.Equal(len(results), 2)
	is.Equal(results[0].ID, "d2")
	is.Equal(results[0].Location, "Kazipet")
	is.Equal(results[1].Type, types.EntityPipeline)

	results = Search("gw", devices, gateWalls, pipelines)
	is.Equal(len(results), 1)
	is.Equal(results[0].Location, "N/A")
}

func testSetup(t *testing.T) (*is.I, *Index, []*types.Device, []*types.GateWall) {
	warangal := func(habitation string) types.AdministrativePath {
		return types.AdministrativePath{
			Country:    "India",
			State:      "Telangana",
			District:   "Warangal",
			Mandal:     "Warangal Urban",
			Habitation: habitation,
		}
	}

	devices := []*types.Device{
		{ID: "d1", Name: "Tank one", AdministrativePath: warangal("Hanamkonda")},
		{ID: "d2", Name: "Tank two", AdministrativePath: warangal("Kazipet")},
	}
	gateWalls := []*types.GateWall{
		{ID: "gw1", Name: "Gate one"},
	}

	idx := New()
	idx.Rebuild(devices, gateWalls)

	return is.New(t), idx, devices, gateWalls
}
