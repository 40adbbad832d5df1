package application

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/water-network/pkg/types"
)

//go:embed data/demo.csv
var demoData []byte

const seedColumns int = 12

// SeedDemo loads a small demo network when the network is empty.
func SeedDemo(ctx context.Context, a App) error {
	s := a.Stats()
	if s.Devices > 0 || s.GateWalls > 0 {
		return nil
	}

	return Seed(ctx, a, bytes.NewReader(demoData))
}

// Seed adds the devices and gate walls listed in a semicolon separated file
// with a header row.
func Seed(ctx context.Context, a App, data io.Reader) error {
	log := logging.GetFromContext(ctx)

	r := csv.NewReader(data)
	r.Comma = ';'

	rows, err := r.ReadAll()
	if err != nil {
		return err
	}

	records, err := getRecordsFromRows(rows)
	if err != nil {
		return err
	}

	log.Info().Int("rows", len(rows)).Int("records", len(records)).Msg("loaded seed data")

	var errs []error

	for _, rec := range records {
		switch rec.entity {
		case types.EntityDevice:
			_, err = a.AddDevice(ctx, rec.device())
		case types.EntityGateWall:
			_, err = a.AddGateWall(ctx, types.NewGateWall{GateWall: rec.gateWall()})
		}

		if errors.Is(err, ErrDuplicateID) {
			log.Debug().Str("id", rec.id).Msg("already seeded")
			continue
		}

		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

type seedRecord struct {
	entity   string
	id       string
	name     string
	location types.Location
	path     types.AdministrativePath
	kind     string
}

func (sr seedRecord) device() types.Device {
	return types.Device{
		ID:                 sr.id,
		Name:               sr.name,
		Location:           sr.location,
		AdministrativePath: sr.path,
		Kind:               sr.kind,
	}
}

func (sr seedRecord) gateWall() types.GateWall {
	return types.GateWall{
		ID:                 sr.id,
		Name:               sr.name,
		Location:           sr.location,
		AdministrativePath: sr.path,
		Type:               types.GateWallType(sr.kind),
	}
}

func newSeedRecord(r []string) (seedRecord, error) {
	if len(r) < seedColumns {
		return seedRecord{}, fmt.Errorf("%w: expected %d columns, got %d", ErrValidation, seedColumns, len(r))
	}

	strTof64 := func(s string) float64 {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0.0
		}
		return f
	}

	sr := seedRecord{
		entity: strings.ToLower(strings.TrimSpace(r[0])),
		id:     strings.TrimSpace(r[1]),
		name:   strings.TrimSpace(r[2]),
		location: types.Location{
			Latitude:  strTof64(r[3]),
			Longitude: strTof64(r[4]),
			Altitude:  strTof64(r[5]),
		},
		path: types.AdministrativePath{
			Country:    strings.TrimSpace(r[6]),
			State:      strings.TrimSpace(r[7]),
			District:   strings.TrimSpace(r[8]),
			Mandal:     strings.TrimSpace(r[9]),
			Habitation: strings.TrimSpace(r[10]),
		},
		kind: strings.ToLower(strings.TrimSpace(r[11])),
	}

	if sr.entity != types.EntityDevice && sr.entity != types.EntityGateWall {
		return seedRecord{}, fmt.Errorf("%w: row %s has unknown entity %q", ErrValidation, sr.name, sr.entity)
	}

	return sr, nil
}

func getRecordsFromRows(rows [][]string) ([]seedRecord, error) {
	records := []seedRecord{}

	for i, row := range rows {
		if i == 0 {
			continue
		}
		rec, err := newSeedRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}
