package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diwise/water-network/internal/pkg/application/gatewalls"
	"github.com/diwise/water-network/internal/pkg/application/network"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/water-network/pkg/types"
	"github.com/google/uuid"
)

func (a *app) Export(ctx context.Context) types.Document {
	a.mu.Lock()
	defer a.mu.Unlock()

	return *a.snapshot()
}

// document is decoded with an optional battery level so that gate walls
// without one start with a full battery.
type document struct {
	Devices   []types.Device      `json:"devices"`
	GateWalls []types.NewGateWall `json:"gateWalls"`
	Pipelines []types.Pipeline    `json:"pipelines"`
}

func toDocument(doc types.Document) document {
	d := document{Devices: doc.Devices, Pipelines: doc.Pipelines}
	for _, g := range doc.GateWalls {
		battery := g.BatteryLevel
		d.GateWalls = append(d.GateWalls, types.NewGateWall{GateWall: g, BatteryLevel: &battery})
	}
	return d
}

// Import replaces the whole network with the content of data. Malformed json
// leaves the current network untouched.
func (a *app) Import(ctx context.Context, data []byte) error {
	o := &outbox{}
	defer a.flush(ctx, o)

	doc := document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		o.notify(fmt.Sprintf("Failed to import: %s", err.Error()), types.SeverityError)
		return fmt.Errorf("%w: %s", ErrImport, err.Error())
	}

	a.mu.Lock()
	defer a.unlock(o)

	for _, d := range a.net.Devices() {
		o.emit(types.EntityRemoved{EntityType: types.EntityDevice, EntityID: d.ID, Timestamp: a.now()})
	}
	for _, g := range a.net.GateWalls() {
		o.emit(types.EntityRemoved{EntityType: types.EntityGateWall, EntityID: g.ID, Timestamp: a.now()})
	}
	for _, p := range a.net.Pipelines() {
		o.emit(types.EntityRemoved{EntityType: types.EntityPipeline, EntityID: p.ID, Timestamp: a.now()})
	}

	a.replace(ctx, doc)

	for _, d := range a.net.Devices() {
		o.emit(types.EntityAdded{EntityType: types.EntityDevice, EntityID: d.ID, Entity: *d, Timestamp: a.now()})
	}
	for _, g := range a.net.GateWalls() {
		o.emit(types.EntityAdded{EntityType: types.EntityGateWall, EntityID: g.ID, Entity: *g, Timestamp: a.now()})
	}
	for _, p := range a.net.Pipelines() {
		o.emit(types.EntityAdded{EntityType: types.EntityPipeline, EntityID: p.ID, Entity: network.ClonePipeline(*p), Timestamp: a.now()})
	}

	o.notify("Data imported successfully!", types.SeveritySuccess)
	o.snapshot = a.snapshot()

	return nil
}

// Load restores the network from the persister. Anything that cannot be
// loaded results in an empty network.
func (a *app) Load(ctx context.Context) error {
	log := logging.GetFromContext(ctx)

	doc, err := a.persister.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not load network, starting empty")
		doc = types.Document{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.replace(ctx, toDocument(doc))

	log.Info().
		Int("devices", len(doc.Devices)).
		Int("gatewalls", len(doc.GateWalls)).
		Int("pipelines", len(doc.Pipelines)).
		Msg("network loaded")

	return nil
}

// replace rebuilds every collection from doc. Entries that are invalid or
// duplicated are skipped.
func (a *app) replace(ctx context.Context, doc document) {
	log := logging.GetFromContext(ctx)

	if a.session != nil {
		a.session.Cancel()
		a.session = nil
	}

	a.net = network.New()

	for _, d := range doc.Devices {
		if err := a.validate.Struct(d); err != nil {
			log.Warn().Str("device_id", d.ID).Err(err).Msg("skipping invalid device")
			continue
		}

		a.deviceDefaults(&d)

		if _, err := a.net.AddDevice(d); err != nil {
			log.Warn().Err(err).Msg("skipping device")
		}
	}

	for _, req := range doc.GateWalls {
		g := req.GateWall
		g.BatteryLevel = gatewalls.DefaultBatteryLevel
		if req.BatteryLevel != nil {
			g.BatteryLevel = *req.BatteryLevel
		}

		if g.ID == "" {
			g.ID = "gw_" + uuid.NewString()
		}

		if err := a.validate.Struct(g); err != nil {
			log.Warn().Str("gatewall_id", g.ID).Err(err).Msg("skipping invalid gate wall")
			continue
		}

		if g.Country == "" {
			g.Country = types.DefaultCountry
		}

		gatewalls.Normalize(&g)

		if _, err := a.net.AddGateWall(g); err != nil {
			log.Warn().Err(err).Msg("skipping gate wall")
		}
	}

	for _, p := range doc.Pipelines {
		if err := a.validate.Struct(p); err != nil {
			log.Warn().Str("pipeline_id", p.ID).Err(err).Msg("skipping invalid pipeline")
			continue
		}

		if p.Name == "" {
			p.Name = fmt.Sprintf("Pipeline %d", a.net.PipelineCount()+1)
		}

		if _, err := a.net.AddPipeline(p); err != nil {
			log.Warn().Err(err).Msg("skipping pipeline")
		}
	}

	a.flow.RecomputeAll(a.net.Pipelines(), a.net.GateWall)
	a.rebuildHierarchy()
}
