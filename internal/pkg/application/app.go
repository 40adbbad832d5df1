package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/diwise/water-network/internal/pkg/application/flow"
	"github.com/diwise/water-network/internal/pkg/application/gatewalls"
	"github.com/diwise/water-network/internal/pkg/application/hierarchy"
	"github.com/diwise/water-network/internal/pkg/application/network"
	"github.com/diwise/water-network/internal/pkg/application/topology"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/water-network/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	ErrValidation          = network.ErrValidation
	ErrDuplicateID         = network.ErrDuplicateID
	ErrNotFound            = network.ErrNotFound
	ErrDirectionNotAllowed = gatewalls.ErrDirectionNotAllowed
	ErrTooFewPoints        = topology.ErrTooFewPoints

	ErrPersistence       = fmt.Errorf("persistence failed")
	ErrImport            = fmt.Errorf("import failed")
	ErrNoDrawingSession  = fmt.Errorf("no drawing session")
	ErrDrawingInProgress = fmt.Errorf("a drawing session is already in progress")
)

const (
	DefaultCapacity float64 = 1000
	MinWaterLevel   float64 = 2
	MaxWaterLevel   float64 = 7
)

var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]+$`)

type App interface {
	Devices(ctx context.Context) []types.Device
	Device(ctx context.Context, id string) (types.Device, error)
	AddDevice(ctx context.Context, d types.Device) (types.Device, error)
	DeleteDevice(ctx context.Context, id string) error

	GateWalls(ctx context.Context) []types.GateWall
	GateWall(ctx context.Context, id string) (types.GateWall, error)
	AddGateWall(ctx context.Context, g types.NewGateWall) (types.GateWall, error)
	DeleteGateWall(ctx context.Context, id string) error
	SetFlowDirection(ctx context.Context, id string, direction types.FlowDirection) error
	History(ctx context.Context, id string, limit int) ([]types.HistoryEntry, error)

	Pipelines(ctx context.Context) []types.Pipeline
	Pipeline(ctx context.Context, id string) (types.Pipeline, error)
	AddPipeline(ctx context.Context, p types.Pipeline) (types.Pipeline, error)
	DeletePipeline(ctx context.Context, id string) error

	StartDrawing(ctx context.Context) (types.Drawing, error)
	SubmitPoint(ctx context.Context, p types.Point, now time.Time) (types.Drawing, error)
	BreakSegment(ctx context.Context, p types.Point) (types.Drawing, error)
	FinishDrawing(ctx context.Context) (types.Pipeline, error)
	CancelDrawing(ctx context.Context) error
	Drawing(ctx context.Context) (types.Drawing, error)

	Hierarchy(ctx context.Context, path ...string) ([]string, error)
	HierarchyLeaf(ctx context.Context, path ...string) (hierarchy.Bucket, error)
	Search(ctx context.Context, query string) []hierarchy.Result

	Export(ctx context.Context) types.Document
	Import(ctx context.Context, data []byte) error
	Load(ctx context.Context) error

	Tick(ctx context.Context, now time.Time)
	Stats() Stats
}

// Stats is a point in time summary of the network and the simulation.
type Stats struct {
	Devices         int
	GateWalls       int
	ActiveGateWalls int
	Pipelines       int
	ActivePipelines int
	Sweeps          uint64
	AutoShutdowns   uint64
}

type app struct {
	mu      sync.Mutex
	flushMu sync.Mutex

	net       *network.Network
	gateWalls *gatewalls.StateMachine
	flow      *flow.Propagator
	hierarchy *hierarchy.Index
	session   *topology.Session

	rnd          *rand.Rand
	batteryDrain float64
	validate     *validator.Validate
	now          func() time.Time

	sweeps        uint64
	autoShutdowns uint64

	persister Persister
	notifier  Notifier
	renderer  Renderer
}

type Option func(*app)

func WithRand(rnd *rand.Rand) Option {
	return func(a *app) {
		a.rnd = rnd
	}
}

func WithBatteryDrain(drain float64) Option {
	return func(a *app) {
		a.batteryDrain = drain
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *app) {
		a.now = now
	}
}

// New creates the application. Nil sinks are replaced with ones that discard
// everything.
func New(p Persister, n Notifier, r Renderer, opts ...Option) App {
	a := &app{
		net:          network.New(),
		hierarchy:    hierarchy.New(),
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		batteryDrain: gatewalls.DefaultBatteryDrain,
		validate:     newValidator(),
		now:          func() time.Time { return time.Now().UTC() },
		persister:    p,
		notifier:     n,
		renderer:     r,
	}

	if a.persister == nil {
		a.persister = discard{}
	}
	if a.notifier == nil {
		a.notifier = discard{}
	}
	if a.renderer == nil {
		a.renderer = discard{}
	}

	for _, opt := range opts {
		opt(a)
	}

	a.gateWalls = gatewalls.New(a.rnd, gatewalls.WithBatteryDrain(a.batteryDrain))
	a.flow = flow.New(a.rnd)

	return a
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		return entityIDPattern.MatchString(fl.Field().String())
	})
	return v
}

func (a *app) Devices(ctx context.Context) []types.Device {
	a.mu.Lock()
	defer a.mu.Unlock()

	return lo.Map(a.net.Devices(), func(d *types.Device, _ int) types.Device {
		return *d
	})
}

func (a *app) Device(ctx context.Context, id string) (types.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, ok := a.net.Device(id)
	if !ok {
		return types.Device{}, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}

	return *d, nil
}

func (a *app) AddDevice(ctx context.Context, d types.Device) (types.Device, error) {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	if err := a.validate.Struct(d); err != nil {
		o.notify("Missing required device fields", types.SeverityError)
		return types.Device{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	a.deviceDefaults(&d)

	added, err := a.net.AddDevice(d)
	if err != nil {
		if errors.Is(err, ErrDuplicateID) {
			o.notify("Device ID already exists", types.SeverityWarning)
		}
		return types.Device{}, err
	}

	a.rebuildHierarchy()

	o.emit(types.EntityAdded{EntityType: types.EntityDevice, EntityID: added.ID, Entity: *added, Timestamp: a.now()})
	o.notify("Device added successfully!", types.SeveritySuccess)
	o.snapshot = a.snapshot()

	log := logging.GetFromContext(ctx)
	log.Info().Str("device_id", added.ID).Msg("device added")

	return *added, nil
}

func (a *app) deviceDefaults(d *types.Device) {
	if d.Country == "" {
		d.Country = types.DefaultCountry
	}
	if d.Kind == "" {
		d.Kind = types.DeviceKindOHSR
	}
	if d.Status == "" {
		d.Status = types.DeviceStatusActive
	}
	if d.WaterLevel == 0 {
		d.WaterLevel = math.Round((a.rnd.Float64()*(MaxWaterLevel-MinWaterLevel)+MinWaterLevel)*100) / 100
	}
	if d.Capacity == 0 {
		d.Capacity = DefaultCapacity
	}
}

func (a *app) DeleteDevice(ctx context.Context, id string) error {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	if _, err := a.net.RemoveDevice(id); err != nil {
		return err
	}

	a.rebuildHierarchy()

	o.emit(types.EntityRemoved{EntityType: types.EntityDevice, EntityID: id, Timestamp: a.now()})
	a.recomputeAll(o)
	o.notify("Device deleted", types.SeverityInfo)
	o.snapshot = a.snapshot()

	return nil
}

func (a *app) GateWalls(ctx context.Context) []types.GateWall {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, gateWalls, _ := a.net.Snapshot()
	return gateWalls
}

func (a *app) GateWall(ctx context.Context, id string) (types.GateWall, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.net.GateWall(id)
	if !ok {
		return types.GateWall{}, fmt.Errorf("gate wall %s: %w", id, ErrNotFound)
	}

	c := *g
	c.ConnectedPipelines = append([]string{}, g.ConnectedPipelines...)
	c.History = append([]types.HistoryEntry{}, g.History...)

	return c, nil
}

func (a *app) AddGateWall(ctx context.Context, req types.NewGateWall) (types.GateWall, error) {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	g := req.GateWall
	g.BatteryLevel = gatewalls.DefaultBatteryLevel
	if req.BatteryLevel != nil {
		g.BatteryLevel = *req.BatteryLevel
	}

	if g.ID == "" {
		g.ID = "gw_" + uuid.NewString()
	}

	if err := a.validate.Struct(g); err != nil {
		o.notify("Missing required gate wall fields", types.SeverityError)
		return types.GateWall{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	if g.Country == "" {
		g.Country = types.DefaultCountry
	}

	g.History = nil
	gatewalls.Normalize(&g)
	gatewalls.LogHistory(&g, gatewalls.EventCreated, a.now())

	added, err := a.net.AddGateWall(g)
	if err != nil {
		if errors.Is(err, ErrDuplicateID) {
			o.notify("Gate wall ID already exists", types.SeverityWarning)
		}
		return types.GateWall{}, err
	}

	a.rebuildHierarchy()

	o.emit(types.EntityAdded{EntityType: types.EntityGateWall, EntityID: added.ID, Entity: *added, Timestamp: a.now()})
	o.notify("Gate wall added successfully!", types.SeveritySuccess)
	o.snapshot = a.snapshot()

	log := logging.GetFromContext(ctx)
	log.Info().Str("gatewall_id", added.ID).Msg("gate wall added")

	return *added, nil
}

func (a *app) DeleteGateWall(ctx context.Context, id string) error {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	if _, err := a.net.RemoveGateWall(id); err != nil {
		return err
	}

	a.rebuildHierarchy()

	o.emit(types.EntityRemoved{EntityType: types.EntityGateWall, EntityID: id, Timestamp: a.now()})
	a.recomputeAll(o)
	o.notify("Gate wall deleted", types.SeverityInfo)
	o.snapshot = a.snapshot()

	return nil
}

// SetFlowDirection changes the direction of a gate wall and recomputes the
// pipelines connected to it. Unknown gate walls are ignored.
func (a *app) SetFlowDirection(ctx context.Context, id string, direction types.FlowDirection) error {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	g, ok := a.net.GateWall(id)
	if !ok {
		log := logging.GetFromContext(ctx)
		log.Debug().Str("gatewall_id", id).Msg("flow direction change for unknown gate wall ignored")
		return nil
	}

	if err := a.gateWalls.SetFlowDirection(g, direction, a.now()); err != nil {
		o.notify(fmt.Sprintf("Flow direction %s is not supported by %s", direction, g.Name), types.SeverityWarning)
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	o.emit(gateWallUpdated(g, a.now()))
	a.recompute(o, g.ConnectedPipelines...)
	o.notify(fmt.Sprintf("Flow set to: %s", direction), types.SeveritySuccess)
	o.snapshot = a.snapshot()

	return nil
}

// History returns up to limit entries, newest first. A limit of zero or less
// returns the whole history.
func (a *app) History(ctx context.Context, id string, limit int) ([]types.HistoryEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.net.GateWall(id)
	if !ok {
		return nil, fmt.Errorf("gate wall %s: %w", id, ErrNotFound)
	}

	entries := lo.Reverse(append([]types.HistoryEntry{}, g.History...))
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	return entries, nil
}

func (a *app) Pipelines(ctx context.Context) []types.Pipeline {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, _, pipelines := a.net.Snapshot()
	return pipelines
}

func (a *app) Pipeline(ctx context.Context, id string) (types.Pipeline, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.net.Pipeline(id)
	if !ok {
		return types.Pipeline{}, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}

	return network.ClonePipeline(*p), nil
}

func (a *app) AddPipeline(ctx context.Context, p types.Pipeline) (types.Pipeline, error) {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	if err := a.validate.Struct(p); err != nil {
		o.notify("Invalid pipeline data", types.SeverityError)
		return types.Pipeline{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	added, err := a.addPipeline(o, p)
	if err != nil {
		return types.Pipeline{}, err
	}

	o.notify("Pipeline added successfully!", types.SeveritySuccess)
	o.snapshot = a.snapshot()

	return added, nil
}

func (a *app) addPipeline(o *outbox, p types.Pipeline) (types.Pipeline, error) {
	if p.Name == "" {
		p.Name = fmt.Sprintf("Pipeline %d", a.net.PipelineCount()+1)
	}

	added, err := a.net.AddPipeline(p)
	if err != nil {
		if errors.Is(err, ErrDuplicateID) {
			o.notify("Pipeline ID already exists", types.SeverityWarning)
		} else if errors.Is(err, ErrValidation) {
			o.notify("Invalid pipeline data", types.SeverityError)
		}
		return types.Pipeline{}, err
	}

	pipelines := a.flow.RecomputeAll(a.net.Pipelines(), a.net.GateWall)

	o.emit(types.EntityAdded{EntityType: types.EntityPipeline, EntityID: added.ID, Entity: network.ClonePipeline(*added), Timestamp: a.now()})
	for _, other := range pipelines {
		if other.ID != added.ID {
			o.emit(pipelineStateChanged(other, a.now()))
		}
	}

	return network.ClonePipeline(*added), nil
}

func (a *app) DeletePipeline(ctx context.Context, id string) error {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	if _, err := a.net.RemovePipeline(id); err != nil {
		return err
	}

	o.emit(types.EntityRemoved{EntityType: types.EntityPipeline, EntityID: id, Timestamp: a.now()})
	a.recomputeAll(o)
	o.notify("Pipeline deleted", types.SeverityInfo)
	o.snapshot = a.snapshot()

	return nil
}

func (a *app) Hierarchy(ctx context.Context, path ...string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.hierarchy.Query(path...)
}

func (a *app) HierarchyLeaf(ctx context.Context, path ...string) (hierarchy.Bucket, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.hierarchy.Leaf(path...)
}

func (a *app) Search(ctx context.Context, query string) []hierarchy.Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	return hierarchy.Search(query, a.net.Devices(), a.net.GateWalls(), a.net.Pipelines())
}

// Tick runs one simulation sweep over every gate wall and saves the network
// once afterwards.
func (a *app) Tick(ctx context.Context, now time.Time) {
	o := &outbox{}
	defer a.flush(ctx, o)

	a.mu.Lock()
	defer a.unlock(o)

	for _, g := range a.net.GateWalls() {
		result := a.gateWalls.Tick(g, now)
		if !result.Changed {
			continue
		}

		o.emit(gateWallUpdated(g, now))

		if result.LowBattery {
			o.notify(fmt.Sprintf("%s: Low battery!", g.Name), types.SeverityWarning)
		}

		if result.Shutdown {
			a.autoShutdowns++
			a.recompute(o, g.ConnectedPipelines...)
			o.notify(fmt.Sprintf("%s: Battery depleted!", g.Name), types.SeverityError)
		}
	}

	a.sweeps++
	o.snapshot = a.snapshot()
}

func (a *app) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	activeGateWalls := lo.CountBy(a.net.GateWalls(), func(g *types.GateWall) bool {
		return g.IsActive
	})
	activePipelines := lo.CountBy(a.net.Pipelines(), func(p *types.Pipeline) bool {
		return p.FlowActive
	})

	return Stats{
		Devices:         len(a.net.Devices()),
		GateWalls:       len(a.net.GateWalls()),
		ActiveGateWalls: activeGateWalls,
		Pipelines:       a.net.PipelineCount(),
		ActivePipelines: activePipelines,
		Sweeps:          a.sweeps,
		AutoShutdowns:   a.autoShutdowns,
	}
}

func (a *app) recompute(o *outbox, pipelineIDs ...string) {
	for _, id := range pipelineIDs {
		if p, ok := a.net.Pipeline(id); ok {
			a.flow.Recompute(p, a.net.GateWall)
			o.emit(pipelineStateChanged(p, a.now()))
		}
	}
}

func (a *app) recomputeAll(o *outbox) {
	for _, p := range a.flow.RecomputeAll(a.net.Pipelines(), a.net.GateWall) {
		o.emit(pipelineStateChanged(p, a.now()))
	}
}

func (a *app) rebuildHierarchy() {
	a.hierarchy.Rebuild(a.net.Devices(), a.net.GateWalls())
}

func (a *app) snapshot() *types.Document {
	devices, gateWalls, pipelines := a.net.Snapshot()
	return &types.Document{
		Devices:   devices,
		GateWalls: gateWalls,
		Pipelines: pipelines,
		Timestamp: a.now(),
		Version:   types.DocumentVersion,
	}
}

func gateWallUpdated(g *types.GateWall, now time.Time) types.GateWallUpdated {
	return types.GateWallUpdated{
		GateWallID:    g.ID,
		FlowDirection: g.FlowDirection,
		IsActive:      g.IsActive,
		BatteryLevel:  g.BatteryLevel,
		Pressure:      g.Pressure,
		Timestamp:     now,
	}
}

func pipelineStateChanged(p *types.Pipeline, now time.Time) types.PipelineStateChanged {
	return types.PipelineStateChanged{
		PipelineID: p.ID,
		FlowActive: p.FlowActive,
		Color:      p.Color,
		Pressure:   p.Pressure,
		FlowRate:   p.FlowRate,
		Timestamp:  now,
	}
}
