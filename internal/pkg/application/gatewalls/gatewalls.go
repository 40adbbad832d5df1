package gatewalls

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/diwise/water-network/pkg/types"
)

var ErrDirectionNotAllowed = fmt.Errorf("flow direction not allowed for gate wall type")

const (
	DefaultBatteryLevel float64 = 100
	DefaultBatteryDrain float64 = 0.01
	LowBatteryLevel     float64 = 20

	MinActivePressure float64 = 20
	MaxActivePressure float64 = 50
	MaxPressure       float64 = 50
	PressureJitter    float64 = 1
)

const (
	EventCreated      string = "Gate wall created"
	EventLowBattery   string = "Low battery warning"
	EventAutoShutdown string = "Auto-shutdown: Battery depleted"
)

// StateMachine owns the transition rules and the simulated telemetry decay of gate walls.
type StateMachine struct {
	rnd          *rand.Rand
	batteryDrain float64
}

type Option func(*StateMachine)

func WithBatteryDrain(drain float64) Option {
	return func(sm *StateMachine) {
		if drain > 0 {
			sm.batteryDrain = drain
		}
	}
}

func New(rnd *rand.Rand, opts ...Option) *StateMachine {
	sm := &StateMachine{
		rnd:          rnd,
		batteryDrain: DefaultBatteryDrain,
	}

	for _, opt := range opts {
		opt(sm)
	}

	return sm
}

// Normalize fills in defaults and re-derives the state that must follow from
// the flow direction.
func Normalize(g *types.GateWall) {
	if g.Type == "" {
		g.Type = types.GateWallStraight
	}

	if g.FlowDirection == "" || !g.Type.Allows(g.FlowDirection) {
		g.FlowDirection = types.FlowNone
	}

	g.IsActive = g.FlowDirection != types.FlowNone
	if !g.IsActive {
		g.Pressure = 0
	}

	g.BatteryLevel = math.Max(0, math.Min(100, g.BatteryLevel))
	g.Pressure = math.Max(0, math.Min(MaxPressure, g.Pressure))

	if g.ConnectedPipelines == nil {
		g.ConnectedPipelines = []string{}
	}

	if g.History == nil {
		g.History = []types.HistoryEntry{}
	}

	if len(g.History) > types.MaxHistoryEntries {
		g.History = g.History[len(g.History)-types.MaxHistoryEntries:]
	}
}

// SetFlowDirection applies direction to g and appends a history entry.
func (sm *StateMachine) SetFlowDirection(g *types.GateWall, direction types.FlowDirection, now time.Time) error {
	if !g.Type.Allows(direction) {
		return fmt.Errorf("%w: %s does not support %q", ErrDirectionNotAllowed, g.Type, direction)
	}

	g.FlowDirection = direction
	g.IsActive = direction != types.FlowNone

	if g.IsActive {
		g.Pressure = floor1(sm.rnd.Float64()*(MaxActivePressure-MinActivePressure) + MinActivePressure)
	} else {
		g.Pressure = 0
	}

	LogHistory(g, fmt.Sprintf("Flow direction changed to: %s", direction), now)

	return nil
}

type TickResult struct {
	Changed    bool
	LowBattery bool
	Shutdown   bool
}

// Tick advances the simulated telemetry of an active gate wall by one step.
// Inactive gate walls are left untouched.
func (sm *StateMachine) Tick(g *types.GateWall, now time.Time) TickResult {
	result := TickResult{}

	if !g.IsActive {
		return result
	}

	result.Changed = true

	previous := g.BatteryLevel
	g.BatteryLevel = math.Max(0, math.Round((g.BatteryLevel-sm.batteryDrain)*1e4)/1e4)

	if g.FlowDirection != types.FlowNone {
		delta := (sm.rnd.Float64() - 0.5) * 2 * PressureJitter
		g.Pressure = math.Max(0, math.Min(MaxPressure, round1(g.Pressure+delta)))
	}

	if previous >= LowBatteryLevel && g.BatteryLevel < LowBatteryLevel {
		result.LowBattery = true
		LogHistory(g, EventLowBattery, now)
	}

	if g.BatteryLevel <= 0 {
		result.Shutdown = true
		// none is allowed for every gate wall type
		_ = sm.SetFlowDirection(g, types.FlowNone, now)
		LogHistory(g, EventAutoShutdown, now)
	}

	return result
}

// LogHistory appends a snapshot of the current state, evicting the oldest
// entries beyond types.MaxHistoryEntries.
func LogHistory(g *types.GateWall, event string, now time.Time) {
	g.History = append(g.History, types.HistoryEntry{
		Timestamp:     now.UTC(),
		Event:         event,
		FlowDirection: g.FlowDirection,
		Pressure:      g.Pressure,
		BatteryLevel:  g.BatteryLevel,
		IsActive:      g.IsActive,
	})

	if len(g.History) > types.MaxHistoryEntries {
		g.History = append([]types.HistoryEntry{}, g.History[len(g.History)-types.MaxHistoryEntries:]...)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func floor1(v float64) float64 {
	return math.Floor(v*10) / 10
}
