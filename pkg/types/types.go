package types

import (
	"time"
)

const (
	DefaultCountry  string = "India"
	UnassignedLevel string = "Unassigned"
)

type Location struct {
	Latitude  float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Altitude  float64 `json:"altitude"`
}

type AdministrativePath struct {
	Country    string `json:"country"`
	State      string `json:"state"`
	District   string `json:"district"`
	Mandal     string `json:"mandal"`
	Habitation string `json:"habitation"`
}

// Levels returns the path as country, state, district, mandal and habitation
// with missing segments replaced by their sentinel values.
func (p AdministrativePath) Levels() []string {
	or := func(s, def string) string {
		if s == "" {
			return def
		}
		return s
	}

	return []string{
		or(p.Country, DefaultCountry),
		or(p.State, UnassignedLevel),
		or(p.District, UnassignedLevel),
		or(p.Mandal, UnassignedLevel),
		or(p.Habitation, UnassignedLevel),
	}
}

const (
	DeviceKindOHSR    string = "ohsr"
	DeviceKindGateway string = "gateway"

	DeviceStatusActive   string = "active"
	DeviceStatusInactive string = "inactive"
)

type Device struct {
	ID   string `json:"id" validate:"required,entityid"`
	Name string `json:"name" validate:"required"`
	Location
	AdministrativePath

	Kind       string  `json:"device" validate:"omitempty,oneof=ohsr gateway"`
	Status     string  `json:"status" validate:"omitempty,oneof=active inactive"`
	WaterLevel float64 `json:"waterLevel"`
	Capacity   float64 `json:"capacity"`
}

func (d Device) EntityID() string { return d.ID }
func (d Device) Position() Location { return d.Location }
func (g GateWall) EntityID() string { return g.ID }
func (g GateWall) Position() Location { return g.Location }

type GateWallType string

const (
	GateWallStraight  GateWallType = "straight"
	GateWallTJunction GateWallType = "t-junction"
)

type FlowDirection string

const (
	FlowNone     FlowDirection = "none"
	FlowLeft     FlowDirection = "left"
	FlowRight    FlowDirection = "right"
	FlowStraight FlowDirection = "straight"
	FlowAll      FlowDirection = "all"
)

// Allows reports whether a gate wall of type t may be set to direction d.
func (t GateWallType) Allows(d FlowDirection) bool {
	switch t {
	case GateWallStraight:
		return d == FlowNone || d == FlowStraight
	case GateWallTJunction:
		switch d {
		case FlowNone, FlowLeft, FlowRight, FlowStraight, FlowAll:
			return true
		}
	}
	return false
}

const MaxHistoryEntries int = 1000

type HistoryEntry struct {
	Timestamp     time.Time     `json:"timestamp"`
	Event         string        `json:"event"`
	FlowDirection FlowDirection `json:"flowDirection"`
	Pressure      float64       `json:"pressure"`
	BatteryLevel  float64       `json:"batteryLevel"`
	IsActive      bool          `json:"isActive"`
}

type GateWall struct {
	ID   string `json:"id" validate:"omitempty,entityid"`
	Name string `json:"name" validate:"required"`
	Location
	AdministrativePath

	Type          GateWallType  `json:"type" validate:"omitempty,oneof=straight t-junction"`
	FlowDirection FlowDirection `json:"flowDirection" validate:"omitempty,oneof=none left right straight all"`
	IsActive      bool          `json:"isActive"`
	BatteryLevel  float64       `json:"batteryLevel" validate:"gte=0,lte=100"`
	Pressure      float64       `json:"pressure" validate:"gte=0"`

	ConnectedPipelines []string       `json:"connectedPipelines"`
	History            []HistoryEntry `json:"history"`
}

// Point is a latitude, longitude pair.
type Point [2]float64

func (p Point) Lat() float64 { return p[0] }
func (p Point) Lon() float64 { return p[1] }

type Segment []Point

const (
	ColorActive   string = "active-blue"
	ColorInactive string = "inactive-red"
)

// MinPipelinePoints is the smallest number of points, across all segments,
// that makes a valid pipeline.
const MinPipelinePoints int = 2

type Pipeline struct {
	ID       string    `json:"id" validate:"required,entityid"`
	Name     string    `json:"name"`
	Segments []Segment `json:"segments" validate:"required,min=1"`

	ConnectedDevices   []string `json:"connectedDevices"`
	ConnectedGateWalls []string `json:"connectedGateWalls"`

	FlowActive bool    `json:"flowActive"`
	Color      string  `json:"color"`
	Pressure   float64 `json:"pressure"`
	FlowRate   float64 `json:"flowRate"`
}

// PointCount returns the total number of points across all segments.
func (p Pipeline) PointCount() int {
	n := 0
	for _, s := range p.Segments {
		n += len(s)
	}
	return n
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

const DocumentVersion string = "1.0"

// Document is the import/export representation of the whole network.
type Document struct {
	Devices   []Device   `json:"devices"`
	GateWalls []GateWall `json:"gateWalls"`
	Pipelines []Pipeline `json:"pipelines"`
	Timestamp time.Time  `json:"timestamp"`
	Version   string     `json:"version"`
}

type Collection[T any] struct {
	Data  []T    `json:"data"`
	Count uint64 `json:"count"`
}

func NewCollection[T any](data []T) Collection[T] {
	if data == nil {
		data = []T{}
	}
	return Collection[T]{
		Data:  data,
		Count: uint64(len(data)),
	}
}

// Drawing is the pipeline currently being drawn.
type Drawing struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Segments           []Segment `json:"segments"`
	Current            Segment   `json:"current"`
	ConnectedDevices   []string  `json:"connectedDevices"`
	ConnectedGateWalls []string  `json:"connectedGateWalls"`
	SegmentBreak       bool      `json:"segmentBreak,omitempty"`
}

type Notification struct {
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// NewGateWall is a gate wall creation request. A nil BatteryLevel means the
// gate wall starts with a full battery.
type NewGateWall struct {
	GateWall
	BatteryLevel *float64 `json:"batteryLevel,omitempty"`
}
