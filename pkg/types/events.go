package types

import "time"

const (
	EntityDevice   string = "device"
	EntityGateWall string = "gatewall"
	EntityPipeline string = "pipeline"
)

type EntityAdded struct {
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityID"`
	Entity     any       `json:"entity,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *EntityAdded) ContentType() string {
	return "application/json"
}
func (e *EntityAdded) TopicName() string {
	return e.EntityType + ".added"
}

type EntityRemoved struct {
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityID"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *EntityRemoved) ContentType() string {
	return "application/json"
}
func (e *EntityRemoved) TopicName() string {
	return e.EntityType + ".removed"
}

type GateWallUpdated struct {
	GateWallID    string        `json:"gateWallID"`
	FlowDirection FlowDirection `json:"flowDirection"`
	IsActive      bool          `json:"isActive"`
	BatteryLevel  float64       `json:"batteryLevel"`
	Pressure      float64       `json:"pressure"`
	Timestamp     time.Time     `json:"timestamp"`
}

func (g *GateWallUpdated) ContentType() string {
	return "application/json"
}
func (g *GateWallUpdated) TopicName() string {
	return "gatewall.updated"
}

type PipelineStateChanged struct {
	PipelineID string    `json:"pipelineID"`
	FlowActive bool      `json:"flowActive"`
	Color      string    `json:"color"`
	Pressure   float64   `json:"pressure"`
	FlowRate   float64   `json:"flowRate"`
	Timestamp  time.Time `json:"timestamp"`
}

func (p *PipelineStateChanged) ContentType() string {
	return "application/json"
}
func (p *PipelineStateChanged) TopicName() string {
	return "pipeline.stateChanged"
}
