package database

import (
	"time"
)

// Entity is one device, gate wall or pipeline stored as a json blob. Position
// keeps the insertion order of the network.
type Entity struct {
	ID         uint   `gorm:"primaryKey"`
	EntityType string `gorm:"uniqueIndex:idx_entity;size:32"`
	EntityID   string `gorm:"uniqueIndex:idx_entity;size:255"`
	Position   int
	Data       []byte
}

// Snapshot marks that a network has been saved at least once.
type Snapshot struct {
	ID        uint `gorm:"primaryKey"`
	Version   string
	Timestamp time.Time
}
