package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/diwise/water-network/pkg/types"
	"gorm.io/gorm"
)

var ErrNoSnapshot = fmt.Errorf("no saved network")

type NetworkStore struct {
	db *gorm.DB
}

func NewNetworkStore(connect ConnectorFunc) (*NetworkStore, error) {
	impl, log, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&Entity{}, &Snapshot{})
	if err != nil {
		return nil, err
	}

	log.Debug().Msg("network store migrated")

	return &NetworkStore{db: impl}, nil
}

// Save replaces the stored network with doc in a single transaction.
func (s *NetworkStore) Save(ctx context.Context, doc types.Document) error {
	rows, err := toEntities(doc)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})

		if err := all.Delete(&Entity{}).Error; err != nil {
			return err
		}
		if err := all.Delete(&Snapshot{}).Error; err != nil {
			return err
		}

		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		return tx.Create(&Snapshot{Version: doc.Version, Timestamp: doc.Timestamp}).Error
	})
}

func (s *NetworkStore) Load(ctx context.Context) (types.Document, error) {
	db := s.db.WithContext(ctx)

	snapshot := Snapshot{}
	err := db.First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Document{}, ErrNoSnapshot
	}
	if err != nil {
		return types.Document{}, err
	}

	var rows []Entity
	if err := db.Order("position").Find(&rows).Error; err != nil {
		return types.Document{}, err
	}

	doc, err := fromEntities(rows)
	if err != nil {
		return types.Document{}, err
	}

	doc.Version = snapshot.Version
	doc.Timestamp = snapshot.Timestamp

	return doc, nil
}

func toEntities(doc types.Document) ([]Entity, error) {
	rows := make([]Entity, 0, len(doc.Devices)+len(doc.GateWalls)+len(doc.Pipelines))

	add := func(entityType, id string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s: %w", entityType, id, err)
		}
		rows = append(rows, Entity{EntityType: entityType, EntityID: id, Position: len(rows), Data: b})
		return nil
	}

	for _, d := range doc.Devices {
		if err := add(types.EntityDevice, d.ID, d); err != nil {
			return nil, err
		}
	}
	for _, g := range doc.GateWalls {
		if err := add(types.EntityGateWall, g.ID, g); err != nil {
			return nil, err
		}
	}
	for _, p := range doc.Pipelines {
		if err := add(types.EntityPipeline, p.ID, p); err != nil {
			return nil, err
		}
	}

	return rows, nil
}

func fromEntities(rows []Entity) (types.Document, error) {
	doc := types.Document{
		Devices:   []types.Device{},
		GateWalls: []types.GateWall{},
		Pipelines: []types.Pipeline{},
	}

	for _, r := range rows {
		var err error

		switch r.EntityType {
		case types.EntityDevice:
			d := types.Device{}
			if err = json.Unmarshal(r.Data, &d); err == nil {
				doc.Devices = append(doc.Devices, d)
			}
		case types.EntityGateWall:
			g := types.GateWall{}
			if err = json.Unmarshal(r.Data, &g); err == nil {
				doc.GateWalls = append(doc.GateWalls, g)
			}
		case types.EntityPipeline:
			p := types.Pipeline{}
			if err = json.Unmarshal(r.Data, &p); err == nil {
				doc.Pipelines = append(doc.Pipelines, p)
			}
		default:
			err = fmt.Errorf("unknown entity type %q", r.EntityType)
		}

		if err != nil {
			return types.Document{}, fmt.Errorf("failed to load %s %s: %w", r.EntityType, r.EntityID, err)
		}
	}

	return doc, nil
}
