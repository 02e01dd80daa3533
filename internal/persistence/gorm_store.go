package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"stage-manager/internal/db"
	"stage-manager/internal/stage"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps one stage_object_sets row per key and appends a
// stage_events row for every write.
type GormStore struct {
	conn *gorm.DB
}

func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{conn: conn}
}

func (s *GormStore) Get(ctx context.Context, scope stage.Scope, owner string) ([]stage.Serialized, error) {
	key := Key{Scope: scope, Owner: owner}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var row db.StageObjectSet
	err := s.conn.WithContext(ctx).Where("scope = ? AND owner = ?", string(scope), owner).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []stage.Serialized{}, nil
	}
	if err != nil {
		return nil, err
	}
	objects := make([]stage.Serialized, 0, row.Count)
	if err := json.Unmarshal(row.Objects, &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func (s *GormStore) Set(ctx context.Context, scope stage.Scope, owner string, objects []stage.Serialized) error {
	key := Key{Scope: scope, Owner: owner}
	if err := key.Validate(); err != nil {
		return err
	}
	if objects == nil {
		objects = []stage.Serialized{}
	}
	data, err := json.Marshal(objects)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{"count": len(objects)})
	if err != nil {
		return err
	}
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := db.StageObjectSet{
			Scope:   string(scope),
			Owner:   owner,
			Objects: datatypes.JSON(data),
			Count:   len(objects),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}, {Name: "owner"}},
			DoUpdates: clause.AssignmentColumns([]string{"objects", "count", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}
		event := db.StageEvent{
			Scope:   string(scope),
			Owner:   owner,
			Type:    "objects_saved",
			Payload: datatypes.JSON(payload),
		}
		return tx.Create(&event).Error
	})
}
