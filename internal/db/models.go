package db

import (
	"time"

	"gorm.io/datatypes"
)

// StageObjectSet stores the serialized object list for one scope key: the
// world (empty owner), one scene, or one user.
type StageObjectSet struct {
	ID        uint           `gorm:"primaryKey"`
	Scope     string         `gorm:"size:16;not null;uniqueIndex:idx_stage_object_sets_scope_owner"`
	Owner     string         `gorm:"size:128;not null;uniqueIndex:idx_stage_object_sets_scope_owner"`
	Objects   datatypes.JSON `gorm:"type:jsonb;not null"`
	Count     int            `gorm:"not null;default:0"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}
