package db

import (
	"time"

	"gorm.io/datatypes"
)

// StageEvent is an append-only record of writes to stage object sets.
type StageEvent struct {
	ID        uint           `gorm:"primaryKey"`
	Scope     string         `gorm:"size:16;index:idx_stage_events_scope_owner;not null"`
	Owner     string         `gorm:"size:128;index:idx_stage_events_scope_owner;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
