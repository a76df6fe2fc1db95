package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// taskRow is the `tasks` table (spec §4.D). Parameters is stored as JSON so arbitrary
// JSON-representable values round-trip without a fixed schema.
type taskRow struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"index;not null"`
	Parameters  datatypes.JSON
	ScheduledAt *time.Time `gorm:"index"`
}

func (taskRow) TableName() string { return "tasks" }

// frameRow is the `frames` table (spec §4.D). Data is a plain text column whose
// encoding depends on Type (see encodeData/decodeData in codec.go) — this mirrors the
// spec's per-type encoding table exactly rather than wrapping everything in JSON.
type frameRow struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	TaskID int64  `gorm:"index;not null"`
	Type   string `gorm:"index;not null"`
	Data   string
	Time   time.Time `gorm:"index"`
}

func (frameRow) TableName() string { return "frames" }
