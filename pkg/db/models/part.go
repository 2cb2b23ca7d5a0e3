package models

import (
	"time"

	"github.com/google/uuid"
)

// Part is one indivisible fractional share of an asset.
//
// The primary key is the content hash of the immutable fields (sequence
// number + asset id), computed once at issuance. Ownership and holds are the
// only mutable attributes; parts are never deleted.
type Part struct {
	ID             string     `gorm:"column:id;primaryKey"`
	AssetID        uuid.UUID  `gorm:"column:asset_id;type:uuid;not null;index"`
	SequenceNumber int        `gorm:"column:sequence_number;not null"`
	Owner          uuid.UUID  `gorm:"column:owner;type:uuid;not null;index"`
	LockRef        *uuid.UUID `gorm:"column:lock_ref;type:uuid;index"`
	HoldRef        *uuid.UUID `gorm:"column:hold_ref;type:uuid;index"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
