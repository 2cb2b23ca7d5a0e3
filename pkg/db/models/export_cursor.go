package models

import "time"

// ExportCursor tracks how far a named export pipeline has progressed
// through the ledger sequence.
type ExportCursor struct {
	Name         string    `gorm:"column:name;primaryKey"`
	LastSequence int64     `gorm:"column:last_sequence;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
