package models

import "time"

// SystemFlag is a named process-wide toggle persisted durably so every
// server instance observes the same admission-control state.
type SystemFlag struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Enabled   bool      `gorm:"column:enabled;not null;default:false"`
	Reason    *string   `gorm:"column:reason"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
