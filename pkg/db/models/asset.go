package models

import (
	"time"

	"github.com/google/uuid"
)

// Asset is the digital asset a part pool fractionalizes.
type Asset struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title      string    `gorm:"column:title;not null"`
	CreatorID  uuid.UUID `gorm:"column:creator_id;type:uuid;not null"`
	TotalParts int       `gorm:"column:total_parts;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
