package models

import (
	"time"

	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
)

// AnchorBacklogItem is a ledger record whose anchor submission failed,
// kept for retry and as a permanent audit trail. Rows transition from
// pending to success and are never deleted.
type AnchorBacklogItem struct {
	RecordID          string              `gorm:"column:record_id;primaryKey"`
	SequenceNumber    int64               `gorm:"column:sequence_number;not null"`
	PreviousAnchorRef *string             `gorm:"column:previous_anchor_ref"`
	LastError         *string             `gorm:"column:last_error"`
	RetryCount        int                 `gorm:"column:retry_count;not null;default:0"`
	Status            enums.BacklogStatus `gorm:"column:status;type:anchor_backlog_status_enum;not null;default:pending;index"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
