package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
)

// LedgerRecord is the immutable, content-addressed record of one
// state-changing action.
//
// ID is the sha256 digest of the record's canonical serialization; AnchorRef
// is the only field written after creation (set once anchoring succeeds).
type LedgerRecord struct {
	ID                string                 `gorm:"column:id;primaryKey"`
	Type              enums.LedgerRecordType `gorm:"column:type;type:ledger_record_type_enum;not null"`
	SequenceNumber    int64                  `gorm:"column:sequence_number;not null;uniqueIndex"`
	Timestamp         time.Time              `gorm:"column:timestamp;not null"`
	AggregateID       *uuid.UUID             `gorm:"column:aggregate_id;type:uuid"`
	AssetID           *uuid.UUID             `gorm:"column:asset_id;type:uuid"`
	Quantity          *int                   `gorm:"column:quantity"`
	FromPrincipal     *uuid.UUID             `gorm:"column:from_principal;type:uuid"`
	ToPrincipal       *uuid.UUID             `gorm:"column:to_principal;type:uuid"`
	PaymentRef        *string                `gorm:"column:payment_ref"`
	Currency          *enums.Currency        `gorm:"column:currency"`
	Amount            *decimal.Decimal       `gorm:"column:amount;type:decimal(32,18)"`
	Signer            string                 `gorm:"column:signer;not null"`
	Signature         string                 `gorm:"column:signature;not null"`
	PreviousAnchorRef *string                `gorm:"column:previous_anchor_ref"`
	AnchorRef         *string                `gorm:"column:anchor_ref"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
}
