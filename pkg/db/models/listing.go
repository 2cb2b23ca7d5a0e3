package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	"github.com/fraxionlabs/fraxion-backend/pkg/types"
)

// Listing is an aggregate currently holding a set of parts for sale or gift.
//
// RemainingQty is the advertised free count; the authoritative truth is the
// set of parts whose lock_ref points here with a null hold_ref.
type Listing struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind            enums.AggregateKind   `gorm:"column:kind;type:aggregate_kind_enum;not null"`
	AssetID         uuid.UUID             `gorm:"column:asset_id;type:uuid;not null;index"`
	Owner           uuid.UUID             `gorm:"column:owner;type:uuid;not null"`
	UnitPriceCents  int                   `gorm:"column:unit_price_cents;not null"`
	RemainingQty    int                   `gorm:"column:remaining_qty;not null"`
	AllOrNothing    bool                  `gorm:"column:all_or_nothing;not null;default:false"`
	PayoutAddresses types.PayoutAddresses `gorm:"column:payout_addresses;type:jsonb;not null"`
	Status          enums.ListingStatus   `gorm:"column:status;type:listing_status_enum;not null;default:active"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
