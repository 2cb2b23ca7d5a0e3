package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
)

// Reservation is an ephemeral claim on exactly Quantity parts for one buyer.
//
// Invariant: Quantity equals the count of parts whose hold_ref is this id.
// Deleted on finalization or by the expiry sweep, never updated in place.
type Reservation struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ListingID      uuid.UUID       `gorm:"column:listing_id;type:uuid;not null;index"`
	Holder         uuid.UUID       `gorm:"column:holder;type:uuid;not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	UnitPriceCents int             `gorm:"column:unit_price_cents;not null"`
	Currency       enums.Currency  `gorm:"column:currency;not null"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null"`
	PaymentAddress string          `gorm:"column:payment_address;not null"`
	BuyerAddress   string          `gorm:"column:buyer_address;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime;index"`
}
