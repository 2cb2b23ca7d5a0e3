package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
)

// PayoutAddresses maps a payment currency to the seller's receiving address.
// Stored as jsonb.
type PayoutAddresses map[enums.Currency]string

// Value marshals the map into a jsonb literal.
func (p PayoutAddresses) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("payout addresses: %w", err)
	}
	return raw, nil
}

// Scan unmarshals a jsonb column into the map.
func (p *PayoutAddresses) Scan(src any) error {
	if src == nil {
		*p = PayoutAddresses{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("payout addresses: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, p)
}

// AddressFor returns the configured address for the currency, if any.
func (p PayoutAddresses) AddressFor(currency enums.Currency) (string, bool) {
	address, ok := p[currency]
	return address, ok
}
