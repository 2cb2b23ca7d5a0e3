package enums

import "fmt"

// AggregateKind identifies the kind of aggregate currently holding parts.
type AggregateKind string

const (
	AggregateKindListing AggregateKind = "listing"
	AggregateKindGift    AggregateKind = "gift"
	AggregateKindPayment AggregateKind = "payment_hold"
)

var validAggregateKinds = []AggregateKind{
	AggregateKindListing,
	AggregateKindGift,
	AggregateKindPayment,
}

// IsValid reports whether the value matches the canonical aggregate kind enum.
func (k AggregateKind) IsValid() bool {
	for _, candidate := range validAggregateKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseAggregateKind converts raw input into AggregateKind.
func ParseAggregateKind(value string) (AggregateKind, error) {
	for _, candidate := range validAggregateKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate kind %q", value)
}
