package enums

import "fmt"

// LedgerRecordType maps to the ledger_record_type_enum enum in Postgres.
type LedgerRecordType string

const (
	LedgerRecordTypeIssue   LedgerRecordType = "issue"
	LedgerRecordTypeList    LedgerRecordType = "list"
	LedgerRecordTypeReserve LedgerRecordType = "reserve"
	LedgerRecordTypeSale    LedgerRecordType = "sale"
	LedgerRecordTypeGift    LedgerRecordType = "gift"
	LedgerRecordTypeConsume LedgerRecordType = "consume"
	LedgerRecordTypeCancel  LedgerRecordType = "cancel"
)

var validLedgerRecordTypes = []LedgerRecordType{
	LedgerRecordTypeIssue,
	LedgerRecordTypeList,
	LedgerRecordTypeReserve,
	LedgerRecordTypeSale,
	LedgerRecordTypeGift,
	LedgerRecordTypeConsume,
	LedgerRecordTypeCancel,
}

// IsValid reports whether the value matches the canonical record type enum.
func (t LedgerRecordType) IsValid() bool {
	for _, candidate := range validLedgerRecordTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerRecordType converts raw input into LedgerRecordType.
func ParseLedgerRecordType(value string) (LedgerRecordType, error) {
	for _, candidate := range validLedgerRecordTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger record type %q", value)
}
