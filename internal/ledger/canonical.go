package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
)

// canonicalTimeLayout fixes the textual form of every hashed timestamp.
// Fractional seconds are zero-padded so the same instant always serializes
// to the same bytes.
const canonicalTimeLayout = "2006-01-02T15:04:05.000000000Z"

// CanonicalTime normalizes t to the fixed canonical form in UTC.
func CanonicalTime(t time.Time) string {
	return t.UTC().Format(canonicalTimeLayout)
}

// canonicalEnvelope enumerates every hashed field of a record exactly once.
// Every key is always present; unused fields serialize as null. The id and
// the anchor pointer are deliberately absent: the id is derived from these
// bytes, and the anchor pointer arrives after hashing.
func canonicalEnvelope(record *models.LedgerRecord) map[string]any {
	return map[string]any{
		"type":                string(record.Type),
		"sequence_number":     record.SequenceNumber,
		"timestamp":           CanonicalTime(record.Timestamp),
		"aggregate_id":        uuidOrNil(record.AggregateID),
		"asset_id":            uuidOrNil(record.AssetID),
		"quantity":            intOrNil(record.Quantity),
		"from":                uuidOrNil(record.FromPrincipal),
		"to":                  uuidOrNil(record.ToPrincipal),
		"payment_ref":         stringOrNil(record.PaymentRef),
		"currency":            currencyOrNil(record.Currency),
		"amount":              amountOrNil(record.Amount),
		"signer":              record.Signer,
		"signature":           record.Signature,
		"previous_anchor_ref": stringOrNil(record.PreviousAnchorRef),
	}
}

// CanonicalBytes returns the deterministic serialization a record is hashed
// over. encoding/json sorts map keys lexicographically, which also covers
// nested maps; arrays serialize positionally.
func CanonicalBytes(record *models.LedgerRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("record required")
	}
	return json.Marshal(canonicalEnvelope(record))
}

// Hash derives the record's content-addressed id.
func Hash(record *models.LedgerRecord) (string, error) {
	raw, err := CanonicalBytes(record)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// WireBytes returns the payload submitted to the external ledger: the full
// canonical envelope plus the content hash, so a third party can re-hash and
// verify integrity independently.
func WireBytes(record *models.LedgerRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("record required")
	}
	envelope := canonicalEnvelope(record)
	envelope["record_id"] = record.ID
	return json.Marshal(envelope)
}

func uuidOrNil[T fmt.Stringer](v *T) any {
	if v == nil {
		return nil
	}
	return (*v).String()
}

func stringOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func currencyOrNil(v *enums.Currency) any {
	if v == nil {
		return nil
	}
	return v.String()
}

// amountOrNil normalizes decimal amounts to their minimal string form so
// 1.50 and 1.5 hash identically.
func amountOrNil(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	s := v.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}
