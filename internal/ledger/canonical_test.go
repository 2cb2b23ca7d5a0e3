package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
)

func sampleFields() Fields {
	aggregateID := uuid.MustParse("7b0d1f0a-67f0-4a5e-a20f-0f4f3f9a51f2")
	assetID := uuid.MustParse("3d2e9c27-1f3b-4de0-9b68-24dbd6a0f9cb")
	quantity := 3
	from := uuid.MustParse("9e107d9d-372b-4b2b-8a5c-9f0b7a9d3f11")
	to := uuid.MustParse("c4ca4238-a0b9-4382-8dcc-509a6f75849b")
	paymentRef := "0xdeadbeef"
	currency := enums.CurrencyETH
	amount := decimal.RequireFromString("1.25")
	return Fields{
		AggregateID:   &aggregateID,
		AssetID:       &assetID,
		Quantity:      &quantity,
		FromPrincipal: &from,
		ToPrincipal:   &to,
		PaymentRef:    &paymentRef,
		Currency:      &currency,
		Amount:        &amount,
	}
}

func sampleRecord(t *testing.T) *models.LedgerRecord {
	t.Helper()
	ts := time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC)
	record, err := BuildRecord(enums.LedgerRecordTypeSale, 42, ts, "signer-key", "sig-bytes", nil, sampleFields())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return record
}

func TestHashIsDeterministic(t *testing.T) {
	t.Parallel()

	first := sampleRecord(t)
	second := sampleRecord(t)

	if first.ID == "" || len(first.ID) != 64 {
		t.Fatalf("expected 64-char hex id, got %q", first.ID)
	}
	if first.ID != second.ID {
		t.Fatalf("identical input hashed differently: %s vs %s", first.ID, second.ID)
	}
}

func TestHashChangesWithAnyBusinessField(t *testing.T) {
	t.Parallel()

	base := sampleRecord(t)

	mutations := map[string]func(*models.LedgerRecord){
		"type":      func(r *models.LedgerRecord) { r.Type = enums.LedgerRecordTypeGift },
		"sequence":  func(r *models.LedgerRecord) { r.SequenceNumber = 43 },
		"timestamp": func(r *models.LedgerRecord) { r.Timestamp = r.Timestamp.Add(time.Nanosecond) },
		"quantity":  func(r *models.LedgerRecord) { q := 4; r.Quantity = &q },
		"amount": func(r *models.LedgerRecord) {
			amount := decimal.RequireFromString("1.26")
			r.Amount = &amount
		},
		"signature":   func(r *models.LedgerRecord) { r.Signature = "other-sig" },
		"payment_ref": func(r *models.LedgerRecord) { ref := "0xcafef00d"; r.PaymentRef = &ref },
		"prev_anchor": func(r *models.LedgerRecord) { ref := "anchor-1"; r.PreviousAnchorRef = &ref },
	}

	for name, mutate := range mutations {
		clone := *base
		mutate(&clone)
		hash, err := Hash(&clone)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if hash == base.ID {
			t.Fatalf("mutating %s did not change the digest", name)
		}
	}
}

func TestHashExcludesTechnicalFields(t *testing.T) {
	t.Parallel()

	base := sampleRecord(t)

	clone := *base
	anchorRef := "external-anchor-9"
	clone.AnchorRef = &anchorRef
	clone.CreatedAt = time.Now()

	hash, err := Hash(&clone)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash != base.ID {
		t.Fatalf("anchor ref or created_at leaked into the hash input")
	}
}

func TestAmountNormalization(t *testing.T) {
	t.Parallel()

	fields := sampleFields()
	long := decimal.RequireFromString("1.250000")
	fields.Amount = &long

	ts := time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC)
	record, err := BuildRecord(enums.LedgerRecordTypeSale, 42, ts, "signer-key", "sig-bytes", nil, fields)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if record.ID != sampleRecord(t).ID {
		t.Fatalf("trailing zeros changed the digest")
	}
}

func TestTimestampNormalizedToUTC(t *testing.T) {
	t.Parallel()

	zone := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2025, 6, 1, 14, 30, 45, 123456789, zone)
	record, err := BuildRecord(enums.LedgerRecordTypeSale, 42, local, "signer-key", "sig-bytes", nil, sampleFields())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if record.ID != sampleRecord(t).ID {
		t.Fatalf("equivalent instants in different zones hashed differently")
	}
}

func TestCanonicalBytesContainEveryFieldForNullCase(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	record, err := BuildRecord(enums.LedgerRecordTypeIssue, 1, ts, "signer-key", "sig-bytes", nil, Fields{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	raw, err := CanonicalBytes(record)
	if err != nil {
		t.Fatalf("canonical bytes: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	for _, key := range []string{
		"type", "sequence_number", "timestamp", "aggregate_id", "asset_id",
		"quantity", "from", "to", "payment_ref", "currency", "amount",
		"signer", "signature", "previous_anchor_ref",
	} {
		if _, present := decoded[key]; !present {
			t.Fatalf("canonical envelope missing key %q", key)
		}
	}
	if _, present := decoded["record_id"]; present {
		t.Fatalf("record_id must not be part of the hash input")
	}
	if _, present := decoded["anchor_ref"]; present {
		t.Fatalf("anchor_ref must not be part of the hash input")
	}
}

func TestWireBytesIncludeRecordID(t *testing.T) {
	t.Parallel()

	record := sampleRecord(t)
	raw, err := WireBytes(record)
	if err != nil {
		t.Fatalf("wire bytes: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["record_id"] != record.ID {
		t.Fatalf("wire payload record_id mismatch: %v", decoded["record_id"])
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	t.Parallel()

	record := sampleRecord(t)
	if err := Verify(record); err != nil {
		t.Fatalf("pristine record failed verification: %v", err)
	}

	tampered := *record
	amount := decimal.RequireFromString("9.99")
	tampered.Amount = &amount
	err := Verify(&tampered)
	if !pkgerrors.IsCode(err, pkgerrors.CodeIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}
