package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
)

// Fields carries the cross-reference data for one record. Nil members stay
// null in the canonical envelope; the builder never produces a sparse record.
type Fields struct {
	AggregateID   *uuid.UUID
	AssetID       *uuid.UUID
	Quantity      *int
	FromPrincipal *uuid.UUID
	ToPrincipal   *uuid.UUID
	PaymentRef    *string
	Currency      *enums.Currency
	Amount        *decimal.Decimal
}

// BuildRecord assembles a fully populated record and derives its content
// hash. The record is complete except for AnchorRef, which is set only after
// successful anchoring and is excluded from the hash input.
func BuildRecord(
	recordType enums.LedgerRecordType,
	sequenceNumber int64,
	timestamp time.Time,
	signer string,
	signature string,
	previousAnchorRef *string,
	fields Fields,
) (*models.LedgerRecord, error) {
	if !recordType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid record type")
	}
	if sequenceNumber < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sequence number must be positive")
	}
	if signer == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signer required")
	}

	record := &models.LedgerRecord{
		Type:              recordType,
		SequenceNumber:    sequenceNumber,
		Timestamp:         timestamp.UTC(),
		AggregateID:       fields.AggregateID,
		AssetID:           fields.AssetID,
		Quantity:          fields.Quantity,
		FromPrincipal:     fields.FromPrincipal,
		ToPrincipal:       fields.ToPrincipal,
		PaymentRef:        fields.PaymentRef,
		Currency:          fields.Currency,
		Amount:            fields.Amount,
		Signer:            signer,
		Signature:         signature,
		PreviousAnchorRef: previousAnchorRef,
	}

	id, err := Hash(record)
	if err != nil {
		return nil, err
	}
	record.ID = id
	return record, nil
}

// Verify recomputes the content hash of a stored record and reports whether
// it still matches the stored id. A mismatch means the row was tampered with
// after commit and is surfaced for manual audit, never auto-corrected.
func Verify(record *models.LedgerRecord) error {
	recomputed, err := Hash(record)
	if err != nil {
		return err
	}
	if recomputed != record.ID {
		return pkgerrors.New(pkgerrors.CodeIntegrity, "stored record hash mismatch").
			WithDetails(map[string]any{
				"record_id":  record.ID,
				"recomputed": recomputed,
			})
	}
	return nil
}
