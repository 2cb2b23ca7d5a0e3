package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
)

// Service appends content-addressed records to the ledger.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.LedgerRecord, error)
	VerifyStored(ctx context.Context, recordID string) error
}

// AppendInput captures one state-changing action to be recorded.
type AppendInput struct {
	Type      enums.LedgerRecordType
	Signer    string
	Signature string
	Fields    Fields
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// Append assigns the next sequence number, builds and hashes the record, and
// persists it inside tx. Sequence assignment and the insert commit together,
// so the monotonic, gapless property holds across concurrent appenders.
func (s *service) Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.LedgerRecord, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}

	sequenceNumber, previousAnchorRef, err := NextSequence(ctx, tx)
	if err != nil {
		return nil, err
	}

	record, err := BuildRecord(
		input.Type,
		sequenceNumber,
		s.now(),
		input.Signer,
		input.Signature,
		previousAnchorRef,
		input.Fields,
	)
	if err != nil {
		return nil, err
	}

	if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// VerifyStored reloads a committed record and recomputes its content hash.
func (s *service) VerifyStored(ctx context.Context, recordID string) error {
	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("ledger record %s not found", recordID)
	}
	return Verify(record)
}
