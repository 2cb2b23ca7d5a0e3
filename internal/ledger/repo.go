package ledger

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
)

// Repository manages persistence for ledger records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.LedgerRecord) error
	FindByID(ctx context.Context, id string) (*models.LedgerRecord, error)
	SetAnchorRef(ctx context.Context, id, anchorRef string) error
	ListBySequenceRange(ctx context.Context, fromSeq, limit int64) ([]models.LedgerRecord, error)
	ListAnchoredAfter(ctx context.Context, afterSeq, limit int64) ([]models.LedgerRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.LedgerRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.LedgerRecord, error) {
	var record models.LedgerRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// SetAnchorRef records the late-arriving anchor pointer. The pointer is
// write-once; a second write for the same record is a no-op.
func (r *repository) SetAnchorRef(ctx context.Context, id, anchorRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerRecord{}).
		Where("id = ? AND anchor_ref IS NULL", id).
		Update("anchor_ref", anchorRef).Error
}

func (r *repository) ListBySequenceRange(ctx context.Context, fromSeq, limit int64) ([]models.LedgerRecord, error) {
	var records []models.LedgerRecord
	err := r.db.WithContext(ctx).
		Where("sequence_number >= ?", fromSeq).
		Order("sequence_number ASC").
		Limit(int(limit)).
		Find(&records).Error
	return records, err
}

// ListAnchoredAfter returns anchored records with sequence numbers above
// afterSeq, used by the warehouse export job.
func (r *repository) ListAnchoredAfter(ctx context.Context, afterSeq, limit int64) ([]models.LedgerRecord, error) {
	var records []models.LedgerRecord
	err := r.db.WithContext(ctx).
		Where("sequence_number > ? AND anchor_ref IS NOT NULL", afterSeq).
		Order("sequence_number ASC").
		Limit(int(limit)).
		Find(&records).Error
	return records, err
}
