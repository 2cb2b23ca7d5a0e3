package ledger

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
)

// counterName is the single row backing ledger sequence assignment.
const counterName = "ledger_sequence"

// NextSequence atomically assigns the next sequence number and resolves the
// previous anchor pointer, both inside the caller's transaction.
//
// If the counter trails the maximum committed sequence number (crash between
// counter bump and record write), it is first resynchronized upward, so a
// restart can delay numbering but never reuse a number.
func NextSequence(ctx context.Context, tx *gorm.DB) (int64, *string, error) {
	if tx == nil {
		return 0, nil, errors.New("transaction required")
	}

	if err := ensureCounter(ctx, tx); err != nil {
		return 0, nil, err
	}

	var maxCommitted int64
	err := tx.WithContext(ctx).
		Model(&models.LedgerRecord{}).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&maxCommitted).Error
	if err != nil {
		return 0, nil, err
	}

	if err := tx.WithContext(ctx).
		Model(&models.SequenceCounter{}).
		Where("name = ? AND value < ?", counterName, maxCommitted).
		Update("value", maxCommitted).Error; err != nil {
		return 0, nil, err
	}

	// the increment takes the row lock; concurrent callers serialize here
	if err := tx.WithContext(ctx).
		Model(&models.SequenceCounter{}).
		Where("name = ?", counterName).
		Update("value", gorm.Expr("value + 1")).Error; err != nil {
		return 0, nil, err
	}

	var counter models.SequenceCounter
	if err := tx.WithContext(ctx).
		Where("name = ?", counterName).
		Take(&counter).Error; err != nil {
		return 0, nil, err
	}

	previousAnchorRef, err := LatestAnchorRef(ctx, tx)
	if err != nil {
		return 0, nil, err
	}

	return counter.Value, previousAnchorRef, nil
}

func ensureCounter(ctx context.Context, tx *gorm.DB) error {
	err := tx.WithContext(ctx).
		Where("name = ?", counterName).
		Take(&models.SequenceCounter{}).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	createErr := tx.WithContext(ctx).Create(&models.SequenceCounter{Name: counterName}).Error
	if createErr == nil {
		return nil
	}
	// a concurrent transaction may have inserted it first
	if err := tx.WithContext(ctx).
		Where("name = ?", counterName).
		Take(&models.SequenceCounter{}).Error; err == nil {
		return nil
	}
	return createErr
}

// LatestAnchorRef returns the anchor pointer of the highest-sequence record
// that has one, or nil when nothing has been anchored yet. The backlog
// processor re-resolves this before every retry so the chain link always
// points at the most recently anchored record.
func LatestAnchorRef(ctx context.Context, db *gorm.DB) (*string, error) {
	var record models.LedgerRecord
	err := db.WithContext(ctx).
		Select("anchor_ref").
		Where("anchor_ref IS NOT NULL").
		Order("sequence_number DESC").
		Limit(1).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record.AnchorRef, nil
}
