package anchor

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
)

const maxBacklogErrorLen = 1024

// BacklogRepository manages the durable retry queue for failed anchor
// submissions. Items transition pending→success and are never deleted.
type BacklogRepository interface {
	WithTx(tx *gorm.DB) BacklogRepository
	Enqueue(ctx context.Context, record *models.LedgerRecord, cause error) error
	FetchPending(ctx context.Context, limit int) ([]models.AnchorBacklogItem, error)
	MarkSuccess(ctx context.Context, recordID string) error
	MarkFailure(ctx context.Context, recordID string, cause error) error
	CountPending(ctx context.Context) (int64, error)
	CountPendingSince(ctx context.Context, since time.Time) (int64, error)
}

type backlogRepository struct {
	db *gorm.DB
}

// NewBacklogRepository returns a backlog repository bound to the database.
func NewBacklogRepository(db *gorm.DB) BacklogRepository {
	return &backlogRepository{db: db}
}

func (r *backlogRepository) WithTx(tx *gorm.DB) BacklogRepository {
	if tx == nil {
		return r
	}
	return &backlogRepository{db: tx}
}

// Enqueue upserts a backlog item keyed by record id. Repeated failures for
// the same record update the stored error and bump the retry count instead
// of duplicating the row.
func (r *backlogRepository) Enqueue(ctx context.Context, record *models.LedgerRecord, cause error) error {
	if record == nil {
		return errors.New("record required")
	}
	item := models.AnchorBacklogItem{
		RecordID:          record.ID,
		SequenceNumber:    record.SequenceNumber,
		PreviousAnchorRef: record.PreviousAnchorRef,
		LastError:         truncatedError(cause),
		Status:            enums.BacklogStatusPending,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "record_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_error":  item.LastError,
				"retry_count": gorm.Expr("anchor_backlog_items.retry_count + 1"),
				"status":      enums.BacklogStatusPending,
			}),
		}).
		Create(&item).Error
}

func (r *backlogRepository) FetchPending(ctx context.Context, limit int) ([]models.AnchorBacklogItem, error) {
	if limit <= 0 {
		limit = 25
	}
	var items []models.AnchorBacklogItem
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.BacklogStatusPending).
		Order("sequence_number ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *backlogRepository) MarkSuccess(ctx context.Context, recordID string) error {
	return r.db.WithContext(ctx).
		Model(&models.AnchorBacklogItem{}).
		Where("record_id = ?", recordID).
		Update("status", enums.BacklogStatusSuccess).Error
}

func (r *backlogRepository) MarkFailure(ctx context.Context, recordID string, cause error) error {
	return r.db.WithContext(ctx).
		Model(&models.AnchorBacklogItem{}).
		Where("record_id = ?", recordID).
		Updates(map[string]any{
			"last_error":  truncatedError(cause),
			"retry_count": gorm.Expr("retry_count + 1"),
		}).Error
}

func (r *backlogRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AnchorBacklogItem{}).
		Where("status = ?", enums.BacklogStatusPending).
		Count(&count).Error
	return count, err
}

// CountPendingSince counts pending items created within the trailing window
// used by the admission threshold.
func (r *backlogRepository) CountPendingSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AnchorBacklogItem{}).
		Where("status = ? AND created_at >= ?", enums.BacklogStatusPending, since).
		Count(&count).Error
	return count, err
}

func truncatedError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxBacklogErrorLen {
		msg = msg[:maxBacklogErrorLen]
	}
	return &msg
}
