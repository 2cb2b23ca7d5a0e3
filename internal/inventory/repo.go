package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
)

// Repository manages persistence for parts.
//
// All hold mutation goes through ClaimOne/ReleaseHold; no caller ever
// performs a read-modify-write on a part outside those primitives.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, parts []models.Part) error
	LockFree(ctx context.Context, assetID, owner, lockRef uuid.UUID, quantity int) ([]string, error)
	ReleaseLock(ctx context.Context, lockRef uuid.UUID) (int64, error)
	ClaimOne(ctx context.Context, assetID, owner, lockRef, holdRef uuid.UUID) (string, error)
	ReleaseHold(ctx context.Context, holdRef uuid.UUID) (int64, error)
	ReleaseParts(ctx context.Context, partIDs []string) error
	TransferHeld(ctx context.Context, holdRef, newOwner uuid.UUID) (int64, error)
	TransferParts(ctx context.Context, partIDs []string, newOwner uuid.UUID) (int64, error)
	CountFree(ctx context.Context, lockRef uuid.UUID) (int64, error)
	ListByHoldRef(ctx context.Context, holdRef uuid.UUID) ([]models.Part, error)
}

// ErrNoFreeParts signals that no claimable part matched the claim filter.
var ErrNoFreeParts = pkgerrors.New(pkgerrors.CodeInsufficientParts, "no free parts available")

// claimAttempts bounds CAS retries within a single ClaimOne call. Losing a
// race means another reserver took the candidate; a fresh candidate is
// selected each round.
const claimAttempts = 8

type repository struct {
	db *gorm.DB
}

// NewRepository returns a part repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBatch(ctx context.Context, parts []models.Part) error {
	if len(parts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&parts).Error
}

// LockFree attaches exactly quantity unattached parts to lockRef, one CAS
// claim at a time, and returns their ids. On shortfall every part locked so
// far is released and ErrNoFreeParts is returned.
func (r *repository) LockFree(ctx context.Context, assetID, owner, lockRef uuid.UUID, quantity int) ([]string, error) {
	locked := make([]string, 0, quantity)
	for len(locked) < quantity {
		id, err := r.lockOne(ctx, assetID, owner, lockRef)
		if err != nil {
			if unlockErr := r.unlockParts(ctx, locked); unlockErr != nil {
				return nil, unlockErr
			}
			return nil, err
		}
		locked = append(locked, id)
	}
	return locked, nil
}

func (r *repository) lockOne(ctx context.Context, assetID, owner, lockRef uuid.UUID) (string, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		var candidate models.Part
		err := r.db.WithContext(ctx).
			Select("id").
			Where("asset_id = ? AND owner = ? AND lock_ref IS NULL AND hold_ref IS NULL", assetID, owner).
			Limit(1).
			Take(&candidate).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", ErrNoFreeParts
			}
			return "", err
		}

		result := r.db.WithContext(ctx).
			Model(&models.Part{}).
			Where("id = ? AND lock_ref IS NULL AND hold_ref IS NULL", candidate.ID).
			Update("lock_ref", lockRef)
		if result.Error != nil {
			return "", result.Error
		}
		if result.RowsAffected == 1 {
			return candidate.ID, nil
		}
	}
	return "", ErrNoFreeParts
}

func (r *repository) unlockParts(ctx context.Context, partIDs []string) error {
	if len(partIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Part{}).
		Where("id IN ?", partIDs).
		Update("lock_ref", nil).Error
}

// ReleaseLock detaches every unheld part from lockRef, used when a listing
// is cancelled. Held parts stay attached until their reservation resolves.
func (r *repository) ReleaseLock(ctx context.Context, lockRef uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Part{}).
		Where("lock_ref = ? AND hold_ref IS NULL", lockRef).
		Update("lock_ref", nil)
	return result.RowsAffected, result.Error
}

// ClaimOne atomically claims a single free part for holdRef and returns its
// id. The claim is a compare-and-set: the UPDATE only succeeds when hold_ref
// is still null, so two concurrent reservers can never both win the same
// part. Returns ErrNoFreeParts when no candidate remains.
func (r *repository) ClaimOne(ctx context.Context, assetID, owner, lockRef, holdRef uuid.UUID) (string, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		var candidate models.Part
		err := r.db.WithContext(ctx).
			Select("id").
			Where("asset_id = ? AND owner = ? AND lock_ref = ? AND hold_ref IS NULL", assetID, owner, lockRef).
			Limit(1).
			Take(&candidate).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", ErrNoFreeParts
			}
			return "", err
		}

		result := r.db.WithContext(ctx).
			Model(&models.Part{}).
			Where("id = ? AND hold_ref IS NULL", candidate.ID).
			Update("hold_ref", holdRef)
		if result.Error != nil {
			return "", result.Error
		}
		if result.RowsAffected == 1 {
			return candidate.ID, nil
		}
		// lost the race for this candidate; pick another
	}
	return "", ErrNoFreeParts
}

// ReleaseHold clears hold_ref on every part held by holdRef and reports how
// many were released. Safe to call repeatedly.
func (r *repository) ReleaseHold(ctx context.Context, holdRef uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Part{}).
		Where("hold_ref = ?", holdRef).
		Update("hold_ref", nil)
	return result.RowsAffected, result.Error
}

// ReleaseParts clears hold_ref on the given part ids, used to roll back a
// partially satisfied claim attempt.
func (r *repository) ReleaseParts(ctx context.Context, partIDs []string) error {
	if len(partIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Part{}).
		Where("id IN ?", partIDs).
		Update("hold_ref", nil).Error
}

// TransferHeld moves ownership of every part held by holdRef to newOwner and
// clears both the lock and the hold in the same statement.
func (r *repository) TransferHeld(ctx context.Context, holdRef, newOwner uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Part{}).
		Where("hold_ref = ?", holdRef).
		Updates(map[string]any{
			"owner":    newOwner,
			"lock_ref": nil,
			"hold_ref": nil,
		})
	return result.RowsAffected, result.Error
}

// TransferParts moves ownership of the given parts and detaches them, used
// for gift and payment-in-kind transfers that bypass the reservation flow.
func (r *repository) TransferParts(ctx context.Context, partIDs []string, newOwner uuid.UUID) (int64, error) {
	if len(partIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Part{}).
		Where("id IN ?", partIDs).
		Updates(map[string]any{
			"owner":    newOwner,
			"lock_ref": nil,
			"hold_ref": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) CountFree(ctx context.Context, lockRef uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Part{}).
		Where("lock_ref = ? AND hold_ref IS NULL", lockRef).
		Count(&count).Error
	return count, err
}

func (r *repository) ListByHoldRef(ctx context.Context, holdRef uuid.UUID) ([]models.Part, error) {
	var parts []models.Part
	err := r.db.WithContext(ctx).
		Where("hold_ref = ?", holdRef).
		Order("sequence_number ASC").
		Find(&parts).Error
	return parts, err
}
