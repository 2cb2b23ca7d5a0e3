package listings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
)

// Repository manages persistence for listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	DecrementRemaining(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementRemaining(ctx context.Context, id uuid.UUID, quantity int) error
	MarkSoldOutIfExhausted(ctx context.Context, id uuid.UUID) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a listing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}

// DecrementRemaining reduces the advertised free count. The guard clause
// keeps the counter non-negative and rejects decrements on non-active
// listings; the part-level claim remains the authoritative oversell guard.
func (r *repository) DecrementRemaining(ctx context.Context, id uuid.UUID, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ? AND remaining_qty >= ?", id, enums.ListingStatusActive, quantity).
		Update("remaining_qty", gorm.Expr("remaining_qty - ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return pkgerrors.New(pkgerrors.CodeInsufficientParts,
			fmt.Sprintf("listing %s cannot satisfy quantity %d", id, quantity))
	}
	return nil
}

// IncrementRemaining returns released quantity to the advertised free count
// and reactivates a sold-out listing.
func (r *repository) IncrementRemaining(ctx context.Context, id uuid.UUID, quantity int) error {
	err := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", id).
		Update("remaining_qty", gorm.Expr("remaining_qty + ?", quantity)).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, enums.ListingStatusSoldOut).
		Update("status", enums.ListingStatusActive).Error
}

// MarkSoldOutIfExhausted flips an active listing to sold_out once nothing
// remains to reserve and no holds are outstanding.
func (r *repository) MarkSoldOutIfExhausted(ctx context.Context, id uuid.UUID) error {
	var outstanding int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("listing_id = ?", id).
		Count(&outstanding).Error
	if err != nil {
		return err
	}
	if outstanding > 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ? AND remaining_qty = 0", id, enums.ListingStatusActive).
		Update("status", enums.ListingStatusSoldOut).Error
}

// MarkCancelled transitions an active listing to its terminal cancelled
// state.
func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, enums.ListingStatusActive).
		Update("status", enums.ListingStatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("listing %s is not active", id))
	}
	return nil
}
