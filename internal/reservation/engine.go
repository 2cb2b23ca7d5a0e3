package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/internal/inventory"
	"github.com/fraxionlabs/fraxion-backend/internal/listings"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// rateConverter quotes USD cent amounts in the buyer's payment currency.
type rateConverter interface {
	ConvertCents(ctx context.Context, cents int64, currency enums.Currency) (decimal.Decimal, error)
}

// EngineParams wires a reservation Engine.
type EngineParams struct {
	DB           *gorm.DB
	Reservations Repository
	Listings     listings.Repository
	Inventory    inventory.Repository
	Rates        rateConverter
	Logger       *logger.Logger
	HoldWindow   time.Duration
}

// Engine places and releases holds. A reservation is exactly the set of
// parts whose hold_ref carries its id; the engine never trusts the
// advertised remaining count for admission, only the part-level claim.
type Engine struct {
	db           *gorm.DB
	reservations Repository
	listings     listings.Repository
	inventory    inventory.Repository
	rates        rateConverter
	logg         *logger.Logger
	holdWindow   time.Duration
}

// NewEngine validates dependencies and returns an Engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, errors.New("database is required")
	}
	if params.Reservations == nil {
		return nil, errors.New("reservation repository is required")
	}
	if params.Listings == nil {
		return nil, errors.New("listing repository is required")
	}
	if params.Inventory == nil {
		return nil, errors.New("inventory repository is required")
	}
	if params.Rates == nil {
		return nil, errors.New("rate converter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	holdWindow := params.HoldWindow
	if holdWindow <= 0 {
		holdWindow = 15 * time.Minute
	}
	return &Engine{
		db:           params.DB,
		reservations: params.Reservations,
		listings:     params.Listings,
		inventory:    params.Inventory,
		rates:        params.Rates,
		logg:         params.Logger,
		holdWindow:   holdWindow,
	}, nil
}

// HoldWindow reports how long a reservation survives before the sweep
// releases it.
func (e *Engine) HoldWindow() time.Duration {
	return e.holdWindow
}

// ReserveInput describes a buyer's claim on listed parts.
type ReserveInput struct {
	ListingID    uuid.UUID
	Holder       uuid.UUID
	Quantity     int
	Currency     enums.Currency
	BuyerAddress string
}

// Reserve claims exactly Quantity parts for the holder. Claims are taken
// one part at a time via compare-and-set; on shortfall every claimed part
// is released, so a failed reserve leaves no residue. Two buyers racing for
// the last parts can both fail, neither can oversell.
func (e *Engine) Reserve(ctx context.Context, input ReserveInput) (*models.Reservation, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.Holder == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "holder is required")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedCurrency,
			fmt.Sprintf("currency %q is not supported", input.Currency))
	}

	listing, err := e.listings.FindByID(ctx, input.ListingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("listing %s not found", input.ListingID))
	}
	if listing.Status != enums.ListingStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("listing %s is %s", listing.ID, listing.Status))
	}
	if listing.Kind != enums.AggregateKindListing {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only sale listings can be reserved")
	}
	paymentAddress, ok := listing.PayoutAddresses.AddressFor(input.Currency)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedCurrency,
			fmt.Sprintf("listing %s does not accept %s", listing.ID, input.Currency))
	}
	if listing.AllOrNothing && input.Quantity != listing.RemainingQty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("listing %s is all-or-nothing: quantity must be %d", listing.ID, listing.RemainingQty))
	}

	totalCents := int64(listing.UnitPriceCents) * int64(input.Quantity)
	amount, err := e.rates.ConvertCents(ctx, totalCents, input.Currency)
	if err != nil {
		return nil, err
	}

	reservationID := uuid.New()
	claimed := make([]string, 0, input.Quantity)
	for len(claimed) < input.Quantity {
		partID, err := e.inventory.ClaimOne(ctx, listing.AssetID, listing.Owner, listing.ID, reservationID)
		if err != nil {
			if releaseErr := e.inventory.ReleaseParts(ctx, claimed); releaseErr != nil {
				return nil, multierr.Append(err, releaseErr)
			}
			return nil, err
		}
		claimed = append(claimed, partID)
	}

	reservation := &models.Reservation{
		ID:             reservationID,
		ListingID:      listing.ID,
		Holder:         input.Holder,
		Quantity:       input.Quantity,
		UnitPriceCents: listing.UnitPriceCents,
		Currency:       input.Currency,
		Amount:         amount,
		PaymentAddress: paymentAddress,
		BuyerAddress:   input.BuyerAddress,
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.listings.WithTx(tx).DecrementRemaining(ctx, listing.ID, input.Quantity); err != nil {
			return err
		}
		return e.reservations.WithTx(tx).Create(ctx, reservation)
	})
	if err != nil {
		if _, releaseErr := e.inventory.ReleaseHold(ctx, reservationID); releaseErr != nil {
			return nil, multierr.Append(err, releaseErr)
		}
		return nil, err
	}

	logCtx := e.logg.WithReservationID(ctx, reservationID.String())
	e.logg.Info(e.logg.WithField(logCtx, "quantity", input.Quantity), "reservation placed")
	return reservation, nil
}

// Release resolves a reservation by returning its parts to the listing.
// Safe to call for reservations that no longer exist; finalize and the
// expiry sweep race on the row delete and only the winner touches parts.
func (e *Engine) Release(ctx context.Context, reservationID uuid.UUID) error {
	reservation, err := e.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if reservation == nil {
		return nil
	}

	return e.db.Transaction(func(tx *gorm.DB) error {
		won, err := e.reservations.WithTx(tx).Delete(ctx, reservationID)
		if err != nil {
			return err
		}
		if won == 0 {
			return nil
		}
		released, err := e.inventory.WithTx(tx).ReleaseHold(ctx, reservationID)
		if err != nil {
			return err
		}
		return e.listings.WithTx(tx).IncrementRemaining(ctx, reservation.ListingID, int(released))
	})
}

// SweepExpired releases every reservation older than the hold window.
// Idempotent: a sweep racing a finalize leaves whichever resolution won.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-e.holdWindow)
	expired, err := e.reservations.ListExpired(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}

	var errs error
	released := 0
	for _, reservation := range expired {
		if err := e.Release(ctx, reservation.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reservation %s: %w", reservation.ID, err))
			continue
		}
		released++
		e.logg.Info(e.logg.WithReservationID(ctx, reservation.ID.String()), "expired reservation released")
	}
	return released, errs
}
