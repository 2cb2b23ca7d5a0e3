package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/internal/anchor"
	"github.com/fraxionlabs/fraxion-backend/internal/inventory"
	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/internal/listings"
	"github.com/fraxionlabs/fraxion-backend/internal/payments"
	"github.com/fraxionlabs/fraxion-backend/internal/reservation"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// degradedChecker gates admission while the anchor pipeline is failing.
type degradedChecker interface {
	IsDegraded(ctx context.Context) (bool, error)
	Status(ctx context.Context) (anchor.FlagStatus, error)
}

// paymentVerifier confirms an off-band payment before any transfer.
type paymentVerifier interface {
	Verify(ctx context.Context, input payments.VerifyInput) error
}

// anchorPublisher submits committed records to the external anchor.
type anchorPublisher interface {
	Publish(ctx context.Context, record *models.LedgerRecord) error
}

// backlogCounter reports deferred anchor submissions for the status surface.
type backlogCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

// ServiceParams wires the checkout Service.
type ServiceParams struct {
	DB           *gorm.DB
	Engine       *reservation.Engine
	Reservations reservation.Repository
	Listings     listings.Repository
	Inventory    inventory.Repository
	Ledger       ledger.Service
	Verifier     paymentVerifier
	Flags        degradedChecker
	Backlog      backlogCounter
	Anchor       anchorPublisher // optional in tests
	Logger       *logger.Logger
}

// Service orchestrates the purchase lifecycle: reserve, finalize against a
// verified payment, cancel, and the direct gift/consume transfers. Every
// state change lands a ledger record in the same transaction.
type Service struct {
	db           *gorm.DB
	engine       *reservation.Engine
	reservations reservation.Repository
	listings     listings.Repository
	inventory    inventory.Repository
	ledger       ledger.Service
	verifier     paymentVerifier
	flags        degradedChecker
	backlog      backlogCounter
	anchor       anchorPublisher
	logg         *logger.Logger
}

// NewService validates dependencies and returns a Service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("database is required")
	}
	if params.Engine == nil {
		return nil, errors.New("reservation engine is required")
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
	if params.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if params.Verifier == nil {
		return nil, errors.New("payment verifier is required")
	}
	if params.Flags == nil {
		return nil, errors.New("flag service is required")
	}
	if params.Backlog == nil {
		return nil, errors.New("backlog counter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:           params.DB,
		engine:       params.Engine,
		reservations: params.Reservations,
		listings:     params.Listings,
		inventory:    params.Inventory,
		ledger:       params.Ledger,
		verifier:     params.Verifier,
		flags:        params.Flags,
		backlog:      params.Backlog,
		anchor:       params.Anchor,
		logg:         params.Logger,
	}, nil
}

func (s *Service) gate(ctx context.Context) error {
	degraded, err := s.flags.IsDegraded(ctx)
	if err != nil {
		return err
	}
	if degraded {
		return pkgerrors.New(pkgerrors.CodeDegraded,
			"anchoring is degraded; new operations are suspended until the backlog drains")
	}
	return nil
}

// Reserve places a hold and records it. The hold itself is placed by the
// engine; the reserve record is appended afterwards and a failure there
// compensates by releasing the hold, so record and hold never disagree.
func (s *Service) Reserve(ctx context.Context, input reservation.ReserveInput, signer, signature string) (*models.Reservation, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	if signer == "" || signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signer and signature are required")
	}

	held, err := s.engine.Reserve(ctx, input)
	if err != nil {
		return nil, err
	}

	listing, err := s.listings.FindByID(ctx, held.ListingID)
	if err != nil {
		return nil, err
	}

	var record *models.LedgerRecord
	err = s.db.Transaction(func(tx *gorm.DB) error {
		quantity := held.Quantity
		var err error
		record, err = s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:      enums.LedgerRecordTypeReserve,
			Signer:    signer,
			Signature: signature,
			Fields: ledger.Fields{
				AggregateID:   &held.ListingID,
				AssetID:       &listing.AssetID,
				Quantity:      &quantity,
				FromPrincipal: &listing.Owner,
				ToPrincipal:   &held.Holder,
				Currency:      &held.Currency,
				Amount:        &held.Amount,
			},
		})
		return err
	})
	if err != nil {
		if releaseErr := s.engine.Release(ctx, held.ID); releaseErr != nil {
			s.logg.Error(ctx, "compensating release failed", releaseErr)
		}
		return nil, err
	}

	s.publishAnchor(ctx, record)
	return held, nil
}

// FinalizeInput completes a reservation against an off-band payment.
type FinalizeInput struct {
	ReservationID uuid.UUID
	PaymentRef    string
	Signer        string
	Signature     string
}

// Finalize verifies the payment, then atomically retires the reservation,
// appends the sale record, and transfers the held parts to the buyer. A
// reservation that expired while the payment was being verified fails with
// a conflict; the payment can be refunded off-band.
func (s *Service) Finalize(ctx context.Context, input FinalizeInput) (*models.LedgerRecord, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	if input.Signer == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signer and signature are required")
	}

	held, err := s.reservations.FindByID(ctx, input.ReservationID)
	if err != nil {
		return nil, err
	}
	if held == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound,
			fmt.Sprintf("reservation %s not found or expired", input.ReservationID))
	}

	if err := s.verifier.Verify(ctx, payments.VerifyInput{
		PaymentRef:     input.PaymentRef,
		Address:        held.PaymentAddress,
		Sender:         held.BuyerAddress,
		Currency:       held.Currency,
		ExpectedAmount: held.Amount,
	}); err != nil {
		return nil, err
	}

	listing, err := s.listings.FindByID(ctx, held.ListingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("listing %s not found", held.ListingID))
	}

	var record *models.LedgerRecord
	err = s.db.Transaction(func(tx *gorm.DB) error {
		won, err := s.reservations.WithTx(tx).Delete(ctx, held.ID)
		if err != nil {
			return err
		}
		if won == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("reservation %s expired during payment verification", held.ID))
		}

		transferred, err := s.inventory.WithTx(tx).TransferHeld(ctx, held.ID, held.Holder)
		if err != nil {
			return err
		}
		if transferred != int64(held.Quantity) {
			return pkgerrors.New(pkgerrors.CodeIntegrity,
				fmt.Sprintf("reservation %s held %d parts, expected %d", held.ID, transferred, held.Quantity))
		}

		quantity := held.Quantity
		record, err = s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:      enums.LedgerRecordTypeSale,
			Signer:    input.Signer,
			Signature: input.Signature,
			Fields: ledger.Fields{
				AggregateID:   &held.ListingID,
				AssetID:       &listing.AssetID,
				Quantity:      &quantity,
				FromPrincipal: &listing.Owner,
				ToPrincipal:   &held.Holder,
				PaymentRef:    &input.PaymentRef,
				Currency:      &held.Currency,
				Amount:        &held.Amount,
			},
		})
		if err != nil {
			return err
		}
		return s.listings.WithTx(tx).MarkSoldOutIfExhausted(ctx, held.ListingID)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithReservationID(ctx, held.ID.String())
	s.logg.Info(s.logg.WithRecordID(logCtx, record.ID), "sale finalized")
	s.publishAnchor(ctx, record)
	return record, nil
}

// Cancel releases a reservation. Allowed even while degraded: releasing
// inventory needs no anchoring.
func (s *Service) Cancel(ctx context.Context, reservationID uuid.UUID) error {
	return s.engine.Release(ctx, reservationID)
}

// GiftInput transfers parts directly between principals without payment.
type GiftInput struct {
	AssetID   uuid.UUID
	From      uuid.UUID
	To        uuid.UUID
	Quantity  int
	Signer    string
	Signature string
}

// Gift moves free parts from one principal to another and records the
// transfer.
func (s *Service) Gift(ctx context.Context, input GiftInput) (*models.LedgerRecord, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.From == uuid.Nil || input.To == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from and to principals are required")
	}
	if input.From == input.To {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot gift parts to yourself")
	}
	if input.Signer == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signer and signature are required")
	}

	giftRef := uuid.New()
	var record *models.LedgerRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv := s.inventory.WithTx(tx)
		partIDs, err := inv.LockFree(ctx, input.AssetID, input.From, giftRef, input.Quantity)
		if err != nil {
			return err
		}
		if _, err := inv.TransferParts(ctx, partIDs, input.To); err != nil {
			return err
		}
		quantity := input.Quantity
		record, err = s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:      enums.LedgerRecordTypeGift,
			Signer:    input.Signer,
			Signature: input.Signature,
			Fields: ledger.Fields{
				AggregateID:   &giftRef,
				AssetID:       &input.AssetID,
				Quantity:      &quantity,
				FromPrincipal: &input.From,
				ToPrincipal:   &input.To,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishAnchor(ctx, record)
	return record, nil
}

// ConsumeInput redeems an owner's parts as payment in kind for a service.
type ConsumeInput struct {
	AssetID   uuid.UUID
	Owner     uuid.UUID
	Provider  uuid.UUID
	Quantity  int
	Signer    string
	Signature string
}

// Consume transfers free parts to the service provider and records the
// redemption. Parts stay in circulation under the provider's ownership.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (*models.LedgerRecord, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.Owner == uuid.Nil || input.Provider == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner and provider are required")
	}
	if input.Owner == input.Provider {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot redeem parts with yourself")
	}
	if input.Signer == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signer and signature are required")
	}

	consumeRef := uuid.New()
	var record *models.LedgerRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv := s.inventory.WithTx(tx)
		partIDs, err := inv.LockFree(ctx, input.AssetID, input.Owner, consumeRef, input.Quantity)
		if err != nil {
			return err
		}
		if _, err := inv.TransferParts(ctx, partIDs, input.Provider); err != nil {
			return err
		}
		quantity := input.Quantity
		record, err = s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:      enums.LedgerRecordTypeConsume,
			Signer:    input.Signer,
			Signature: input.Signature,
			Fields: ledger.Fields{
				AggregateID:   &consumeRef,
				AssetID:       &input.AssetID,
				Quantity:      &quantity,
				FromPrincipal: &input.Owner,
				ToPrincipal:   &input.Provider,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishAnchor(ctx, record)
	return record, nil
}

// SystemStatus is the operator-facing admission snapshot.
type SystemStatus struct {
	Degraded       bool    `json:"degraded"`
	Reason         *string `json:"reason,omitempty"`
	PendingAnchors int64   `json:"pending_anchors"`
}

// Status reports the degraded toggle and the anchor backlog depth.
func (s *Service) Status(ctx context.Context) (*SystemStatus, error) {
	flag, err := s.flags.Status(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.backlog.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	return &SystemStatus{
		Degraded:       flag.Enabled,
		Reason:         flag.Reason,
		PendingAnchors: pending,
	}, nil
}

func (s *Service) publishAnchor(ctx context.Context, record *models.LedgerRecord) {
	if s.anchor == nil || record == nil {
		return
	}
	if err := s.anchor.Publish(ctx, record); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		s.logg.Error(ctx, "anchor publish failed", err)
	}
}
