package listings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/internal/inventory"
	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
	"github.com/fraxionlabs/fraxion-backend/pkg/types"
)

// anchorPublisher is the slice of the anchor pipeline this service needs.
type anchorPublisher interface {
	Publish(ctx context.Context, record *models.LedgerRecord) error
}

// ServiceParams wires a listings Service.
type ServiceParams struct {
	DB        *gorm.DB
	Listings  Repository
	Inventory inventory.Repository
	Ledger    ledger.Service
	Anchor    anchorPublisher // optional in tests
	Logger    *logger.Logger
}

// Service creates and cancels listings. Creating a listing attaches the
// owner's free parts to it and writes a ledger record; both commit together.
type Service struct {
	db        *gorm.DB
	listings  Repository
	inventory inventory.Repository
	ledger    ledger.Service
	anchor    anchorPublisher
	logg      *logger.Logger
}

// NewService validates dependencies and returns a Service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("database is required")
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
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:        params.DB,
		listings:  params.Listings,
		inventory: params.Inventory,
		ledger:    params.Ledger,
		anchor:    params.Anchor,
		logg:      params.Logger,
	}, nil
}

// CreateInput describes a new listing.
type CreateInput struct {
	Kind            enums.AggregateKind
	AssetID         uuid.UUID
	Owner           uuid.UUID
	Quantity        int
	UnitPriceCents  int
	AllOrNothing    bool
	PayoutAddresses types.PayoutAddresses
	Signer          string
	Signature       string
}

func (in CreateInput) validate() error {
	if in.AssetID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "asset id is required")
	}
	if in.Owner == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}
	if in.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if in.Signer == "" || in.Signature == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "signer and signature are required")
	}
	switch in.Kind {
	case enums.AggregateKindListing:
		if in.UnitPriceCents <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price must be positive")
		}
		if len(in.PayoutAddresses) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "at least one payout address is required")
		}
		for currency := range in.PayoutAddresses {
			if !currency.IsValid() {
				return pkgerrors.New(pkgerrors.CodeUnsupportedCurrency,
					fmt.Sprintf("payout currency %q is not supported", currency))
			}
		}
	case enums.AggregateKindGift:
		// gifts carry no price or payout surface
	default:
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("kind %q cannot be listed", in.Kind))
	}
	return nil
}

// Create attaches quantity free parts to a new listing and records it on
// the ledger. The attach, the listing row, and the ledger record commit in
// one transaction; the anchor submission happens after commit and never
// rolls the listing back.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Listing, *models.LedgerRecord, error) {
	if err := input.validate(); err != nil {
		return nil, nil, err
	}

	listing := &models.Listing{
		ID:              uuid.New(),
		Kind:            input.Kind,
		AssetID:         input.AssetID,
		Owner:           input.Owner,
		UnitPriceCents:  input.UnitPriceCents,
		RemainingQty:    input.Quantity,
		AllOrNothing:    input.AllOrNothing,
		PayoutAddresses: input.PayoutAddresses,
		Status:          enums.ListingStatusActive,
	}

	var record *models.LedgerRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.listings.WithTx(tx).Create(ctx, listing); err != nil {
			return err
		}
		if _, err := s.inventory.WithTx(tx).LockFree(ctx, input.AssetID, input.Owner, listing.ID, input.Quantity); err != nil {
			return err
		}
		quantity := input.Quantity
		var err error
		record, err = s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:      enums.LedgerRecordTypeList,
			Signer:    input.Signer,
			Signature: input.Signature,
			Fields: ledger.Fields{
				AggregateID:   &listing.ID,
				AssetID:       &input.AssetID,
				Quantity:      &quantity,
				FromPrincipal: &input.Owner,
			},
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishAnchor(ctx, record)
	return listing, record, nil
}

// Cancel transitions an active listing to cancelled, detaches its unheld
// parts, and records the cancellation. Outstanding reservations keep their
// holds until they resolve.
func (s *Service) Cancel(ctx context.Context, listingID, actor uuid.UUID, signer, signature string) (*models.LedgerRecord, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("listing %s not found", listingID))
	}
	if listing.Owner != actor {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can cancel a listing")
	}

	var record *models.LedgerRecord
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.listings.WithTx(tx).MarkCancelled(ctx, listingID); err != nil {
			return err
		}
		released, err := s.inventory.WithTx(tx).ReleaseLock(ctx, listingID)
		if err != nil {
			return err
		}
		releasedQty := int(released)
		record, err = s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:      enums.LedgerRecordTypeCancel,
			Signer:    signer,
			Signature: signature,
			Fields: ledger.Fields{
				AggregateID: &listingID,
				AssetID:     &listing.AssetID,
				Quantity:    &releasedQty,
				ToPrincipal: &listing.Owner,
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

// publishAnchor submits the committed record; a deferred submission is not
// an operation failure, the backlog owns it from here.
func (s *Service) publishAnchor(ctx context.Context, record *models.LedgerRecord) {
	if s.anchor == nil || record == nil {
		return
	}
	if err := s.anchor.Publish(ctx, record); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		s.logg.Error(ctx, "anchor publish failed", err)
	}
}
