package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// anchorPublisher is the slice of the anchor pipeline this service needs.
type anchorPublisher interface {
	Publish(ctx context.Context, record *models.LedgerRecord) error
}

// ServiceParams wires an inventory Service.
type ServiceParams struct {
	DB     *gorm.DB
	Ledger ledger.Service
	Anchor anchorPublisher // optional in tests
	Logger *logger.Logger
}

// Service issues new assets. Minting the part pool and writing the issue
// record commit in one transaction.
type Service struct {
	db     *gorm.DB
	ledger ledger.Service
	anchor anchorPublisher
	logg   *logger.Logger
}

// NewService validates dependencies and returns a Service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("database is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:     params.DB,
		ledger: params.Ledger,
		anchor: params.Anchor,
		logg:   params.Logger,
	}, nil
}

// IssueAssetInput describes a new asset, its part pool, and the issuance
// attestation.
type IssueAssetInput struct {
	Title      string
	CreatorID  uuid.UUID
	TotalParts int
	Signer     string
	Signature  string
}

// Issue mints the asset and its full part pool, all owned by the creator,
// and records the issuance on the ledger. The anchor submission happens
// after commit and never rolls the issuance back.
func (s *Service) Issue(ctx context.Context, input IssueAssetInput) (*models.Asset, *models.LedgerRecord, error) {
	if input.Signer == "" || input.Signature == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "signer and signature are required")
	}

	var asset *models.Asset
	var record *models.LedgerRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		asset, err = IssueParts(ctx, tx, IssueInput{
			Title:      input.Title,
			CreatorID:  input.CreatorID,
			TotalParts: input.TotalParts,
		})
		if err != nil {
			return err
		}
		quantity := input.TotalParts
		record, err = s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:      enums.LedgerRecordTypeIssue,
			Signer:    input.Signer,
			Signature: input.Signature,
			Fields: ledger.Fields{
				AggregateID: &asset.ID,
				AssetID:     &asset.ID,
				Quantity:    &quantity,
				ToPrincipal: &input.CreatorID,
			},
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishAnchor(ctx, record)
	return asset, record, nil
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
