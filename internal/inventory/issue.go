package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
)

// issueBatchSize bounds the insert chunk for large part pools.
const issueBatchSize = 500

// PartID derives the content-addressed id for a part from its immutable
// fields. Reproducible by anyone holding the asset id and sequence number.
func PartID(assetID uuid.UUID, sequenceNumber int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d", assetID, sequenceNumber))
	return hex.EncodeToString(sum[:])
}

// IssueInput describes a new asset and its part pool.
type IssueInput struct {
	Title      string
	CreatorID  uuid.UUID
	TotalParts int
}

// IssueParts creates the asset row and its full part pool inside tx. Part
// sequence numbers start at 1 and every part begins owned by the creator
// with no lock and no hold.
func IssueParts(ctx context.Context, tx *gorm.DB, input IssueInput) (*models.Asset, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset title required")
	}
	if input.CreatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "creator id required")
	}
	if input.TotalParts < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total parts must be at least 1")
	}

	asset := models.Asset{
		ID:         uuid.New(),
		Title:      input.Title,
		CreatorID:  input.CreatorID,
		TotalParts: input.TotalParts,
	}
	if err := tx.WithContext(ctx).Create(&asset).Error; err != nil {
		return nil, err
	}

	parts := make([]models.Part, 0, input.TotalParts)
	for seq := 1; seq <= input.TotalParts; seq++ {
		parts = append(parts, models.Part{
			ID:             PartID(asset.ID, seq),
			AssetID:        asset.ID,
			SequenceNumber: seq,
			Owner:          input.CreatorID,
		})
	}
	if err := tx.WithContext(ctx).CreateInBatches(&parts, issueBatchSize).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}
