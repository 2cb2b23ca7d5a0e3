package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/fraxionlabs/fraxion-backend/api/middleware"
	"github.com/fraxionlabs/fraxion-backend/api/responses"
	"github.com/fraxionlabs/fraxion-backend/api/validators"
	"github.com/fraxionlabs/fraxion-backend/internal/anchor"
	"github.com/fraxionlabs/fraxion-backend/internal/inventory"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// AdminForceClearDegraded lifts degraded mode without waiting for the
// backlog to drain. The operator identity is recorded in the audit log.
func AdminForceClearDegraded(flags *anchor.Flags, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator := middleware.PrincipalIDFromContext(r.Context())
		if operator == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing principal"))
			return
		}

		if err := flags.ForceClear(r.Context(), operator.String()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
	}
}

type issueAssetRequest struct {
	Title      string    `json:"title" validate:"required"`
	CreatorID  uuid.UUID `json:"creator_id"`
	TotalParts int       `json:"total_parts" validate:"required,gt=0"`
	Signer     string    `json:"signer" validate:"required"`
	Signature  string    `json:"signature" validate:"required"`
}

// AdminAssetIssue mints a new asset and its part pool. The creator defaults
// to the operator when the request names none.
func AdminAssetIssue(svc *inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator := middleware.PrincipalIDFromContext(r.Context())
		if operator == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing principal"))
			return
		}

		var payload issueAssetRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		creator := payload.CreatorID
		if creator == uuid.Nil {
			creator = operator
		}

		asset, record, err := svc.Issue(r.Context(), inventory.IssueAssetInput{
			Title:      payload.Title,
			CreatorID:  creator,
			TotalParts: payload.TotalParts,
			Signer:     payload.Signer,
			Signature:  payload.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"asset_id":    asset.ID,
			"total_parts": asset.TotalParts,
			"record_id":   record.ID,
		})
	}
}
