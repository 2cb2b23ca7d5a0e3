package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fraxionlabs/fraxion-backend/api/middleware"
	"github.com/fraxionlabs/fraxion-backend/api/responses"
	"github.com/fraxionlabs/fraxion-backend/api/validators"
	"github.com/fraxionlabs/fraxion-backend/internal/listings"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
	"github.com/fraxionlabs/fraxion-backend/pkg/types"
)

type listingCreateRequest struct {
	Kind            string            `json:"kind" validate:"required,oneof=listing gift"`
	AssetID         uuid.UUID         `json:"asset_id" validate:"required"`
	Quantity        int               `json:"quantity" validate:"required,gt=0"`
	UnitPriceCents  int               `json:"unit_price_cents" validate:"omitempty,gt=0"`
	AllOrNothing    bool              `json:"all_or_nothing"`
	PayoutAddresses map[string]string `json:"payout_addresses"`
	Signer          string            `json:"signer" validate:"required"`
	Signature       string            `json:"signature" validate:"required"`
}

type listingResponse struct {
	ListingID      uuid.UUID `json:"listing_id"`
	Kind           string    `json:"kind"`
	AssetID        uuid.UUID `json:"asset_id"`
	Owner          uuid.UUID `json:"owner"`
	RemainingQty   int       `json:"remaining_qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
	AllOrNothing   bool      `json:"all_or_nothing"`
	Status         string    `json:"status"`
	RecordID       string    `json:"record_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func newListingResponse(listing *models.Listing, record *models.LedgerRecord) listingResponse {
	resp := listingResponse{
		ListingID:      listing.ID,
		Kind:           string(listing.Kind),
		AssetID:        listing.AssetID,
		Owner:          listing.Owner,
		RemainingQty:   listing.RemainingQty,
		UnitPriceCents: listing.UnitPriceCents,
		AllOrNothing:   listing.AllOrNothing,
		Status:         string(listing.Status),
		CreatedAt:      listing.CreatedAt,
	}
	if record != nil {
		resp.RecordID = record.ID
	}
	return resp
}

// ListingCreate attaches free parts to a new listing owned by the caller.
func ListingCreate(svc *listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := middleware.PrincipalIDFromContext(r.Context())
		if owner == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing principal"))
			return
		}

		var payload listingCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout := types.PayoutAddresses{}
		for currency, address := range payload.PayoutAddresses {
			parsed, err := enums.ParseCurrency(currency)
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeUnsupportedCurrency, err, "invalid payout currency"))
				return
			}
			payout[parsed] = address
		}

		listing, record, err := svc.Create(r.Context(), listings.CreateInput{
			Kind:            enums.AggregateKind(payload.Kind),
			AssetID:         payload.AssetID,
			Owner:           owner,
			Quantity:        payload.Quantity,
			UnitPriceCents:  payload.UnitPriceCents,
			AllOrNothing:    payload.AllOrNothing,
			PayoutAddresses: payout,
			Signer:          payload.Signer,
			Signature:       payload.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newListingResponse(listing, record))
	}
}

type listingCancelRequest struct {
	Signer    string `json:"signer" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// ListingCancel withdraws the caller's listing and frees its unheld parts.
func ListingCancel(svc *listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := middleware.PrincipalIDFromContext(r.Context())
		if actor == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing principal"))
			return
		}

		listingID, err := uuid.Parse(chi.URLParam(r, "listingId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing id"))
			return
		}

		var payload listingCancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Cancel(r.Context(), listingID, actor, payload.Signer, payload.Signature)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"record_id": record.ID})
	}
}

// ListingFetch returns the current state of one listing.
func ListingFetch(repo listings.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listingID, err := uuid.Parse(chi.URLParam(r, "listingId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing id"))
			return
		}

		listing, err := repo.FindByID(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if listing == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found"))
			return
		}

		responses.WriteSuccess(w, newListingResponse(listing, nil))
	}
}
