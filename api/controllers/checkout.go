package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fraxionlabs/fraxion-backend/api/middleware"
	"github.com/fraxionlabs/fraxion-backend/api/responses"
	"github.com/fraxionlabs/fraxion-backend/api/validators"
	checkoutsvc "github.com/fraxionlabs/fraxion-backend/internal/checkout"
	"github.com/fraxionlabs/fraxion-backend/internal/reservation"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

type reserveRequest struct {
	ListingID    uuid.UUID `json:"listing_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"required,gt=0"`
	Currency     string    `json:"currency" validate:"required"`
	BuyerAddress string    `json:"buyer_address" validate:"required"`
	Signer       string    `json:"signer" validate:"required"`
	Signature    string    `json:"signature" validate:"required"`
}

type reservationResponse struct {
	ReservationID  uuid.UUID       `json:"reservation_id"`
	ListingID      uuid.UUID       `json:"listing_id"`
	Quantity       int             `json:"quantity"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentAddress string          `json:"payment_address"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

func newReservationResponse(held *models.Reservation, holdWindow time.Duration) reservationResponse {
	return reservationResponse{
		ReservationID:  held.ID,
		ListingID:      held.ListingID,
		Quantity:       held.Quantity,
		Currency:       string(held.Currency),
		Amount:         held.Amount,
		PaymentAddress: held.PaymentAddress,
		ExpiresAt:      held.CreatedAt.Add(holdWindow),
	}
}

// Reserve places a time-boxed hold on listing parts for the caller.
func Reserve(svc *checkoutsvc.Service, holdWindow time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holder := middleware.PrincipalIDFromContext(r.Context())
		if holder == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing principal"))
			return
		}

		var payload reserveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		currency, err := enums.ParseCurrency(payload.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeUnsupportedCurrency, err, "invalid currency"))
			return
		}

		held, err := svc.Reserve(r.Context(), reservation.ReserveInput{
			ListingID:    payload.ListingID,
			Holder:       holder,
			Quantity:     payload.Quantity,
			Currency:     currency,
			BuyerAddress: payload.BuyerAddress,
		}, payload.Signer, payload.Signature)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newReservationResponse(held, holdWindow))
	}
}

type finalizeRequest struct {
	PaymentRef string `json:"payment_ref" validate:"required"`
	Signer     string `json:"signer" validate:"required"`
	Signature  string `json:"signature" validate:"required"`
}

// Finalize completes a reservation once the off-band payment settles.
func Finalize(svc *checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reservationID, err := uuid.Parse(chi.URLParam(r, "reservationId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation id"))
			return
		}

		var payload finalizeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Finalize(r.Context(), checkoutsvc.FinalizeInput{
			ReservationID: reservationID,
			PaymentRef:    payload.PaymentRef,
			Signer:        payload.Signer,
			Signature:     payload.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"record_id": record.ID})
	}
}

// ReservationCancel releases a hold ahead of its expiry.
func ReservationCancel(svc *checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reservationID, err := uuid.Parse(chi.URLParam(r, "reservationId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation id"))
			return
		}

		if err := svc.Cancel(r.Context(), reservationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "released"})
	}
}

type giftRequest struct {
	AssetID   uuid.UUID `json:"asset_id" validate:"required"`
	To        uuid.UUID `json:"to" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	Signer    string    `json:"signer" validate:"required"`
	Signature string    `json:"signature" validate:"required"`
}

// Gift transfers the caller's free parts to another principal.
func Gift(svc *checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from := middleware.PrincipalIDFromContext(r.Context())
		if from == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing principal"))
			return
		}

		var payload giftRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Gift(r.Context(), checkoutsvc.GiftInput{
			AssetID:   payload.AssetID,
			From:      from,
			To:        payload.To,
			Quantity:  payload.Quantity,
			Signer:    payload.Signer,
			Signature: payload.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"record_id": record.ID})
	}
}

type consumeRequest struct {
	AssetID   uuid.UUID `json:"asset_id" validate:"required"`
	Provider  uuid.UUID `json:"provider" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	Signer    string    `json:"signer" validate:"required"`
	Signature string    `json:"signature" validate:"required"`
}

// Consume redeems the caller's free parts as payment in kind to a provider.
func Consume(svc *checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := middleware.PrincipalIDFromContext(r.Context())
		if owner == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing principal"))
			return
		}

		var payload consumeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Consume(r.Context(), checkoutsvc.ConsumeInput{
			AssetID:   payload.AssetID,
			Owner:     owner,
			Provider:  payload.Provider,
			Quantity:  payload.Quantity,
			Signer:    payload.Signer,
			Signature: payload.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"record_id": record.ID})
	}
}

// SystemStatus reports degraded mode and the anchor backlog depth.
func SystemStatus(svc *checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.Status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
