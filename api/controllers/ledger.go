package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fraxionlabs/fraxion-backend/api/responses"
	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

type ledgerRecordResponse struct {
	RecordID          string    `json:"record_id"`
	Type              string    `json:"type"`
	SequenceNumber    int64     `json:"sequence_number"`
	Timestamp         time.Time `json:"timestamp"`
	Signer            string    `json:"signer"`
	PreviousAnchorRef *string   `json:"previous_anchor_ref"`
	AnchorRef         *string   `json:"anchor_ref"`
	Verified          bool      `json:"verified"`
}

// LedgerRecordFetch returns one record along with a fresh integrity check.
func LedgerRecordFetch(repo ledger.Repository, svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID := chi.URLParam(r, "recordId")
		if recordID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "record id is required"))
			return
		}

		record, err := repo.FindByID(r.Context(), recordID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if record == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "record not found"))
			return
		}

		verified := svc.VerifyStored(r.Context(), recordID) == nil

		responses.WriteSuccess(w, ledgerRecordResponse{
			RecordID:          record.ID,
			Type:              string(record.Type),
			SequenceNumber:    record.SequenceNumber,
			Timestamp:         record.Timestamp,
			Signer:            record.Signer,
			PreviousAnchorRef: record.PreviousAnchorRef,
			AnchorRef:         record.AnchorRef,
			Verified:          verified,
		})
	}
}
