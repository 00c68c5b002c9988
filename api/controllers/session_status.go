package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evolv-devices/storefront-backend/api/responses"
	"github.com/evolv-devices/storefront-backend/internal/reconcile"
	pkgerrors "github.com/evolv-devices/storefront-backend/pkg/errors"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
)

// SessionStatus answers the direct session status query.
func SessionStatus(svc *reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id required"))
			return
		}

		result, err := svc.SessionStatus(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch result.Outcome {
		case reconcile.OutcomePaid:
			responses.WriteSuccess(w, confirmationResponse{Status: "paid", Number: result.Number})
		case reconcile.OutcomeNotPaid:
			responses.WriteSuccess(w, confirmationResponse{Status: "not_paid", Number: result.Number})
		case reconcile.OutcomeProcessing:
			responses.WriteSuccessStatus(w, http.StatusAccepted, confirmationResponse{Status: "processing"})
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "session not found"))
		}
	}
}
