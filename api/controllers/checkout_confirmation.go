package controllers

import (
	"net/http"

	"github.com/evolv-devices/storefront-backend/api/responses"
	"github.com/evolv-devices/storefront-backend/internal/reconcile"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
)

const shopRedirectPath = "/shop"

type confirmationResponse struct {
	Status string `json:"status"`
	Number string `json:"number,omitempty"`
}

// CheckoutConfirm resolves the order redirect-confirmation endpoint.
func CheckoutConfirm(svc *reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("session_id")

		result, err := svc.ConfirmOrder(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeConfirmation(w, r, result)
	}
}

// ReservationConfirm resolves the reservation redirect-confirmation endpoint.
func ReservationConfirm(svc *reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("session_id")

		result, err := svc.ConfirmReservation(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeConfirmation(w, r, result)
	}
}

func writeConfirmation(w http.ResponseWriter, r *http.Request, result *reconcile.Result) {
	switch result.Outcome {
	case reconcile.OutcomePaid:
		responses.WriteSuccess(w, confirmationResponse{Status: "paid", Number: result.Number})
	case reconcile.OutcomeNotPaid:
		responses.WriteSuccess(w, confirmationResponse{Status: "not_paid", Number: result.Number})
	case reconcile.OutcomeProcessing:
		responses.WriteSuccessStatus(w, http.StatusAccepted, confirmationResponse{Status: "processing"})
	default:
		http.Redirect(w, r, shopRedirectPath, http.StatusSeeOther)
	}
}
