package controllers

import (
	"net/http"

	"github.com/evolv-devices/storefront-backend/api/responses"
	"github.com/evolv-devices/storefront-backend/api/validators"
	"github.com/evolv-devices/storefront-backend/internal/checkout"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
)

type reservationRequest struct {
	CustomerEmail string  `json:"customer_email" validate:"required,email"`
	CustomerName  *string `json:"customer_name,omitempty"`
}

// Reservation begins a fixed-deposit reservation checkout.
func Reservation(svc *checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reservationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.BeginReservation(r.Context(), checkout.BeginReservationInput{
			CustomerEmail: req.CustomerEmail,
			CustomerName:  req.CustomerName,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, beginCheckoutResponse{
			Number:       result.Number,
			SessionID:    result.SessionID,
			URL:          result.URL,
			ClientSecret: result.ClientSecret,
		})
	}
}
