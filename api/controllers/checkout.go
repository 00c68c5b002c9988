package controllers

import (
	"net/http"

	"github.com/evolv-devices/storefront-backend/api/responses"
	"github.com/evolv-devices/storefront-backend/api/validators"
	"github.com/evolv-devices/storefront-backend/internal/checkout"
	"github.com/evolv-devices/storefront-backend/pkg/enums"
	pkgerrors "github.com/evolv-devices/storefront-backend/pkg/errors"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
)

type checkoutItemRequest struct {
	Name              string  `json:"name" validate:"required"`
	UnitAmountCents   int64   `json:"unit_amount_cents" validate:"required,gt=0"`
	Quantity          int64   `json:"quantity" validate:"required,gt=0"`
	RecurringInterval *string `json:"recurring_interval,omitempty" validate:"omitempty,oneof=month year"`
}

type checkoutRequest struct {
	CustomerEmail string                `json:"customer_email" validate:"required,email"`
	CustomerName  *string               `json:"customer_name,omitempty"`
	Items         []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
	TaxCents      int64                 `json:"tax_cents" validate:"gte=0"`
}

type beginCheckoutResponse struct {
	OrderID      string `json:"order_id,omitempty"`
	Number       string `json:"number"`
	SessionID    string `json:"session_id"`
	URL          string `json:"url,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Checkout begins an order checkout: pending row first, then gateway session.
func Checkout(svc *checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.BeginOrderInput{
			CustomerEmail: req.CustomerEmail,
			CustomerName:  req.CustomerName,
			TaxCents:      req.TaxCents,
		}
		for _, item := range req.Items {
			orderItem := checkout.OrderItem{
				Name:            validators.SanitizeString(item.Name, 200),
				UnitAmountCents: item.UnitAmountCents,
				Quantity:        item.Quantity,
			}
			if item.RecurringInterval != nil {
				interval, err := enums.ParseBillingInterval(*item.RecurringInterval)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing interval"))
					return
				}
				orderItem.RecurringInterval = &interval
			}
			input.Items = append(input.Items, orderItem)
		}

		result, err := svc.BeginOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, beginCheckoutResponse{
			OrderID:      result.RecordID.String(),
			Number:       result.Number,
			SessionID:    result.SessionID,
			URL:          result.URL,
			ClientSecret: result.ClientSecret,
		})
	}
}
