package controllers

import (
	"net/http"

	"github.com/evolv-devices/storefront-backend/api/responses"
	"github.com/evolv-devices/storefront-backend/api/validators"
	"github.com/evolv-devices/storefront-backend/internal/broadcast"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
)

type broadcastRecipientRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type broadcastRequest struct {
	TemplateID string                      `json:"template_id" validate:"required"`
	Payload    map[string]any              `json:"payload,omitempty"`
	Recipients []broadcastRecipientRequest `json:"recipients" validate:"required,min=1"`
}

type broadcastResponse struct {
	SuccessCount int64 `json:"success_count"`
	FailureCount int64 `json:"failure_count"`
}

// Broadcast fans a notification out to the submitted recipient list.
// Recipients without an email stay in the list and count as failures.
func Broadcast(svc *broadcast.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req broadcastRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recipients := make([]broadcast.Recipient, 0, len(req.Recipients))
		for _, recipient := range req.Recipients {
			recipients = append(recipients, broadcast.Recipient{
				Email: recipient.Email,
				Name:  recipient.Name,
			})
		}

		result, err := svc.Broadcast(r.Context(), recipients, broadcast.Content{
			TemplateID: req.TemplateID,
			Payload:    req.Payload,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, broadcastResponse{
			SuccessCount: result.SuccessCount,
			FailureCount: result.FailureCount,
		})
	}
}
