package notify

import (
	"context"

	"github.com/evolv-devices/storefront-backend/pkg/config"
	"github.com/evolv-devices/storefront-backend/pkg/db/models"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
	"github.com/evolv-devices/storefront-backend/pkg/mailer"
	"github.com/evolv-devices/storefront-backend/pkg/metrics"
)

// Sender delivers one templated email.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Service sends confirmation email for finalized records. Callers invoke it
// only after winning the finalization, so each record is notified at most once.
type Service struct {
	sender    Sender
	templates config.SendgridConfig
	metrics   *metrics.PaymentMetrics
	logger    *logger.Logger
}

// NewService wires the notifier.
func NewService(sender Sender, cfg config.SendgridConfig, pm *metrics.PaymentMetrics, logg *logger.Logger) *Service {
	return &Service{
		sender:    sender,
		templates: cfg,
		metrics:   pm,
		logger:    logg,
	}
}

// OrderConfirmed emails the order confirmation. A delivery failure is
// reported but never rolls back the paid state.
func (s *Service) OrderConfirmed(ctx context.Context, order *models.Order) error {
	payload := map[string]any{
		"order_number": order.Number(),
		"total":        order.Total().StringFixed(2),
		"currency":     order.Currency,
	}
	if order.CustomerName != nil && *order.CustomerName != "" {
		payload["customer_name"] = *order.CustomerName
	}
	if order.PlanInterval != nil {
		payload["plan_interval"] = order.PlanInterval.String()
	}

	msg := mailer.Message{
		ToEmail:    order.CustomerEmail,
		TemplateID: s.templates.OrderTemplateID,
		Payload:    payload,
	}
	if order.CustomerName != nil {
		msg.ToName = *order.CustomerName
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.IncNotification("failure")
		s.logError(ctx, "order confirmation email failed", err)
		return err
	}
	s.metrics.IncNotification("success")
	return nil
}

// ReservationConfirmed emails the reservation confirmation.
func (s *Service) ReservationConfirmed(ctx context.Context, res *models.Reservation) error {
	payload := map[string]any{
		"reservation_number": res.Number(),
		"deposit":            res.Deposit().StringFixed(2),
		"currency":           res.Currency,
	}
	if res.CustomerName != nil && *res.CustomerName != "" {
		payload["customer_name"] = *res.CustomerName
	}

	msg := mailer.Message{
		ToEmail:    res.CustomerEmail,
		TemplateID: s.templates.ReservationTemplateID,
		Payload:    payload,
	}
	if res.CustomerName != nil {
		msg.ToName = *res.CustomerName
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.IncNotification("failure")
		s.logError(ctx, "reservation confirmation email failed", err)
		return err
	}
	s.metrics.IncNotification("success")
	return nil
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error(ctx, msg, err)
}
