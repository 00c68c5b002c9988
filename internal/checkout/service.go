package checkout

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/evolv-devices/storefront-backend/pkg/config"
	"github.com/evolv-devices/storefront-backend/pkg/db/models"
	"github.com/evolv-devices/storefront-backend/pkg/enums"
	pkgerrors "github.com/evolv-devices/storefront-backend/pkg/errors"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
	"github.com/evolv-devices/storefront-backend/pkg/stripe"
)

// Metadata keys carried on every gateway session so confirmation can find
// the local record without trusting anything else in the redirect.
const (
	MetadataOrderID       = "order_id"
	MetadataReservationID = "reservation_id"
)

// Gateway is the slice of the payment client the orchestrator needs.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params stripe.SessionParams) (*stripe.Session, error)
}

// Store is the slice of the record repository the orchestrator needs.
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateReservation(ctx context.Context, res *models.Reservation) error
	AttachOrderSession(ctx context.Context, id uuid.UUID, sessionID string, intentID *string) error
	AttachReservationSession(ctx context.Context, id uuid.UUID, sessionID string, intentID *string) error
}

// Service creates pending records and opens gateway sessions for them.
// The pending row always exists before the gateway is asked for anything.
type Service struct {
	store   Store
	gateway Gateway
	cfg     config.CheckoutConfig
	logger  *logger.Logger
}

// NewService wires the checkout orchestrator.
func NewService(store Store, gateway Gateway, cfg config.CheckoutConfig, logg *logger.Logger) *Service {
	return &Service{store: store, gateway: gateway, cfg: cfg, logger: logg}
}

// OrderItem is one purchasable row in a begin-order request.
type OrderItem struct {
	Name              string
	UnitAmountCents   int64
	Quantity          int64
	RecurringInterval *enums.BillingInterval
}

// BeginOrderInput carries everything needed to open an order checkout.
type BeginOrderInput struct {
	CustomerEmail string
	CustomerName  *string
	Items         []OrderItem
	TaxCents      int64
}

// BeginReservationInput carries everything needed to open a deposit checkout.
type BeginReservationInput struct {
	CustomerEmail string
	CustomerName  *string
}

// BeginResult is the handle the browser needs to reach the hosted checkout.
type BeginResult struct {
	RecordID     uuid.UUID
	Number       string
	SessionID    string
	URL          string
	ClientSecret string
}

// BeginOrder validates the request, creates the pending order row, then asks
// the gateway for a session carrying the row id in metadata. A gateway
// failure leaves the pending row in place.
func (s *Service) BeginOrder(ctx context.Context, input BeginOrderInput) (*BeginResult, error) {
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if input.TaxCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax cents must not be negative")
	}

	var subtotal int64
	var planInterval *enums.BillingInterval
	lineItems := make([]stripe.LineItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if item.UnitAmountCents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item amount must be positive")
		}
		subtotal += item.UnitAmountCents * item.Quantity

		line := stripe.LineItem{
			Name:            item.Name,
			UnitAmountCents: item.UnitAmountCents,
			Quantity:        item.Quantity,
		}
		if item.RecurringInterval != nil {
			if !item.RecurringInterval.IsValid() {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing interval")
			}
			line.RecurringInterval = *item.RecurringInterval
			if planInterval == nil {
				planInterval = item.RecurringInterval
			}
		}
		lineItems = append(lineItems, line)
	}

	order := &models.Order{
		CustomerEmail: input.CustomerEmail,
		CustomerName:  input.CustomerName,
		SubtotalCents: subtotal,
		TaxCents:      input.TaxCents,
		TotalCents:    subtotal + input.TaxCents,
		Currency:      s.cfg.Currency,
		PlanInterval:  planInterval,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order record")
	}

	ctx = s.withOrderLog(ctx, order.ID)

	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.SessionParams{
		LineItems:     lineItems,
		CustomerEmail: input.CustomerEmail,
		Currency:      s.cfg.Currency,
		Metadata:      map[string]string{MetadataOrderID: order.ID.String()},
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
	})
	if err != nil {
		// Pending row stays behind for a later retry or manual review.
		s.logError(ctx, "opening checkout session failed", err)
		return nil, err
	}

	if err := s.attachOrder(ctx, order.ID, session); err != nil {
		return nil, err
	}

	return &BeginResult{
		RecordID:     order.ID,
		Number:       order.Number(),
		SessionID:    session.ID,
		URL:          session.URL,
		ClientSecret: session.ClientSecret,
	}, nil
}

// BeginReservation opens a fixed-amount deposit checkout.
func (s *Service) BeginReservation(ctx context.Context, input BeginReservationInput) (*BeginResult, error) {
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if s.cfg.DepositCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit amount must be positive")
	}

	res := &models.Reservation{
		CustomerEmail: input.CustomerEmail,
		CustomerName:  input.CustomerName,
		DepositCents:  s.cfg.DepositCents,
		Currency:      s.cfg.Currency,
	}
	if err := s.store.CreateReservation(ctx, res); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating reservation record")
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.SessionParams{
		LineItems: []stripe.LineItem{{
			Name:            "Reservation Deposit",
			UnitAmountCents: s.cfg.DepositCents,
			Quantity:        1,
		}},
		CustomerEmail: input.CustomerEmail,
		Currency:      s.cfg.Currency,
		Metadata:      map[string]string{MetadataReservationID: res.ID.String()},
		SuccessURL:    s.cfg.ReservationSuccessURL,
		CancelURL:     s.cfg.CancelURL,
	})
	if err != nil {
		s.logError(ctx, "opening reservation session failed", err)
		return nil, err
	}

	if err := s.attachReservation(ctx, res.ID, session); err != nil {
		return nil, err
	}

	return &BeginResult{
		RecordID:     res.ID,
		Number:       res.Number(),
		SessionID:    session.ID,
		URL:          session.URL,
		ClientSecret: session.ClientSecret,
	}, nil
}

func (s *Service) attachOrder(ctx context.Context, id uuid.UUID, session *stripe.Session) error {
	var intentID *string
	if session.PaymentIntentID != "" {
		intentID = &session.PaymentIntentID
	}
	if err := s.store.AttachOrderSession(ctx, id, session.ID, intentID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "attaching checkout session")
	}
	return nil
}

func (s *Service) attachReservation(ctx context.Context, id uuid.UUID, session *stripe.Session) error {
	var intentID *string
	if session.PaymentIntentID != "" {
		intentID = &session.PaymentIntentID
	}
	if err := s.store.AttachReservationSession(ctx, id, session.ID, intentID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "attaching checkout session")
	}
	return nil
}

func (s *Service) withOrderLog(ctx context.Context, id uuid.UUID) context.Context {
	if s.logger == nil {
		return ctx
	}
	return s.logger.WithOrderID(ctx, id.String())
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error(ctx, msg, err)
}
