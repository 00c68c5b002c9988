package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evolv-devices/storefront-backend/internal/checkout"
	"github.com/evolv-devices/storefront-backend/internal/records"
	"github.com/evolv-devices/storefront-backend/pkg/config"
	"github.com/evolv-devices/storefront-backend/pkg/db/models"
	"github.com/evolv-devices/storefront-backend/pkg/enums"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
	"github.com/evolv-devices/storefront-backend/pkg/metrics"
	"github.com/evolv-devices/storefront-backend/pkg/stripe"
)

// Outcome classifies what the caller should do after a confirmation pass.
type Outcome string

const (
	// OutcomePaid means the record is finalized as paid.
	OutcomePaid Outcome = "paid"
	// OutcomeNotPaid means the gateway does not consider the session paid.
	OutcomeNotPaid Outcome = "not_paid"
	// OutcomeRedirect means there is nothing to confirm here; send the
	// caller back to the storefront.
	OutcomeRedirect Outcome = "redirect"
	// OutcomeProcessing means the gateway could not be consulted; the
	// caller should retry, never be shown a false success.
	OutcomeProcessing Outcome = "processing"
)

const (
	kindOrder       = "order"
	kindReservation = "reservation"
)

// Result is the typed answer of a confirmation pass.
type Result struct {
	Outcome Outcome
	Number  string
	Status  enums.OrderStatus
}

// Gateway is the slice of the payment client reconciliation needs.
type Gateway interface {
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*stripe.Session, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*stripe.Intent, error)
}

// Store is the slice of the record repository reconciliation needs.
type Store interface {
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	FindOrderByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error)
	FindReservationByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindReservationBySessionID(ctx context.Context, sessionID string) (*models.Reservation, error)
	FindReservationByPaymentIntentID(ctx context.Context, intentID string) (*models.Reservation, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, intentID string) (bool, error)
	MarkOrderFailed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkReservationPaid(ctx context.Context, id uuid.UUID, intentID string) (bool, error)
	MarkReservationFailed(ctx context.Context, id uuid.UUID) (bool, error)
}

// Notifier sends the confirmation email after a won transition.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order *models.Order) error
	ReservationConfirmed(ctx context.Context, res *models.Reservation) error
}

// Service reconciles redirect confirmations against the gateway exactly once
// per record.
type Service struct {
	store    Store
	gateway  Gateway
	notifier Notifier
	cfg      config.CheckoutConfig
	metrics  *metrics.PaymentMetrics
	logger   *logger.Logger
	sleep    func(ctx context.Context, d time.Duration)
}

// NewService wires the reconciliation service.
func NewService(store Store, gateway Gateway, notifier Notifier, cfg config.CheckoutConfig, pm *metrics.PaymentMetrics, logg *logger.Logger) *Service {
	return &Service{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		metrics:  pm,
		logger:   logg,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// ConfirmOrder resolves a redirect confirmation token for an order. The token
// is the correlation id the gateway echoed back: a payment intent id or a
// checkout session id.
func (s *Service) ConfirmOrder(ctx context.Context, token string) (*Result, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveReconcile(kindOrder, time.Since(started)) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return s.outcome(kindOrder, &Result{Outcome: OutcomeRedirect}), nil
	}

	order := s.lookupOrder(ctx, token)
	if order == nil {
		return s.outcome(kindOrder, &Result{Outcome: OutcomeRedirect}), nil
	}

	ctx = s.withField(ctx, "order_id", order.ID.String())

	if order.Status.IsTerminal() {
		return s.outcome(kindOrder, terminalResult(order.Number(), order.Status)), nil
	}

	paid, intentID, outcome := s.gatewayVerdict(ctx, order.CheckoutSessionID, order.PaymentIntentID, token)
	if outcome != "" {
		if outcome == OutcomeNotPaid && intentID == intentCanceled {
			if _, err := s.store.MarkOrderFailed(ctx, order.ID); err != nil {
				s.logError(ctx, "marking order failed", err)
			} else {
				order.Status = enums.OrderStatusFailed
			}
		}
		return s.outcome(kindOrder, &Result{Outcome: outcome, Number: order.Number(), Status: order.Status}), nil
	}
	if !paid {
		return s.outcome(kindOrder, &Result{Outcome: OutcomeNotPaid, Number: order.Number(), Status: order.Status}), nil
	}

	won, err := s.store.MarkOrderPaid(ctx, order.ID, intentID)
	if err != nil {
		s.logError(ctx, "finalizing order", err)
		return s.outcome(kindOrder, &Result{Outcome: OutcomeProcessing, Number: order.Number(), Status: order.Status}), nil
	}
	if won {
		order.Status = enums.OrderStatusPaid
		order.PaymentStatus = enums.PaymentStatusCompleted
		if err := s.notifier.OrderConfirmed(ctx, order); err != nil {
			// Logged and counted downstream; the paid state stands.
			s.logError(ctx, "order confirmation notification failed", err)
		}
	}
	return s.outcome(kindOrder, terminalResult(order.Number(), enums.OrderStatusPaid)), nil
}

// ConfirmReservation resolves a redirect confirmation token for a reservation.
func (s *Service) ConfirmReservation(ctx context.Context, token string) (*Result, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveReconcile(kindReservation, time.Since(started)) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return s.outcome(kindReservation, &Result{Outcome: OutcomeRedirect}), nil
	}

	res := s.lookupReservation(ctx, token)
	if res == nil {
		return s.outcome(kindReservation, &Result{Outcome: OutcomeRedirect}), nil
	}

	ctx = s.withField(ctx, "reservation_id", res.ID.String())

	if res.Status.IsTerminal() {
		return s.outcome(kindReservation, terminalResult(res.Number(), res.Status)), nil
	}

	paid, intentID, outcome := s.gatewayVerdict(ctx, res.CheckoutSessionID, res.PaymentIntentID, token)
	if outcome != "" {
		if outcome == OutcomeNotPaid && intentID == intentCanceled {
			if _, err := s.store.MarkReservationFailed(ctx, res.ID); err != nil {
				s.logError(ctx, "marking reservation failed", err)
			} else {
				res.Status = enums.OrderStatusFailed
			}
		}
		return s.outcome(kindReservation, &Result{Outcome: outcome, Number: res.Number(), Status: res.Status}), nil
	}
	if !paid {
		return s.outcome(kindReservation, &Result{Outcome: OutcomeNotPaid, Number: res.Number(), Status: res.Status}), nil
	}

	won, err := s.store.MarkReservationPaid(ctx, res.ID, intentID)
	if err != nil {
		s.logError(ctx, "finalizing reservation", err)
		return s.outcome(kindReservation, &Result{Outcome: OutcomeProcessing, Number: res.Number(), Status: res.Status}), nil
	}
	if won {
		res.Status = enums.OrderStatusPaid
		res.PaymentStatus = enums.PaymentStatusCompleted
		if err := s.notifier.ReservationConfirmed(ctx, res); err != nil {
			s.logError(ctx, "reservation confirmation notification failed", err)
		}
	}
	return s.outcome(kindReservation, terminalResult(res.Number(), enums.OrderStatusPaid)), nil
}

// SessionStatus answers the direct status query path: retrieve the session,
// and when it is paid, apply the same transition through the metadata id.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return &Result{Outcome: OutcomeRedirect}, nil
	}

	session, err := s.gateway.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		s.logError(ctx, "retrieving session status", err)
		return &Result{Outcome: OutcomeProcessing}, nil
	}

	if orderID, ok := parseMetadataID(session.Metadata, checkout.MetadataOrderID); ok {
		if !session.Paid() {
			return s.orderStatus(ctx, orderID)
		}
		return s.ConfirmOrder(ctx, sessionID)
	}
	if resID, ok := parseMetadataID(session.Metadata, checkout.MetadataReservationID); ok {
		if !session.Paid() {
			return s.reservationStatus(ctx, resID)
		}
		return s.ConfirmReservation(ctx, sessionID)
	}
	return &Result{Outcome: OutcomeRedirect}, nil
}

func (s *Service) orderStatus(ctx context.Context, id uuid.UUID) (*Result, error) {
	order, err := s.store.FindOrderByID(ctx, id)
	if err != nil {
		if records.IsNotFound(err) {
			return &Result{Outcome: OutcomeRedirect}, nil
		}
		return nil, err
	}
	if order.Status == enums.OrderStatusPaid {
		return terminalResult(order.Number(), order.Status), nil
	}
	return &Result{Outcome: OutcomeNotPaid, Number: order.Number(), Status: order.Status}, nil
}

func (s *Service) reservationStatus(ctx context.Context, id uuid.UUID) (*Result, error) {
	res, err := s.store.FindReservationByID(ctx, id)
	if err != nil {
		if records.IsNotFound(err) {
			return &Result{Outcome: OutcomeRedirect}, nil
		}
		return nil, err
	}
	if res.Status == enums.OrderStatusPaid {
		return terminalResult(res.Number(), res.Status), nil
	}
	return &Result{Outcome: OutcomeNotPaid, Number: res.Number(), Status: res.Status}, nil
}

// lookupOrder tries the intent id first, then the session id. A record that
// has not landed yet gets a bounded re-read before giving up; a record is
// never fabricated.
func (s *Service) lookupOrder(ctx context.Context, token string) *models.Order {
	attempts := s.attempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.sleep(ctx, s.cfg.ConfirmRetryBackoff)
		}
		if order, err := s.store.FindOrderByPaymentIntentID(ctx, token); err == nil {
			return order
		} else if !records.IsNotFound(err) {
			s.logError(ctx, "order lookup by intent id", err)
			return nil
		}
		if order, err := s.store.FindOrderBySessionID(ctx, token); err == nil {
			return order
		} else if !records.IsNotFound(err) {
			s.logError(ctx, "order lookup by session id", err)
			return nil
		}
	}
	return nil
}

func (s *Service) lookupReservation(ctx context.Context, token string) *models.Reservation {
	attempts := s.attempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.sleep(ctx, s.cfg.ConfirmRetryBackoff)
		}
		if res, err := s.store.FindReservationByPaymentIntentID(ctx, token); err == nil {
			return res
		} else if !records.IsNotFound(err) {
			s.logError(ctx, "reservation lookup by intent id", err)
			return nil
		}
		if res, err := s.store.FindReservationBySessionID(ctx, token); err == nil {
			return res
		} else if !records.IsNotFound(err) {
			s.logError(ctx, "reservation lookup by session id", err)
			return nil
		}
	}
	return nil
}

func (s *Service) attempts() int {
	if s.cfg.ConfirmRetries < 1 {
		return 1
	}
	return s.cfg.ConfirmRetries
}

// intentCanceled is a sentinel returned through the intentID slot so the
// caller can distinguish "not paid yet" from "terminally canceled".
const intentCanceled = "<canceled>"

// gatewayVerdict consults the gateway about the record's session or intent.
// It returns (paid, intentID, "") on a definitive answer, or a non-empty
// outcome when the caller should stop (processing or not-paid-canceled).
func (s *Service) gatewayVerdict(ctx context.Context, sessionID, intentID *string, token string) (bool, string, Outcome) {
	lookup := token
	if sessionID != nil && *sessionID != "" {
		lookup = *sessionID
	}

	session, err := s.gateway.RetrieveCheckoutSession(ctx, lookup)
	if err != nil {
		s.logError(ctx, "retrieving checkout session", err)
		return false, "", OutcomeProcessing
	}
	if session.Paid() {
		return true, session.PaymentIntentID, ""
	}

	// Session not paid; the intent may still be ahead of it, or terminally dead.
	checkIntent := session.PaymentIntentID
	if checkIntent == "" && intentID != nil {
		checkIntent = *intentID
	}
	if checkIntent == "" {
		return false, "", ""
	}

	intent, err := s.gateway.RetrievePaymentIntent(ctx, checkIntent)
	if err != nil {
		s.logError(ctx, "retrieving payment intent", err)
		return false, "", OutcomeProcessing
	}
	if intent.Succeeded() {
		return true, intent.ID, ""
	}
	if intent.Canceled() {
		return false, intentCanceled, OutcomeNotPaid
	}
	return false, "", ""
}

func (s *Service) outcome(kind string, result *Result) *Result {
	s.metrics.IncReconcileOutcome(kind, string(result.Outcome))
	return result
}

func terminalResult(number string, status enums.OrderStatus) *Result {
	outcome := OutcomeNotPaid
	if status == enums.OrderStatusPaid {
		outcome = OutcomePaid
	}
	return &Result{Outcome: outcome, Number: number, Status: status}
}

func parseMetadataID(metadata map[string]string, key string) (uuid.UUID, bool) {
	raw, ok := metadata[key]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *Service) withField(ctx context.Context, key, value string) context.Context {
	if s.logger == nil {
		return ctx
	}
	return s.logger.WithField(ctx, key, value)
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error(ctx, msg, err)
}
