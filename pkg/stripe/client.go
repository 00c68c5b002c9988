package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/evolv-devices/storefront-backend/pkg/config"
	"github.com/evolv-devices/storefront-backend/pkg/enums"
	pkgerrors "github.com/evolv-devices/storefront-backend/pkg/errors"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errLoggerRequired   = errors.New("stripe logger is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps the Stripe checkout/payment-intent surface with centralized
// logging, timeouts, and error mapping. It carries no retry policy of its
// own; retries are the caller's decision.
type Client struct {
	environment string
	timeout     time.Duration
	logger      *logger.Logger
}

// LineItem is one purchasable row on a checkout session. Amounts are in the
// gateway's minor unit. A non-empty RecurringInterval makes the item a
// subscription and switches the session into subscription mode.
type LineItem struct {
	Name              string
	UnitAmountCents   int64
	Quantity          int64
	RecurringInterval enums.BillingInterval
}

// SessionParams describes a create-session request.
type SessionParams struct {
	LineItems      []LineItem
	CustomerEmail  string
	Currency       string
	Metadata       map[string]string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// Session is the client-facing view of a gateway checkout session.
type Session struct {
	ID              string
	URL             string
	ClientSecret    string
	PaymentStatus   string
	PaymentIntentID string
	Metadata        map[string]string
}

// Paid reports whether the gateway considers the session definitively paid.
func (s *Session) Paid() bool {
	return s != nil && s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid)
}

// Intent is the client-facing view of a gateway payment intent.
type Intent struct {
	ID       string
	Status   string
	Metadata map[string]string
}

// Succeeded reports whether the intent reached a definitive paid state.
func (i *Intent) Succeeded() bool {
	return i != nil && i.Status == string(stripe.PaymentIntentStatusSucceeded)
}

// Canceled reports whether the intent reached a terminal failed state.
func (i *Intent) Canceled() bool {
	return i != nil && i.Status == string(stripe.PaymentIntentStatusCanceled)
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))

	return &Client{
		environment: env,
		timeout:     cfg.Timeout,
		logger:      logg,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateCheckoutSession opens a hosted checkout session for the given line
// items and returns the correlation handle the storefront hands back to the
// browser.
func (c *Client) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	if len(params.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}
	if strings.TrimSpace(params.CustomerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}

	var total int64
	recurring := false
	for _, item := range params.LineItems {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item quantity must be positive")
		}
		total += item.UnitAmountCents * item.Quantity
		if item.RecurringInterval != "" {
			recurring = true
		}
	}
	if total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout amount must be positive")
	}

	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}

	mode := stripe.CheckoutSessionModePayment
	if recurring {
		mode = stripe.CheckoutSessionModeSubscription
	}

	req := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(mode)),
		SuccessURL:    stripe.String(params.SuccessURL),
		CancelURL:     stripe.String(params.CancelURL),
		CustomerEmail: stripe.String(params.CustomerEmail),
	}
	for _, item := range params.LineItems {
		priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(item.UnitAmountCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(item.Name),
			},
		}
		if item.RecurringInterval != "" {
			priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(item.RecurringInterval.String()),
			}
		}
		req.LineItems = append(req.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: priceData,
			Quantity:  stripe.Int64(item.Quantity),
		})
	}
	for key, value := range params.Metadata {
		req.AddMetadata(key, value)
	}
	if params.IdempotencyKey != "" {
		req.IdempotencyKey = stripe.String(params.IdempotencyKey)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	req.Context = ctx

	c.log(ctx, "request", "create_checkout_session", map[string]any{
		"amount_cents":   total,
		"mode":           string(mode),
		"customer_email": params.CustomerEmail,
	})

	created, err := session.New(req)
	if err != nil {
		c.log(ctx, "error", "create_checkout_session", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "create checkout session")
	}

	result := newSession(created)
	c.log(ctx, "response", "create_checkout_session", map[string]any{
		"session_id":     result.ID,
		"payment_status": result.PaymentStatus,
	})
	return result, nil
}

// RetrieveCheckoutSession fetches the session's current payment status and
// metadata, expanding the payment intent so the correlation id is available.
func (c *Client) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	req := &stripe.CheckoutSessionParams{}
	req.AddExpand("payment_intent")

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	req.Context = ctx

	c.log(ctx, "request", "retrieve_checkout_session", map[string]any{"session_id": sessionID})

	fetched, err := session.Get(sessionID, req)
	if err != nil {
		c.log(ctx, "error", "retrieve_checkout_session", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "retrieve checkout session")
	}

	result := newSession(fetched)
	c.log(ctx, "response", "retrieve_checkout_session", map[string]any{
		"session_id":     result.ID,
		"payment_status": result.PaymentStatus,
	})
	return result, nil
}

// RetrievePaymentIntent fetches a payment intent by its correlation id.
func (c *Client) RetrievePaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	req := &stripe.PaymentIntentParams{}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	req.Context = ctx

	c.log(ctx, "request", "retrieve_payment_intent", map[string]any{"intent_id": intentID})

	fetched, err := paymentintent.Get(intentID, req)
	if err != nil {
		c.log(ctx, "error", "retrieve_payment_intent", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "retrieve payment intent")
	}

	result := &Intent{
		ID:       fetched.ID,
		Status:   string(fetched.Status),
		Metadata: fetched.Metadata,
	}
	c.log(ctx, "response", "retrieve_payment_intent", map[string]any{
		"intent_id": result.ID,
		"status":    result.Status,
	})
	return result, nil
}

func newSession(raw *stripe.CheckoutSession) *Session {
	if raw == nil {
		return nil
	}
	result := &Session{
		ID:            raw.ID,
		URL:           raw.URL,
		ClientSecret:  raw.ClientSecret,
		PaymentStatus: string(raw.PaymentStatus),
		Metadata:      raw.Metadata,
	}
	if raw.PaymentIntent != nil {
		result.PaymentIntentID = raw.PaymentIntent.ID
	}
	return result
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c == nil || c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("stripe %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("stripe %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapStripeError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *stripe.Error
	if errors.As(err, &apiErr) {
		return pkgerrors.Wrap(domainCodeForStatus(apiErr.HTTPStatusCode), err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("stripe %s failed", op))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeGateway
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
