package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evolv-devices/storefront-backend/internal/broadcast"
	"github.com/evolv-devices/storefront-backend/internal/reconcile"
	"github.com/evolv-devices/storefront-backend/pkg/config"
	"github.com/evolv-devices/storefront-backend/pkg/db/models"
	"github.com/evolv-devices/storefront-backend/pkg/enums"
	"github.com/evolv-devices/storefront-backend/pkg/mailer"
	"github.com/evolv-devices/storefront-backend/pkg/stripe"
)

// reconcile fakes

type stubStore struct {
	order *models.Order
}

func (s *stubStore) FindOrderByID(context.Context, uuid.UUID) (*models.Order, error) {
	if s.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubStore) FindOrderBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	if s.order != nil && s.order.CheckoutSessionID != nil && *s.order.CheckoutSessionID == sessionID {
		return s.order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubStore) FindOrderByPaymentIntentID(context.Context, string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubStore) FindReservationByID(context.Context, uuid.UUID) (*models.Reservation, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubStore) FindReservationBySessionID(context.Context, string) (*models.Reservation, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubStore) FindReservationByPaymentIntentID(context.Context, string) (*models.Reservation, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubStore) MarkOrderPaid(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (s *stubStore) MarkOrderFailed(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubStore) MarkReservationPaid(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (s *stubStore) MarkReservationFailed(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

type stubGateway struct{}

func (stubGateway) RetrieveCheckoutSession(context.Context, string) (*stripe.Session, error) {
	return nil, errors.New("gateway unavailable")
}

func (stubGateway) RetrievePaymentIntent(context.Context, string) (*stripe.Intent, error) {
	return nil, errors.New("gateway unavailable")
}

type stubNotifier struct{}

func (stubNotifier) OrderConfirmed(context.Context, *models.Order) error             { return nil }
func (stubNotifier) ReservationConfirmed(context.Context, *models.Reservation) error { return nil }

func newReconcileService(store *stubStore) *reconcile.Service {
	cfg := config.CheckoutConfig{ConfirmRetries: 1, ConfirmRetryBackoff: time.Millisecond}
	return reconcile.NewService(store, stubGateway{}, stubNotifier{}, cfg, nil, nil)
}

func TestCheckoutConfirmWithoutTokenRedirectsToShop(t *testing.T) {
	handler := CheckoutConfirm(newReconcileService(&stubStore{}), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/confirm", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/shop", w.Header().Get("Location"))
}

func TestCheckoutConfirmPaidOrder(t *testing.T) {
	sessionID := "cs_1"
	order := &models.Order{
		ID:                uuid.New(),
		CustomerEmail:     "jordan@example.com",
		TotalCents:        53892,
		Status:            enums.OrderStatusPaid,
		CheckoutSessionID: &sessionID,
	}
	handler := CheckoutConfirm(newReconcileService(&stubStore{order: order}), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/confirm?session_id=cs_1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data confirmationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "paid", envelope.Data.Status)
	assert.Equal(t, order.ID.String(), envelope.Data.Number)
}

func TestCheckoutRejectsInvalidBody(t *testing.T) {
	handler := Checkout(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"customer_email":"not-an-email"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// broadcast

type stubBroadcastSender struct {
	sent []mailer.Message
}

func (s *stubBroadcastSender) Send(_ context.Context, msg mailer.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func TestBroadcastCountsResults(t *testing.T) {
	sender := &stubBroadcastSender{}
	svc := broadcast.NewService(sender, 4, nil, nil)
	handler := Broadcast(svc, nil)

	body := `{
		"template_id": "d-news",
		"recipients": [
			{"email": "a@example.com"},
			{"name": "No Email"},
			{"email": "c@example.com"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/broadcast", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data broadcastResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, int64(2), envelope.Data.SuccessCount)
	assert.Equal(t, int64(1), envelope.Data.FailureCount)
	assert.Len(t, sender.sent, 2)
}

func TestBroadcastRequiresTemplate(t *testing.T) {
	svc := broadcast.NewService(&stubBroadcastSender{}, 4, nil, nil)
	handler := Broadcast(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/broadcast", strings.NewReader(`{"recipients":[{"email":"a@b.com"}]}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// session status via router for URL param extraction

func TestSessionStatusRequiresParam(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/api/v1/sessions/{sessionID}/status", SessionStatus(newReconcileService(&stubStore{}), nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/cs_missing/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Gateway stub returns no session; the service reports processing.
	assert.Equal(t, http.StatusAccepted, w.Code)
}
