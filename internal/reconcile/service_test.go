package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evolv-devices/storefront-backend/internal/checkout"
	"github.com/evolv-devices/storefront-backend/pkg/config"
	"github.com/evolv-devices/storefront-backend/pkg/db/models"
	"github.com/evolv-devices/storefront-backend/pkg/enums"
	"github.com/evolv-devices/storefront-backend/pkg/stripe"
)

type fakeStore struct {
	orders       map[uuid.UUID]*models.Order
	reservations map[uuid.UUID]*models.Reservation
	lookups      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:       map[uuid.UUID]*models.Order{},
		reservations: map[uuid.UUID]*models.Reservation{},
	}
}

func (f *fakeStore) FindOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := f.orders[id]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) FindOrderBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	f.lookups++
	for _, order := range f.orders {
		if order.CheckoutSessionID != nil && *order.CheckoutSessionID == sessionID {
			return order, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) FindOrderByPaymentIntentID(_ context.Context, intentID string) (*models.Order, error) {
	f.lookups++
	for _, order := range f.orders {
		if order.PaymentIntentID != nil && *order.PaymentIntentID == intentID {
			return order, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) FindReservationByID(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	if res, ok := f.reservations[id]; ok {
		return res, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) FindReservationBySessionID(_ context.Context, sessionID string) (*models.Reservation, error) {
	f.lookups++
	for _, res := range f.reservations {
		if res.CheckoutSessionID != nil && *res.CheckoutSessionID == sessionID {
			return res, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) FindReservationByPaymentIntentID(_ context.Context, intentID string) (*models.Reservation, error) {
	f.lookups++
	for _, res := range f.reservations {
		if res.PaymentIntentID != nil && *res.PaymentIntentID == intentID {
			return res, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) MarkOrderPaid(_ context.Context, id uuid.UUID, intentID string) (bool, error) {
	order, ok := f.orders[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if order.Status != enums.OrderStatusPending {
		return false, nil
	}
	order.Status = enums.OrderStatusPaid
	order.PaymentStatus = enums.PaymentStatusCompleted
	if intentID != "" {
		order.PaymentIntentID = &intentID
	}
	return true, nil
}

func (f *fakeStore) MarkOrderFailed(_ context.Context, id uuid.UUID) (bool, error) {
	order, ok := f.orders[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if order.Status != enums.OrderStatusPending {
		return false, nil
	}
	order.Status = enums.OrderStatusFailed
	return true, nil
}

func (f *fakeStore) MarkReservationPaid(_ context.Context, id uuid.UUID, intentID string) (bool, error) {
	res, ok := f.reservations[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if res.Status != enums.OrderStatusPending {
		return false, nil
	}
	res.Status = enums.OrderStatusPaid
	res.PaymentStatus = enums.PaymentStatusCompleted
	if intentID != "" {
		res.PaymentIntentID = &intentID
	}
	return true, nil
}

func (f *fakeStore) MarkReservationFailed(_ context.Context, id uuid.UUID) (bool, error) {
	res, ok := f.reservations[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if res.Status != enums.OrderStatusPending {
		return false, nil
	}
	res.Status = enums.OrderStatusFailed
	return true, nil
}

type fakeGateway struct {
	sessions     map[string]*stripe.Session
	intents      map[string]*stripe.Intent
	sessionErr   error
	intentErr    error
	sessionCalls int
	intentCalls  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions: map[string]*stripe.Session{},
		intents:  map[string]*stripe.Intent{},
	}
}

func (f *fakeGateway) RetrieveCheckoutSession(_ context.Context, sessionID string) (*stripe.Session, error) {
	f.sessionCalls++
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	if session, ok := f.sessions[sessionID]; ok {
		return session, nil
	}
	return nil, errors.New("no such session")
}

func (f *fakeGateway) RetrievePaymentIntent(_ context.Context, intentID string) (*stripe.Intent, error) {
	f.intentCalls++
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	if intent, ok := f.intents[intentID]; ok {
		return intent, nil
	}
	return nil, errors.New("no such intent")
}

type fakeNotifier struct {
	orders       []*models.Order
	reservations []*models.Reservation
	err          error
}

func (f *fakeNotifier) OrderConfirmed(_ context.Context, order *models.Order) error {
	f.orders = append(f.orders, order)
	return f.err
}

func (f *fakeNotifier) ReservationConfirmed(_ context.Context, res *models.Reservation) error {
	f.reservations = append(f.reservations, res)
	return f.err
}

func newTestService(store *fakeStore, gateway *fakeGateway, notifier *fakeNotifier) *Service {
	cfg := config.CheckoutConfig{
		ConfirmRetries:      3,
		ConfirmRetryBackoff: time.Millisecond,
	}
	svc := NewService(store, gateway, notifier, cfg, nil, nil)
	svc.sleep = func(context.Context, time.Duration) {}
	return svc
}

func pendingOrder(store *fakeStore, sessionID string) *models.Order {
	order := &models.Order{
		ID:                uuid.New(),
		CustomerEmail:     "jordan@example.com",
		TotalCents:        53892,
		Currency:          "usd",
		Status:            enums.OrderStatusPending,
		PaymentStatus:     enums.PaymentStatusIncomplete,
		CheckoutSessionID: &sessionID,
	}
	store.orders[order.ID] = order
	return order
}

func TestConfirmOrderEmptyTokenRedirectsWithoutGateway(t *testing.T) {
	gateway := newFakeGateway()
	svc := newTestService(newFakeStore(), gateway, &fakeNotifier{})

	result, err := svc.ConfirmOrder(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedirect, result.Outcome)
	assert.Zero(t, gateway.sessionCalls)
	assert.Zero(t, gateway.intentCalls)
}

func TestConfirmOrderUnknownTokenBoundedReRead(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, gateway, &fakeNotifier{})

	result, err := svc.ConfirmOrder(context.Background(), "cs_missing")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedirect, result.Outcome)
	// Two lookups (intent, session) per attempt, three attempts.
	assert.Equal(t, 6, store.lookups)
	assert.Zero(t, gateway.sessionCalls)
}

func TestConfirmOrderAlreadyPaidIsIdempotentRead(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}
	svc := newTestService(store, gateway, notifier)

	order := pendingOrder(store, "cs_1")
	order.Status = enums.OrderStatusPaid

	result, err := svc.ConfirmOrder(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.Equal(t, order.ID.String(), result.Number)
	assert.Zero(t, gateway.sessionCalls)
	assert.Empty(t, notifier.orders)
}

func TestConfirmOrderGatewayErrorIsProcessing(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	gateway.sessionErr = errors.New("stripe 500")
	notifier := &fakeNotifier{}
	svc := newTestService(store, gateway, notifier)

	order := pendingOrder(store, "cs_1")

	result, err := svc.ConfirmOrder(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessing, result.Outcome)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Empty(t, notifier.orders)
}

func TestConfirmOrderUnpaidSessionLeavesRowUntouched(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}
	svc := newTestService(store, gateway, notifier)

	order := pendingOrder(store, "cs_1")
	gateway.sessions["cs_1"] = &stripe.Session{ID: "cs_1", PaymentStatus: "unpaid"}

	result, err := svc.ConfirmOrder(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotPaid, result.Outcome)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Empty(t, notifier.orders)
}

func TestConfirmOrderPaidSessionFinalizesAndNotifiesOnce(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}
	svc := newTestService(store, gateway, notifier)

	order := pendingOrder(store, "cs_1")
	gateway.sessions["cs_1"] = &stripe.Session{
		ID:              "cs_1",
		PaymentStatus:   "paid",
		PaymentIntentID: "pi_1",
	}

	result, err := svc.ConfirmOrder(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	require.Len(t, notifier.orders, 1)

	// Second confirmation is a pure read: no second notification.
	result, err = svc.ConfirmOrder(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.Len(t, notifier.orders, 1)
}

func TestConfirmOrderNotificationFailureKeepsPaidState(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	notifier := &fakeNotifier{err: errors.New("sendgrid down")}
	svc := newTestService(store, gateway, notifier)

	order := pendingOrder(store, "cs_1")
	gateway.sessions["cs_1"] = &stripe.Session{ID: "cs_1", PaymentStatus: "paid", PaymentIntentID: "pi_1"}

	result, err := svc.ConfirmOrder(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
}

func TestConfirmOrderCanceledIntentMarksFailed(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}
	svc := newTestService(store, gateway, notifier)

	order := pendingOrder(store, "cs_1")
	gateway.sessions["cs_1"] = &stripe.Session{ID: "cs_1", PaymentStatus: "unpaid", PaymentIntentID: "pi_1"}
	gateway.intents["pi_1"] = &stripe.Intent{ID: "pi_1", Status: "canceled"}

	result, err := svc.ConfirmOrder(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotPaid, result.Outcome)
	assert.Equal(t, enums.OrderStatusFailed, order.Status)
	assert.Empty(t, notifier.orders)
}

func TestConfirmOrderSucceededIntentOverridesLaggingSession(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}
	svc := newTestService(store, gateway, notifier)

	order := pendingOrder(store, "cs_1")
	gateway.sessions["cs_1"] = &stripe.Session{ID: "cs_1", PaymentStatus: "unpaid", PaymentIntentID: "pi_1"}
	gateway.intents["pi_1"] = &stripe.Intent{ID: "pi_1", Status: "succeeded"}

	result, err := svc.ConfirmOrder(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	require.Len(t, notifier.orders, 1)
}

func TestConfirmReservationPaidFlow(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}
	svc := newTestService(store, gateway, notifier)

	sessionID := "cs_res_1"
	res := &models.Reservation{
		ID:                uuid.MustParse("2f1c9a44-8a1b-4a51-9a7e-0d3c41ab9f2e"),
		CustomerEmail:     "jordan@example.com",
		DepositCents:      499,
		Status:            enums.OrderStatusPending,
		CheckoutSessionID: &sessionID,
	}
	store.reservations[res.ID] = res
	gateway.sessions[sessionID] = &stripe.Session{ID: sessionID, PaymentStatus: "paid", PaymentIntentID: "pi_r1"}

	result, err := svc.ConfirmReservation(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.Equal(t, "EV-AB9F2E", result.Number)
	require.Len(t, notifier.reservations, 1)
}

func TestSessionStatusPaidAppliesTransition(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}
	svc := newTestService(store, gateway, notifier)

	order := pendingOrder(store, "cs_1")
	gateway.sessions["cs_1"] = &stripe.Session{
		ID:              "cs_1",
		PaymentStatus:   "paid",
		PaymentIntentID: "pi_1",
		Metadata:        map[string]string{checkout.MetadataOrderID: order.ID.String()},
	}

	result, err := svc.SessionStatus(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	require.Len(t, notifier.orders, 1)
}

func TestSessionStatusUnpaidReportsRecordState(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, gateway, &fakeNotifier{})

	order := pendingOrder(store, "cs_1")
	gateway.sessions["cs_1"] = &stripe.Session{
		ID:            "cs_1",
		PaymentStatus: "unpaid",
		Metadata:      map[string]string{checkout.MetadataOrderID: order.ID.String()},
	}

	result, err := svc.SessionStatus(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotPaid, result.Outcome)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
}

func TestSessionStatusGatewayErrorIsProcessing(t *testing.T) {
	gateway := newFakeGateway()
	gateway.sessionErr = errors.New("stripe 503")
	svc := newTestService(newFakeStore(), gateway, &fakeNotifier{})

	result, err := svc.SessionStatus(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessing, result.Outcome)
}

func TestSessionStatusWithoutMetadataRedirects(t *testing.T) {
	gateway := newFakeGateway()
	gateway.sessions["cs_1"] = &stripe.Session{ID: "cs_1", PaymentStatus: "paid"}
	svc := newTestService(newFakeStore(), gateway, &fakeNotifier{})

	result, err := svc.SessionStatus(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedirect, result.Outcome)
}
