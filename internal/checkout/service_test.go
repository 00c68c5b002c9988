package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolv-devices/storefront-backend/pkg/config"
	"github.com/evolv-devices/storefront-backend/pkg/db/models"
	"github.com/evolv-devices/storefront-backend/pkg/enums"
	pkgerrors "github.com/evolv-devices/storefront-backend/pkg/errors"
	"github.com/evolv-devices/storefront-backend/pkg/stripe"
)

type fakeStore struct {
	orders       []*models.Order
	reservations []*models.Reservation
	attached     map[uuid.UUID]string
	createErr    error
	attachErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{attached: map[uuid.UUID]string{}}
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	order.ID = uuid.New()
	order.Status = enums.OrderStatusPending
	f.orders = append(f.orders, order)
	return nil
}

func (f *fakeStore) CreateReservation(_ context.Context, res *models.Reservation) error {
	if f.createErr != nil {
		return f.createErr
	}
	res.ID = uuid.New()
	res.Status = enums.OrderStatusPending
	f.reservations = append(f.reservations, res)
	return nil
}

func (f *fakeStore) AttachOrderSession(_ context.Context, id uuid.UUID, sessionID string, _ *string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached[id] = sessionID
	return nil
}

func (f *fakeStore) AttachReservationSession(_ context.Context, id uuid.UUID, sessionID string, _ *string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached[id] = sessionID
	return nil
}

type fakeGateway struct {
	lastParams stripe.SessionParams
	session    *stripe.Session
	err        error
	calls      int
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, params stripe.SessionParams) (*stripe.Session, error) {
	f.calls++
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func testConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		SuccessURL:            "https://shop.evolv.example/checkout/confirm?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:             "https://shop.evolv.example/checkout",
		ReservationSuccessURL: "https://shop.evolv.example/reserve/confirm?session_id={CHECKOUT_SESSION_ID}",
		Currency:              "usd",
		DepositCents:          499,
	}
}

func TestBeginOrderCreatesPendingRowBeforeSession(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{session: &stripe.Session{ID: "cs_1", URL: "https://pay"}}
	svc := NewService(store, gateway, testConfig(), nil)

	result, err := svc.BeginOrder(context.Background(), BeginOrderInput{
		CustomerEmail: "jordan@example.com",
		Items:         []OrderItem{{Name: "Evolv One", UnitAmountCents: 49900, Quantity: 1}},
		TaxCents:      3992,
	})
	require.NoError(t, err)

	require.Len(t, store.orders, 1)
	order := store.orders[0]
	assert.Equal(t, int64(49900), order.SubtotalCents)
	assert.Equal(t, int64(53892), order.TotalCents)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	assert.Equal(t, order.ID.String(), gateway.lastParams.Metadata[MetadataOrderID])
	assert.Equal(t, "cs_1", store.attached[order.ID])
	assert.Equal(t, "cs_1", result.SessionID)
	assert.Equal(t, order.ID.String(), result.Number)
}

func TestBeginOrderValidation(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeGateway{}, testConfig(), nil)

	cases := []struct {
		name  string
		input BeginOrderInput
	}{
		{name: "missing email", input: BeginOrderInput{
			Items: []OrderItem{{Name: "Evolv One", UnitAmountCents: 100, Quantity: 1}},
		}},
		{name: "no items", input: BeginOrderInput{CustomerEmail: "a@b.com"}},
		{name: "zero amount", input: BeginOrderInput{
			CustomerEmail: "a@b.com",
			Items:         []OrderItem{{Name: "Evolv One", UnitAmountCents: 0, Quantity: 1}},
		}},
		{name: "negative tax", input: BeginOrderInput{
			CustomerEmail: "a@b.com",
			Items:         []OrderItem{{Name: "Evolv One", UnitAmountCents: 100, Quantity: 1}},
			TaxCents:      -1,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.BeginOrder(context.Background(), tc.input)
			require.Error(t, err)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestBeginOrderGatewayFailureLeavesPendingRow(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{err: pkgerrors.New(pkgerrors.CodeGateway, "stripe unavailable")}
	svc := NewService(store, gateway, testConfig(), nil)

	_, err := svc.BeginOrder(context.Background(), BeginOrderInput{
		CustomerEmail: "jordan@example.com",
		Items:         []OrderItem{{Name: "Evolv One", UnitAmountCents: 49900, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeGateway, pkgerrors.As(err).Code())

	// Row created before the gateway call survives the failure.
	require.Len(t, store.orders, 1)
	assert.Empty(t, store.attached)
}

func TestBeginOrderSubscriptionItemSetsPlanInterval(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{session: &stripe.Session{ID: "cs_sub"}}
	svc := NewService(store, gateway, testConfig(), nil)

	month := enums.BillingIntervalMonth
	_, err := svc.BeginOrder(context.Background(), BeginOrderInput{
		CustomerEmail: "jordan@example.com",
		Items: []OrderItem{
			{Name: "Evolv One", UnitAmountCents: 49900, Quantity: 1},
			{Name: "Evolv Care", UnitAmountCents: 999, Quantity: 1, RecurringInterval: &month},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, store.orders[0].PlanInterval)
	assert.Equal(t, enums.BillingIntervalMonth, *store.orders[0].PlanInterval)
	assert.Equal(t, enums.BillingIntervalMonth, gateway.lastParams.LineItems[1].RecurringInterval)
}

func TestBeginReservationUsesFixedDeposit(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{session: &stripe.Session{ID: "cs_res"}}
	svc := NewService(store, gateway, testConfig(), nil)

	name := "Jordan"
	result, err := svc.BeginReservation(context.Background(), BeginReservationInput{
		CustomerEmail: "jordan@example.com",
		CustomerName:  &name,
	})
	require.NoError(t, err)

	require.Len(t, store.reservations, 1)
	res := store.reservations[0]
	assert.Equal(t, int64(499), res.DepositCents)
	assert.Equal(t, res.ID.String(), gateway.lastParams.Metadata[MetadataReservationID])
	require.Len(t, gateway.lastParams.LineItems, 1)
	assert.Equal(t, int64(499), gateway.lastParams.LineItems[0].UnitAmountCents)
	assert.Contains(t, result.Number, "EV-")
}

func TestBeginReservationStoreFailureSkipsGateway(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("db down")
	gateway := &fakeGateway{}
	svc := NewService(store, gateway, testConfig(), nil)

	_, err := svc.BeginReservation(context.Background(), BeginReservationInput{
		CustomerEmail: "jordan@example.com",
	})
	require.Error(t, err)
	assert.Zero(t, gateway.calls)
}
