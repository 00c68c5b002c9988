package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evolv-devices/storefront-backend/pkg/db/models"
	"github.com/evolv-devices/storefront-backend/pkg/enums"
)

// Repository handles order and reservation persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to record operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// CreateOrder persists a new order row. Every order starts pending with an
// incomplete payment regardless of what the caller set.
func (r *Repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Status = enums.OrderStatusPending
	order.PaymentStatus = enums.PaymentStatusIncomplete
	order.NotifiedAt = nil
	return r.db.WithContext(ctx).Create(order).Error
}

// CreateReservation persists a new reservation row in the pending state.
func (r *Repository) CreateReservation(ctx context.Context, res *models.Reservation) error {
	if res == nil {
		return fmt.Errorf("reservation is required")
	}
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.Status = enums.OrderStatusPending
	res.PaymentStatus = enums.PaymentStatusIncomplete
	res.NotifiedAt = nil
	return r.db.WithContext(ctx).Create(res).Error
}

// FindOrderByID loads an order by its UUID.
func (r *Repository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderBySessionID loads an order by its checkout session correlation id.
func (r *Repository) FindOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("checkout_session_id = ?", sessionID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderByPaymentIntentID loads an order by its payment intent correlation id.
func (r *Repository) FindOrderByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", intentID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindReservationByID loads a reservation by its UUID.
func (r *Repository) FindReservationByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// FindReservationBySessionID loads a reservation by its checkout session id.
func (r *Repository) FindReservationBySessionID(ctx context.Context, sessionID string) (*models.Reservation, error) {
	var res models.Reservation
	if err := r.db.WithContext(ctx).
		Where("checkout_session_id = ?", sessionID).
		First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// FindReservationByPaymentIntentID loads a reservation by its payment intent id.
func (r *Repository) FindReservationByPaymentIntentID(ctx context.Context, intentID string) (*models.Reservation, error) {
	var res models.Reservation
	if err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", intentID).
		First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// AttachOrderSession records the gateway correlation ids on a freshly created
// order. The session id is set once; a second attach is refused.
func (r *Repository) AttachOrderSession(ctx context.Context, id uuid.UUID, sessionID string, intentID *string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND checkout_session_id IS NULL", id).
		Updates(map[string]any{
			"checkout_session_id": sessionID,
			"payment_intent_id":   intentID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %s already has a checkout session", id)
	}
	return nil
}

// AttachReservationSession records the gateway correlation ids on a reservation.
func (r *Repository) AttachReservationSession(ctx context.Context, id uuid.UUID, sessionID string, intentID *string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND checkout_session_id IS NULL", id).
		Updates(map[string]any{
			"checkout_session_id": sessionID,
			"payment_intent_id":   intentID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("reservation %s already has a checkout session", id)
	}
	return nil
}

// MarkOrderPaid finalizes a pending order. The conditional update is the
// arbiter under concurrent confirmations: exactly one caller sees won=true.
// The notified_at stamp rides the same write so the notification claim and
// the transition cannot diverge.
func (r *Repository) MarkOrderPaid(ctx context.Context, id uuid.UUID, intentID string) (bool, error) {
	updates := map[string]any{
		"status":         enums.OrderStatusPaid,
		"payment_status": enums.PaymentStatusCompleted,
		"notified_at":    time.Now().UTC(),
	}
	if intentID != "" {
		updates["payment_intent_id"] = intentID
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkOrderFailed moves a pending order into the terminal failed state.
func (r *Repository) MarkOrderFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Update("status", enums.OrderStatusFailed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkReservationPaid finalizes a pending reservation, same arbitration as orders.
func (r *Repository) MarkReservationPaid(ctx context.Context, id uuid.UUID, intentID string) (bool, error) {
	updates := map[string]any{
		"status":         enums.OrderStatusPaid,
		"payment_status": enums.PaymentStatusCompleted,
		"notified_at":    time.Now().UTC(),
	}
	if intentID != "" {
		updates["payment_intent_id"] = intentID
	}
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkReservationFailed moves a pending reservation into the failed state.
func (r *Repository) MarkReservationFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Update("status", enums.OrderStatusFailed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
