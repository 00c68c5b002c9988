package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evolv-devices/storefront-backend/pkg/enums"
)

const reservationNumberPrefix = "EV-"

// Reservation represents a refundable deposit holding a place in line.
type Reservation struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerEmail     string              `gorm:"column:customer_email;not null"`
	CustomerName      *string             `gorm:"column:customer_name"`
	DepositCents      int64               `gorm:"column:deposit_cents;not null"`
	Currency          string              `gorm:"column:currency;not null;default:'usd'"`
	CheckoutSessionID *string             `gorm:"column:checkout_session_id;uniqueIndex"`
	PaymentIntentID   *string             `gorm:"column:payment_intent_id;uniqueIndex"`
	Status            enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'incomplete'"`
	NotifiedAt        *time.Time          `gorm:"column:notified_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Number derives the human-facing reservation number from the record id:
// the last six characters, uppercased, behind the EV- prefix.
func (r *Reservation) Number() string {
	if r == nil {
		return ""
	}
	id := r.ID.String()
	if len(id) < 6 {
		return reservationNumberPrefix + strings.ToUpper(id)
	}
	return reservationNumberPrefix + strings.ToUpper(id[len(id)-6:])
}

// Deposit returns the deposit amount in major units at cent precision.
func (r *Reservation) Deposit() decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(r.DepositCents).Shift(-2)
}
