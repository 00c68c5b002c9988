package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evolv-devices/storefront-backend/pkg/enums"
)

// Order represents a purchase of hardware plus an optional subscription plan.
// The record id doubles as the human-facing order number.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	CustomerEmail     string                `gorm:"column:customer_email;not null"`
	CustomerName      *string               `gorm:"column:customer_name"`
	SubtotalCents     int64                 `gorm:"column:subtotal_cents;not null"`
	TaxCents          int64                 `gorm:"column:tax_cents;not null;default:0"`
	TotalCents        int64                 `gorm:"column:total_cents;not null"`
	Currency          string                `gorm:"column:currency;not null;default:'usd'"`
	PlanInterval      *enums.BillingInterval `gorm:"column:plan_interval;type:text"`
	CheckoutSessionID *string               `gorm:"column:checkout_session_id;uniqueIndex"`
	PaymentIntentID   *string               `gorm:"column:payment_intent_id;uniqueIndex"`
	Status            enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null;default:'incomplete'"`
	NotifiedAt        *time.Time            `gorm:"column:notified_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// Number returns the human-facing order number: the record id verbatim.
func (o *Order) Number() string {
	if o == nil {
		return ""
	}
	return o.ID.String()
}

// Total returns the order total in major units at cent precision.
func (o *Order) Total() decimal.Decimal {
	if o == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(o.TotalCents).Shift(-2)
}
