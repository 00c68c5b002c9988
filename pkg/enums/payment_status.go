package enums

import "fmt"

// PaymentStatus mirrors the gateway-facing payment state of a record.
type PaymentStatus string

const (
	PaymentStatusIncomplete PaymentStatus = "incomplete"
	PaymentStatusCompleted  PaymentStatus = "completed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusIncomplete,
	PaymentStatusCompleted,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
