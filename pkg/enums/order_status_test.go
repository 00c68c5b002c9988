package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, valid := range []string{"pending", "paid", "failed"} {
		status, err := ParseOrderStatus(valid)
		if err != nil {
			t.Fatalf("expected %q to parse, got %v", valid, err)
		}
		if !status.IsValid() {
			t.Fatalf("parsed status %q should be valid", valid)
		}
	}
	if _, err := ParseOrderStatus("refunded"); err == nil {
		t.Fatalf("unknown status should be rejected")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if OrderStatusPending.IsTerminal() {
		t.Fatalf("pending is not terminal")
	}
	if !OrderStatusPaid.IsTerminal() || !OrderStatusFailed.IsTerminal() {
		t.Fatalf("paid and failed are terminal")
	}
}

func TestParsePaymentStatus(t *testing.T) {
	if _, err := ParsePaymentStatus("completed"); err != nil {
		t.Fatalf("completed should parse: %v", err)
	}
	if _, err := ParsePaymentStatus("settled"); err == nil {
		t.Fatalf("unknown payment status should be rejected")
	}
}
