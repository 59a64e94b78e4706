package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipping, false},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusShipping, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusShipping, StatusCompleted, true},
		{StatusShipping, StatusCancelled, true},
		{StatusShipping, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, s := range []string{"pending", "confirmed", "shipping", "completed", "cancelled"} {
		if _, ok := ParseOrderStatus(s); !ok {
			t.Errorf("expected %q to parse", s)
		}
	}
	for _, s := range []string{"", "PENDING", "shipped", "canceled"} {
		if _, ok := ParseOrderStatus(s); ok {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !StatusCompleted.IsTerminal() || !StatusCancelled.IsTerminal() {
		t.Fatalf("completed and cancelled must be terminal")
	}
	if StatusPending.IsTerminal() {
		t.Fatalf("pending must not be terminal")
	}
}

func TestOrderItemSubtotal(t *testing.T) {
	it := OrderItem{Quantity: 3, Price: decimal.RequireFromString("2.50")}
	if !it.Subtotal().Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("subtotal = %s", it.Subtotal())
	}
}
