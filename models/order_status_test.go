package models

import "testing"

func TestDeriveOrderStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  OrderStatus
		qty      int
		shipped  int
		returned int
		want     OrderStatus
	}{
		{"nothing moved keeps current", OrderStatusPending, 10, 0, 0, OrderStatusPending},
		{"confirmed stays confirmed before shipping", OrderStatusConfirmed, 10, 0, 0, OrderStatusConfirmed},
		{"partial shipment", OrderStatusConfirmed, 10, 4, 0, OrderStatusPartialShipped},
		{"fully shipped", OrderStatusPartialShipped, 10, 10, 0, OrderStatusShipped},
		{"over-shipped still shipped", OrderStatusPartialShipped, 10, 11, 0, OrderStatusShipped},
		{"partial return", OrderStatusShipped, 10, 10, 3, OrderStatusPartialReturned},
		{"everything shipped came back", OrderStatusShipped, 10, 10, 10, OrderStatusReturned},
		{"return of a partial shipment", OrderStatusPartialShipped, 10, 4, 4, OrderStatusReturned},
		{"zero qty order never reports shipped", OrderStatusPending, 0, 0, 0, OrderStatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveOrderStatus(tt.current, tt.qty, tt.shipped, tt.returned)
			if got != tt.want {
				t.Errorf("deriveOrderStatus(%q, %d, %d, %d) = %q, want %q",
					tt.current, tt.qty, tt.shipped, tt.returned, got, tt.want)
			}
		})
	}
}

func TestAvailableStock(t *testing.T) {
	tests := []struct {
		name      string
		physical  int
		allocated int
		want      int
	}{
		{"headroom", 10, 4, 6},
		{"fully reserved", 10, 10, 0},
		{"over-reserved reads negative", 4, 6, -2},
		{"negative physical", -2, 0, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv := &ProductVariant{PhysicalStock: tt.physical, AllocatedStock: tt.allocated}
			if got := pv.AvailableStock(); got != tt.want {
				t.Errorf("AvailableStock() = %d, want %d", got, tt.want)
			}
		})
	}
}
