package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		in   string
		want OrderStatus
		ok   bool
	}{
		{"Pending", OrderPending, true},
		{"shipped", OrderShipped, true},
		{"En cours", OrderPending, true},
		{"Expédiée", OrderShipped, true},
		{" Livrée ", OrderDelivered, true},
		{"Annulée", OrderCancelled, true},
		{"Processing", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseOrderStatus(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParsePaymentStatus(t *testing.T) {
	st, ok := ParsePaymentStatus("Payé")
	assert.True(t, ok)
	assert.Equal(t, PaymentPaid, st)

	_, ok = ParsePaymentStatus("refunded")
	assert.False(t, ok)
}

func TestOrderItemSubtotal(t *testing.T) {
	it := OrderItem{Price: decimal.RequireFromString("10.25"), Quantity: 3}
	assert.True(t, it.Subtotal().Equal(decimal.RequireFromString("30.75")))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleAdmin))
	assert.True(t, ValidRole(RoleUser))
	assert.False(t, ValidRole("root"))
}
