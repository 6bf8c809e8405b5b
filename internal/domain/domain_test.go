package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderNumber(t *testing.T) {
	cases := []struct {
		orderID string
		want    string
	}{
		{"ORD123456", "123456"},
		{"a1b2c3d4e5f6", "d4e5f6"},
		{"123456", "123456"},
		{"123", "123"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, OrderNumber(tc.orderID), "orderID %q", tc.orderID)
	}
}

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to SessionStatus
		want     bool
	}{
		{SessionStatusActive, SessionStatusResolved, true},
		{SessionStatusActive, SessionStatusClosed, true},
		{SessionStatusResolved, SessionStatusClosed, true},
		{SessionStatusResolved, SessionStatusActive, true},
		{SessionStatusClosed, SessionStatusActive, false},
		{SessionStatusClosed, SessionStatusResolved, false},
		{SessionStatusActive, SessionStatusActive, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "Unknown", PlaceholderCustomer().Name)

	order := PlaceholderOrder("ORD123456")
	assert.Equal(t, "123456", order.OrderNumber)
	assert.Equal(t, "Unknown", order.Status)
	assert.Zero(t, order.TotalAmount)
}
