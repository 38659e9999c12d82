package domain

import (
	"testing"

	orderdomain "github.com/loopmarket/escrow/internal/order/domain"
)

func TestMapCarrierStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want orderdomain.ShipmentStatus
	}{
		{"DELIVERED", orderdomain.ShipmentStatusDelivered},
		{"delivered", orderdomain.ShipmentStatusDelivered},
		{"Out For Delivery", orderdomain.ShipmentStatusOutForDelivery},
		{"label_created", orderdomain.ShipmentStatusPreTransit},
		{"PRE_TRANSIT", orderdomain.ShipmentStatusPreTransit},
		{"TRANSIT", orderdomain.ShipmentStatusInTransit},
		{"return_to_sender", orderdomain.ShipmentStatusReturned},
		{"FAILURE", orderdomain.ShipmentStatusFailed},
		{"canceled", orderdomain.ShipmentStatusCancelled},
		{"cancelled", orderdomain.ShipmentStatusCancelled},
		{"pending", orderdomain.ShipmentStatusPending},
		// Anything the table does not know keeps the parcel moving.
		{"teleporting", orderdomain.ShipmentStatusInTransit},
		{"", orderdomain.ShipmentStatusInTransit},
	}

	for _, tc := range cases {
		if got := MapCarrierStatus(tc.raw); got != tc.want {
			t.Errorf("MapCarrierStatus(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}
