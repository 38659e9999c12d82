package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// HoldStatus is the payment-hold state of an order. Only HELD orders are
// eligible for release; RELEASED is terminal for this engine, DISPUTED and
// REFUNDED are exits owned by the dispute tooling.
type HoldStatus string

const (
	HoldStatusHeld     HoldStatus = "held"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusDisputed HoldStatus = "disputed"
	HoldStatusRefunded HoldStatus = "refunded"
)

type ShipmentStatus string

const (
	ShipmentStatusPending        ShipmentStatus = "pending"
	ShipmentStatusPreTransit     ShipmentStatus = "pre_transit"
	ShipmentStatusInTransit      ShipmentStatus = "in_transit"
	ShipmentStatusOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentStatusDelivered      ShipmentStatus = "delivered"
	ShipmentStatusReturned       ShipmentStatus = "returned"
	ShipmentStatusFailed         ShipmentStatus = "failed"
	ShipmentStatusCancelled      ShipmentStatus = "cancelled"
)

type PayoutExecutionStatus string

const (
	PayoutExecutionPending   PayoutExecutionStatus = "pending"
	PayoutExecutionCompleted PayoutExecutionStatus = "completed"
)

// Order is the aggregate root of the escrow engine. Monetary amounts are in
// minor currency units. SellerPayoutAmount is fixed at creation time.
type Order struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	BuyerID  snowflake.ID `gorm:"not null;index" json:"buyer_id"`
	SellerID snowflake.ID `gorm:"not null;index" json:"seller_id"`

	BuyerEmail    string `gorm:"type:text" json:"buyer_email,omitempty"`
	SellerEmail   string `gorm:"type:text" json:"seller_email,omitempty"`
	PayoutAccount string `gorm:"type:text" json:"payout_account,omitempty"`

	// ChargeReference is the processor-side charge collected at checkout.
	ChargeReference   string `gorm:"type:text;not null" json:"charge_reference"`
	TrackingReference string `gorm:"type:text;index" json:"tracking_reference,omitempty"`

	Currency           string `gorm:"type:text;not null" json:"currency"`
	AmountTotal        int64  `gorm:"not null" json:"amount_total"`
	ProtectionFee      int64  `gorm:"not null" json:"protection_fee"`
	SellerPayoutAmount int64  `gorm:"not null" json:"seller_payout_amount"`

	PaymentHoldStatus HoldStatus     `gorm:"type:text;not null;index" json:"payment_hold_status"`
	ShipmentStatus    ShipmentStatus `gorm:"type:text;not null" json:"shipment_status"`

	ShippedAt        *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	AutoReleaseAt    *time.Time `gorm:"index" json:"auto_release_at,omitempty"`
	BuyerConfirmedAt *time.Time `json:"buyer_confirmed_at,omitempty"`

	// TransferReference is set exactly once by the release executor. Its
	// presence is the authoritative guard against a second transfer.
	TransferReference     *string               `gorm:"type:text" json:"transfer_reference,omitempty"`
	PayoutExecutionStatus PayoutExecutionStatus `gorm:"type:text;not null" json:"payout_execution_status"`
	ReleasedAt            *time.Time            `json:"released_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Releasable reports whether the hold can still move to RELEASED.
func (o *Order) Releasable() bool {
	return o.PaymentHoldStatus == HoldStatusHeld && o.TransferReference == nil
}
