package domain

import (
	"context"
	"errors"
)

type CreateOrderRequest struct {
	BuyerID           string
	SellerID          string
	BuyerEmail        string
	SellerEmail       string
	PayoutAccount     string
	ChargeReference   string
	TrackingReference string
	Currency          string
	ProductPrice      int64
	ShippingCost      int64
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, error)
	GetByID(ctx context.Context, id string) (Order, error)
}

var (
	ErrNotFound        = errors.New("order_not_found")
	ErrInvalidID       = errors.New("invalid_order_id")
	ErrInvalidBuyer    = errors.New("invalid_buyer")
	ErrInvalidSeller   = errors.New("invalid_seller")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidCharge   = errors.New("invalid_charge_reference")
)
