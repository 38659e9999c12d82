// Package fees computes the buyer protection fee and seller payout for an
// order. It is the single authority for these amounts: checkout quoting and
// order creation both go through ComputeBreakdown so the two paths can never
// disagree on a fee.
package fees

import "math"

const (
	// protectionRate is applied to the product price only, never shipping.
	protectionRate = 0.05
	// fixedFee and minimumFee are in minor currency units.
	fixedFee   = 70
	minimumFee = 70
)

// Breakdown is the amount split for a single order, in minor currency units.
type Breakdown struct {
	ProductPrice   int64 `json:"product_price"`
	ShippingCost   int64 `json:"shipping_cost"`
	ProtectionFee  int64 `json:"protection_fee"`
	TotalBuyerPays int64 `json:"total_buyer_pays"`
	SellerReceives int64 `json:"seller_receives"`
}

// ComputeBreakdown is pure and deterministic. The seller keeps 100% of the
// product price plus shipping; platform revenue is the protection fee.
func ComputeBreakdown(productPrice, shippingCost int64) Breakdown {
	fee := int64(math.Round(float64(productPrice)*protectionRate)) + fixedFee
	if fee < minimumFee {
		fee = minimumFee
	}

	return Breakdown{
		ProductPrice:   productPrice,
		ShippingCost:   shippingCost,
		ProtectionFee:  fee,
		TotalBuyerPays: productPrice + shippingCost + fee,
		SellerReceives: productPrice + shippingCost,
	}
}
