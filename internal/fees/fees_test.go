package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeBreakdown(t *testing.T) {
	cases := []struct {
		name         string
		productPrice int64
		shippingCost int64
		wantFee      int64
		wantTotal    int64
		wantSeller   int64
	}{
		{"hundred pounds with shipping", 10000, 500, 570, 11070, 10500},
		{"one pound no shipping", 100, 0, 75, 175, 100},
		{"zero price floors at minimum", 0, 0, 70, 70, 0},
		{"rounding up", 1010, 0, 121, 1131, 1010},
		{"shipping excluded from fee", 2000, 99900, 170, 102070, 101900},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeBreakdown(tc.productPrice, tc.shippingCost)
			assert.Equal(t, tc.wantFee, got.ProtectionFee)
			assert.Equal(t, tc.wantTotal, got.TotalBuyerPays)
			assert.Equal(t, tc.wantSeller, got.SellerReceives)
		})
	}
}

func TestComputeBreakdownDeterministic(t *testing.T) {
	a := ComputeBreakdown(10000, 500)
	b := ComputeBreakdown(10000, 500)
	assert.Equal(t, a, b)
}
