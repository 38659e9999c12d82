package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/loopmarket/escrow/internal/fees"
)

// CheckoutQuote prices the protection fee for a prospective order without
// creating anything.
func (s *Server) CheckoutQuote(c *gin.Context) {
	productPrice, err := parseAmount(c.Query("product_price"))
	if err != nil || productPrice <= 0 {
		AbortWithError(c, newValidationError("product_price", "invalid_product_price", "product_price must be a positive integer in minor units"))
		return
	}

	shippingCost := int64(0)
	if raw := c.Query("shipping_cost"); raw != "" {
		shippingCost, err = parseAmount(raw)
		if err != nil || shippingCost < 0 {
			AbortWithError(c, newValidationError("shipping_cost", "invalid_shipping_cost", "shipping_cost must be a non-negative integer in minor units"))
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": fees.ComputeBreakdown(productPrice, shippingCost)})
}

func parseAmount(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
