package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	escrowdomain "github.com/loopmarket/escrow/internal/escrow/domain"
	orderdomain "github.com/loopmarket/escrow/internal/order/domain"
)

type createOrderRequest struct {
	BuyerID           string `json:"buyer_id"`
	SellerID          string `json:"seller_id"`
	BuyerEmail        string `json:"buyer_email"`
	SellerEmail       string `json:"seller_email"`
	PayoutAccount     string `json:"payout_account"`
	ChargeReference   string `json:"charge_reference"`
	TrackingReference string `json:"tracking_reference"`
	Currency          string `json:"currency"`
	ProductPrice      int64  `json:"product_price"`
	ShippingCost      int64  `json:"shipping_cost"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateOrderRequest{
		BuyerID:           strings.TrimSpace(req.BuyerID),
		SellerID:          strings.TrimSpace(req.SellerID),
		BuyerEmail:        strings.TrimSpace(req.BuyerEmail),
		SellerEmail:       strings.TrimSpace(req.SellerEmail),
		PayoutAccount:     strings.TrimSpace(req.PayoutAccount),
		ChargeReference:   strings.TrimSpace(req.ChargeReference),
		TrackingReference: strings.TrimSpace(req.TrackingReference),
		Currency:          strings.TrimSpace(req.Currency),
		ProductPrice:      req.ProductPrice,
		ShippingCost:      req.ShippingCost,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrderByID(c *gin.Context) {
	resp, err := s.orderSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type confirmReceiptRequest struct {
	BuyerID string `json:"buyer_id"`
}

// ConfirmReceipt is the buyer's "I received the item" action. Losing the race
// against the automatic sweep is not an error: the response reports the
// payment as already processed.
func (s *Server) ConfirmReceipt(c *gin.Context) {
	var req confirmReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.BuyerID) == "" {
		AbortWithError(c, newValidationError("buyer_id", "invalid_buyer", "buyer_id is required"))
		return
	}

	resp, err := s.escrowSvc.RequestManualRelease(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.BuyerID))
	if err != nil {
		if errors.Is(err, escrowdomain.ErrAlreadyReleased) {
			c.JSON(http.StatusOK, gin.H{"data": escrowdomain.ManualReleaseResult{
				Outcome: escrowdomain.OutcomeAlreadyProcessed,
			}})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
