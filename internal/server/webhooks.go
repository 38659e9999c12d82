package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/loopmarket/escrow/internal/order/domain"
	shipmentdomain "github.com/loopmarket/escrow/internal/shipment/domain"
)

func (s *Server) HandleCarrierWebhook(c *gin.Context) {
	carrier := strings.TrimSpace(c.Param("carrier"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.shipmentSvc.IngestWebhook(c.Request.Context(), carrier, payload, c.Request.Header)
	if err != nil {
		// Redeliveries and events for unknown tracking numbers are
		// acknowledged so the carrier stops retrying.
		if errors.Is(err, shipmentdomain.ErrEventAlreadyProcessed) ||
			errors.Is(err, orderdomain.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
