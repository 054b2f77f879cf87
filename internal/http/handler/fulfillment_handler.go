package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/medev213/darksmart/internal/http/middleware"
	"github.com/medev213/darksmart/internal/service"
)

// FulfillmentHandler exposes the assistant fulfillment endpoint. The
// bearer middleware runs first, so the token subject is already
// verified by the time Handle sees the request.
type FulfillmentHandler struct {
	Fulfillment *service.FulfillmentService
	Logger      *zap.Logger
}

// Handle serves POST /fulfillment for all four intents.
func (h *FulfillmentHandler) Handle(c *gin.Context) {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Bearer token required."})
		return
	}

	var req service.FulfillmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed fulfillment request."})
		return
	}

	resp, err := h.Fulfillment.Dispatch(c.Request.Context(), claims.Subject, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
