package handler

import (
	"net/http"

	"bizledger/internal/middleware"
	"bizledger/internal/service"
	"bizledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup, authz *middleware.Authorizer) {
	payments := router.Group("/api/documents/:id/payments")
	{
		payments.POST("", authz.Require(middleware.ObjectPayment, middleware.ActionCreate), h.RecordPayment)
		payments.GET("", authz.Require(middleware.ObjectPayment, middleware.ActionView), h.ListPayments)
	}
}

// RecordPayment records a payment against an invoice
// @Summary      Record payment
// @Description  Records a payment. The amount must be positive and at most the remaining balance; check payments need a check number.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Invoice ID"
// @Param        payload  body      service.RecordPaymentRequest  true  "Payment Payload"
// @Success      201      {object}  response.Response{data=service.PaymentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/documents/{id}/payments [post]
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	payment, err := h.paymentService.Record(c.Request.Context(), middleware.Actor(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, payment))
}

// ListPayments lists an invoice's payments with the balance summary
// @Summary      List payments
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=object}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id}/payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	summary, err := h.paymentService.Summary(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	payments, err := h.paymentService.List(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"payments": payments,
		"summary":  summary,
	}))
}
