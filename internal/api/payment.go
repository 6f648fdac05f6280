package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// Initiate starts a payment and answers before the gateway does --> POST /payments/initiate
func (h *PaymentHandler) Initiate(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}

	req := service.InitiatePaymentRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	intent, err := h.paymentService.Initiate(c.Request().Context(), caller, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, intent)
}

// ListForOrder --> GET /payments/order/:orderId
func (h *PaymentHandler) ListForOrder(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	orderID, err := pathID(c, "orderId")
	if err != nil {
		return badRequest(c, "Invalid order ID")
	}

	intents, err := h.paymentService.ListForOrder(c.Request().Context(), orderID, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, intents)
}
