package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CreateOrder reserves stock and places an order --> POST /orders
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}

	req := service.CreateOrderRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		key = c.Request().Header.Get("Idempotent-Key")
	}

	order, err := h.orderService.CreateOrder(c.Request().Context(), caller.UserID, req, key)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, order)
}

// GetOrder --> GET /orders/:id
func (h *OrderHandler) GetOrder(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid order ID")
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), id, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// ListOrders returns every order, admin only --> GET /orders
func (h *OrderHandler) ListOrders(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}

	orders, err := h.orderService.ListAllOrders(c.Request().Context(), caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// MyOrders --> GET /orders/my-orders
func (h *OrderHandler) MyOrders(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}

	orders, err := h.orderService.ListMyOrders(c.Request().Context(), caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// UserOrders --> GET /orders/user/:userId
func (h *OrderHandler) UserOrders(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	userID, err := pathID(c, "userId")
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}

	orders, err := h.orderService.ListUserOrders(c.Request().Context(), userID, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// CancelOrder is safe to retry --> POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid order ID")
	}

	order, err := h.orderService.CancelOrder(c.Request().Context(), id, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// DeliverOrder --> POST /orders/:id/deliver
func (h *OrderHandler) DeliverOrder(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid order ID")
	}

	order, err := h.orderService.DeliverOrder(c.Request().Context(), id, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err == nil && id <= 0 {
		err = strconv.ErrRange
	}
	return id, err
}
