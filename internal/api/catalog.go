package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
)

type ProductHandler struct {
	productService *service.ProductService
}

// NewProductHandler creates a new instance of ProductHandler
func NewProductHandler(productService *service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// ListProducts --> GET /products
func (ph *ProductHandler) ListProducts(c echo.Context) error {
	products, err := ph.productService.ListProducts(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

// GetProduct --> GET /products/:id
func (ph *ProductHandler) GetProduct(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid product ID")
	}
	product, err := ph.productService.GetProduct(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// CreateProduct, admin only --> POST /products
func (ph *ProductHandler) CreateProduct(c echo.Context) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	if !caller.Admin {
		return respondError(c, service.ErrForbidden)
	}

	product := entity.Product{}
	if err := c.Bind(&product); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	product.ID = 0

	created, err := ph.productService.CreateProduct(c.Request().Context(), &product)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

type InventoryHandler struct {
	inventoryService *service.InventoryService
}

func NewInventoryHandler(inventoryService *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService}
}

type stockRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// BatchStock returns available stock keyed by product id --> POST /inventory/batch
func (ih *InventoryHandler) BatchStock(c echo.Context) error {
	var ids []int64
	if err := c.Bind(&ids); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	stock, err := ih.inventoryService.BatchQuery(c.Request().Context(), ids)
	if err != nil {
		return respondError(c, err)
	}

	out := make(map[string]int, len(stock))
	for id, qty := range stock {
		out[strconv.FormatInt(id, 10)] = qty
	}
	return c.JSON(http.StatusOK, out)
}

// AddStock, admin only --> POST /inventory/add
func (ih *InventoryHandler) AddStock(c echo.Context) error {
	return ih.adjust(c, ih.inventoryService.AddStock)
}

// SetStock, admin only --> POST /inventory/set
func (ih *InventoryHandler) SetStock(c echo.Context) error {
	return ih.adjust(c, ih.inventoryService.SetStock)
}

func (ih *InventoryHandler) adjust(c echo.Context, apply func(ctx context.Context, productID int64, quantity int) (entity.StockLevel, error)) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	if !caller.Admin {
		return respondError(c, service.ErrForbidden)
	}

	req := stockRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	level, err := apply(c.Request().Context(), req.ProductID, req.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, level)
}
