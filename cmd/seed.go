package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
)

type demoProduct struct {
	name  string
	price string
	stock int
}

var demoProducts = []demoProduct{
	{name: "Mechanical Keyboard", price: "89.99", stock: 25},
	{name: "Wireless Mouse", price: "24.50", stock: 40},
	{name: "USB-C Hub", price: "39.00", stock: 10},
	{name: "27\" Monitor", price: "229.00", stock: 5},
}

// seedDemoData creates a customer, an admin and a small stocked catalog.
// Existing users are left alone and products are only added to an empty
// catalog, so restarting against MySQL is safe.
func seedDemoData(ctx context.Context, auth *service.AuthService, products *service.ProductService, inventory *service.InventoryService) error {
	for _, u := range []struct{ email, role string }{
		{"user@example.com", entity.RoleCustomer},
		{"admin@example.com", entity.RoleAdmin},
	} {
		if _, err := auth.Register(ctx, u.email, "password", u.role); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
	}

	existing, err := products.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, p := range demoProducts {
		created, err := products.CreateProduct(ctx, &entity.Product{
			Name:   p.name,
			Price:  decimal.RequireFromString(p.price),
			Status: entity.ProductActive,
		})
		if err != nil {
			return err
		}
		if _, err := inventory.SetStock(ctx, created.ID, p.stock); err != nil {
			return err
		}
	}

	log.Info().Int("products", len(demoProducts)).Msg("Seeded demo data")
	return nil
}
