package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/idempotency"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
)

const productCacheTTL = 5 * time.Minute

type ProductService struct {
	productRepo repository.ProductRepository
	cache       idempotency.Store
}

// NewProductService creates a new instance of ProductService. cache may be nil.
func NewProductService(productRepo repository.ProductRepository, cache idempotency.Store) *ProductService {
	return &ProductService{productRepo: productRepo, cache: cache}
}

func (p *ProductService) ListProducts(ctx context.Context) ([]*entity.Product, error) {
	products, err := p.productRepo.List(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error listing products")
		return nil, err
	}
	return products, nil
}

// GetProduct reads through the cache. Cache failures only cost a database
// round trip.
func (p *ProductService) GetProduct(ctx context.Context, productID int64) (*entity.Product, error) {
	key := fmt.Sprintf("product:%d", productID)

	if p.cache != nil {
		cached, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			logger.Error().Err(err).Msgf("Error getting product %d from cache", productID)
		}
		if ok {
			var product entity.Product
			if err := json.Unmarshal([]byte(cached), &product); err == nil {
				return &product, nil
			}
			logger.Error().Err(err).Msgf("Error unmarshalling product %d", productID)
		}
	}

	product, err := p.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, notFound(err, "product", productID)
	}

	if p.cache != nil {
		if productJSON, err := json.Marshal(product); err == nil {
			if err := p.cache.Set(ctx, key, string(productJSON), productCacheTTL); err != nil {
				logger.Error().Err(err).Msgf("Error setting product %d in cache", productID)
			}
		}
	}

	return product, nil
}

func (p *ProductService) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if product.Name == "" {
		return nil, invalid("name", "is required")
	}
	if product.Price.IsNegative() {
		return nil, invalid("price", "must not be negative")
	}
	if product.Status == "" {
		product.Status = entity.ProductActive
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	created, err := p.productRepo.Create(ctx, product)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating product")
		return nil, err
	}
	return created, nil
}
