package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
)

type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[int64]*entity.Product
	seq      int64
}

func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{products: make(map[int64]*entity.Product)}
}

func (r *MemoryProductRepository) List(_ context.Context) ([]*entity.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Product, 0, len(r.products))
	for _, p := range r.products {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryProductRepository) GetByID(_ context.Context, id int64) (*entity.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (r *MemoryProductRepository) Create(_ context.Context, product *entity.Product) (*entity.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == 0 {
		r.seq++
		product.ID = r.seq
	} else if product.ID > r.seq {
		r.seq = product.ID
	}
	if _, ok := r.products[product.ID]; ok {
		return nil, fmt.Errorf("product %d: %w", product.ID, ErrDuplicate)
	}
	c := *product
	r.products[product.ID] = &c
	return product, nil
}

type MemoryUserRepository struct {
	mu      sync.RWMutex
	byEmail map[string]*entity.User
	seq     int64
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{byEmail: make(map[string]*entity.User)}
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user *entity.User) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := r.byEmail[key]; ok {
		return nil, fmt.Errorf("user %s: %w", user.Email, ErrDuplicate)
	}
	if user.ID == 0 {
		r.seq++
		user.ID = r.seq
	} else if user.ID > r.seq {
		r.seq = user.ID
	}
	c := *user
	r.byEmail[key] = &c
	return user, nil
}
