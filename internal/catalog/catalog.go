// Package catalog lists the trees a shop session can add to its cart.
package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/tree-shop/internal/domain/cart"
	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// Product is a purchasable tree
type Product struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	CO2      string          `json:"co2"`
	Lifespan string          `json:"lifespan"`
}

// CartProduct returns the subset of p that goes into a cart line
func (p Product) CartProduct() cart.Product {
	return cart.Product{ID: p.ID, Name: p.Name, Price: p.Price}
}

type Catalog interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int) (Product, error)
}

// DefaultTrees is the catalog the shop ships with
func DefaultTrees() []Product {
	return []Product{
		{ID: 1, Name: "Oak Tree", Price: decimal.RequireFromString("29.99"), CO2: "500kg", Lifespan: "100+ years"},
		{ID: 2, Name: "Pine Tree", Price: decimal.RequireFromString("24.99"), CO2: "400kg", Lifespan: "80+ years"},
		{ID: 3, Name: "Maple Tree", Price: decimal.RequireFromString("34.99"), CO2: "450kg", Lifespan: "90+ years"},
	}
}

// MemoryCatalog is a Catalog backed by a map
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[int]Product
}

func NewMemoryCatalog(products ...Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[int]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// List returns all products ordered by id
func (c *MemoryCatalog) List(ctx context.Context) ([]Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	products := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].ID < products[j].ID
	})
	return products, nil
}

func (c *MemoryCatalog) Get(ctx context.Context, id int) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

// Put adds or replaces a product
func (c *MemoryCatalog) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}
