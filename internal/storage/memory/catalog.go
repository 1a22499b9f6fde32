package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xenking/odin-pos/internal/domain/product"
)

var _ product.Repository = (*Catalog)(nil)

// Catalog is an in-memory product.Repository.
//
// Writers that change stock hold the product's row lock, so catalog edits
// wait for in-flight sales of the same product.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]product.Product
	rows     rowLocks
}

// NewCatalog returns a catalog seeded with products.
func NewCatalog(products ...product.Product) *Catalog {
	c := &Catalog{products: make(map[string]product.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) List(_ context.Context) ([]product.Product, error) {
	c.mu.RLock()
	out := make([]product.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	c.mu.RUnlock()

	sortByName(out)
	return out, nil
}

func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (c *Catalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Catalog) Lookup(ctx context.Context, barcode, code string) (*product.Product, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if !p.Active {
			continue
		}
		if barcode != "" && p.Barcode != barcode {
			continue
		}
		if code != "" && p.Code != code {
			continue
		}
		return &p, nil
	}
	return nil, product.ErrNotFound
}

func (c *Catalog) Create(_ context.Context, p *product.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = *p
	return nil
}

func (c *Catalog) Update(_ context.Context, p *product.Product) error {
	unlock := c.rows.lockAll([]string{p.ID})
	defer unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[p.ID]; !ok {
		return product.ErrNotFound
	}
	c.products[p.ID] = *p
	return nil
}

func (c *Catalog) Delete(_ context.Context, id string) error {
	unlock := c.rows.lockAll([]string{id})
	defer unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[id]; !ok {
		return product.ErrNotFound
	}
	delete(c.products, id)
	return nil
}

func sortByName(ps []product.Product) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name != ps[j].Name {
			return ps[i].Name < ps[j].Name
		}
		return ps[i].ID < ps[j].ID
	})
}
