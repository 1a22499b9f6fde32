package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/odin-pos/internal/domain/product"
	"github.com/xenking/odin-pos/internal/domain/sale"
)

var _ sale.Store = (*SaleStore)(nil)

// SaleStore is an in-memory sale.Store sharing stock with a Catalog.
type SaleStore struct {
	catalog *Catalog

	mu    sync.RWMutex
	sales []sale.Sale
}

// NewSaleStore creates a sale store that sells from catalog.
func NewSaleStore(catalog *Catalog) *SaleStore {
	return &SaleStore{catalog: catalog}
}

// WithinTx runs fn holding the row locks it acquires. Stock decrements and
// inserted sales are staged and applied together only when fn succeeds.
func (s *SaleStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx sale.Tx) error) error {
	tx := &saleTx{store: s, decrease: make(map[string]int)}
	defer tx.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// List returns copies of matching sales, newest first.
func (s *SaleStore) List(_ context.Context, r sale.Range) ([]sale.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]sale.Sale, 0)
	for i := range s.sales {
		if r.Contains(s.sales[i].CreatedAt) {
			out = append(out, cloneSale(&s.sales[i]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type saleTx struct {
	store    *SaleStore
	unlock   []func()
	locked   map[string]product.Product
	decrease map[string]int
	inserted []sale.Sale
}

func (tx *saleTx) FindProductsByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var pending []string
	for _, id := range ids {
		if _, ok := tx.locked[id]; !ok {
			pending = append(pending, id)
		}
	}
	tx.unlock = append(tx.unlock, tx.store.catalog.rows.lockAll(pending))

	if tx.locked == nil {
		tx.locked = make(map[string]product.Product, len(ids))
	}
	c := tx.store.catalog
	c.mu.RLock()
	for _, id := range pending {
		if p, ok := c.products[id]; ok {
			tx.locked[id] = p
		}
	}
	c.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := tx.locked[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (tx *saleTx) DecrementStock(_ context.Context, productID string, qty int) error {
	p, ok := tx.locked[productID]
	if !ok {
		return errors.Errorf("product %s not locked", productID)
	}
	if p.Stock-tx.decrease[productID] < qty {
		return sale.ErrStockConflict
	}
	tx.decrease[productID] += qty
	return nil
}

func (tx *saleTx) Insert(_ context.Context, s *sale.Sale) error {
	tx.inserted = append(tx.inserted, cloneSale(s))
	return nil
}

// commit applies staged changes under both write locks so readers see the
// stock decrement and the sale together.
func (tx *saleTx) commit() error {
	c := tx.store.catalog
	c.mu.Lock()
	defer c.mu.Unlock()
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for id, n := range tx.decrease {
		p, ok := c.products[id]
		if !ok || p.Stock < n {
			return sale.ErrStockConflict
		}
	}
	for id, n := range tx.decrease {
		p := c.products[id]
		p.Stock -= n
		c.products[id] = p
	}
	tx.store.sales = append(tx.store.sales, tx.inserted...)
	return nil
}

func (tx *saleTx) release() {
	for i := len(tx.unlock) - 1; i >= 0; i-- {
		tx.unlock[i]()
	}
}

func cloneSale(s *sale.Sale) sale.Sale {
	cp := *s
	cp.Items = append([]sale.Item(nil), s.Items...)
	return cp
}
