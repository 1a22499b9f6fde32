package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/odin-pos/internal/domain/product"
	"github.com/xenking/odin-pos/internal/domain/sale"
	"github.com/xenking/odin-pos/internal/events"
)

const (
	lockProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	insertSaleSQL = `INSERT INTO sales
		(id, created_at, payment_method, cash_received, change, created_by_email, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertSaleItemSQL = `INSERT INTO sale_items (id, sale_id, product_id, name, price, qty, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertSaleEventSQL = `INSERT INTO sale_events (sale_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)`

	listSalesSQL = `SELECT id, created_at, payment_method, cash_received, change, created_by_email, total
		FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		ORDER BY created_at DESC, id DESC`

	listSaleItemsSQL = `SELECT id, sale_id, product_id, name, price, qty
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position`
)

var _ sale.Store = (*SaleRepository)(nil)

// SaleRepository implements sale.Store backed by PostgreSQL.
type SaleRepository struct {
	pool   *pgxpool.Pool
	outbox bool
}

// SaleOption configures a SaleRepository.
type SaleOption func(*SaleRepository)

// WithOutbox makes every committed sale also write a sale.created event to
// the outbox table in the same transaction.
func WithOutbox() SaleOption {
	return func(r *SaleRepository) { r.outbox = true }
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool, opts ...SaleOption) *SaleRepository {
	r := &SaleRepository{pool: pool}
	for _, o := range opts {
		o(r)
	}
	return r
}

// WithinTx runs fn in a READ COMMITTED transaction. Product rows read through
// the Tx stay locked until commit or rollback.
func (r *SaleRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx sale.Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &saleTx{tx: tx, outbox: r.outbox})
	})
}

// List reads sales and their items from one snapshot.
func (r *SaleRepository) List(ctx context.Context, rng sale.Range) ([]sale.Sale, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, listSalesSQL, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	sales, err := pgx.CollectRows(rows, scanSale)
	if err != nil {
		return nil, fmt.Errorf("scanning sales: %w", err)
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i := range sales {
		ids[i] = sales[i].ID
		index[sales[i].ID] = i
	}

	rows, err = tx.Query(ctx, listSaleItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing sale items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanSaleItem)
	if err != nil {
		return nil, fmt.Errorf("scanning sale items: %w", err)
	}
	for _, it := range items {
		i := index[it.SaleID]
		sales[i].Items = append(sales[i].Items, it)
	}
	return sales, nil
}

type saleTx struct {
	tx     pgx.Tx
	outbox bool
}

func (t *saleTx) FindProductsByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := t.tx.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (t *saleTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return sale.ErrStockConflict
	}
	return nil
}

func (t *saleTx) Insert(ctx context.Context, s *sale.Sale) error {
	if _, err := t.tx.Exec(ctx, insertSaleSQL,
		s.ID, s.CreatedAt, string(s.PaymentMethod), s.CashReceived, s.Change, s.CreatedByEmail, s.Total,
	); err != nil {
		return fmt.Errorf("inserting sale %q: %w", s.ID, err)
	}

	batch := &pgx.Batch{}
	for pos, it := range s.Items {
		batch.Queue(insertSaleItemSQL, it.ID, s.ID, it.ProductID, it.Name, it.Price, it.Qty, pos)
	}
	if t.outbox {
		batch.Queue(insertSaleEventSQL, s.ID, events.TypeSaleCreated, events.EncodeSaleCreated(s), s.CreatedAt)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting items of sale %q: %w", s.ID, err)
	}
	return nil
}

func scanSale(row pgx.CollectableRow) (sale.Sale, error) {
	var (
		s      sale.Sale
		method string
	)
	err := row.Scan(&s.ID, &s.CreatedAt, &method, &s.CashReceived, &s.Change, &s.CreatedByEmail, &s.Total)
	s.PaymentMethod = sale.PaymentMethod(method)
	s.CreatedAt = s.CreatedAt.UTC()
	return s, err
}

func scanSaleItem(row pgx.CollectableRow) (sale.Item, error) {
	var it sale.Item
	err := row.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Name, &it.Price, &it.Qty)
	return it, err
}
