// Package sale implements the checkout workflow: cart validation against live
// stock, atomic stock decrement and immutable sale records.
package sale

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/odin-pos/internal/domain/product"
)

// PaymentMethod is how a sale was settled.
type PaymentMethod string

// Supported payment methods.
const (
	PaymentCash PaymentMethod = "Cash"
	PaymentCard PaymentMethod = "Card"
)

// Sale is a committed, immutable checkout.
type Sale struct {
	ID             string
	CreatedAt      time.Time
	PaymentMethod  PaymentMethod
	CashReceived   decimal.Decimal
	Change         decimal.Decimal
	CreatedByEmail string
	Total          decimal.Decimal
	Items          []Item
}

// ItemsQty returns the number of units sold.
func (s *Sale) ItemsQty() int {
	n := 0
	for _, it := range s.Items {
		n += it.Qty
	}
	return n
}

// Item is a product snapshot taken at sale time. Name and Price never follow
// later catalog edits.
type Item struct {
	ID        string
	SaleID    string
	ProductID string
	Name      string
	Price     decimal.Decimal
	Qty       int
}

// LineTotal is Price × Qty.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Qty)))
}

// CartLine is one requested line of a cart.
type CartLine struct {
	ProductID string
	Qty       int
}

// CreateSaleRequest is the checkout input. CashReceived is ignored for card
// payments.
type CreateSaleRequest struct {
	Items          []CartLine
	PaymentMethod  string
	CashReceived   decimal.Decimal
	CreatedByEmail string
}

// Filter selects sales by creation time. Both bounds are inclusive and
// optional. With ToDateOnly set, To covers the whole UTC day it falls on.
type Filter struct {
	From       *time.Time
	To         *time.Time
	ToDateOnly bool
}

// Range resolves the filter into absolute inclusive bounds.
func (f Filter) Range() Range {
	r := Range{From: f.From, To: f.To}
	if f.To != nil && f.ToDateOnly {
		end := EndOfDay(*f.To)
		r.To = &end
	}
	return r
}

// Range is an inclusive creation time window. A nil bound is open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window.
func (r Range) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// StartOfDay truncates t to midnight of its UTC day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last representable instant of t's UTC day at the
// microsecond precision sales are stored with.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Microsecond)
}

// Store persists sales. WithinTx runs fn as one unit of work: either every
// change made through Tx commits, or none does.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// List returns sales with their items, newest first.
	List(ctx context.Context, r Range) ([]Sale, error)
}

// Tx is the view of the store inside a unit of work.
type Tx interface {
	// FindProductsByIDs loads the products and locks them until the unit of
	// work ends. Unknown ids are omitted from the result.
	FindProductsByIDs(ctx context.Context, ids []string) ([]product.Product, error)
	// DecrementStock lowers stock by qty, failing with ErrStockConflict if
	// that would make it negative.
	DecrementStock(ctx context.Context, productID string, qty int) error
	Insert(ctx context.Context, s *Sale) error
}
