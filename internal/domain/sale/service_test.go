package sale

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/odin-pos/internal/domain/auth"
	"github.com/xenking/odin-pos/internal/domain/product"
)

// --- Mock implementations ---

// fakeStore serializes units of work behind one mutex and applies staged
// changes only when fn succeeds.
type fakeStore struct {
	mu       sync.Mutex
	products map[string]product.Product
	sales    []Sale

	findErr   error
	insertErr error
}

type fakeTx struct {
	store    *fakeStore
	decrease map[string]int
	inserted []Sale
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := &fakeTx{store: f, decrease: map[string]int{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, n := range tx.decrease {
		p := f.products[id]
		p.Stock -= n
		f.products[id] = p
	}
	f.sales = append(f.sales, tx.inserted...)
	return nil
}

func (f *fakeStore) List(_ context.Context, r Range) ([]Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Sale
	for _, s := range f.sales {
		if r.Contains(s.CreatedAt) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) stock(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

func (t *fakeTx) FindProductsByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if t.store.findErr != nil {
		return nil, t.store.findErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := t.store.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *fakeTx) DecrementStock(_ context.Context, id string, qty int) error {
	if t.store.products[id].Stock-t.decrease[id] < qty {
		return ErrStockConflict
	}
	t.decrease[id] += qty
	return nil
}

func (t *fakeTx) Insert(_ context.Context, s *Sale) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	t.inserted = append(t.inserted, *s)
	return nil
}

// --- Helpers ---

var cashier = auth.Principal{Role: auth.RoleCashier, Email: "cashier@odin.com"}

func newTestProduct(id, name, price string, stock int) product.Product {
	return product.Product{
		ID:         id,
		Name:       name,
		Price:      decimal.RequireFromString(price),
		TaxPercent: decimal.RequireFromString("18"),
		Stock:      stock,
		Active:     true,
	}
}

func newFakeStore(products ...product.Product) *fakeStore {
	m := make(map[string]product.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &fakeStore{products: m}
}

func cashSale(received string, lines ...CartLine) CreateSaleRequest {
	return CreateSaleRequest{
		Items:          lines,
		PaymentMethod:  "Cash",
		CashReceived:   decimal.RequireFromString(received),
		CreatedByEmail: "cashier@odin.com",
	}
}

// --- Tests ---

func TestCreateSale_EmptyCart(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.CreateSale(context.Background(), cashier, CreateSaleRequest{CreatedByEmail: "a@odin.com"})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, "Items required", err.Error())
}

func TestCreateSale_MissingCreator(t *testing.T) {
	svc := NewService(newFakeStore())

	req := cashSale("10", CartLine{ProductID: "p1", Qty: 1})
	req.CreatedByEmail = "   "
	_, err := svc.CreateSale(context.Background(), cashier, req)
	require.ErrorIs(t, err, ErrMissingCreator)
	assert.Equal(t, "CreatedByEmail required", err.Error())
}

func TestCreateSale_Forbidden(t *testing.T) {
	store := newFakeStore(newTestProduct("p1", "Coffee", "1", 5))
	svc := NewService(store)

	_, err := svc.CreateSale(context.Background(), auth.Principal{Role: "Guest"}, cashSale("10", CartLine{ProductID: "p1", Qty: 1}))
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, 5, store.stock("p1"))
}

func TestCreateSale_InvalidPaymentMethod(t *testing.T) {
	svc := NewService(newFakeStore(newTestProduct("p1", "Coffee", "1", 5)))

	req := cashSale("10", CartLine{ProductID: "p1", Qty: 1})
	req.PaymentMethod = "Bitcoin"
	_, err := svc.CreateSale(context.Background(), cashier, req)

	var pmErr *InvalidPaymentMethodError
	require.ErrorAs(t, err, &pmErr)
	assert.Equal(t, "Bitcoin", pmErr.Method)
	assert.Equal(t, "PaymentMethod must be Cash or Card", err.Error())
}

func TestCreateSale_BlankPaymentMethodIsCash(t *testing.T) {
	svc := NewService(newFakeStore(newTestProduct("p1", "Coffee", "1.50", 5)))

	req := cashSale("2", CartLine{ProductID: "p1", Qty: 1})
	req.PaymentMethod = "  "
	s, err := svc.CreateSale(context.Background(), cashier, req)
	require.NoError(t, err)
	assert.Equal(t, PaymentCash, s.PaymentMethod)
	assert.True(t, decimal.RequireFromString("0.50").Equal(s.Change))
}

func TestCreateSale_ProductNotFound(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.CreateSale(context.Background(), cashier, cashSale("10", CartLine{ProductID: "missing", Qty: 1}))

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
	assert.Equal(t, "Product not found: missing", err.Error())
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreateSale_ProductInactive(t *testing.T) {
	p := newTestProduct("p1", "Old Tea", "1", 5)
	p.Active = false
	store := newFakeStore(p)
	svc := NewService(store)

	_, err := svc.CreateSale(context.Background(), cashier, cashSale("10", CartLine{ProductID: "p1", Qty: 1}))

	var inactiveErr *ProductInactiveError
	require.ErrorAs(t, err, &inactiveErr)
	assert.Equal(t, "Product inactive: Old Tea", err.Error())
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, 5, store.stock("p1"))
}

func TestCreateSale_InvalidQuantity(t *testing.T) {
	for _, qty := range []int{0, -3} {
		svc := NewService(newFakeStore(newTestProduct("p1", "Coffee", "1", 5)))

		_, err := svc.CreateSale(context.Background(), cashier, cashSale("10", CartLine{ProductID: "p1", Qty: qty}))

		var qtyErr *InvalidQuantityError
		require.ErrorAs(t, err, &qtyErr)
		assert.Equal(t, "Qty must be > 0", err.Error())
		assert.Equal(t, KindValidation, KindOf(err))
	}
}

func TestCreateSale_ChecksRunInCartOrder(t *testing.T) {
	inactive := newTestProduct("p2", "Old Tea", "1", 5)
	inactive.Active = false
	svc := NewService(newFakeStore(newTestProduct("p1", "Coffee", "1", 5), inactive))

	// The first line fails on quantity before the second line's product is
	// looked at.
	_, err := svc.CreateSale(context.Background(), cashier, cashSale("10",
		CartLine{ProductID: "p1", Qty: 0},
		CartLine{ProductID: "p2", Qty: 1},
	))
	var qtyErr *InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
}

func TestCreateSale_InsufficientStock(t *testing.T) {
	store := newFakeStore(newTestProduct("p1", "Coffee", "100.00", 5))
	svc := NewService(store)

	_, err := svc.CreateSale(context.Background(), cashier, cashSale("1000", CartLine{ProductID: "p1", Qty: 6}))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Not enough stock for: Coffee", err.Error())
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 5, store.stock("p1"))
	assert.Empty(t, store.sales)
}

func TestCreateSale_SecondLineShortLeavesFirstUntouched(t *testing.T) {
	store := newFakeStore(
		newTestProduct("p1", "Coffee", "2.00", 10),
		newTestProduct("p2", "Bagel", "3.00", 1),
	)
	svc := NewService(store)

	_, err := svc.CreateSale(context.Background(), cashier, cashSale("100",
		CartLine{ProductID: "p1", Qty: 2},
		CartLine{ProductID: "p2", Qty: 2},
	))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p2", stockErr.ProductID)
	assert.Equal(t, 10, store.stock("p1"))
	assert.Equal(t, 1, store.stock("p2"))
	assert.Empty(t, store.sales)
}

func TestCreateSale_RepeatedProductCheckedCumulatively(t *testing.T) {
	store := newFakeStore(newTestProduct("p1", "Coffee", "1.00", 3))
	svc := NewService(store)

	_, err := svc.CreateSale(context.Background(), cashier, cashSale("10",
		CartLine{ProductID: "p1", Qty: 2},
		CartLine{ProductID: "p1", Qty: 2},
	))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 3, store.stock("p1"))

	s, err := svc.CreateSale(context.Background(), cashier, cashSale("10",
		CartLine{ProductID: "p1", Qty: 1},
		CartLine{ProductID: "p1", Qty: 2},
	))
	require.NoError(t, err)
	require.Len(t, s.Items, 2)
	assert.Equal(t, 0, store.stock("p1"))
}

func TestCreateSale_HugeQuantityRejected(t *testing.T) {
	store := newFakeStore(newTestProduct("p1", "Coffee", "1.00", 3))
	svc := NewService(store)

	_, err := svc.CreateSale(context.Background(), cashier, cashSale("10",
		CartLine{ProductID: "p1", Qty: 1},
		CartLine{ProductID: "p1", Qty: math.MaxInt},
	))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Not enough stock for: Coffee", err.Error())
	assert.Equal(t, math.MaxInt, stockErr.Requested)
	assert.Equal(t, 3, store.stock("p1"))
	assert.Empty(t, store.sales)
}

func TestCreateSale_FractionalTotals(t *testing.T) {
	tests := []struct {
		name  string
		price []string
		qty   []int
		total string
	}{
		{"tenths", []string{"0.10", "0.20"}, []int{1, 1}, "0.30"},
		{"thirds", []string{"0.33", "0.33", "0.34"}, []int{3, 3, 3}, "3.00"},
		{"sub cent prices", []string{"0.015", "1.9999"}, []int{7, 3}, "6.1047"},
		{"large quantities", []string{"19.99"}, []int{1000}, "19990.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				products []product.Product
				lines    []CartLine
			)
			for i, price := range tt.price {
				id := string(rune('a' + i))
				products = append(products, newTestProduct(id, "Item "+id, price, 10000))
				lines = append(lines, CartLine{ProductID: id, Qty: tt.qty[i]})
			}
			svc := NewService(newFakeStore(products...))

			s, err := svc.CreateSale(context.Background(), cashier, cashSale("100000", lines...))
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(s.Total), "total %s", s.Total)

			sum := decimal.Zero
			for _, it := range s.Items {
				sum = sum.Add(it.LineTotal())
			}
			assert.True(t, sum.Equal(s.Total))
			assert.True(t, s.CashReceived.Sub(s.Total).Equal(s.Change))
		})
	}
}

func TestCreateSale_CashEndToEnd(t *testing.T) {
	store := newFakeStore(newTestProduct("p1", "Widget", "100.00", 5))
	svc := NewService(store)

	s, err := svc.CreateSale(context.Background(), cashier, cashSale("250", CartLine{ProductID: "p1", Qty: 2}))
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("200.00").Equal(s.Total))
	assert.True(t, decimal.RequireFromString("50.00").Equal(s.Change))
	assert.True(t, decimal.RequireFromString("250").Equal(s.CashReceived))
	assert.Equal(t, 3, store.stock("p1"))

	require.Len(t, s.Items, 1)
	it := s.Items[0]
	assert.Equal(t, s.ID, it.SaleID)
	assert.Equal(t, "Widget", it.Name)
	assert.NotEmpty(t, it.ID)
	require.Len(t, store.sales, 1)
	assert.Equal(t, s.ID, store.sales[0].ID)
}

func TestCreateSale_CardIgnoresCash(t *testing.T) {
	store := newFakeStore(newTestProduct("p1", "Widget", "100.00", 5))
	svc := NewService(store)

	s, err := svc.CreateSale(context.Background(), cashier, CreateSaleRequest{
		Items:          []CartLine{{ProductID: "p1", Qty: 1}},
		PaymentMethod:  "Card",
		CashReceived:   decimal.RequireFromString("999"),
		CreatedByEmail: "cashier@odin.com",
	})
	require.NoError(t, err)
	assert.Equal(t, PaymentCard, s.PaymentMethod)
	assert.True(t, s.CashReceived.IsZero())
	assert.True(t, s.Change.IsZero())
	assert.Equal(t, 4, store.stock("p1"))
}

func TestCreateSale_InsufficientCash(t *testing.T) {
	tests := []struct {
		received string
		message  string
	}{
		{"0", "CashReceived required for Cash payment"},
		{"-5", "CashReceived required for Cash payment"},
		{"199.99", "CashReceived must be >= Total"},
	}
	for _, tt := range tests {
		t.Run(tt.received, func(t *testing.T) {
			store := newFakeStore(newTestProduct("p1", "Widget", "100.00", 5))
			svc := NewService(store)

			_, err := svc.CreateSale(context.Background(), cashier, cashSale(tt.received, CartLine{ProductID: "p1", Qty: 2}))

			var cashErr *InsufficientCashError
			require.ErrorAs(t, err, &cashErr)
			assert.Equal(t, tt.message, err.Error())
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, 5, store.stock("p1"))
		})
	}
}

func TestCreateSale_ExactCash(t *testing.T) {
	svc := NewService(newFakeStore(newTestProduct("p1", "Widget", "12.34", 5)))

	s, err := svc.CreateSale(context.Background(), cashier, cashSale("12.34", CartLine{ProductID: "p1", Qty: 1}))
	require.NoError(t, err)
	assert.True(t, s.Change.IsZero())
}

func TestCreateSale_Timestamp(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	now := time.Date(2026, 2, 4, 10, 30, 0, 123456789, loc)
	svc := NewService(newFakeStore(newTestProduct("p1", "Widget", "1", 5)), WithClock(func() time.Time { return now }))

	s, err := svc.CreateSale(context.Background(), cashier, cashSale("1", CartLine{ProductID: "p1", Qty: 1}))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, s.CreatedAt.Location())
	assert.True(t, now.Truncate(time.Microsecond).Equal(s.CreatedAt))
	assert.Equal(t, 123456000, s.CreatedAt.Nanosecond())
}

func TestCreateSale_SnapshotSurvivesCatalogEdit(t *testing.T) {
	store := newFakeStore(newTestProduct("p1", "Widget", "10.00", 5))
	svc := NewService(store)

	_, err := svc.CreateSale(context.Background(), cashier, cashSale("10", CartLine{ProductID: "p1", Qty: 1}))
	require.NoError(t, err)

	p := store.products["p1"]
	p.Name, p.Price = "Renamed", decimal.RequireFromString("99")
	store.products["p1"] = p

	sales, err := svc.ListSales(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "Widget", sales[0].Items[0].Name)
	assert.True(t, decimal.RequireFromString("10.00").Equal(sales[0].Items[0].Price))
}

func TestCreateSale_StoreErrors(t *testing.T) {
	store := newFakeStore(newTestProduct("p1", "Widget", "1", 5))
	store.findErr = errors.New("connection reset")
	svc := NewService(store)

	_, err := svc.CreateSale(context.Background(), cashier, cashSale("1", CartLine{ProductID: "p1", Qty: 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find products")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, IsClientError(err))

	store.findErr = nil
	store.insertErr = errors.New("disk full")
	_, err = svc.CreateSale(context.Background(), cashier, cashSale("1", CartLine{ProductID: "p1", Qty: 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert sale")
	assert.Equal(t, 5, store.stock("p1"))
}

func TestCreateSale_ConcurrentLastUnit(t *testing.T) {
	store := newFakeStore(newTestProduct("p1", "Widget", "1", 1))
	svc := NewService(store)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		shortage int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(context.Background(), cashier, cashSale("1", CartLine{ProductID: "p1", Qty: 1}))
			mu.Lock()
			defer mu.Unlock()
			var stockErr *InsufficientStockError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &stockErr):
				shortage++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, shortage)
	assert.Equal(t, 0, store.stock("p1"))
}

func TestListSales_Range(t *testing.T) {
	clock := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(newTestProduct("p1", "Widget", "1", 100))
	svc := NewService(store, WithClock(func() time.Time { return clock }))

	for _, at := range []time.Time{
		time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 4, 23, 59, 59, 999999000, time.UTC),
		time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
	} {
		clock = at
		_, err := svc.CreateSale(context.Background(), cashier, cashSale("1", CartLine{ProductID: "p1", Qty: 1}))
		require.NoError(t, err)
	}

	day := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	sales, err := svc.ListSales(context.Background(), Filter{From: &day, To: &day, ToDateOnly: true})
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.True(t, sales[0].CreatedAt.After(sales[1].CreatedAt))

	// Without ToDateOnly the upper bound is the instant itself.
	sales, err = svc.ListSales(context.Background(), Filter{From: &day, To: &day})
	require.NoError(t, err)
	require.Len(t, sales, 1)

	all, err := svc.ListSales(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{ErrEmptyCart, KindValidation},
		{ErrMissingCreator, KindValidation},
		{&InvalidPaymentMethodError{}, KindValidation},
		{&InvalidQuantityError{}, KindValidation},
		{&InsufficientCashError{}, KindValidation},
		{&ProductNotFoundError{}, KindNotFound},
		{&ProductInactiveError{}, KindConflict},
		{&InsufficientStockError{}, KindConflict},
		{errors.Wrap(ErrStockConflict, "decrement"), KindConflict},
		{ErrForbidden, KindForbidden},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestEndOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	in := time.Date(2026, 2, 4, 1, 0, 0, 0, loc) // 2026-02-03 22:00 UTC

	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), StartOfDay(in))
	assert.Equal(t, time.Date(2026, 2, 3, 23, 59, 59, 999999000, time.UTC), EndOfDay(in))
}
