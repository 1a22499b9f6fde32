package sale

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/odin-pos/internal/domain/auth"
	"github.com/xenking/odin-pos/internal/domain/product"
)

const instrumentationName = "github.com/xenking/odin-pos/internal/domain/sale"

// Service runs the checkout workflow and sale queries.
type Service struct {
	store Store
	cache CloseoutCache
	now   func() time.Time

	tracer   trace.Tracer
	created  metric.Int64Counter
	rejected metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCloseoutCache enables caching of closeouts for finished days.
func WithCloseoutCache(c CloseoutCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTelemetry sets the providers used for spans and counters.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(instrumentationName)
		s.initMetrics(mp)
	}
}

// NewService creates a sale Service on top of store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	s.initMetrics(metricnoop.NewMeterProvider())
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) initMetrics(mp metric.MeterProvider) {
	meter := mp.Meter(instrumentationName)
	noop := metricnoop.NewMeterProvider().Meter(instrumentationName)

	created, err := meter.Int64Counter("pos.sales.created",
		metric.WithDescription("Committed sales"))
	if err != nil {
		created, _ = noop.Int64Counter("pos.sales.created")
	}
	rejected, err := meter.Int64Counter("pos.sales.rejected",
		metric.WithDescription("Rejected checkout attempts"))
	if err != nil {
		rejected, _ = noop.Int64Counter("pos.sales.rejected")
	}
	s.created, s.rejected = created, rejected
}

func parsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := strings.TrimSpace(s); m {
	case "", string(PaymentCash):
		return PaymentCash, nil
	case string(PaymentCard):
		return PaymentCard, nil
	default:
		return "", &InvalidPaymentMethodError{Method: m}
	}
}

// CreateSale validates the cart against current stock and commits the sale,
// its items and the stock decrements as one unit.
func (s *Service) CreateSale(ctx context.Context, p auth.Principal, req CreateSaleRequest) (_ *Sale, rerr error) {
	ctx, span := s.tracer.Start(ctx, "sale.CreateSale",
		trace.WithAttributes(attribute.Int("sale.lines", len(req.Items))),
	)
	defer func() {
		if rerr != nil {
			kind := KindOf(rerr)
			s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", kind.String())))
			if kind == KindInternal {
				span.RecordError(rerr)
				span.SetStatus(codes.Error, rerr.Error())
			}
		}
		span.End()
	}()

	if !p.Role.CanSell() {
		return nil, ErrForbidden
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	creator := strings.TrimSpace(req.CreatedByEmail)
	if creator == "" {
		return nil, ErrMissingCreator
	}
	method, err := parsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	var sale *Sale
	if err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.FindProductsByIDs(ctx, distinctProductIDs(req.Items))
		if err != nil {
			return errors.Wrap(err, "find products")
		}
		products := make(map[string]product.Product, len(found))
		for _, pr := range found {
			products[pr.ID] = pr
		}

		items, err := snapshotItems(req.Items, products)
		if err != nil {
			return err
		}

		sale = &Sale{
			ID:             uuid.NewString(),
			PaymentMethod:  method,
			CreatedByEmail: creator,
			Items:          items,
		}
		for i := range sale.Items {
			sale.Items[i].SaleID = sale.ID
			sale.Total = sale.Total.Add(sale.Items[i].LineTotal())
		}
		if err := settle(sale, req.CashReceived); err != nil {
			return err
		}

		for _, it := range sale.Items {
			if err := tx.DecrementStock(ctx, it.ProductID, it.Qty); err != nil {
				return errors.Wrapf(err, "decrement stock of %s", it.ProductID)
			}
		}

		sale.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
		if err := tx.Insert(ctx, sale); err != nil {
			return errors.Wrap(err, "insert sale")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(sale.PaymentMethod))))
	span.SetAttributes(attribute.String("sale.id", sale.ID))
	zctx.From(ctx).Info("Sale created",
		zap.String("sale_id", sale.ID),
		zap.String("payment_method", string(sale.PaymentMethod)),
		zap.Stringer("total", sale.Total),
		zap.Int("items", len(sale.Items)),
		zap.String("created_by", sale.CreatedByEmail),
	)
	return sale, nil
}

// snapshotItems checks each line in cart order and copies name and price
// from the locked product rows. Quantities of repeated products are checked
// cumulatively.
func snapshotItems(lines []CartLine, products map[string]product.Product) ([]Item, error) {
	requested := make(map[string]int, len(lines))
	items := make([]Item, 0, len(lines))
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if !p.Active {
			return nil, &ProductInactiveError{ProductID: p.ID, Name: p.Name}
		}
		if line.Qty <= 0 {
			return nil, &InvalidQuantityError{ProductID: p.ID, Qty: line.Qty}
		}
		// Compared before adding so a huge qty cannot wrap the running total.
		if line.Qty > p.Stock-requested[p.ID] {
			total := math.MaxInt
			if line.Qty <= math.MaxInt-requested[p.ID] {
				total = requested[p.ID] + line.Qty
			}
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: total,
				Available: p.Stock,
			}
		}
		requested[p.ID] += line.Qty
		items = append(items, Item{
			ID:        uuid.NewString(),
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Qty:       line.Qty,
		})
	}
	return items, nil
}

// settle reconciles the payment against the computed total.
func settle(s *Sale, received decimal.Decimal) error {
	if s.PaymentMethod == PaymentCard {
		s.CashReceived = decimal.Zero
		s.Change = decimal.Zero
		return nil
	}
	if !received.IsPositive() || received.LessThan(s.Total) {
		return &InsufficientCashError{Received: received, Total: s.Total}
	}
	s.CashReceived = received
	s.Change = received.Sub(s.Total)
	return nil
}

// distinctProductIDs returns the referenced ids sorted, which is also the
// order stores acquire row locks in.
func distinctProductIDs(lines []CartLine) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	sort.Strings(ids)
	return ids
}

// ListSales returns the sales matching f, newest first, with their items.
func (s *Service) ListSales(ctx context.Context, f Filter) ([]Sale, error) {
	sales, err := s.store.List(ctx, f.Range())
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}
	return sales, nil
}
