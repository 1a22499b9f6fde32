package sale

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for sale validation.
var (
	ErrEmptyCart      = errors.New("Items required")
	ErrMissingCreator = errors.New("CreatedByEmail required")
	ErrForbidden      = errors.New("role may not create sales")
	ErrStockConflict  = errors.New("stock changed during checkout")
)

// InvalidPaymentMethodError is returned for anything other than Cash or Card.
type InvalidPaymentMethodError struct {
	Method string
}

func (e *InvalidPaymentMethodError) Error() string {
	return "PaymentMethod must be Cash or Card"
}

// ProductNotFoundError indicates a cart line references an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("Product not found: %s", e.ProductID)
}

// ProductInactiveError indicates a cart line references a disabled product.
type ProductInactiveError struct {
	ProductID string
	Name      string
}

func (e *ProductInactiveError) Error() string {
	return fmt.Sprintf("Product inactive: %s", e.Name)
}

// InvalidQuantityError indicates a non-positive line quantity.
type InvalidQuantityError struct {
	ProductID string
	Qty       int
}

func (e *InvalidQuantityError) Error() string {
	return "Qty must be > 0"
}

// InsufficientStockError indicates the cart asks for more than is on hand.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Not enough stock for: %s", e.Name)
}

// InsufficientCashError indicates a cash payment that does not cover the total.
type InsufficientCashError struct {
	Received decimal.Decimal
	Total    decimal.Decimal
}

func (e *InsufficientCashError) Error() string {
	if !e.Received.IsPositive() {
		return "CashReceived required for Cash payment"
	}
	return "CashReceived must be >= Total"
}

// Kind classifies errors returned by the sale workflow.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// KindOf classifies err. Unrecognized errors are internal.
func KindOf(err error) Kind {
	var (
		paymentErr  *InvalidPaymentMethodError
		qtyErr      *InvalidQuantityError
		cashErr     *InsufficientCashError
		notFoundErr *ProductNotFoundError
		inactiveErr *ProductInactiveError
		stockErr    *InsufficientStockError
	)
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrMissingCreator),
		errors.As(err, &paymentErr), errors.As(err, &qtyErr), errors.As(err, &cashErr):
		return KindValidation
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.As(err, &inactiveErr), errors.As(err, &stockErr), errors.Is(err, ErrStockConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsClientError reports whether err is caused by the request rather than the
// system.
func IsClientError(err error) bool {
	return err != nil && KindOf(err) != KindInternal
}
