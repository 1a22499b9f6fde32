package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Tax types derived from TaxPercent.
const (
	TaxExempt  = "Exempt"
	TaxPercent = "Percent"
)

var hundred = decimal.NewFromInt(100)

// Product is a sellable catalog item together with its on-hand stock.
type Product struct {
	ID          string
	Code        string
	Barcode     string
	Name        string
	Description string
	Price       decimal.Decimal
	TaxPercent  decimal.Decimal
	Stock       int
	Active      bool
	ImageURL    string
}

// TaxType reports Exempt for a zero tax rate and Percent otherwise.
func (p Product) TaxType() string {
	if p.TaxPercent.IsZero() {
		return TaxExempt
	}
	return TaxPercent
}

// ValidationError describes a catalog field that failed validation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validate checks the fields every stored product must satisfy.
func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return &ValidationError{Reason: "Name is required"}
	case p.Price.IsNegative():
		return &ValidationError{Reason: "Price must be >= 0"}
	case p.TaxPercent.IsNegative() || p.TaxPercent.GreaterThan(hundred):
		return &ValidationError{Reason: "TaxPercent must be between 0 and 100"}
	case p.Stock < 0:
		return &ValidationError{Reason: "Stock must be >= 0"}
	}
	return nil
}

// Repository defines the catalog operations.
//
// Lookup returns the first active product matching every non-empty key.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Lookup(ctx context.Context, barcode, code string) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
