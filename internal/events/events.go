// Package events publishes committed sales to Kafka through a transactional
// outbox.
package events

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/odin-pos/internal/domain/sale"
)

// TypeSaleCreated is the event type written for every committed sale.
const TypeSaleCreated = "sale.created"

// Event is an outbox row.
type Event struct {
	ID        int64
	SaleID    string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// SaleCreated is the decoded payload of a sale.created event.
type SaleCreated struct {
	SaleID         string
	CreatedAt      time.Time
	PaymentMethod  string
	Total          decimal.Decimal
	CreatedByEmail string
	Items          []SaleCreatedItem
}

// SaleCreatedItem is one line of a SaleCreated payload.
type SaleCreatedItem struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Qty       int
}

// EncodeSaleCreated renders the event payload for s. Money is written as
// JSON numbers with their exact decimal text.
func EncodeSaleCreated(s *sale.Sale) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("saleId")
		e.Str(s.ID)
		e.FieldStart("createdAt")
		e.Str(s.CreatedAt.UTC().Format(time.RFC3339Nano))
		e.FieldStart("paymentMethod")
		e.Str(string(s.PaymentMethod))
		e.FieldStart("total")
		e.Num(jx.Num(s.Total.String()))
		e.FieldStart("createdByEmail")
		e.Str(s.CreatedByEmail)
		e.FieldStart("items")
		e.Arr(func(e *jx.Encoder) {
			for _, it := range s.Items {
				e.Obj(func(e *jx.Encoder) {
					e.FieldStart("productId")
					e.Str(it.ProductID)
					e.FieldStart("name")
					e.Str(it.Name)
					e.FieldStart("price")
					e.Num(jx.Num(it.Price.String()))
					e.FieldStart("qty")
					e.Int(it.Qty)
				})
			}
		})
	})
	return e.Bytes()
}

// DecodeSaleCreated parses a payload produced by EncodeSaleCreated. Unknown
// fields are skipped.
func DecodeSaleCreated(data []byte) (*SaleCreated, error) {
	var out SaleCreated
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "saleId":
			out.SaleID, err = d.Str()
		case "createdAt":
			var raw string
			if raw, err = d.Str(); err == nil {
				out.CreatedAt, err = time.Parse(time.RFC3339Nano, raw)
			}
		case "paymentMethod":
			out.PaymentMethod, err = d.Str()
		case "total":
			out.Total, err = decodeDecimal(d)
		case "createdByEmail":
			out.CreatedByEmail, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return err
				}
				out.Items = append(out.Items, item)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode sale.created")
	}
	return &out, nil
}

func decodeItem(d *jx.Decoder) (SaleCreatedItem, error) {
	var it SaleCreatedItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			it.ProductID, err = d.Str()
		case "name":
			it.Name, err = d.Str()
		case "price":
			it.Price, err = decodeDecimal(d)
		case "qty":
			it.Qty, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return it, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}
