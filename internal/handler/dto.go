package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/odin-pos/internal/domain/auth"
	"github.com/xenking/odin-pos/internal/domain/product"
	"github.com/xenking/odin-pos/internal/domain/sale"
)

// num renders a decimal as a JSON number without losing precision.
func num(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type healthResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
}

type productBody struct {
	Code        string          `json:"code"`
	Barcode     string          `json:"barcode"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	TaxPercent  decimal.Decimal `json:"taxPercent"`
	Stock       int             `json:"stock"`
	IsActive    *bool           `json:"isActive"`
	ImageURL    string          `json:"imageUrl"`
}

// apply copies the body onto p. A missing isActive keeps p.Active.
func (b productBody) apply(p *product.Product) {
	p.Code = b.Code
	p.Barcode = b.Barcode
	p.Name = b.Name
	p.Description = b.Description
	p.Price = b.Price
	p.TaxPercent = b.TaxPercent
	p.Stock = b.Stock
	p.ImageURL = b.ImageURL
	if b.IsActive != nil {
		p.Active = *b.IsActive
	}
}

type productResponse struct {
	ID          string      `json:"id"`
	Code        string      `json:"code"`
	Barcode     string      `json:"barcode"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	TaxType     string      `json:"taxType"`
	TaxPercent  json.Number `json:"taxPercent"`
	Stock       int         `json:"stock"`
	IsActive    bool        `json:"isActive"`
	ImageURL    string      `json:"imageUrl"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Code:        p.Code,
		Barcode:     p.Barcode,
		Name:        p.Name,
		Description: p.Description,
		Price:       num(p.Price),
		TaxType:     p.TaxType(),
		TaxPercent:  num(p.TaxPercent),
		Stock:       p.Stock,
		IsActive:    p.Active,
		ImageURL:    p.ImageURL,
	}
}

type cartLineBody struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

type createSaleBody struct {
	Items          []cartLineBody  `json:"items"`
	PaymentMethod  string          `json:"paymentMethod"`
	CashReceived   decimal.Decimal `json:"cashReceived"`
	CreatedByEmail string          `json:"createdByEmail"`
}

func (b createSaleBody) request() sale.CreateSaleRequest {
	lines := make([]sale.CartLine, len(b.Items))
	for i, it := range b.Items {
		lines[i] = sale.CartLine{ProductID: it.ProductID, Qty: it.Qty}
	}
	return sale.CreateSaleRequest{
		Items:          lines,
		PaymentMethod:  b.PaymentMethod,
		CashReceived:   b.CashReceived,
		CreatedByEmail: b.CreatedByEmail,
	}
}

type saleItemResponse struct {
	ID        string      `json:"id"`
	SaleID    string      `json:"saleId"`
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Qty       int         `json:"qty"`
	LineTotal json.Number `json:"lineTotal"`
}

type saleResponse struct {
	ID             string             `json:"id"`
	CreatedAt      time.Time          `json:"createdAt"`
	PaymentMethod  string             `json:"paymentMethod"`
	CashReceived   json.Number        `json:"cashReceived"`
	Change         json.Number        `json:"change"`
	CreatedByEmail string             `json:"createdByEmail"`
	Total          json.Number        `json:"total"`
	Items          []saleItemResponse `json:"items"`
}

func toSaleResponse(s *sale.Sale) saleResponse {
	items := make([]saleItemResponse, len(s.Items))
	for i, it := range s.Items {
		items[i] = saleItemResponse{
			ID:        it.ID,
			SaleID:    it.SaleID,
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     num(it.Price),
			Qty:       it.Qty,
			LineTotal: num(it.LineTotal()),
		}
	}
	return saleResponse{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt,
		PaymentMethod:  string(s.PaymentMethod),
		CashReceived:   num(s.CashReceived),
		Change:         num(s.Change),
		CreatedByEmail: s.CreatedByEmail,
		Total:          num(s.Total),
		Items:          items,
	}
}

type closeoutResponse struct {
	Date       string      `json:"date"`
	SalesCount int         `json:"salesCount"`
	ItemsQty   int         `json:"itemsQty"`
	Total      json.Number `json:"total"`
	TotalCash  json.Number `json:"totalCash"`
	TotalCard  json.Number `json:"totalCard"`
}

func toCloseoutResponse(c *sale.Closeout) closeoutResponse {
	return closeoutResponse{
		Date:       c.Date.Format(time.DateOnly),
		SalesCount: c.SalesCount,
		ItemsQty:   c.ItemsQty,
		Total:      num(c.Total),
		TotalCash:  num(c.TotalCash),
		TotalCard:  num(c.TotalCard),
	}
}

type registerBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     string(u.Role),
		IsActive: u.Active,
	}
}

type loginResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type toggleResponse struct {
	Email    string `json:"email"`
	IsActive bool   `json:"isActive"`
}
