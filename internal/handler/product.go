package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/odin-pos/internal/domain/product"
)

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		internalError(w, r, errors.Wrap(err, "list products"))
		return
	}
	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.productError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

// LookupProduct finds an active product by barcode and/or code, as scanned
// at the till.
func (h *Handler) LookupProduct(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	barcode := strings.TrimSpace(q.Get("barcode"))
	code := strings.TrimSpace(q.Get("code"))
	if barcode == "" && code == "" {
		badRequest(w, "barcode or code is required")
		return
	}

	p, err := h.products.Lookup(r.Context(), barcode, code)
	if err != nil {
		h.productError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid product body")
		return
	}

	p := product.Product{ID: uuid.NewString(), Active: true}
	body.apply(&p)
	if err := p.Validate(); err != nil {
		h.productError(w, r, err)
		return
	}
	if err := h.products.Create(r.Context(), &p); err != nil {
		h.productError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/products/"+p.ID)
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body productBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid product body")
		return
	}

	p, err := h.products.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.productError(w, r, err)
		return
	}
	body.apply(p)
	if err := p.Validate(); err != nil {
		h.productError(w, r, err)
		return
	}
	if err := h.products.Update(ctx, p); err != nil {
		h.productError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.productError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) productError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *product.ValidationError
	switch {
	case errors.Is(err, product.ErrNotFound):
		notFound(w)
	case errors.As(err, &validationErr):
		badRequest(w, validationErr.Reason)
	default:
		internalError(w, r, err)
	}
}
