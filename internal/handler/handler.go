// Package handler exposes the POS domain over HTTP. Routes live under /api
// and speak camelCase JSON with decimals encoded as JSON numbers.
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/odin-pos/internal/domain/auth"
	"github.com/xenking/odin-pos/internal/domain/product"
	"github.com/xenking/odin-pos/internal/domain/sale"
)

const maxBodyBytes = 1 << 20

// Handler serves the POS API.
type Handler struct {
	products product.Repository
	sales    *sale.Service
	users    *auth.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, sales *sale.Service, users *auth.Service) *Handler {
	return &Handler{
		products: products,
		sales:    sales,
		users:    users,
	}
}

// Routes returns the /api subtree. It expects to be mounted at /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RoleAuth)

	r.Get("/health", h.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/lookup", h.LookupProduct)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})

	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.ListSales)
		r.Post("/", h.CreateSale)
	})

	r.Get("/reports/closeout", h.Closeout)

	r.Route("/admin/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Put("/{email}/toggle", h.ToggleUser)
	})

	return r
}

// Health is the liveness payload the front ends poll.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Name: "Odin PoS API"})
}

func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeText(w, http.StatusBadRequest, msg)
}

func notFound(w http.ResponseWriter) {
	writeText(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

// internalError logs err and hides it from the client.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
