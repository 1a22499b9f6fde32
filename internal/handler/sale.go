package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/odin-pos/internal/domain/sale"
)

// CreateSale checks out a cart on behalf of the caller from RoleAuth.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var body createSaleBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid sale body")
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	s, err := h.sales.CreateSale(r.Context(), principal, body.request())
	if err != nil {
		h.saleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleResponse(s))
}

// ListSales returns sales newest first, optionally bounded by from and to.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f sale.Filter
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, _, ok := parseInstant(v)
		if !ok {
			badRequest(w, "Invalid from. Use RFC3339 or YYYY-MM-DD")
			return
		}
		f.From = &from
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, dateOnly, ok := parseInstant(v)
		if !ok {
			badRequest(w, "Invalid to. Use RFC3339 or YYYY-MM-DD")
			return
		}
		f.To = &to
		f.ToDateOnly = dateOnly
	}

	sales, err := h.sales.ListSales(r.Context(), f)
	if err != nil {
		internalError(w, r, errors.Wrap(err, "list sales"))
		return
	}
	out := make([]saleResponse, len(sales))
	for i := range sales {
		out[i] = toSaleResponse(&sales[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// parseInstant accepts RFC3339 timestamps and bare dates. Bare dates are
// midnight UTC and reported as dateOnly.
func parseInstant(v string) (t time.Time, dateOnly, ok bool) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), false, true
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true, true
	}
	return time.Time{}, false, false
}

func (h *Handler) saleError(w http.ResponseWriter, r *http.Request, err error) {
	switch kind := sale.KindOf(err); kind {
	case sale.KindInternal:
		internalError(w, r, err)
	case sale.KindForbidden:
		writeText(w, http.StatusForbidden, "Forbidden")
	default:
		zctx.From(r.Context()).Info("Sale rejected",
			zap.Stringer("kind", kind),
			zap.String("reason", err.Error()),
		)
		msg := err.Error()
		if errors.Is(err, sale.ErrStockConflict) {
			msg = "Stock changed, retry the sale"
		}
		badRequest(w, msg)
	}
}
