package handler

import (
	"net/http"
	"strings"
	"time"
)

// Closeout returns the end-of-day totals for ?date=YYYY-MM-DD.
func (h *Handler) Closeout(w http.ResponseWriter, r *http.Request) {
	v := strings.TrimSpace(r.URL.Query().Get("date"))
	if v == "" {
		badRequest(w, "date is required. Example: 2026-02-04")
		return
	}
	day, err := time.Parse(time.DateOnly, v)
	if err != nil {
		badRequest(w, "Invalid date format. Use YYYY-MM-DD")
		return
	}

	c, err := h.sales.Closeout(r.Context(), day)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCloseoutResponse(c))
}
