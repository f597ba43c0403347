package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// CustomerDependencies defines the interface for ranking reads.
type CustomerDependencies interface {
	TopN(ctx context.Context, n int) ([]Entry, error)
	Customer(ctx context.Context, customerID string) (Entry, error)
}

// CustomersHandler handles ranking requests.
type CustomersHandler struct {
	deps     CustomerDependencies
	maxLimit int
}

// NewCustomersHandler creates a new customers handler.
func NewCustomersHandler(deps CustomerDependencies, maxLimit int) *CustomersHandler {
	return &CustomersHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleTopN handles GET /customers?limit=N requests. A missing limit
// returns the first ten customers.
func (h *CustomersHandler) HandleTopN(w http.ResponseWriter, r *http.Request) {
	const op = "api.top_customers"
	n := min(10, h.maxLimit)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request",
				badRequest(op, fmt.Errorf("limit must be a positive integer, got %q", limitStr)))
			return
		}
		n = v
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded",
			fmt.Errorf("%s: %w: limit must not exceed %d", op, ErrLimitExceeded, h.maxLimit))
		return
	}
	entries, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleCustomer handles GET /customers/{id} requests.
func (h *CustomersHandler) HandleCustomer(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_customer"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, errors.New("missing customer id")))
		return
	}
	entry, err := h.deps.Customer(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
