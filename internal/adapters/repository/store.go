// Package repository defines the ranking store interface and errors.
package repository

import (
	"context"

	"github.com/okian/cltv/internal/domain/model"
)

// Entry is a valued customer together with its position in the ranking.
type Entry struct {
	Rank int `json:"rank"`
	model.CustomerValue
}

// Store provides read/write access to the ranking state.
type Store interface {
	// Put inserts or replaces a customer's value.
	Put(ctx context.Context, v model.CustomerValue) error

	// Get returns the ranked entry of a customer.
	// Returns ErrNotFound if the customer is unknown.
	Get(ctx context.Context, customerID string) (Entry, error)

	// TopN returns the top-N entries ordered by CLTV desc, customer id asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// All returns every entry in rank order.
	All(ctx context.Context) []Entry

	// Count returns the number of customers held.
	Count(ctx context.Context) int

	// SegmentCounts returns the number of customers per segment label.
	SegmentCounts(ctx context.Context) map[string]int
}
