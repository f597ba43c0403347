// Package model contains domain models passed between layers.
package model

import (
	"math"
	"strings"
	"time"
)

// Transaction is one invoice line as exported by the retail system.
type Transaction struct {
	Invoice     string
	StockCode   string
	Quantity    float64
	Price       float64
	InvoiceDate time.Time
	CustomerID  string
	Country     string
}

// Revenue is the line total.
func (t Transaction) Revenue() float64 { return t.Quantity * t.Price }

// NormalizeCustomerID trims an exported id and drops the ".0" suffix that
// float-typed id columns carry.
func NormalizeCustomerID(raw string) string {
	id := strings.TrimSpace(raw)
	if i := strings.IndexByte(id, '.'); i > 0 && strings.Trim(id[i+1:], "0") == "" {
		id = id[:i]
	}
	return id
}

// Cancelled reports whether the line belongs to a cancellation invoice.
func (t Transaction) Cancelled() bool { return strings.Contains(t.Invoice, "C") }

// Summary is the per-customer RFM record both estimators consume.
// Recency and T share one time unit (weeks unless configured otherwise).
type Summary struct {
	CustomerID string  `json:"customer_id"`
	Frequency  int     `json:"frequency"` // repeat purchases
	Recency    float64 `json:"recency"`   // first to last purchase
	T          float64 `json:"T"`         // first purchase to observation end
	Monetary   float64 `json:"monetary"`  // mean value of repeat transactions
}

// Validate checks the field-level invariants of a record.
func (s Summary) Validate() error {
	if err := s.ValidateRFM(); err != nil {
		return err
	}
	if !finite(s.Monetary) || s.Monetary <= 0 {
		return Invalid("monetary", s.CustomerID, "must be finite and positive", s.Monetary)
	}
	return nil
}

// ValidateRFM checks only frequency, recency and T.
func (s Summary) ValidateRFM() error {
	switch {
	case s.Frequency < 0:
		return Invalid("frequency", s.CustomerID, "must be non-negative", s.Frequency)
	case !finite(s.Recency) || s.Recency < 0:
		return Invalid("recency", s.CustomerID, "must be finite and non-negative", s.Recency)
	case !finite(s.T) || s.T < 0:
		return Invalid("T", s.CustomerID, "must be finite and non-negative", s.T)
	case s.Recency > s.T:
		return Invalid("recency", s.CustomerID, "must not exceed T", s.Recency)
	}
	return nil
}

// CustomerValue is the per-customer output of a pipeline run.
type CustomerValue struct {
	CustomerID           string  `json:"customer_id"`
	Frequency            int     `json:"frequency"`
	Recency              float64 `json:"recency"`
	T                    float64 `json:"T"`
	Monetary             float64 `json:"monetary"`
	ExpectedShort        float64 `json:"expected_transactions_short"`
	ExpectedLong         float64 `json:"expected_transactions_long"`
	ProbabilityAlive     float64 `json:"probability_alive"`
	ExpectedAverageValue float64 `json:"expected_average_value"`
	CLTV                 float64 `json:"cltv"`
	ScaledCLTV           float64 `json:"scaled_cltv"`
	Segment              string  `json:"segment,omitempty"`
}

// Summary returns the RFM part of the value.
func (v CustomerValue) Summary() Summary {
	return Summary{
		CustomerID: v.CustomerID,
		Frequency:  v.Frequency,
		Recency:    v.Recency,
		T:          v.T,
		Monetary:   v.Monetary,
	}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
