// Package cltv composes fitted BG/NBD and Gamma-Gamma models into a
// discounted customer lifetime value and the per-customer prediction record.
package cltv

import (
	"math"

	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/internal/domain/gammagamma"
	"github.com/okian/cltv/internal/domain/model"
)

// Default compositor configuration: six monthly periods of 4.345 weeks
// discounted at 1% per period.
const (
	defaultHorizonPeriods = 6
	defaultPeriodLength   = 4.345
	defaultDiscountRate   = 0.01
	defaultShortHorizon   = 1
	defaultLongHorizon    = 4
)

// Horizon describes the discounted projection window.
type Horizon struct {
	Periods      int     `json:"periods"`
	PeriodLength float64 `json:"period_length"`
	DiscountRate float64 `json:"discount_rate"`
}

// Validate checks the projection window.
func (h Horizon) Validate() error {
	switch {
	case h.Periods < 0:
		return model.Invalid("horizon_periods", "", "must be non-negative", h.Periods)
	case !(h.PeriodLength > 0) || math.IsInf(h.PeriodLength, 0):
		return model.Invalid("period_length", "", "must be finite and positive", h.PeriodLength)
	case !(h.DiscountRate >= 0) || math.IsInf(h.DiscountRate, 0):
		return model.Invalid("discount_rate", "", "must be finite and non-negative", h.DiscountRate)
	}
	return nil
}

// Compute returns the customer's lifetime value over h: for each period k the
// expected transactions falling in that period times the expected average
// transaction value, discounted by (1+d)^k.
func Compute(bg bgnbd.Params, gg gammagamma.Params, rec model.Summary, h Horizon) (float64, error) {
	if err := h.Validate(); err != nil {
		return 0, err
	}
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	if h.Periods == 0 {
		return 0, nil
	}

	value, err := gg.ConditionalExpectedValue(rec.Frequency, rec.Monetary)
	if err != nil {
		return 0, err
	}

	var total, prev float64
	for k := 1; k <= h.Periods; k++ {
		cum, err := bg.ExpectedTransactions(float64(k)*h.PeriodLength, rec.Frequency, rec.Recency, rec.T)
		if err != nil {
			return 0, err
		}
		total += value * math.Max(0, cum-prev) / math.Pow(1+h.DiscountRate, float64(k))
		prev = math.Max(prev, cum)
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, model.Unstable("cltv.compute", "non-finite value for customer %s", rec.CustomerID)
	}
	return total, nil
}
