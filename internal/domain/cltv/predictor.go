package cltv

import (
	"context"
	"fmt"

	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/internal/domain/gammagamma"
	"github.com/okian/cltv/internal/domain/model"
)

// Option applies a configuration option to the Predictor.
type Option func(*Predictor)

// WithHorizon sets the discounted projection window.
func WithHorizon(h Horizon) Option {
	return func(p *Predictor) {
		if h.Validate() == nil {
			p.horizon = h
		}
	}
}

// WithExpectationHorizons sets the short and long windows, in model time
// units, reported as expected transactions.
func WithExpectationHorizons(short, long float64) Option {
	return func(p *Predictor) {
		if short >= 0 && long >= 0 {
			p.short, p.long = short, long
		}
	}
}

// Predictor maps customer summaries to CustomerValue records under fixed
// fitted parameters. Parameters are read-only, so a Predictor is safe for
// concurrent use.
type Predictor struct {
	bg      bgnbd.Params
	gg      gammagamma.Params
	horizon Horizon
	short   float64
	long    float64
}

// NewPredictor creates a Predictor for fitted parameters.
func NewPredictor(bg bgnbd.Params, gg gammagamma.Params, opts ...Option) (*Predictor, error) {
	if err := bg.Validate(); err != nil {
		return nil, err
	}
	if err := gg.Validate(); err != nil {
		return nil, err
	}
	p := &Predictor{
		bg: bg,
		gg: gg,
		horizon: Horizon{
			Periods:      defaultHorizonPeriods,
			PeriodLength: defaultPeriodLength,
			DiscountRate: defaultDiscountRate,
		},
		short: defaultShortHorizon,
		long:  defaultLongHorizon,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Horizon returns the projection window in use.
func (p *Predictor) Horizon() Horizon { return p.horizon }

// Predict computes the output record for one customer.
func (p *Predictor) Predict(ctx context.Context, rec model.Summary) (model.CustomerValue, error) {
	if err := ctx.Err(); err != nil {
		return model.CustomerValue{}, fmt.Errorf("predict %s: %w", rec.CustomerID, err)
	}
	if err := rec.Validate(); err != nil {
		return model.CustomerValue{}, err
	}

	short, err := p.bg.ExpectedTransactions(p.short, rec.Frequency, rec.Recency, rec.T)
	if err != nil {
		return model.CustomerValue{}, fmt.Errorf("predict %s: %w", rec.CustomerID, err)
	}
	long, err := p.bg.ExpectedTransactions(p.long, rec.Frequency, rec.Recency, rec.T)
	if err != nil {
		return model.CustomerValue{}, fmt.Errorf("predict %s: %w", rec.CustomerID, err)
	}
	alive, err := p.bg.ProbabilityAlive(rec.Frequency, rec.Recency, rec.T)
	if err != nil {
		return model.CustomerValue{}, fmt.Errorf("predict %s: %w", rec.CustomerID, err)
	}
	value, err := p.gg.ConditionalExpectedValue(rec.Frequency, rec.Monetary)
	if err != nil {
		return model.CustomerValue{}, fmt.Errorf("predict %s: %w", rec.CustomerID, err)
	}
	clv, err := Compute(p.bg, p.gg, rec, p.horizon)
	if err != nil {
		return model.CustomerValue{}, fmt.Errorf("predict %s: %w", rec.CustomerID, err)
	}

	return model.CustomerValue{
		CustomerID:           rec.CustomerID,
		Frequency:            rec.Frequency,
		Recency:              rec.Recency,
		T:                    rec.T,
		Monetary:             rec.Monetary,
		ExpectedShort:        short,
		ExpectedLong:         long,
		ProbabilityAlive:     alive,
		ExpectedAverageValue: value,
		CLTV:                 clv,
	}, nil
}
