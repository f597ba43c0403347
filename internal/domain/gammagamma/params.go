// Package gammagamma implements the Gamma-Gamma model of spend per
// transaction: fitting over repeat customers and the shrunk estimate of a
// customer's expected average transaction value.
package gammagamma

import (
	"fmt"
	"math"

	"github.com/okian/cltv/internal/domain/model"
)

// Params are the three population-level Gamma-Gamma parameters. P is the
// shape of per-transaction spend; Q and V are the shape and rate of the
// Gamma prior on its rate.
type Params struct {
	P float64 `json:"p"`
	Q float64 `json:"q"`
	V float64 `json:"v"`
}

// Validate reports non-positive or non-finite parameters.
func (p Params) Validate() error {
	names := [...]string{"p", "q", "v"}
	for i, v := range [...]float64{p.P, p.Q, p.V} {
		if !(v > 0) || math.IsInf(v, 0) {
			return model.Invalid("gammagamma."+names[i], "", "must be finite and positive", v)
		}
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("p=%.6g q=%.6g v=%.6g", p.P, p.Q, p.V)
}

// PopulationMean is the expected average transaction value of a customer
// drawn from the population, p*v/(q-1). It exists only for q > 1.
func (p Params) PopulationMean() (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if p.Q <= 1 {
		return 0, model.Unstable("gammagamma.population_mean", "q=%v must exceed 1 for a finite mean", p.Q)
	}
	return p.P * p.V / (p.Q - 1), nil
}

// ConditionalExpectedValue is the expected average transaction value of a
// customer with x repeat transactions averaging m. The result is a weighted
// average of the population mean and m whose weight on m grows with x.
func (p Params) ConditionalExpectedValue(x int, m float64) (float64, error) {
	if x < 0 {
		return 0, model.Invalid("frequency", "", "must be non-negative", x)
	}
	if x > 0 && (!(m > 0) || math.IsInf(m, 0)) {
		return 0, model.Invalid("monetary", "", "must be finite and positive", m)
	}
	mean, err := p.PopulationMean()
	if err != nil {
		return 0, err
	}
	px := p.P * float64(x)
	w := px / (px + p.Q - 1)
	return (1-w)*mean + w*m, nil
}
