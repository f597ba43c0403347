// Package bgnbd implements the Beta-Geometric/Negative-Binomial model of
// repeat purchasing: maximum likelihood fitting over a customer population
// and per-customer predictions under fitted parameters.
package bgnbd

import (
	"fmt"
	"math"

	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/domain/numeric"
)

// unitShapeGap bounds |a-1| below which the expectation's leading factor
// (a+b+x-1)/(a-1) cancels too much to evaluate directly. The singularity is
// removable, so the expectation is interpolated from a = 1±unitShapeGap.
const unitShapeGap = 1e-5

// Params are the four population-level BG/NBD parameters. R and Alpha shape
// the Gamma heterogeneity of purchase rates (Alpha in the summary time unit);
// A and B shape the Beta heterogeneity of dropout probabilities.
type Params struct {
	R     float64 `json:"r"`
	Alpha float64 `json:"alpha"`
	A     float64 `json:"a"`
	B     float64 `json:"b"`
}

// Validate reports non-positive or non-finite parameters.
func (p Params) Validate() error {
	names := [...]string{"r", "alpha", "a", "b"}
	for i, v := range [...]float64{p.R, p.Alpha, p.A, p.B} {
		if !(v > 0) || math.IsInf(v, 0) {
			return model.Invalid("bgnbd."+names[i], "", "must be finite and positive", v)
		}
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("r=%.6g alpha=%.6g a=%.6g b=%.6g", p.R, p.Alpha, p.A, p.B)
}

// ExpectedTransactions returns the expected number of purchases in the next
// t time units for a customer with x repeat purchases, recency tx and age T.
// It is zero at t = 0 and non-decreasing in t.
func (p Params) ExpectedTransactions(t float64, x int, tx, T float64) (float64, error) {
	if err := checkCustomer(x, tx, T); err != nil {
		return 0, err
	}
	if !(t >= 0) || math.IsInf(t, 0) {
		return 0, model.Invalid("horizon", "", "must be finite and non-negative", t)
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if t == 0 {
		return 0, nil
	}
	if gap := p.A - 1; math.Abs(gap) < unitShapeGap {
		lo, hi := p, p
		lo.A, hi.A = 1-unitShapeGap, 1+unitShapeGap
		below, err := lo.expected(t, x, tx, T)
		if err != nil {
			return 0, err
		}
		above, err := hi.expected(t, x, tx, T)
		if err != nil {
			return 0, err
		}
		w := (gap + unitShapeGap) / (2 * unitShapeGap)
		return math.Max(0, below+(above-below)*w), nil
	}
	return p.expected(t, x, tx, T)
}

// expected evaluates the closed form for validated inputs with a != 1.
func (p Params) expected(t float64, x int, tx, T float64) (float64, error) {
	xf := float64(x)
	// Euler transformation of 2F1(r+x, b+x; a+b+x-1; t/(alpha+T+t)). z still
	// tends to one as t grows; Hyp2F1 sums in 1-z there.
	z := t / (p.Alpha + T + t)
	hyp, err := numeric.Hyp2F1(p.A+p.B-1-p.R, p.A-1, p.A+p.B+xf-1, z)
	if err != nil {
		return 0, model.Unstable("bgnbd.expected_transactions", "2F1 at z=%v: %v", z, err)
	}
	logOneMinusZ := math.Log(p.Alpha+T) - math.Log(p.Alpha+T+t)
	second := 1 - math.Exp((p.A-1)*logOneMinusZ)*hyp
	first := (p.A + p.B + xf - 1) / (p.A - 1)

	denom := 1.0
	if x > 0 {
		denom += math.Exp(logOddsDead(p, x, tx, T))
	}
	out := first * second / denom
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, model.Unstable("bgnbd.expected_transactions", "non-finite result for x=%d tx=%v T=%v t=%v", x, tx, T, t)
	}
	return math.Max(0, out), nil
}

// ExpectedTransactionsNewCustomer returns the unconditional expected number of
// purchases in a period of length t for a customer drawn from the population.
func (p Params) ExpectedTransactionsNewCustomer(t float64) (float64, error) {
	return p.ExpectedTransactions(t, 0, 0, 0)
}

// ProbabilityAlive returns the probability that the customer has not dropped
// out by T. Customers without repeat purchases are alive with certainty.
func (p Params) ProbabilityAlive(x int, tx, T float64) (float64, error) {
	if err := checkCustomer(x, tx, T); err != nil {
		return 0, err
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if x == 0 {
		return 1, nil
	}
	odds := logOddsDead(p, x, tx, T)
	// 1/(1+e^odds) computed without overflowing e^odds.
	if odds > 0 {
		e := math.Exp(-odds)
		return e / (1 + e), nil
	}
	return 1 / (1 + math.Exp(odds)), nil
}

// logOddsDead is log(a/(b+x-1) * ((alpha+T)/(alpha+tx))^(r+x)) for x > 0.
func logOddsDead(p Params, x int, tx, T float64) float64 {
	xf := float64(x)
	return math.Log(p.A) - math.Log(p.B+xf-1) +
		(p.R+xf)*(math.Log(p.Alpha+T)-math.Log(p.Alpha+tx))
}

func checkCustomer(x int, tx, T float64) error {
	return model.Summary{Frequency: x, Recency: tx, T: T}.ValidateRFM()
}
