// Package numeric holds the special functions and the maximum likelihood
// driver shared by the BG/NBD and Gamma-Gamma estimators.
package numeric

import (
	"errors"
	"math"
)

const (
	maxSeriesTerms = 200_000
	seriesEpsilon  = 1e-16
	// reflectAbove is the argument beyond which Hyp2F1 sums in 1-z.
	reflectAbove = 0.9
	// integerGap is how close c-a-b may come to an integer before the
	// connection formula's Gamma factors are too large to use.
	integerGap = 1e-8
)

var (
	// ErrDomain is returned for arguments outside a function's supported domain.
	ErrDomain = errors.New("argument outside supported domain")
	// ErrSeries is returned when a power series fails to converge to a finite value.
	ErrSeries = errors.New("series did not converge")
)

// LogSumExp returns log(sum(exp(x))) without overflowing.
func LogSumExp(xs ...float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	if math.IsInf(m, 0) {
		return m
	}
	var s float64
	for _, x := range xs {
		s += math.Exp(x - m)
	}
	return m + math.Log(s)
}

// Hyp2F1 evaluates the Gauss hypergeometric function 2F1(a, b; c; z) for
// 0 <= z < 1. Above z = 0.9 it maps to two series in 1-z, unless c-a-b is
// within 1e-8 of an integer; the direct series there may run out of terms as
// z approaches one and returns ErrSeries.
func Hyp2F1(a, b, c, z float64) (float64, error) {
	if z < 0 || z >= 1 || math.IsNaN(z) {
		return 0, ErrDomain
	}
	if nonPositiveInt(c) {
		return 0, ErrDomain
	}
	if z > reflectAbove && !nonPositiveInt(a) && !nonPositiveInt(b) {
		if d := c - a - b; math.Abs(d-math.Round(d)) > integerGap {
			return hyp2F1Reflected(a, b, c, z)
		}
	}
	return hyp2F1Series(a, b, c, z)
}

// hyp2F1Reflected applies the 1-z connection formula
//
//	F(a,b;c;z) = G1*F(a,b;a+b-c+1;1-z) + (1-z)^(c-a-b)*G2*F(c-a,c-b;c-a-b+1;1-z)
//
// with G1 = Γ(c)Γ(c-a-b)/(Γ(c-a)Γ(c-b)) and G2 = Γ(c)Γ(a+b-c)/(Γ(a)Γ(b)).
func hyp2F1Reflected(a, b, c, z float64) (float64, error) {
	w := 1 - z
	d := c - a - b

	var sum float64
	if g, ok := gammaRatio(c, d, c-a, c-b); ok {
		f, err := hyp2F1Series(a, b, 1-d, w)
		if err != nil {
			return 0, err
		}
		sum += g * f
	}
	if g, ok := gammaRatio(c, -d, a, b); ok {
		f, err := hyp2F1Series(c-a, c-b, 1+d, w)
		if err != nil {
			return 0, err
		}
		sum += math.Exp(d*math.Log(w)) * g * f
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, ErrSeries
	}
	return sum, nil
}

// gammaRatio returns Γ(n1)Γ(n2)/(Γ(d1)Γ(d2)). ok is false when a
// denominator sits on a pole and the ratio vanishes.
func gammaRatio(n1, n2, d1, d2 float64) (float64, bool) {
	if nonPositiveInt(d1) || nonPositiveInt(d2) {
		return 0, false
	}
	l1, s1 := math.Lgamma(n1)
	l2, s2 := math.Lgamma(n2)
	l3, s3 := math.Lgamma(d1)
	l4, s4 := math.Lgamma(d2)
	return float64(s1*s2*s3*s4) * math.Exp(l1+l2-l3-l4), true
}

func hyp2F1Series(a, b, c, z float64) (float64, error) {
	sum, term := 1.0, 1.0
	for k := 0.0; k < maxSeriesTerms; k++ {
		ratio := (a + k) * (b + k) / ((c + k) * (k + 1)) * z
		term *= ratio
		sum += term
		if math.IsNaN(sum) || math.IsInf(sum, 0) {
			return 0, ErrSeries
		}
		if term == 0 {
			return sum, nil
		}
		if math.Abs(ratio) < 1 && math.Abs(term) <= seriesEpsilon*math.Abs(sum) {
			return sum, nil
		}
	}
	return 0, ErrSeries
}

func nonPositiveInt(v float64) bool {
	return v <= 0 && v == math.Trunc(v)
}
