package bgnbd

import (
	"math"

	"gonum.org/v1/gonum/mathext"

	"github.com/okian/cltv/internal/domain/numeric"
)

// LogLikelihood is the log-likelihood of one customer's (x, tx, T) under p.
func LogLikelihood(p Params, x int, tx, T float64) float64 {
	return recordLogLikelihood(p, float64(x), tx, T, nil)
}

// recordLogLikelihood evaluates
//
//	A1 + A2 + log(exp(A3) + [x>0] exp(A4))
//
// and, when grad is non-nil, adds the partial derivatives with respect to
// (r, alpha, a, b) into it.
func recordLogLikelihood(p Params, x, tx, T float64, grad []float64) float64 {
	r, alpha, a, b := p.R, p.Alpha, p.A, p.B

	a1 := lgamma(r+x) - lgamma(r) + r*math.Log(alpha)
	a2 := lgamma(a+b) + lgamma(b+x) - lgamma(b) - lgamma(a+b+x)
	a3 := -(r + x) * math.Log(alpha+T)
	a4 := math.Inf(-1)
	if x > 0 {
		a4 = math.Log(a) - math.Log(b+x-1) - (r+x)*math.Log(alpha+tx)
	}
	tail := numeric.LogSumExp(a3, a4)

	if grad != nil {
		w3 := math.Exp(a3 - tail)
		var w4 float64
		if x > 0 {
			w4 = math.Exp(a4 - tail)
		}
		psiAB, psiABX := mathext.Digamma(a+b), mathext.Digamma(a+b+x)

		grad[0] += mathext.Digamma(r+x) - mathext.Digamma(r) + math.Log(alpha) -
			w3*math.Log(alpha+T) - w4*math.Log(alpha+tx)
		grad[1] += r/alpha - w3*(r+x)/(alpha+T) - w4*(r+x)/(alpha+tx)
		grad[2] += psiAB - psiABX + w4/a
		grad[3] += psiAB + mathext.Digamma(b+x) - mathext.Digamma(b) - psiABX
		if x > 0 {
			grad[3] -= w4 / (b + x - 1)
		}
	}
	return a1 + a2 + tail
}

// population holds the likelihood inputs of a fit in scaled time units.
type population struct {
	x, tx, T []float64
}

// negLogLikelihood is the mean negative log-likelihood over the population.
func (pop population) negLogLikelihood(v []float64) float64 {
	p := Params{R: v[0], Alpha: v[1], A: v[2], B: v[3]}
	var sum float64
	for i := range pop.x {
		sum += recordLogLikelihood(p, pop.x[i], pop.tx[i], pop.T[i], nil)
	}
	return -sum / float64(len(pop.x))
}

func (pop population) gradient(grad, v []float64) {
	p := Params{R: v[0], Alpha: v[1], A: v[2], B: v[3]}
	for i := range grad {
		grad[i] = 0
	}
	for i := range pop.x {
		recordLogLikelihood(p, pop.x[i], pop.tx[i], pop.T[i], grad)
	}
	n := float64(len(pop.x))
	for i := range grad {
		grad[i] = -grad[i] / n
	}
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
