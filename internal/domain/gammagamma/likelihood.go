package gammagamma

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// LogLikelihood is the log-likelihood of observing average spend m over x
// transactions under p.
func LogLikelihood(p Params, x int, m float64) float64 {
	return recordLogLikelihood(p, float64(x), m, nil)
}

func recordLogLikelihood(p Params, x, m float64, grad []float64) float64 {
	pp, q, v := p.P, p.Q, p.V
	px := pp * x
	xmv := x*m + v

	ll := lgamma(px+q) - lgamma(px) - lgamma(q) +
		q*math.Log(v) + (px-1)*math.Log(m) + px*math.Log(x) - (px+q)*math.Log(xmv)

	if grad != nil {
		psi := mathext.Digamma(px + q)
		grad[0] += x*psi - x*mathext.Digamma(px) + x*math.Log(m) + x*math.Log(x) - x*math.Log(xmv)
		grad[1] += psi - mathext.Digamma(q) + math.Log(v) - math.Log(xmv)
		grad[2] += q/v - (px+q)/xmv
	}
	return ll
}

type population struct {
	x, m []float64
}

func (pop population) negLogLikelihood(v []float64) float64 {
	p := Params{P: v[0], Q: v[1], V: v[2]}
	var sum float64
	for i := range pop.x {
		sum += recordLogLikelihood(p, pop.x[i], pop.m[i], nil)
	}
	return -sum / float64(len(pop.x))
}

func (pop population) gradient(grad, v []float64) {
	p := Params{P: v[0], Q: v[1], V: v[2]}
	for i := range grad {
		grad[i] = 0
	}
	for i := range pop.x {
		recordLogLikelihood(p, pop.x[i], pop.m[i], grad)
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
