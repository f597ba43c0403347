package numeric

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

const (
	// stallGradient is the largest gradient infinity norm accepted when the
	// line search can no longer make progress.
	stallGradient = 1e-4
	// Fitted parameters outside [minFitted, maxFitted] in the optimizer's
	// working scale mark a degenerate optimum.
	minFitted = 1e-8
	maxFitted = 1e8
)

var (
	// ErrNonFiniteStart is returned when the objective is not finite at the start.
	ErrNonFiniteStart = errors.New("objective is not finite at the starting point")
	// ErrNotConverged is returned when the optimizer stops without an optimum.
	ErrNotConverged = errors.New("optimizer stopped before convergence")
	// ErrDegenerate is returned for an optimum at the edge of the parameter space.
	ErrDegenerate = errors.New("optimum is degenerate")
)

// CheckFitted reports ErrDegenerate when a parameter is not a normal float
// inside [1e-8, 1e8]. Likelihoods that grow without bound, such as a
// population observed only at T = 0, drive parameters there.
func CheckFitted(params []float64) error {
	for i, p := range params {
		if !(p >= minFitted && p <= maxFitted) {
			return fmt.Errorf("%w: params[%d]=%v", ErrDegenerate, i, p)
		}
	}
	return nil
}

// Objective is a smooth function of strictly positive parameters.
type Objective struct {
	Value    func(params []float64) float64
	Gradient func(grad, params []float64)
}

// Settings controls MinimizePositive.
type Settings struct {
	Penalizer     float64
	MaxIterations int
	Tolerance     float64
}

// Result describes the optimum found by MinimizePositive. Params holds the
// last iterate even when an error is returned.
type Result struct {
	Params      []float64
	Objective   float64
	Iterations  int
	Evaluations int
	Status      string
}

// MinimizePositive minimizes obj(p) + Penalizer*sum(p^2) over p > 0 with
// BFGS on log(p). Positivity holds by construction. Cancelling ctx stops the
// search at the next evaluation.
func MinimizePositive(ctx context.Context, obj Objective, start []float64, s Settings) (Result, error) {
	n := len(start)
	theta0 := make([]float64, n)
	for i, p := range start {
		if !(p > 0) || math.IsInf(p, 0) {
			return Result{}, fmt.Errorf("%w: start[%d]=%v", ErrDomain, i, p)
		}
		theta0[i] = math.Log(p)
	}

	f := func(theta []float64) float64 {
		p := expAll(theta)
		v := obj.Value(p) + s.Penalizer*sumSquares(p)
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}
	g := func(grad, theta []float64) {
		p := expAll(theta)
		obj.Gradient(grad, p)
		for i := range grad {
			grad[i] = (grad[i] + 2*s.Penalizer*p[i]) * p[i]
			if math.IsNaN(grad[i]) {
				grad[i] = 0
			}
		}
	}

	if v := f(theta0); math.IsInf(v, 0) {
		return Result{Params: start}, ErrNonFiniteStart
	}

	settings := &optimize.Settings{
		GradientThreshold: s.Tolerance,
		MajorIterations:   s.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 50,
		},
		Recorder: ctxRecorder{ctx: ctx},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: f, Grad: g}, theta0, settings, &optimize.BFGS{})
	if res == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Params: start}, ctxErr
		}
		return Result{Params: start}, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}

	out := Result{
		Params:      expAll(res.X),
		Objective:   res.F,
		Iterations:  res.MajorIterations,
		Evaluations: res.FuncEvaluations,
		Status:      res.Status.String(),
	}
	for _, p := range out.Params {
		if !(p > 0) || math.IsInf(p, 0) {
			return out, fmt.Errorf("%w: parameters left the positive finite range", ErrNotConverged)
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		if stalled(err) && gradientNorm(g, res.X) <= stallGradient {
			return out, nil
		}
		return out, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	if res.Status.Early() {
		return out, fmt.Errorf("%w: %s", ErrNotConverged, res.Status)
	}
	return out, nil
}

type ctxRecorder struct{ ctx context.Context }

func (r ctxRecorder) Init() error { return r.ctx.Err() }

func (r ctxRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}

func stalled(err error) bool {
	return errors.Is(err, optimize.ErrNoProgress) || errors.Is(err, optimize.ErrLinesearcherFailure)
}

func gradientNorm(g func(grad, x []float64), x []float64) float64 {
	grad := make([]float64, len(x))
	g(grad, x)
	var m float64
	for _, v := range grad {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

func expAll(theta []float64) []float64 {
	p := make([]float64, len(theta))
	for i, t := range theta {
		p[i] = math.Exp(t)
	}
	return p
}

func sumSquares(p []float64) float64 {
	var s float64
	for _, v := range p {
		s += v * v
	}
	return s
}
