package gammagamma

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/domain/numeric"
)

// ModelName identifies the estimator in errors, logs and metrics.
const ModelName = "gammagamma"

// Default fit configuration.
const (
	defaultPenalizer     = 0.001
	defaultMaxIterations = 2000
	defaultTolerance     = 1e-7
)

// Estimate is the outcome of a successful fit.
type Estimate struct {
	Params        Params        `json:"params"`
	LogLikelihood float64       `json:"log_likelihood"`
	Customers     int           `json:"customers"`
	Iterations    int           `json:"iterations"`
	Evaluations   int           `json:"evaluations"`
	Status        string        `json:"status"`
	Duration      time.Duration `json:"duration"`
}

// Option applies a configuration option to the Fitter.
type Option func(*Fitter)

// WithPenalizer sets the L2 penalty coefficient. Zero disables the penalty.
func WithPenalizer(c float64) Option {
	return func(f *Fitter) {
		if c >= 0 && !math.IsInf(c, 0) {
			f.penalizer = c
		}
	}
}

// WithMaxIterations caps optimizer iterations.
func WithMaxIterations(n int) Option {
	return func(f *Fitter) {
		if n > 0 {
			f.maxIterations = n
		}
	}
}

// WithTolerance sets the gradient convergence threshold.
func WithTolerance(tol float64) Option {
	return func(f *Fitter) {
		if tol > 0 {
			f.tolerance = tol
		}
	}
}

// WithMinFrequency raises the minimum number of repeat transactions above one.
func WithMinFrequency(n int) Option {
	return func(f *Fitter) {
		if n > 1 {
			f.minFrequency = n
		}
	}
}

// Fitter estimates Gamma-Gamma parameters by penalized maximum likelihood.
type Fitter struct {
	penalizer     float64
	maxIterations int
	tolerance     float64
	minFrequency  int
}

// NewFitter creates a Fitter with default settings.
func NewFitter(opts ...Option) *Fitter {
	f := &Fitter{
		penalizer:     defaultPenalizer,
		maxIterations: defaultMaxIterations,
		tolerance:     defaultTolerance,
		minFrequency:  1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit estimates parameters from repeat customers' (frequency, monetary).
// Every record needs at least one repeat transaction and positive spend.
func (f *Fitter) Fit(ctx context.Context, records []model.Summary) (Estimate, error) {
	start := time.Now()
	if len(records) == 0 {
		return Estimate{}, model.Invalid("records", "", "must not be empty", 0)
	}

	pop := population{x: make([]float64, len(records)), m: make([]float64, len(records))}
	for i, r := range records {
		if r.Frequency < f.minFrequency {
			return Estimate{}, model.Invalid("frequency", r.CustomerID,
				fmt.Sprintf("must be at least %d", f.minFrequency), r.Frequency)
		}
		if !(r.Monetary > 0) || math.IsInf(r.Monetary, 0) {
			return Estimate{}, model.Invalid("monetary", r.CustomerID, "must be finite and positive", r.Monetary)
		}
		pop.x[i] = float64(r.Frequency)
		pop.m[i] = r.Monetary
	}

	res, err := numeric.MinimizePositive(ctx,
		numeric.Objective{Value: pop.negLogLikelihood, Gradient: pop.gradient},
		[]float64{1, 1, 1},
		numeric.Settings{Penalizer: f.penalizer, MaxIterations: f.maxIterations, Tolerance: f.tolerance},
	)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Estimate{}, fmt.Errorf("gammagamma fit: %w", err)
		case errors.Is(err, numeric.ErrNonFiniteStart):
			return Estimate{}, model.Unstable("gammagamma.fit", "log-likelihood is not finite at the starting parameters")
		}
		return Estimate{}, &model.FitConvergenceError{
			Model: ModelName, Status: res.Status, Iterations: res.Iterations,
			LastParams: res.Params, Err: err,
		}
	}

	if err := numeric.CheckFitted(res.Params); err != nil {
		return Estimate{}, &model.FitConvergenceError{
			Model: ModelName, Status: res.Status, Iterations: res.Iterations,
			LastParams: res.Params, Err: err,
		}
	}

	p := Params{P: res.Params[0], Q: res.Params[1], V: res.Params[2]}
	return Estimate{
		Params:        p,
		LogLikelihood: -pop.negLogLikelihood(res.Params),
		Customers:     len(records),
		Iterations:    res.Iterations,
		Evaluations:   res.Evaluations,
		Status:        res.Status,
		Duration:      time.Since(start),
	}, nil
}
