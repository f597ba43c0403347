package bgnbd

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
const ModelName = "bgnbd"

// Default fit configuration.
const (
	defaultPenalizer     = 0.001
	defaultMaxIterations = 2000
	defaultTolerance     = 1e-7
	// defaultMinFrequency rejects customers without a second repeat purchase.
	defaultMinFrequency = 2
	// scaledHorizon is the largest T after time rescaling.
	scaledHorizon = 10.0
)

// Estimate is the outcome of a successful fit.
type Estimate struct {
	Params Params `json:"params"`
	// LogLikelihood is the mean per-customer log-likelihood at Params in the
	// records' time unit, without the penalty.
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

// WithMinFrequency rejects populations containing customers with fewer
// repeat purchases than n. The default is 2; 0 admits every customer.
func WithMinFrequency(n int) Option {
	return func(f *Fitter) {
		if n >= 0 {
			f.minFrequency = n
		}
	}
}

// WithInitialParams overrides the all-ones starting point.
func WithInitialParams(p Params) Option {
	return func(f *Fitter) {
		if p.Validate() == nil {
			f.initial = p
		}
	}
}

// Fitter estimates BG/NBD parameters by penalized maximum likelihood.
// It is safe for concurrent use.
type Fitter struct {
	penalizer     float64
	maxIterations int
	tolerance     float64
	minFrequency  int
	initial       Params
}

// NewFitter creates a Fitter with default settings.
func NewFitter(opts ...Option) *Fitter {
	f := &Fitter{
		penalizer:     defaultPenalizer,
		maxIterations: defaultMaxIterations,
		tolerance:     defaultTolerance,
		minFrequency:  defaultMinFrequency,
		initial:       Params{R: 1, Alpha: 1, A: 1, B: 1},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit estimates population parameters from customer summaries. Recency and T
// are rescaled so the oldest customer has T = 10 during optimization; Alpha is
// returned in the records' own time unit.
func (f *Fitter) Fit(ctx context.Context, records []model.Summary) (Estimate, error) {
	start := time.Now()
	if len(records) == 0 {
		return Estimate{}, model.Invalid("records", "", "must not be empty", 0)
	}

	var maxT float64
	for _, r := range records {
		if err := r.ValidateRFM(); err != nil {
			return Estimate{}, err
		}
		if r.Frequency < f.minFrequency {
			return Estimate{}, model.Invalid("frequency", r.CustomerID,
				fmt.Sprintf("must be at least %d", f.minFrequency), r.Frequency)
		}
		maxT = math.Max(maxT, r.T)
	}
	scale := 1.0
	if maxT > 0 {
		scale = scaledHorizon / maxT
	}

	pop := population{
		x:  make([]float64, len(records)),
		tx: make([]float64, len(records)),
		T:  make([]float64, len(records)),
	}
	for i, r := range records {
		pop.x[i] = float64(r.Frequency)
		pop.tx[i] = r.Recency * scale
		pop.T[i] = r.T * scale
	}

	init := f.initial
	init.Alpha *= scale
	res, err := numeric.MinimizePositive(ctx,
		numeric.Objective{Value: pop.negLogLikelihood, Gradient: pop.gradient},
		[]float64{init.R, init.Alpha, init.A, init.B},
		numeric.Settings{Penalizer: f.penalizer, MaxIterations: f.maxIterations, Tolerance: f.tolerance},
	)
	if err != nil {
		return Estimate{}, f.fitError(ctx, res, scale, err)
	}

	p := Params{R: res.Params[0], Alpha: res.Params[1] / scale, A: res.Params[2], B: res.Params[3]}
	if err := numeric.CheckFitted(res.Params); err != nil {
		return Estimate{}, &model.FitConvergenceError{
			Model: ModelName, Status: res.Status, Iterations: res.Iterations,
			LastParams: []float64{p.R, p.Alpha, p.A, p.B}, Err: err,
		}
	}
	if err := p.Validate(); err != nil {
		return Estimate{}, &model.FitConvergenceError{
			Model: ModelName, Status: res.Status, Iterations: res.Iterations,
			LastParams: []float64{p.R, p.Alpha, p.A, p.B}, Err: err,
		}
	}

	return Estimate{
		Params:        p,
		LogLikelihood: MeanLogLikelihood(p, records),
		Customers:     len(records),
		Iterations:    res.Iterations,
		Evaluations:   res.Evaluations,
		Status:        res.Status,
		Duration:      time.Since(start),
	}, nil
}

func (f *Fitter) fitError(ctx context.Context, res numeric.Result, scale float64, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("bgnbd fit: %w", err)
	case errors.Is(err, numeric.ErrNonFiniteStart):
		return model.Unstable("bgnbd.fit", "log-likelihood is not finite at the starting parameters")
	}
	var last []float64
	if len(res.Params) == 4 {
		last = []float64{res.Params[0], res.Params[1] / scale, res.Params[2], res.Params[3]}
	}
	return &model.FitConvergenceError{
		Model:      ModelName,
		Status:     res.Status,
		Iterations: res.Iterations,
		LastParams: last,
		Err:        err,
	}
}

// MeanLogLikelihood is the mean per-customer log-likelihood of records under p.
func MeanLogLikelihood(p Params, records []model.Summary) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += LogLikelihood(p, r.Frequency, r.Recency, r.T)
	}
	return sum / float64(len(records))
}
