// Package service runs the CLTV pipeline and serves its results to the HTTP
// API.
package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/okian/cltv/internal/adapters/cache"
	"github.com/okian/cltv/internal/adapters/repository"
	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/internal/domain/cltv"
	"github.com/okian/cltv/internal/domain/gammagamma"
	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/domain/prep"
	"github.com/okian/cltv/pkg/logger"
)

// Source loads raw invoice lines.
type Source interface {
	Load(ctx context.Context) ([]model.Transaction, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]model.Transaction, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context) ([]model.Transaction, error) { return f(ctx) }

// Sink persists the values of a finished run, in rank order.
type Sink interface {
	Save(ctx context.Context, run *Run, values []model.CustomerValue) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, run *Run, values []model.CustomerValue) error

// Save implements Sink.
func (f SinkFunc) Save(ctx context.Context, run *Run, values []model.CustomerValue) error {
	return f(ctx, run, values)
}

// Failure describes a customer that could not be valued.
type Failure struct {
	CustomerID string `json:"customer_id"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
}

// Run summarizes one pipeline execution.
type Run struct {
	ID               string              `json:"run_id"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
	Duration         time.Duration       `json:"duration"`
	Cutoff           time.Time           `json:"cutoff,omitzero"`
	Prep             *prep.Report        `json:"prep,omitempty"`
	Customers        int                 `json:"customers"`
	Valued           int                 `json:"valued"`
	Failed           int                 `json:"failed"`
	Failures         []Failure           `json:"failures,omitempty"`
	BGNBD            bgnbd.Estimate      `json:"bgnbd"`
	GammaGamma       gammagamma.Estimate `json:"gamma_gamma"`
	BGNBDCached      bool                `json:"bgnbd_cached"`
	GammaGammaCached bool                `json:"gamma_gamma_cached"`
	Horizon          cltv.Horizon        `json:"horizon"`
	Segments         map[string]int      `json:"segments,omitempty"`
	SegmentError     string              `json:"segment_error,omitempty"`
}

// snapshot is the published state of the last successful run.
type snapshot struct {
	run       *Run
	store     *repository.TreapStore
	predictor *cltv.Predictor
}

// Service owns the pipeline collaborators and the latest results.
type Service struct {
	settings    Settings
	source      Source
	sinks       []Sink
	cache       cache.ParamsCache
	progress    io.Writer
	maxFailures int

	mu      sync.RWMutex
	current *snapshot

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSettings replaces the default pipeline settings.
func WithSettings(s Settings) Option {
	return func(svc *Service) {
		svc.settings = s
	}
}

// WithSource sets where Run loads invoice lines from.
func WithSource(src Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithSink adds a destination for run results.
func WithSink(sink Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithCache enables fitted parameter caching.
func WithCache(c cache.ParamsCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithProgress draws a progress bar on w while customers are valued.
func WithProgress(w io.Writer) Option {
	return func(s *Service) {
		s.progress = w
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service.
func New(opts ...Option) *Service {
	s := &Service{
		settings:    DefaultSettings(),
		maxFailures: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

func (s *Service) snapshot() (*snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotReady
	}
	return s.current, nil
}

func (s *Service) publish(snap *snapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
}
