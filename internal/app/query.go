package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/cltv/internal/adapters/mq/worker"
	"github.com/okian/cltv/internal/adapters/repository"
	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/internal/domain/cltv"
	"github.com/okian/cltv/internal/domain/gammagamma"
	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/pkg/metrics"
)

// Params are the fitted model parameters of the last run.
type Params struct {
	RunID      string            `json:"run_id"`
	BGNBD      bgnbd.Params      `json:"bgnbd"`
	GammaGamma gammagamma.Params `json:"gamma_gamma"`
	Horizon    cltv.Horizon      `json:"horizon"`
}

// SegmentCount is the population of one segment.
type SegmentCount struct {
	Label     string `json:"label"`
	Customers int    `json:"customers"`
}

// Settings returns the pipeline settings.
func (s *Service) Settings() Settings { return s.settings }

// Stats returns the last finished run.
func (s *Service) Stats(_ context.Context) (*Run, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.run, nil
}

// Params returns the parameters the last run was valued with.
func (s *Service) Params(_ context.Context) (Params, error) {
	snap, err := s.snapshot()
	if err != nil {
		return Params{}, err
	}
	return Params{
		RunID:      snap.run.ID,
		BGNBD:      snap.run.BGNBD.Params,
		GammaGamma: snap.run.GammaGamma.Params,
		Horizon:    snap.predictor.Horizon(),
	}, nil
}

// TopN returns the n most valuable customers.
func (s *Service) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()
	return snap.store.TopN(ctx, n)
}

// Customer returns one ranked customer.
func (s *Service) Customer(ctx context.Context, customerID string) (repository.Entry, error) {
	snap, err := s.snapshot()
	if err != nil {
		return repository.Entry{}, err
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()
	return snap.store.Get(ctx, model.NormalizeCustomerID(customerID))
}

// Segments returns the population of every configured segment, lowest value
// first. Segments without customers are reported with zero.
func (s *Service) Segments(ctx context.Context) ([]SegmentCount, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	counts := snap.store.SegmentCounts(ctx)
	out := make([]SegmentCount, 0, len(s.settings.SegmentLabels))
	for _, label := range s.settings.SegmentLabels {
		out = append(out, SegmentCount{Label: label, Customers: counts[label]})
	}
	return out, nil
}

// Predict values a single customer with the parameters of the last run. The
// customer is not added to the ranking.
func (s *Service) Predict(ctx context.Context, rec model.Summary) (model.CustomerValue, error) {
	snap, err := s.snapshot()
	if err != nil {
		return model.CustomerValue{}, err
	}
	if rec.Frequency < s.settings.MinFrequency {
		err := model.Invalid("frequency", rec.CustomerID,
			fmt.Sprintf("must be at least %d", s.settings.MinFrequency), rec.Frequency)
		metrics.RecordPredictionError(worker.ErrorKind(err))
		return model.CustomerValue{}, err
	}

	start := time.Now()
	v, err := snap.predictor.Predict(ctx, rec)
	if err != nil {
		metrics.RecordPredictionError(worker.ErrorKind(err))
		return model.CustomerValue{}, err
	}
	metrics.RecordPrediction(float64(time.Since(start).Microseconds()) / 1000)
	return v, nil
}
