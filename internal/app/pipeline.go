package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/okian/cltv/internal/adapters/cache"
	"github.com/okian/cltv/internal/adapters/mq/queue"
	"github.com/okian/cltv/internal/adapters/mq/worker"
	"github.com/okian/cltv/internal/adapters/repository"
	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/internal/domain/cltv"
	"github.com/okian/cltv/internal/domain/gammagamma"
	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/domain/prep"
	"github.com/okian/cltv/internal/domain/segment"
	"github.com/okian/cltv/internal/domain/summary"
	"github.com/okian/cltv/pkg/logger"
	"github.com/okian/cltv/pkg/metrics"
)

// Run loads invoice lines from the source, reduces them to customer
// summaries and values every customer.
func (s *Service) Run(ctx context.Context) (*Run, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	run := s.newRun()
	s.logger.Info(ctx, "pipeline started", logger.String("run_id", run.ID))

	records, err := s.prepare(ctx, run)
	if err != nil {
		s.finishFailed(ctx, run, err)
		return nil, err
	}
	return s.value(ctx, run, records)
}

// RunSummaries values prepared customer summaries.
func (s *Service) RunSummaries(ctx context.Context, records []model.Summary) (*Run, error) {
	run := s.newRun()
	s.logger.Info(ctx, "pipeline started", logger.String("run_id", run.ID), logger.Int("customers", len(records)))
	return s.value(ctx, run, records)
}

func (s *Service) newRun() *Run {
	return &Run{ID: uuid.New().String(), StartedAt: time.Now().UTC(), Horizon: s.settings.Horizon}
}

func (s *Service) finishFailed(ctx context.Context, run *Run, err error) {
	took := time.Since(run.StartedAt)
	metrics.RecordPipelineRun("failure", took.Seconds())
	s.logger.Error(ctx, "pipeline failed",
		logger.String("run_id", run.ID),
		logger.Duration("took", took),
		logger.Error(err),
	)
}

// stage times fn under the given stage name.
func stage[T any](name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	metrics.RecordStageDuration(name, float64(time.Since(start).Microseconds())/1000)
	return out, err
}

// prepare loads, cleans, caps, filters and aggregates invoice lines.
func (s *Service) prepare(ctx context.Context, run *Run) ([]model.Summary, error) {
	cfg := s.settings

	txs, err := stage("load", func() ([]model.Transaction, error) { return s.source.Load(ctx) })
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	cleaned, rep := prep.Clean(ctx, txs, prep.Options{DropDuplicates: cfg.DropDuplicates})
	capped, err := stage("cap_outliers", func() ([]model.Transaction, error) {
		return prep.CapOutliers(cleaned, cfg.OutlierLowerQuantile, cfg.OutlierUpperQuantile, cfg.OutlierIQRMultiplier)
	})
	if err != nil {
		return nil, fmt.Errorf("cap outliers: %w", err)
	}
	filtered := prep.FilterCountry(capped, cfg.Country, &rep)
	run.Prep = &rep

	metrics.RecordTransactionsDropped("missing_customer", rep.MissingCustomer)
	metrics.RecordTransactionsDropped("cancelled", rep.Cancelled)
	metrics.RecordTransactionsDropped("non_positive_quantity", rep.NonPositiveQuantity)
	metrics.RecordTransactionsDropped("non_positive_price", rep.NonPositivePrice)
	metrics.RecordTransactionsDropped("duplicate", rep.Duplicates)
	metrics.RecordTransactionsDropped("other_country", rep.OtherCountry)

	cutoff := cfg.Cutoff
	if cutoff.IsZero() {
		cutoff = summary.DefaultCutoff(filtered, cfg.CutoffOffsetDays)
	}
	run.Cutoff = cutoff

	records, err := stage("aggregate", func() ([]model.Summary, error) {
		return summary.Aggregate(filtered, summary.Options{
			Cutoff:       cutoff,
			UnitDays:     cfg.UnitDays,
			MinFrequency: cfg.MinFrequency,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	s.logger.Info(ctx, "transactions prepared",
		logger.String("run_id", run.ID),
		logger.Int("input", rep.Input),
		logger.Int("kept", rep.Kept),
		logger.Int("customers", len(records)),
		logger.String("cutoff", cutoff.Format(time.DateOnly)),
	)
	return records, nil
}

// checkRecords enforces the population contract before fitting.
func (s *Service) checkRecords(records []model.Summary) error {
	if len(records) == 0 {
		return model.Invalid("records", "", "must not be empty", 0)
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.Frequency < s.settings.MinFrequency {
			return model.Invalid("frequency", r.CustomerID,
				fmt.Sprintf("must be at least %d", s.settings.MinFrequency), r.Frequency)
		}
	}
	return nil
}

func (s *Service) value(ctx context.Context, run *Run, records []model.Summary) (*Run, error) {
	if err := s.checkRecords(records); err != nil {
		s.finishFailed(ctx, run, err)
		return nil, err
	}
	run.Customers = len(records)

	if err := s.fit(ctx, run, records); err != nil {
		s.finishFailed(ctx, run, err)
		return nil, err
	}

	predictor, err := cltv.NewPredictor(run.BGNBD.Params, run.GammaGamma.Params,
		cltv.WithHorizon(s.settings.Horizon),
		cltv.WithExpectationHorizons(s.settings.ShortHorizon, s.settings.LongHorizon),
	)
	if err != nil {
		s.finishFailed(ctx, run, err)
		return nil, err
	}
	run.Horizon = predictor.Horizon()

	store := repository.NewTreapStore()
	if err := s.predictAll(ctx, run, predictor, store, records); err != nil {
		s.finishFailed(ctx, run, err)
		return nil, err
	}
	if err := s.segmentAll(ctx, run, store); err != nil {
		s.finishFailed(ctx, run, err)
		return nil, err
	}

	run.FinishedAt = time.Now().UTC()
	run.Duration = run.FinishedAt.Sub(run.StartedAt)
	s.publish(&snapshot{run: run, store: store, predictor: predictor})

	if err := s.save(ctx, run, store); err != nil {
		s.finishFailed(ctx, run, err)
		return run, err
	}

	metrics.RecordPipelineRun("success", run.Duration.Seconds())
	s.logger.Info(ctx, "pipeline finished",
		logger.String("run_id", run.ID),
		logger.Int("customers", run.Customers),
		logger.Int("valued", run.Valued),
		logger.Int("failed", run.Failed),
		logger.Duration("took", run.Duration),
	)
	return run, nil
}

// fit estimates both models concurrently.
func (s *Service) fit(ctx context.Context, run *Run, records []model.Summary) error {
	start := time.Now()
	defer func() {
		metrics.RecordStageDuration("fit", float64(time.Since(start).Microseconds())/1000)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f := bgnbd.NewFitter(
			bgnbd.WithPenalizer(s.settings.Penalizer),
			bgnbd.WithMaxIterations(s.settings.MaxIterations),
			bgnbd.WithTolerance(s.settings.Tolerance),
			bgnbd.WithMinFrequency(s.settings.MinFrequency),
		)
		est, cached, err := fitCached(gctx, s, bgnbd.ModelName, records, f.Fit)
		if err != nil {
			return err
		}
		run.BGNBD, run.BGNBDCached = est, cached
		s.logFit(gctx, run.ID, bgnbd.ModelName, est.Params.String(), est.LogLikelihood, est.Iterations, est.Duration, cached)
		return nil
	})
	g.Go(func() error {
		f := gammagamma.NewFitter(
			gammagamma.WithPenalizer(s.settings.Penalizer),
			gammagamma.WithMaxIterations(s.settings.MaxIterations),
			gammagamma.WithTolerance(s.settings.Tolerance),
			gammagamma.WithMinFrequency(s.settings.MinFrequency),
		)
		est, cached, err := fitCached(gctx, s, gammagamma.ModelName, records, f.Fit)
		if err != nil {
			return err
		}
		run.GammaGamma, run.GammaGammaCached = est, cached
		s.logFit(gctx, run.ID, gammagamma.ModelName, est.Params.String(), est.LogLikelihood, est.Iterations, est.Duration, cached)
		return nil
	})
	return g.Wait()
}

func (s *Service) logFit(ctx context.Context, runID, name, params string, ll float64, iterations int, took time.Duration, cached bool) {
	if !cached {
		metrics.RecordFitResult(name, float64(took.Microseconds())/1000, iterations, ll)
	}
	s.logger.Info(ctx, "model fitted",
		logger.String("run_id", runID),
		logger.String("model", name),
		logger.String("params", params),
		logger.Float64("log_likelihood", ll),
		logger.Int("iterations", iterations),
		logger.Duration("took", took),
		logger.Bool("cached", cached),
	)
}

// fitCached returns a cached estimate for identical inputs or runs fit and
// stores its result.
func fitCached[E any](ctx context.Context, s *Service, name string, records []model.Summary,
	fit func(context.Context, []model.Summary) (E, error),
) (E, bool, error) {
	var key string
	if s.cache != nil {
		key = cache.Fingerprint(records, cache.FitSettings{
			Model:         name,
			Penalizer:     s.settings.Penalizer,
			MaxIterations: s.settings.MaxIterations,
			Tolerance:     s.settings.Tolerance,
		})
		var hit E
		switch err := s.cache.Get(ctx, key, &hit); {
		case err == nil:
			metrics.RecordCacheLookup("hit")
			metrics.RecordFit(name, "cached")
			return hit, true, nil
		case errors.Is(err, cache.ErrMiss):
			metrics.RecordCacheLookup("miss")
		default:
			metrics.RecordCacheLookup("error")
			s.logger.Warn(ctx, "parameter cache lookup failed", logger.String("model", name), logger.Error(err))
		}
	}

	est, err := fit(ctx, records)
	if err != nil {
		metrics.RecordFit(name, fitOutcome(err))
		var zero E
		return zero, false, fmt.Errorf("fit %s: %w", name, err)
	}
	metrics.RecordFit(name, "success")

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, est); err != nil {
			s.logger.Warn(ctx, "parameter cache store failed", logger.String("model", name), logger.Error(err))
		}
	}
	return est, false, nil
}

func fitOutcome(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, model.ErrNumericalInstability):
		return "unstable"
	case errors.Is(err, model.ErrFitConvergence):
		return "not_converged"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// predictAll values every record through the worker pool.
func (s *Service) predictAll(ctx context.Context, run *Run, predictor *cltv.Predictor,
	store *repository.TreapStore, records []model.Summary,
) error {
	start := time.Now()
	defer func() {
		metrics.RecordStageDuration("predict", float64(time.Since(start).Microseconds())/1000)
	}()

	var bar *progressbar.ProgressBar
	if s.progress != nil {
		bar = progressbar.NewOptions(len(records),
			progressbar.OptionSetWriter(s.progress),
			progressbar.OptionSetDescription("valuing customers"),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	var mu sync.Mutex
	hook := func(r worker.Result) {
		if bar != nil {
			_ = bar.Add(1)
		}
		if r.Err == nil {
			return
		}
		mu.Lock()
		if len(run.Failures) < s.maxFailures {
			run.Failures = append(run.Failures, Failure{
				CustomerID: r.Job.Summary.CustomerID,
				Kind:       worker.ErrorKind(r.Err),
				Error:      r.Err.Error(),
			})
		}
		mu.Unlock()
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	q := queue.NewInMemoryQueue(queue.WithCapacity(s.settings.QueueSize))
	pool := worker.NewPool(s.settings.WorkerCount, q, predictor, store,
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithResultHook(hook),
	)
	pool.Start(pctx)

	var enqueueErr error
	for i, r := range records {
		if err := q.Enqueue(pctx, queue.Job{Index: i, Summary: r}); err != nil {
			enqueueErr = err
			break
		}
	}
	_ = q.Close()
	if enqueueErr != nil {
		cancel()
	}
	pool.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	if enqueueErr != nil {
		return fmt.Errorf("enqueue: %w", enqueueErr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	run.Valued = pool.Processed()
	run.Failed = pool.Failed()
	if run.Valued == 0 {
		return model.Unstable("predict", "no customer could be valued (%d failures)", run.Failed)
	}
	return nil
}

// segmentAll rescales CLTV to [0,1] and assigns quantile segments. A
// population too small or too uniform to segment keeps its values and
// reports the reason.
func (s *Service) segmentAll(ctx context.Context, run *Run, store *repository.TreapStore) error {
	entries := store.All(ctx)
	values := make([]float64, len(entries))
	for i, e := range entries {
		values[i] = e.CLTV
	}
	scaled := segment.MinMax(values)
	labels, segErr := segment.Quantiles(scaled, s.settings.SegmentLabels)
	if segErr != nil {
		run.SegmentError = segErr.Error()
		s.logger.Warn(ctx, "customers not segmented", logger.String("run_id", run.ID), logger.Error(segErr))
	}

	for i, e := range entries {
		v := e.CustomerValue
		v.ScaledCLTV = scaled[i]
		if segErr == nil {
			v.Segment = labels[i]
		}
		if err := store.Put(ctx, v); err != nil {
			return fmt.Errorf("store %s: %w", v.CustomerID, err)
		}
	}

	run.Segments = store.SegmentCounts(ctx)
	for _, label := range s.settings.SegmentLabels {
		metrics.UpdateSegmentCount(label, run.Segments[label])
	}
	return nil
}

// save hands the ranked values to every sink.
func (s *Service) save(ctx context.Context, run *Run, store *repository.TreapStore) error {
	if len(s.sinks) == 0 {
		return nil
	}
	entries := store.All(ctx)
	values := make([]model.CustomerValue, len(entries))
	for i, e := range entries {
		values[i] = e.CustomerValue
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Save(ctx, run, values); err != nil {
			metrics.RecordErrorByComponent("sink", "save_failed")
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}
