// Package worker values queued customers concurrently and writes the results
// to a sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/cltv/internal/adapters/mq/queue"
	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/pkg/logger"
	"github.com/okian/cltv/pkg/metrics"
)

// Job abstracts what workers read off the queue.
type Job = queue.Job

// Predictor values one customer summary.
type Predictor interface {
	Predict(ctx context.Context, rec model.Summary) (model.CustomerValue, error)
}

// Sink receives every successfully valued customer.
type Sink interface {
	Put(ctx context.Context, v model.CustomerValue) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Result reports the outcome of one job.
type Result struct {
	Job   Job
	Value model.CustomerValue
	Err   error
}

// Worker processes jobs using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until the queue drains or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	predictor Predictor
	sink      Sink
	name      string
	onResult  func(Result)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, predictor Predictor, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		predictor: predictor,
		sink:      sink,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process values a single customer and stores the result.
func (w *InMemoryWorker) process(ctx context.Context, j Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	metrics.AddWorkerActive(1)
	start := time.Now()
	defer func() {
		metrics.AddWorkerActive(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	res := Result{Job: j}
	predStart := time.Now()
	v, err := w.predictor.Predict(ctx, j.Summary)
	if err != nil {
		kind := ErrorKind(err)
		metrics.RecordPredictionError(kind)
		metrics.RecordErrorByComponent("worker", kind)
		w.logger.Warn(ctx, "customer could not be valued",
			logger.String("customer_id", j.Summary.CustomerID),
			logger.String("kind", kind),
			logger.Error(err),
		)
		res.Err = err
		w.report(res)
		return
	}
	metrics.RecordPrediction(float64(time.Since(predStart).Microseconds()) / 1000)

	if err := w.sink.Put(ctx, v); err != nil {
		metrics.RecordErrorByComponent("worker", "sink_error")
		w.logger.Error(ctx, "storing customer value failed",
			logger.String("customer_id", v.CustomerID),
			logger.Error(err),
		)
		res.Err = fmt.Errorf("store %s: %w", v.CustomerID, err)
		w.report(res)
		return
	}
	res.Value = v
	w.report(res)
}

func (w *InMemoryWorker) report(r Result) { //nolint:gocritic // hugeParam
	if w.onResult != nil {
		w.onResult(r)
	}
}

// ErrorKind names the failure class of a prediction error for metrics.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, model.ErrNumericalInstability):
		return "numerical_instability"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed atomic.Int64
	failed    atomic.Int64

	logger logger.Logger
}

// NewPool creates a worker pool. opts apply to every worker; WithName is
// replaced by a per-worker name.
func NewPool(workerCount int, q Queue, predictor Predictor, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)))
		w := NewInMemoryWorker(q, predictor, sink, wopts...)
		hook := w.onResult
		w.onResult = func(r Result) {
			if r.Err != nil {
				p.failed.Add(1)
			} else {
				p.processed.Add(1)
			}
			if hook != nil {
				hook(r)
			}
		}
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has returned, which happens once the queue
// is closed and drained or the context passed to Start is done.
func (p *Pool) Wait() {
	for _, w := range p.workers {
		<-w.done
	}
}

// Processed returns the number of customers valued and stored.
func (p *Pool) Processed() int { return int(p.processed.Load()) }

// Failed returns the number of customers that could not be valued or stored.
func (p *Pool) Failed() int { return int(p.failed.Load()) }

// Shutdown closes the queue when it supports it and waits for the workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var errs []error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, w.Shutdown(ctx))
		}
	}
	return errors.Join(errs...)
}
