package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/cltv/internal/adapters/cache"
	"github.com/okian/cltv/internal/adapters/excel"
	"github.com/okian/cltv/internal/adapters/mysql"
	app "github.com/okian/cltv/internal/app"
	"github.com/okian/cltv/internal/config"
	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/synth"
	"github.com/okian/cltv/pkg/logger"
)

// dependencies are the adapters selected by configuration.
type dependencies struct {
	source  app.Source
	sinks   []app.Sink
	cache   cache.ParamsCache
	closers []func() error
}

// Close releases database and cache connections.
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.Get().Warn(context.Background(), "close failed", logger.Error(err))
		}
	}
}

func wire(ctx context.Context, cfg *config.Config) (_ *dependencies, err error) {
	d := &dependencies{}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	var db *sql.DB
	if cfg.MySQLDSN != "" {
		db, err = mysql.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db.Close)

		results, err := mysql.NewResultSink(db, cfg.ResultsTable)
		if err != nil {
			return nil, err
		}
		d.sinks = append(d.sinks, app.SinkFunc(func(ctx context.Context, run *app.Run, values []model.CustomerValue) error {
			return results.Save(ctx, run.ID, values)
		}))
	}

	switch cfg.Source {
	case "mysql":
		src, err := mysql.NewTransactionSource(db, cfg.TransactionsTable)
		if err != nil {
			return nil, err
		}
		d.source = src
	case "excel":
		d.source = excelSource(cfg.ExcelInput, cfg.ExcelSheet)
	default:
		d.source = syntheticSource(cfg)
	}

	if cfg.ExcelOutput != "" {
		path := cfg.ExcelOutput
		d.sinks = append(d.sinks, app.SinkFunc(func(_ context.Context, run *app.Run, values []model.CustomerValue) error {
			return excel.WriteResults(path, run.ID, values, resultParams(run))
		}))
	}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, rc.Close)
		d.cache = rc
	} else {
		d.cache = cache.NewMemoryCache(cfg.CacheTTL)
	}
	return d, nil
}

func excelSource(path, sheet string) app.Source {
	return app.SourceFunc(func(ctx context.Context) ([]model.Transaction, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return excel.ReadTransactions(path, sheet)
	})
}

// syntheticSource lays a simulated population out as invoice lines ending at
// the configured cutoff, or at today's date without one.
func syntheticSource(cfg *config.Config) app.Source {
	return app.SourceFunc(func(ctx context.Context) ([]model.Transaction, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sc := synth.DefaultConfig()
		sc.Customers = cfg.SyntheticCustomers
		sc.Seed = cfg.SyntheticSeed
		population, err := synth.Simulate(sc)
		if err != nil {
			return nil, fmt.Errorf("simulate: %w", err)
		}
		end, ok := cfg.Cutoff()
		if !ok {
			end = time.Now().UTC().Truncate(24 * time.Hour)
		}
		return synth.Transactions(population, synth.TransactionOptions{
			End:      end,
			UnitDays: cfg.TimeUnitDays,
			Country:  cfg.Country,
		}), nil
	})
}

// resultParams lists the fitted parameters and horizon of a run.
func resultParams(run *app.Run) []excel.Param {
	bg, gg, h := run.BGNBD.Params, run.GammaGamma.Params, run.Horizon
	return []excel.Param{
		{Model: "bgnbd", Name: "r", Value: bg.R},
		{Model: "bgnbd", Name: "alpha", Value: bg.Alpha},
		{Model: "bgnbd", Name: "a", Value: bg.A},
		{Model: "bgnbd", Name: "b", Value: bg.B},
		{Model: "bgnbd", Name: "log_likelihood", Value: run.BGNBD.LogLikelihood},
		{Model: "gammagamma", Name: "p", Value: gg.P},
		{Model: "gammagamma", Name: "q", Value: gg.Q},
		{Model: "gammagamma", Name: "v", Value: gg.V},
		{Model: "gammagamma", Name: "log_likelihood", Value: run.GammaGamma.LogLikelihood},
		{Model: "horizon", Name: "periods", Value: float64(h.Periods)},
		{Model: "horizon", Name: "period_length", Value: h.PeriodLength},
		{Model: "horizon", Name: "discount_rate", Value: h.DiscountRate},
	}
}
