package gammagamma_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/cltv/internal/domain/gammagamma"
	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/synth"
	"github.com/smartystreets/goconvey/convey"
)

func repeaters(t *testing.T, n int, seed uint64) ([]model.Summary, gammagamma.Params) {
	t.Helper()
	cfg := synth.DefaultConfig()
	cfg.Customers = n
	cfg.Seed = seed
	all, err := synth.Generate(cfg)
	if err != nil {
		t.Fatalf("generate population: %v", err)
	}
	var out []model.Summary
	for _, r := range all {
		if r.Frequency > 0 {
			out = append(out, r)
		}
	}
	return out, cfg.GammaGamma
}

func meanLogLikelihood(p gammagamma.Params, records []model.Summary) float64 {
	var s float64
	for _, r := range records {
		s += gammagamma.LogLikelihood(p, r.Frequency, r.Monetary)
	}
	return s / float64(len(records))
}

func TestFit(t *testing.T) {
	convey.Convey("Given repeat customers drawn from known spend parameters", t, func() {
		records, truth := repeaters(t, 6000, 3)
		ctx := context.Background()

		convey.Convey("When fitted without a penalty", func() {
			est, err := gammagamma.NewFitter(gammagamma.WithPenalizer(0)).Fit(ctx, records)

			convey.Convey("Then the population mean spend is recovered", func() {
				convey.So(err, convey.ShouldBeNil)
				got, errMean := est.Params.PopulationMean()
				want, _ := truth.PopulationMean()
				convey.So(errMean, convey.ShouldBeNil)
				convey.So(math.Abs(got-want)/want, convey.ShouldBeLessThan, 0.15)
			})

			convey.Convey("Then the fitted likelihood is at least that of the truth", func() {
				convey.So(est.LogLikelihood, convey.ShouldBeGreaterThanOrEqualTo, meanLogLikelihood(truth, records)-1e-9)
			})
		})

		convey.Convey("When fitted with the default penalty", func() {
			est, err := gammagamma.NewFitter().Fit(ctx, records)

			convey.Convey("Then every parameter is finite and positive", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(est.Params.Validate(), convey.ShouldBeNil)
				convey.So(est.Customers, convey.ShouldEqual, len(records))
			})
		})
	})
}

func TestFitErrors(t *testing.T) {
	convey.Convey("Given a fitter", t, func() {
		ctx := context.Background()
		f := gammagamma.NewFitter()

		convey.Convey("When a record has no repeat purchases", func() {
			_, err := f.Fit(ctx, []model.Summary{
				{CustomerID: "a", Frequency: 2, Recency: 3, T: 5, Monetary: 10},
				{CustomerID: "b", Frequency: 0, Recency: 0, T: 5, Monetary: 10},
			})

			convey.Convey("Then an invalid input error names the customer", func() {
				var ie *model.InvalidInputError
				convey.So(errors.As(err, &ie), convey.ShouldBeTrue)
				convey.So(ie.CustomerID, convey.ShouldEqual, "b")
			})
		})

		convey.Convey("When a record has no spend", func() {
			_, err := f.Fit(ctx, []model.Summary{{CustomerID: "a", Frequency: 2, Recency: 3, T: 5, Monetary: 0}})

			convey.Convey("Then an invalid input error is returned", func() {
				convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the population is empty", func() {
			_, err := f.Fit(ctx, nil)

			convey.Convey("Then an invalid input error is returned", func() {
				convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the iteration cap is hit", func() {
			records, _ := repeaters(t, 500, 5)
			_, err := gammagamma.NewFitter(gammagamma.WithMaxIterations(1), gammagamma.WithTolerance(1e-12)).Fit(ctx, records)

			convey.Convey("Then a convergence error is returned", func() {
				convey.So(errors.Is(err, model.ErrFitConvergence), convey.ShouldBeTrue)
			})
		})
	})
}
