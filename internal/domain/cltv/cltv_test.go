package cltv_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/internal/domain/cltv"
	"github.com/okian/cltv/internal/domain/gammagamma"
	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/synth"
	"github.com/smartystreets/goconvey/convey"
)

// bg and gg are the published CDNOW estimates in weeks, pinned instead of
// refitted so the reference values do not depend on optimizer settings.
// TestComputeFromFittedParameters covers the fit-then-value path.
var (
	bg = bgnbd.Params{R: 0.243, Alpha: 4.414, A: 0.793, B: 2.426}
	gg = gammagamma.Params{P: 6.25, Q: 3.74, V: 15.44}

	monthly = cltv.Horizon{Periods: 6, PeriodLength: 4.345, DiscountRate: 0.01}
	regular = model.Summary{CustomerID: "12748", Frequency: 60, Recency: 52.29, T: 52.57, Monetary: 3859.74}
	casual  = model.Summary{CustomerID: "14911", Frequency: 2, Recency: 30.43, T: 38.86, Monetary: 40}
)

func TestCompute(t *testing.T) {
	convey.Convey("Given fixed fitted parameters", t, func() {
		convey.Convey("When valuing six monthly periods", func() {
			high, errHigh := cltv.Compute(bg, gg, regular, monthly)
			low, errLow := cltv.Compute(bg, gg, casual, monthly)

			convey.Convey("Then the values match the reference computation", func() {
				convey.So(errHigh, convey.ShouldBeNil)
				convey.So(errLow, convey.ShouldBeNil)
				convey.So(high, convey.ShouldAlmostEqual, 86356.0670333924, 1e-6)
				convey.So(low, convey.ShouldAlmostEqual, 32.692462790607934, 1e-9)
			})
		})

		convey.Convey("When the horizon is zero periods", func() {
			h := monthly
			h.Periods = 0
			got, err := cltv.Compute(bg, gg, regular, h)

			convey.Convey("Then the value is zero", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the horizon is one period", func() {
			h := monthly
			h.Periods = 1
			got, err := cltv.Compute(bg, gg, casual, h)

			convey.Convey("Then only the first period is discounted once", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldAlmostEqual, 6.1905478180989935, 1e-9)
			})
		})

		convey.Convey("When the number of periods grows", func() {
			convey.Convey("Then the value never decreases", func() {
				prev := 0.0
				for n := 0; n <= 36; n++ {
					h := monthly
					h.Periods = n
					got, err := cltv.Compute(bg, gg, casual, h)
					convey.So(err, convey.ShouldBeNil)
					convey.So(got, convey.ShouldBeGreaterThanOrEqualTo, prev)
					prev = got
				}
			})
		})

		convey.Convey("When the discount rate grows", func() {
			convey.Convey("Then the value strictly decreases", func() {
				prev := -1.0
				for i, d := range []float64{0.5, 0.2, 0.05, 0.01, 0} {
					h := monthly
					h.DiscountRate = d
					got, err := cltv.Compute(bg, gg, regular, h)
					convey.So(err, convey.ShouldBeNil)
					if i > 0 {
						convey.So(got, convey.ShouldBeGreaterThan, prev)
					}
					prev = got
				}
			})
		})
	})
}

func TestComputeErrors(t *testing.T) {
	convey.Convey("Given invalid arguments", t, func() {
		cases := []struct {
			name string
			h    cltv.Horizon
		}{
			{"negative periods", cltv.Horizon{Periods: -1, PeriodLength: 4.345, DiscountRate: 0.01}},
			{"zero period length", cltv.Horizon{Periods: 6, PeriodLength: 0, DiscountRate: 0.01}},
			{"negative discount rate", cltv.Horizon{Periods: 6, PeriodLength: 4.345, DiscountRate: -0.01}},
		}

		for _, c := range cases {
			convey.Convey("When the horizon has "+c.name, func() {
				_, err := cltv.Compute(bg, gg, regular, c.h)

				convey.Convey("Then an invalid input error is returned", func() {
					convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When the spend parameters have no finite mean", func() {
			bad := gg
			bad.Q = 1
			_, err := cltv.Compute(bg, bad, regular, monthly)

			convey.Convey("Then numerical instability is reported", func() {
				convey.So(errors.Is(err, model.ErrNumericalInstability), convey.ShouldBeTrue)
			})
		})
	})
}

func TestPredictor(t *testing.T) {
	convey.Convey("Given a predictor with default horizons", t, func() {
		p, err := cltv.NewPredictor(bg, gg)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When predicting the frequent customer", func() {
			v, err := p.Predict(context.Background(), regular)

			convey.Convey("Then every field of the output record is filled", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(v.CustomerID, convey.ShouldEqual, regular.CustomerID)
				convey.So(v.Frequency, convey.ShouldEqual, 60)
				convey.So(v.ExpectedShort, convey.ShouldAlmostEqual, 1.0322077242747287, 1e-9)
				convey.So(v.ExpectedLong, convey.ShouldAlmostEqual, 4.048847149092826, 1e-9)
				convey.So(v.ProbabilityAlive, convey.ShouldAlmostEqual, 0.9829267550699472, 1e-9)
				convey.So(v.ExpectedAverageValue, convey.ShouldAlmostEqual, 3831.998199819982, 1e-6)
				convey.So(v.CLTV, convey.ShouldAlmostEqual, 86356.0670333924, 1e-6)
				convey.So(p.Horizon(), convey.ShouldResemble, monthly)
			})
		})

		convey.Convey("When the record is invalid", func() {
			bad := regular
			bad.Monetary = -1
			_, err := p.Predict(context.Background(), bad)

			convey.Convey("Then an invalid input error is returned", func() {
				convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := p.Predict(ctx, regular)

			convey.Convey("Then the cancellation is returned", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given invalid parameters", t, func() {
		_, err := cltv.NewPredictor(bgnbd.Params{}, gg)

		convey.Convey("Then the predictor is not built", func() {
			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})
	})
}

// TestComputeFromFittedParameters fits both models on a seeded synthetic
// population with BFGS on log-parameters from all-ones starts, penalizer
// 0.001, tolerance 1e-7 and at most 2000 iterations, then values the
// reference customer under fitted and generating parameters.
func TestComputeFromFittedParameters(t *testing.T) {
	convey.Convey("Given a seeded population and the default fit configuration", t, func() {
		cfg := synth.DefaultConfig()
		cfg.Customers = 4000
		cfg.Seed = 7
		records, err := synth.Generate(cfg)
		convey.So(err, convey.ShouldBeNil)

		var repeaters []model.Summary
		for _, r := range records {
			if r.Frequency > 0 {
				repeaters = append(repeaters, r)
			}
		}
		ctx := context.Background()
		bgEst, errBG := bgnbd.NewFitter(bgnbd.WithMinFrequency(0)).Fit(ctx, records)
		ggEst, errGG := gammagamma.NewFitter().Fit(ctx, repeaters)
		convey.So(errBG, convey.ShouldBeNil)
		convey.So(errGG, convey.ShouldBeNil)

		convey.Convey("When the reference customer is valued over six months", func() {
			fitted, errFitted := cltv.Compute(bgEst.Params, ggEst.Params, regular, monthly)
			truth, errTruth := cltv.Compute(cfg.BGNBD, cfg.GammaGamma, regular, monthly)

			convey.Convey("Then both values agree within 20 percent", func() {
				convey.So(errFitted, convey.ShouldBeNil)
				convey.So(errTruth, convey.ShouldBeNil)
				convey.So(math.Abs(fitted-truth)/truth, convey.ShouldBeLessThan, 0.2)
			})
		})
	})
}
