package numeric_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/cltv/internal/domain/numeric"
	"github.com/smartystreets/goconvey/convey"
)

func TestLogSumExp(t *testing.T) {
	convey.Convey("Given log-space terms", t, func() {
		convey.Convey("Then small terms match the direct sum", func() {
			convey.So(numeric.LogSumExp(0, 0), convey.ShouldAlmostEqual, math.Ln2, 1e-15)
			convey.So(numeric.LogSumExp(math.Log(2), math.Log(3)), convey.ShouldAlmostEqual, math.Log(5), 1e-15)
		})

		convey.Convey("Then large terms do not overflow", func() {
			convey.So(numeric.LogSumExp(1000, 1000), convey.ShouldAlmostEqual, 1000+math.Ln2, 1e-12)
			convey.So(numeric.LogSumExp(-1000, -1001), convey.ShouldAlmostEqual, -1000+math.Log1p(math.Exp(-1)), 1e-12)
		})

		convey.Convey("Then negative infinity terms are ignored", func() {
			convey.So(numeric.LogSumExp(math.Inf(-1), 2), convey.ShouldEqual, 2)
			convey.So(math.IsInf(numeric.LogSumExp(math.Inf(-1), math.Inf(-1)), -1), convey.ShouldBeTrue)
		})
	})
}

func TestHyp2F1(t *testing.T) {
	convey.Convey("Given the Gauss hypergeometric function", t, func() {
		convey.Convey("When it has an elementary closed form", func() {
			for _, z := range []float64{0, 0.1, 0.5, 0.9} {
				log1p, err := numeric.Hyp2F1(1, 1, 2, z)
				convey.So(err, convey.ShouldBeNil)
				want := 1.0
				if z > 0 {
					want = -math.Log1p(-z) / z
				}
				convey.So(log1p, convey.ShouldAlmostEqual, want, 1e-12)

				binom, err := numeric.Hyp2F1(2.5, 0.7, 0.7, z)
				convey.So(err, convey.ShouldBeNil)
				convey.So(binom, convey.ShouldAlmostEqual, math.Pow(1-z, -2.5), 1e-10)
			}
		})

		convey.Convey("When z approaches one", func() {
			for _, z := range []float64{0.95, 0.999, 0.99996, 1 - 1e-9} {
				got, err := numeric.Hyp2F1(0.5, 1.3, 1.3, z)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldAlmostEqual, math.Pow(1-z, -0.5), 1e-9*math.Pow(1-z, -0.5))

				binom, err := numeric.Hyp2F1(2.5, 0.7, 0.7, z)
				convey.So(err, convey.ShouldBeNil)
				convey.So(binom, convey.ShouldAlmostEqual, math.Pow(1-z, -2.5), 1e-9*math.Pow(1-z, -2.5))
			}

			convey.Convey("Then the series in 1-z continues the direct series", func() {
				for _, p := range [][3]float64{{1.5, 0.7, 3.1}, {1.976, -0.207, 2.219}, {0.4, 2.2, 1.3}} {
					below, errBelow := numeric.Hyp2F1(p[0], p[1], p[2], 0.9)
					above, errAbove := numeric.Hyp2F1(p[0], p[1], p[2], 0.9+1e-12)
					convey.So(errBelow, convey.ShouldBeNil)
					convey.So(errAbove, convey.ShouldBeNil)
					convey.So(above, convey.ShouldAlmostEqual, below, 1e-8*math.Abs(below))
				}
			})
		})

		convey.Convey("When a numerator parameter is a negative integer", func() {
			b, c, z := 1.5, 3.0, 0.4
			got, err := numeric.Hyp2F1(-2, b, c, z)

			convey.Convey("Then the series terminates as a polynomial", func() {
				want := 1 - 2*b*z/c + b*(b+1)*z*z/(c*(c+1))
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldAlmostEqual, want, 1e-15)
			})
		})

		convey.Convey("When arguments are outside the supported domain", func() {
			_, errHigh := numeric.Hyp2F1(1, 1, 2, 1)
			_, errLow := numeric.Hyp2F1(1, 1, 2, -0.1)
			_, errPole := numeric.Hyp2F1(1, 1, -3, 0.5)

			convey.Convey("Then ErrDomain is returned", func() {
				convey.So(errors.Is(errHigh, numeric.ErrDomain), convey.ShouldBeTrue)
				convey.So(errors.Is(errLow, numeric.ErrDomain), convey.ShouldBeTrue)
				convey.So(errors.Is(errPole, numeric.ErrDomain), convey.ShouldBeTrue)
			})
		})
	})
}
