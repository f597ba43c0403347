package model_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/okian/cltv/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestSummaryValidate(t *testing.T) {
	convey.Convey("Given a customer summary", t, func() {
		valid := model.Summary{CustomerID: "12347", Frequency: 6, Recency: 52.14, T: 52.57, Monetary: 615.7}

		convey.Convey("When every field is in range", func() {
			convey.Convey("Then validation passes", func() {
				convey.So(valid.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When recency exceeds T", func() {
			s := valid
			s.Recency = 60
			err := s.Validate()

			convey.Convey("Then an invalid input error names the field", func() {
				var ie *model.InvalidInputError
				convey.So(errors.As(err, &ie), convey.ShouldBeTrue)
				convey.So(ie.Field, convey.ShouldEqual, "recency")
				convey.So(ie.CustomerID, convey.ShouldEqual, "12347")
			})
		})

		convey.Convey("When fields are not finite or negative", func() {
			cases := []model.Summary{
				{Frequency: -1, Recency: 1, T: 2, Monetary: 1},
				{Frequency: 1, Recency: math.NaN(), T: 2, Monetary: 1},
				{Frequency: 1, Recency: 1, T: math.Inf(1), Monetary: 1},
				{Frequency: 1, Recency: 1, T: 2, Monetary: 0},
				{Frequency: 1, Recency: 1, T: 2, Monetary: -3},
			}

			convey.Convey("Then each is rejected as invalid input", func() {
				for _, c := range cases {
					convey.So(errors.Is(c.Validate(), model.ErrInvalidInput), convey.ShouldBeTrue)
				}
			})
		})

		convey.Convey("When only RFM fields are checked", func() {
			s := valid
			s.Monetary = 0

			convey.Convey("Then monetary is ignored", func() {
				convey.So(s.ValidateRFM(), convey.ShouldBeNil)
			})
		})
	})
}

func TestErrorKinds(t *testing.T) {
	convey.Convey("Given wrapped typed errors", t, func() {
		fit := fmt.Errorf("fit: %w", &model.FitConvergenceError{Model: "bgnbd", Status: "IterationLimit", Iterations: 10})
		num := fmt.Errorf("predict: %w", model.Unstable("hyp2f1", "series did not converge"))

		convey.Convey("Then errors.Is matches the sentinel of each kind only", func() {
			convey.So(errors.Is(fit, model.ErrFitConvergence), convey.ShouldBeTrue)
			convey.So(errors.Is(fit, model.ErrNumericalInstability), convey.ShouldBeFalse)
			convey.So(errors.Is(num, model.ErrNumericalInstability), convey.ShouldBeTrue)
			convey.So(errors.Is(num, model.ErrInvalidInput), convey.ShouldBeFalse)
		})

		convey.Convey("Then messages carry the details", func() {
			convey.So(fit.Error(), convey.ShouldContainSubstring, "IterationLimit")
			convey.So(num.Error(), convey.ShouldContainSubstring, "hyp2f1")
		})
	})
}

func TestTransaction(t *testing.T) {
	convey.Convey("Given invoice lines", t, func() {
		line := model.Transaction{Invoice: "536365", Quantity: 6, Price: 2.55}
		cancel := model.Transaction{Invoice: "C536379", Quantity: -1, Price: 27.5}

		convey.Convey("Then revenue and cancellation are derived", func() {
			convey.So(line.Revenue(), convey.ShouldAlmostEqual, 15.3, 1e-9)
			convey.So(line.Cancelled(), convey.ShouldBeFalse)
			convey.So(cancel.Cancelled(), convey.ShouldBeTrue)
		})
	})
}

func TestNormalizeCustomerID(t *testing.T) {
	convey.Convey("Given exported customer ids", t, func() {
		convey.So(model.NormalizeCustomerID(" 12747.0 "), convey.ShouldEqual, "12747")
		convey.So(model.NormalizeCustomerID("12747.000"), convey.ShouldEqual, "12747")
		convey.So(model.NormalizeCustomerID("12747"), convey.ShouldEqual, "12747")
		convey.So(model.NormalizeCustomerID("12747.5"), convey.ShouldEqual, "12747.5")
		convey.So(model.NormalizeCustomerID("A-1"), convey.ShouldEqual, "A-1")
		convey.So(model.NormalizeCustomerID(""), convey.ShouldEqual, "")
	})
}
