package synth_test

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/synth"
)

func TestSimulate(t *testing.T) {
	Convey("Given the default population", t, func() {
		cfg := synth.DefaultConfig()
		cfg.Customers = 500

		customers, err := synth.Simulate(cfg)
		So(err, ShouldBeNil)
		So(len(customers), ShouldEqual, 500)

		Convey("Then histories are ordered and within the observation window", func() {
			for _, c := range customers {
				So(c.T, ShouldBeBetweenOrEqual, cfg.MinT, cfg.MaxT)
				So(c.Times[0], ShouldEqual, 0)
				So(len(c.Values), ShouldEqual, len(c.Times))
				for j := 1; j < len(c.Times); j++ {
					So(c.Times[j], ShouldBeGreaterThan, c.Times[j-1])
					So(c.Times[j], ShouldBeLessThanOrEqualTo, c.T)
				}
				for _, v := range c.Values {
					So(v, ShouldBeGreaterThan, 0)
				}
			}
			So(customers[0].ID, ShouldEqual, "synthetic-000001")
		})

		Convey("Then the same seed draws the same population", func() {
			again, err := synth.Simulate(cfg)
			So(err, ShouldBeNil)
			So(again, ShouldResemble, customers)
		})

		Convey("Then a different seed draws another population", func() {
			cfg.Seed++
			other, err := synth.Simulate(cfg)
			So(err, ShouldBeNil)
			So(other, ShouldNotResemble, customers)
		})

		Convey("Then some customers repeat and some do not", func() {
			repeat, single := 0, 0
			for _, c := range customers {
				if len(c.Times) > 1 {
					repeat++
				} else {
					single++
				}
			}
			So(repeat, ShouldBeGreaterThan, 0)
			So(single, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given invalid configurations", t, func() {
		cases := []func(*synth.Config){
			func(c *synth.Config) { c.Customers = 0 },
			func(c *synth.Config) { c.MinT = -1 },
			func(c *synth.Config) { c.MaxT = c.MinT - 1 },
			func(c *synth.Config) { c.BGNBD.R = 0 },
			func(c *synth.Config) { c.GammaGamma.Q = -2 },
		}
		for _, mutate := range cases {
			cfg := synth.DefaultConfig()
			mutate(&cfg)
			_, err := synth.Simulate(cfg)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		}
	})

	Convey("Given a fixed customer age", t, func() {
		cfg := synth.DefaultConfig()
		cfg.Customers = 20
		cfg.MinT, cfg.MaxT = 30, 30

		customers, err := synth.Simulate(cfg)
		So(err, ShouldBeNil)
		for _, c := range customers {
			So(c.T, ShouldEqual, 30)
		}
	})
}

func TestCustomerSummary(t *testing.T) {
	Convey("Given a customer with repeat purchases", t, func() {
		c := synth.Customer{ID: "c1", T: 40, Times: []float64{0, 5, 12.5}, Values: []float64{100, 10, 30}}

		Convey("Then the summary excludes the first purchase from monetary", func() {
			s := c.Summary()
			So(s, ShouldResemble, model.Summary{CustomerID: "c1", Frequency: 2, Recency: 12.5, T: 40, Monetary: 20})
			So(s.Validate(), ShouldBeNil)
		})
	})

	Convey("Given a one-time customer", t, func() {
		c := synth.Customer{ID: "c2", T: 40, Times: []float64{0}, Values: []float64{55}}

		Convey("Then recency is zero and monetary is the first spend", func() {
			s := c.Summary()
			So(s.Frequency, ShouldEqual, 0)
			So(s.Recency, ShouldEqual, 0)
			So(s.Monetary, ShouldEqual, 55)
		})
	})
}

func TestTransactions(t *testing.T) {
	Convey("Given simulated customers", t, func() {
		end := time.Date(2011, time.December, 9, 0, 0, 0, 0, time.UTC)
		customers := []synth.Customer{
			{ID: "c1", T: 2, Times: []float64{0, 1.5}, Values: []float64{10, 20}},
			{ID: "c2", T: 1, Times: []float64{0}, Values: []float64{7}},
		}

		txs := synth.Transactions(customers, synth.TransactionOptions{End: end, UnitDays: 7, Country: "France"})

		Convey("Then each purchase becomes one line", func() {
			So(len(txs), ShouldEqual, 3)
			So(txs[0].CustomerID, ShouldEqual, "c1")
			So(txs[0].InvoiceDate, ShouldEqual, end.AddDate(0, 0, -14))
			So(txs[1].InvoiceDate, ShouldEqual, end.AddDate(0, 0, -14).Add(252*time.Hour))
			So(txs[1].Price, ShouldEqual, 20)
			So(txs[1].Quantity, ShouldEqual, 1)
			So(txs[2].InvoiceDate, ShouldEqual, end.AddDate(0, 0, -7))
			So(txs[2].Country, ShouldEqual, "France")
		})

		Convey("Then invoices are unique and never cancellations", func() {
			seen := map[string]bool{}
			for _, tx := range txs {
				So(seen[tx.Invoice], ShouldBeFalse)
				seen[tx.Invoice] = true
				So(tx.Cancelled(), ShouldBeFalse)
			}
		})

		Convey("Then a missing unit defaults to weeks", func() {
			weekly := synth.Transactions(customers, synth.TransactionOptions{End: end})
			So(weekly[0].InvoiceDate, ShouldEqual, txs[0].InvoiceDate)
		})
	})
}
