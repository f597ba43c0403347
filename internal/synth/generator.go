package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/cltv/internal/domain/model"
)

const (
	seedMix    = 0x9e3779b97f4a7c15
	hoursInDay = 24
)

// Simulate draws purchase histories. Each customer gets a purchase rate
// lambda ~ Gamma(r, rate alpha) and dropout probability p ~ Beta(a, b), buys at
// exponential intervals until T and drops out with probability p after each
// repeat purchase. Spend per purchase is Gamma(p, rate nu) with
// nu ~ Gamma(q, rate v) per customer.
func Simulate(cfg Config) ([]Customer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed^seedMix)
	rng := rand.New(src)

	rate := distuv.Gamma{Alpha: cfg.BGNBD.R, Beta: cfg.BGNBD.Alpha, Src: src}
	dropout := distuv.Beta{Alpha: cfg.BGNBD.A, Beta: cfg.BGNBD.B, Src: src}
	age := distuv.Uniform{Min: cfg.MinT, Max: cfg.MaxT, Src: src}
	spendRate := distuv.Gamma{Alpha: cfg.GammaGamma.Q, Beta: cfg.GammaGamma.V, Src: src}

	customers := make([]Customer, cfg.Customers)
	for i := range customers {
		lambda, p, T := rate.Rand(), dropout.Rand(), age.Rand()
		if cfg.MinT == cfg.MaxT {
			T = cfg.MinT
		}

		times := []float64{0}
		for t := 0.0; ; {
			t += rng.ExpFloat64() / lambda
			if t > T || math.IsInf(t, 0) {
				break
			}
			times = append(times, t)
			if rng.Float64() < p {
				break
			}
		}

		spend := distuv.Gamma{Alpha: cfg.GammaGamma.P, Beta: spendRate.Rand(), Src: src}
		values := make([]float64, len(times))
		for j := range values {
			values[j] = spend.Rand()
		}

		customers[i] = Customer{
			ID:     fmt.Sprintf("%s%06d", cfg.IDPrefix, i+1),
			T:      T,
			Times:  times,
			Values: values,
		}
	}
	return customers, nil
}

// Summary reduces a simulated history to its RFM record. Customers without
// repeat purchases report the first purchase's spend as monetary.
func (c Customer) Summary() model.Summary {
	x := len(c.Times) - 1
	s := model.Summary{
		CustomerID: c.ID,
		Frequency:  x,
		Recency:    c.Times[x],
		T:          c.T,
		Monetary:   c.Values[0],
	}
	if x > 0 {
		var sum float64
		for _, v := range c.Values[1:] {
			sum += v
		}
		s.Monetary = sum / float64(x)
	}
	return s
}

// Generate draws a population and returns its summaries.
func Generate(cfg Config) ([]model.Summary, error) {
	customers, err := Simulate(cfg)
	if err != nil {
		return nil, err
	}
	out := make([]model.Summary, len(customers))
	for i, c := range customers {
		out[i] = c.Summary()
	}
	return out, nil
}

// Transactions lays simulated histories out as invoice lines, one line per
// purchase with quantity one.
func Transactions(customers []Customer, opts TransactionOptions) []model.Transaction {
	unit := opts.UnitDays
	if unit <= 0 {
		unit = defaultUnitDays
	}
	unitDur := time.Duration(unit) * hoursInDay * time.Hour

	var out []model.Transaction
	for _, c := range customers {
		first := opts.End.Add(-time.Duration(c.T * float64(unitDur)))
		for j, t := range c.Times {
			out = append(out, model.Transaction{
				Invoice:     fmt.Sprintf("%s-%04d", c.ID, j),
				StockCode:   "SYNTH",
				Quantity:    1,
				Price:       c.Values[j],
				InvoiceDate: first.Add(time.Duration(t * float64(unitDur))),
				CustomerID:  c.ID,
				Country:     opts.Country,
			})
		}
	}
	return out
}
