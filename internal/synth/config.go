// Package synth draws customer populations from known BG/NBD and Gamma-Gamma
// parameters. Populations are deterministic for a seed, which makes them
// usable as fixtures for parameter-recovery checks and as a pipeline source.
package synth

import (
	"time"

	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/internal/domain/gammagamma"
	"github.com/okian/cltv/internal/domain/model"
)

// Defaults for a generated population.
const (
	defaultCustomers = 2000
	defaultSeed      = 42
	defaultMinT      = 20.0
	defaultMaxT      = 52.0
	defaultUnitDays  = 7
	defaultIDPrefix  = "synthetic-"
)

// Config describes a synthetic population. T is drawn uniformly from
// [MinT, MaxT] in model time units.
type Config struct {
	Customers  int
	Seed       uint64
	MinT       float64
	MaxT       float64
	IDPrefix   string
	BGNBD      bgnbd.Params
	GammaGamma gammagamma.Params
}

// DefaultConfig returns a population resembling an online retailer measured
// in weeks.
func DefaultConfig() Config {
	return Config{
		Customers:  defaultCustomers,
		Seed:       defaultSeed,
		MinT:       defaultMinT,
		MaxT:       defaultMaxT,
		IDPrefix:   defaultIDPrefix,
		BGNBD:      bgnbd.Params{R: 0.25, Alpha: 4.0, A: 0.8, B: 2.5},
		GammaGamma: gammagamma.Params{P: 6.25, Q: 3.74, V: 15.44},
	}
}

// Validate checks that a population can be drawn.
func (c Config) Validate() error {
	switch {
	case c.Customers <= 0:
		return model.Invalid("customers", "", "must be positive", c.Customers)
	case !(c.MinT >= 0) || c.MaxT < c.MinT:
		return model.Invalid("T range", "", "must satisfy 0 <= min <= max", [2]float64{c.MinT, c.MaxT})
	}
	if err := c.BGNBD.Validate(); err != nil {
		return err
	}
	return c.GammaGamma.Validate()
}

// Customer is one simulated purchase history. Times are in model units from
// the first purchase; Values holds the spend of every purchase including the
// first.
type Customer struct {
	ID     string
	T      float64
	Times  []float64
	Values []float64
}

// TransactionOptions place a population on the calendar.
type TransactionOptions struct {
	// End is the observation cutoff; each customer's first purchase falls T
	// units before it.
	End      time.Time
	UnitDays int
	Country  string
}
