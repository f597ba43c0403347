package dedupe_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/cltv/internal/domain/dedupe"
	"github.com/okian/cltv/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func line(invoice string, qty float64) model.Transaction {
	return model.Transaction{
		Invoice:     invoice,
		StockCode:   "85123A",
		Quantity:    qty,
		Price:       2.55,
		InvoiceDate: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC),
		CustomerID:  "17850",
		Country:     "United Kingdom",
	}
}

func TestKey(t *testing.T) {
	Convey("Given invoice lines", t, func() {
		Convey("When two lines are identical", func() {
			Convey("Then their keys are equal", func() {
				So(dedupe.Key(line("536365", 6)), ShouldEqual, dedupe.Key(line("536365", 6)))
			})
		})

		Convey("When any field differs", func() {
			base := line("536365", 6)
			later := base
			later.InvoiceDate = later.InvoiceDate.Add(time.Minute)

			Convey("Then the keys differ", func() {
				So(dedupe.Key(base), ShouldNotEqual, dedupe.Key(line("536366", 6)))
				So(dedupe.Key(base), ShouldNotEqual, dedupe.Key(line("536365", 7)))
				So(dedupe.Key(base), ShouldNotEqual, dedupe.Key(later))
			})
		})
	})
}

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When recording keys without a bound", func() {
			d := dedupe.NewInMemoryDeduper()
			first := d.SeenAndRecord(ctx, 1)
			again := d.SeenAndRecord(ctx, 1)
			other := d.SeenAndRecord(ctx, 2)

			Convey("Then only repeated keys are reported as seen", func() {
				So(first, ShouldBeFalse)
				So(again, ShouldBeTrue)
				So(other, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When the bound is reached", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for k := uint64(1); k <= 4; k++ {
				d.SeenAndRecord(ctx, k)
			}

			Convey("Then the oldest key is evicted first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, 4), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, 1), ShouldBeFalse)
			})
		})

		Convey("When many goroutines record the same keys", func() {
			d := dedupe.NewInMemoryDeduper()
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for k := uint64(0); k < 100; k++ {
						if !d.SeenAndRecord(ctx, k) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each key is new exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
