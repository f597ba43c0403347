package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"

	"github.com/okian/cltv/internal/adapters/cache"
	"github.com/okian/cltv/internal/adapters/http/api"
	app "github.com/okian/cltv/internal/app"
	"github.com/okian/cltv/internal/config"
	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/pkg/logger"
	"github.com/okian/cltv/pkg/metrics"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("CLTV_ADDR", ":8080")
			_ = os.Setenv("CLTV_QUEUE_SIZE", "1000")
			_ = os.Setenv("CLTV_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("CLTV_ADDR")
				_ = os.Unsetenv("CLTV_QUEUE_SIZE")
				_ = os.Unsetenv("CLTV_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)

				settings := app.SettingsFromConfig(cfg)
				convey.So(settings.QueueSize, convey.ShouldEqual, 1000)
				convey.So(settings.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When system metrics are updated", func() {
			updateSystemMetrics()

			convey.Convey("Then they are exposed on the registry", func() {
				families, err := metrics.GetRegistry().Gather()
				convey.So(err, convey.ShouldBeNil)
				found := false
				for _, f := range families {
					if strings.HasSuffix(f.GetName(), "system_goroutine_count") {
						found = true
					}
				}
				convey.So(found, convey.ShouldBeTrue)
			})
		})
	})
}

func TestWire(t *testing.T) {
	convey.Convey("Given a synthetic configuration with an Excel export", t, func() {
		cfg := config.New()
		cfg.SyntheticCustomers = 600
		cfg.ExcelOutput = filepath.Join(t.TempDir(), "cltv.xlsx")
		cfg.CutoffDate = "2011-12-11"
		cfg.WorkerCount = 2

		ctx := context.Background()
		deps, err := wire(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer deps.Close()

		convey.Convey("Then a memory cache and one sink are selected", func() {
			_, ok := deps.cache.(*cache.MemoryCache)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(len(deps.sinks), convey.ShouldEqual, 1)
		})

		convey.Convey("Then the synthetic source is deterministic", func() {
			a, err := deps.source.Load(ctx)
			convey.So(err, convey.ShouldBeNil)
			b, err := deps.source.Load(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(a), convey.ShouldBeGreaterThan, cfg.SyntheticCustomers)
			convey.So(a, convey.ShouldResemble, b)
		})

		convey.Convey("When the pipeline runs", func() {
			svc := app.New(
				app.WithSettings(app.SettingsFromConfig(cfg)),
				app.WithSource(deps.source),
				app.WithCache(deps.cache),
				app.WithSink(deps.sinks[0]),
			)
			run, err := svc.Run(ctx)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the results are exported to Excel", func() {
				f, err := excelize.OpenFile(cfg.ExcelOutput)
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = f.Close() }()
				rows, err := f.GetRows("cltv")
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(rows), convey.ShouldEqual, run.Valued+1)
				params, err := f.GetRows("params")
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(params), convey.ShouldEqual, len(resultParams(run))+1)
			})

			convey.Convey("Then the API serves the ranking", func() {
				mux := http.NewServeMux()
				api.NewServer(svc, api.WithMaxLimit(cfg.MaxTopLimit)).Register(ctx, mux)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/customers?limit=5", nil))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})
		})
	})

	convey.Convey("Given an unreachable Redis", t, func() {
		cfg := config.New()
		cfg.RedisURL = "redis://127.0.0.1:1/0"

		convey.Convey("Then wiring fails", func() {
			_, err := wire(context.Background(), cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestResultParams(t *testing.T) {
	convey.Convey("Given a finished run", t, func() {
		run := &app.Run{}
		run.BGNBD.Params = bgnbd.Params{R: 0.243, Alpha: 4.414, A: 0.793, B: 2.426}
		run.Horizon.Periods = 6

		convey.Convey("Then every parameter is listed", func() {
			params := resultParams(run)
			convey.So(len(params), convey.ShouldEqual, 12)
			convey.So(params[0].Name, convey.ShouldEqual, "r")
			convey.So(params[0].Value, convey.ShouldEqual, 0.243)
			convey.So(params[9].Value, convey.ShouldEqual, 6)
		})
	})
}
