package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cltv/internal/adapters/http/api"
	"github.com/okian/cltv/internal/adapters/repository"
	service "github.com/okian/cltv/internal/app"
	"github.com/okian/cltv/internal/domain/bgnbd"
	"github.com/okian/cltv/internal/domain/model"
)

// mockDependencies serves a fixed ranking.
type mockDependencies struct {
	ready   bool
	entries []api.Entry
	lastRec model.Summary
	limit   int
}

func (m *mockDependencies) Stats(context.Context) (*service.Run, error) {
	if !m.ready {
		return nil, service.ErrNotReady
	}
	return &service.Run{ID: "run-1", Customers: len(m.entries), Valued: len(m.entries)}, nil
}

func (m *mockDependencies) Params(context.Context) (service.Params, error) {
	if !m.ready {
		return service.Params{}, service.ErrNotReady
	}
	return service.Params{RunID: "run-1", BGNBD: bgnbd.Params{R: 0.243, Alpha: 4.414, A: 0.793, B: 2.426}}, nil
}

func (m *mockDependencies) Segments(context.Context) ([]service.SegmentCount, error) {
	if !m.ready {
		return nil, service.ErrNotReady
	}
	return []service.SegmentCount{{Label: "D", Customers: 1}, {Label: "A", Customers: 1}}, nil
}

func (m *mockDependencies) TopN(_ context.Context, n int) ([]api.Entry, error) {
	if !m.ready {
		return nil, service.ErrNotReady
	}
	m.limit = n
	if n > len(m.entries) {
		return m.entries, nil
	}
	return m.entries[:n], nil
}

func (m *mockDependencies) Customer(_ context.Context, id string) (api.Entry, error) {
	if !m.ready {
		return api.Entry{}, service.ErrNotReady
	}
	for _, e := range m.entries {
		if e.CustomerID == id {
			return e, nil
		}
	}
	return api.Entry{}, repository.ErrNotFound
}

func (m *mockDependencies) Predict(_ context.Context, rec model.Summary) (model.CustomerValue, error) {
	if !m.ready {
		return model.CustomerValue{}, service.ErrNotReady
	}
	m.lastRec = rec
	if rec.Frequency < 2 {
		return model.CustomerValue{}, model.Invalid("frequency", rec.CustomerID, "must be at least 2", rec.Frequency)
	}
	if rec.Monetary > 1e300 {
		return model.CustomerValue{}, model.Unstable("cltv", "overflow")
	}
	return model.CustomerValue{CustomerID: rec.CustomerID, Frequency: rec.Frequency, CLTV: 42}, nil
}

func newMux(deps *mockDependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func rankedEntries() []api.Entry {
	return []api.Entry{
		{Rank: 1, CustomerValue: model.CustomerValue{CustomerID: "12346", CLTV: 900, Segment: "A"}},
		{Rank: 2, CustomerValue: model.CustomerValue{CustomerID: "12347", CLTV: 500, Segment: "A"}},
		{Rank: 3, CustomerValue: model.CustomerValue{CustomerID: "12348", CLTV: 10, Segment: "D"}},
	}
}

func TestServer_BeforeFirstRun(t *testing.T) {
	Convey("Given a server whose pipeline has not finished", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then health is still reported", func() {
			w := serve(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then metrics are served", func() {
			w := serve(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then result endpoints report unavailability", func() {
			for _, target := range []string{"/stats", "/params", "/segments", "/customers?limit=2", "/customers/12346"} {
				w := serve(mux, http.MethodGet, target, "")
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(errorCode(w), ShouldEqual, "not_ready")
			}
			w := serve(mux, http.MethodPost, "/predict", `{"frequency":3,"recency":10,"T":20,"monetary":5}`)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestServer_Reads(t *testing.T) {
	Convey("Given a server with a finished run", t, func() {
		deps := &mockDependencies{ready: true, entries: rankedEntries()}
		mux := newMux(deps, api.WithMaxLimit(2))

		Convey("When requesting run statistics", func() {
			w := serve(mux, http.MethodGet, "/stats", "")

			Convey("Then the run is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var run service.Run
				So(json.Unmarshal(w.Body.Bytes(), &run), ShouldBeNil)
				So(run.ID, ShouldEqual, "run-1")
				So(run.Valued, ShouldEqual, 3)
			})
		})

		Convey("When requesting parameters", func() {
			w := serve(mux, http.MethodGet, "/params", "")

			Convey("Then the fitted values are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var params service.Params
				So(json.Unmarshal(w.Body.Bytes(), &params), ShouldBeNil)
				So(params.BGNBD.R, ShouldEqual, 0.243)
			})
		})

		Convey("When requesting segments", func() {
			w := serve(mux, http.MethodGet, "/segments", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var segments []service.SegmentCount
			So(json.Unmarshal(w.Body.Bytes(), &segments), ShouldBeNil)
			So(len(segments), ShouldEqual, 2)
		})

		Convey("When requesting the top customers", func() {
			w := serve(mux, http.MethodGet, "/customers?limit=2", "")

			Convey("Then the ranking is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var entries []api.Entry
				So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].CustomerID, ShouldEqual, "12346")
				So(entries[1].Rank, ShouldEqual, 2)
			})
		})

		Convey("When the limit is omitted", func() {
			w := serve(mux, http.MethodGet, "/customers", "")

			Convey("Then the default is capped by the maximum", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.limit, ShouldEqual, 2)
			})
		})

		Convey("When the limit is invalid", func() {
			for _, target := range []string{"/customers?limit=0", "/customers?limit=-3", "/customers?limit=abc"} {
				w := serve(mux, http.MethodGet, target, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
			}
		})

		Convey("When the limit exceeds the maximum", func() {
			w := serve(mux, http.MethodGet, "/customers?limit=3", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "limit_exceeded")
		})

		Convey("When requesting a ranked customer", func() {
			w := serve(mux, http.MethodGet, "/customers/12348", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var entry api.Entry
			So(json.Unmarshal(w.Body.Bytes(), &entry), ShouldBeNil)
			So(entry.Rank, ShouldEqual, 3)
			So(entry.Segment, ShouldEqual, "D")
		})

		Convey("When requesting an unknown customer", func() {
			w := serve(mux, http.MethodGet, "/customers/99999", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, "not_found")
		})

		Convey("When using the wrong method", func() {
			w := serve(mux, http.MethodPost, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_Predict(t *testing.T) {
	Convey("Given a server with a finished run", t, func() {
		deps := &mockDependencies{ready: true}
		mux := newMux(deps)

		Convey("When a complete customer is posted", func() {
			w := serve(mux, http.MethodPost, "/predict",
				`{"customer_id":"c1","frequency":4,"recency":30.4,"T":38.9,"monetary":20}`)

			Convey("Then the value is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var v model.CustomerValue
				So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
				So(v.CustomerID, ShouldEqual, "c1")
				So(v.CLTV, ShouldEqual, 42)
				So(deps.lastRec.T, ShouldEqual, 38.9)
			})
		})

		Convey("When the customer id is omitted", func() {
			w := serve(mux, http.MethodPost, "/predict", `{"frequency":4,"recency":30,"T":38,"monetary":20}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastRec.CustomerID, ShouldEqual, "adhoc")
		})

		Convey("When the body is malformed", func() {
			bodies := []string{
				`not json`,
				`{"frequency":4,"recency":30,"T":38}`,
				`{"frequency":2.5,"recency":30,"T":38,"monetary":20}`,
				`{"frequency":4,"recency":30,"T":38,"monetary":20,"extra":1}`,
			}
			for _, body := range bodies {
				w := serve(mux, http.MethodPost, "/predict", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
			}
		})

		Convey("When the customer is below the minimum frequency", func() {
			w := serve(mux, http.MethodPost, "/predict", `{"frequency":1,"recency":3,"T":38,"monetary":20}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "invalid_input")
		})

		Convey("When the prediction is numerically unstable", func() {
			w := serve(mux, http.MethodPost, "/predict", `{"frequency":3,"recency":3,"T":38,"monetary":1e308}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(errorCode(w), ShouldEqual, "numerical_instability")
		})

		Convey("When using the wrong method", func() {
			w := serve(mux, http.MethodGet, "/predict", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
