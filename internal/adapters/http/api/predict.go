package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/cltv/internal/domain/model"
)

const maxPredictBody = 1 << 16

// PredictDependencies values an ad hoc customer.
type PredictDependencies interface {
	Predict(ctx context.Context, rec model.Summary) (model.CustomerValue, error)
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps PredictDependencies
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps PredictDependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// predictRequest is the body of POST /predict.
type predictRequest struct {
	CustomerID string   `json:"customer_id"`
	Frequency  *int     `json:"frequency"`
	Recency    *float64 `json:"recency"`
	T          *float64 `json:"T"`
	Monetary   *float64 `json:"monetary"`
}

func (p predictRequest) summary() (model.Summary, error) {
	switch {
	case p.Frequency == nil:
		return model.Summary{}, errors.New("missing frequency")
	case p.Recency == nil:
		return model.Summary{}, errors.New("missing recency")
	case p.T == nil:
		return model.Summary{}, errors.New("missing T")
	case p.Monetary == nil:
		return model.Summary{}, errors.New("missing monetary")
	}
	id := p.CustomerID
	if id == "" {
		id = "adhoc"
	}
	return model.Summary{
		CustomerID: id,
		Frequency:  *p.Frequency,
		Recency:    *p.Recency,
		T:          *p.T,
		Monetary:   *p.Monetary,
	}, nil
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	var req predictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, err))
		return
	}
	rec, err := req.summary()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", badRequest(op, err))
		return
	}
	v, err := h.deps.Predict(r.Context(), rec)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
