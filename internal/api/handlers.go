package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tycho/internal/backtest"
	"tycho/internal/store"
)

// RunSummaryJSON is one entry in the runs listing.
type RunSummaryJSON struct {
	ID          string  `json:"id"`
	Strategy    string  `json:"strategy"`
	CreatedAt   string  `json:"created_at"`
	State       string  `json:"state"`
	FailReason  string  `json:"fail_reason,omitempty"`
	StartDate   string  `json:"start_date,omitempty"`
	EndDate     string  `json:"end_date,omitempty"`
	FinalEquity float64 `json:"final_equity"`
}

// RunDetailJSON is a single run with its full result payload.
type RunDetailJSON struct {
	RunSummaryJSON
	Result json.RawMessage `json:"result"`
}

// EquityPointJSON is one point of a run's equity curve.
type EquityPointJSON struct {
	Date   string  `json:"date"`
	Equity float64 `json:"equity"`
	Cash   float64 `json:"cash"`
}

func summaryJSON(rec *store.RunRecord) RunSummaryJSON {
	return RunSummaryJSON{
		ID:          rec.ID,
		Strategy:    rec.Strategy,
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
		State:       rec.State,
		FailReason:  rec.FailReason,
		StartDate:   rec.StartDate,
		EndDate:     rec.EndDate,
		FinalEquity: rec.FinalEquity,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.registry != nil {
		names = s.registry.List()
	}
	writeJSON(w, map[string][]string{"strategies": names})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	out := make([]RunSummaryJSON, 0, len(recs))
	for i := range recs {
		out = append(out, summaryJSON(&recs[i]))
	}
	writeJSON(w, map[string][]RunSummaryJSON{"runs": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, RunDetailJSON{
		RunSummaryJSON: summaryJSON(rec),
		Result:         json.RawMessage(rec.Result),
	})
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	var result backtest.Result
	if err := json.Unmarshal(rec.Result, &result); err != nil {
		s.log.Error("decoding run result", "run", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "corrupt run result")
		return
	}

	points := make([]EquityPointJSON, 0, len(result.Snapshots))
	for _, snap := range result.Snapshots {
		points = append(points, EquityPointJSON{
			Date:   snap.Day(),
			Equity: snap.Equity,
			Cash:   snap.Cash,
		})
	}
	writeJSON(w, map[string]any{"id": rec.ID, "equity": points})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runs.DeleteRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.log.Error("deleting run", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadRun fetches the run named in the request path, writing the error
// response itself when the run cannot be served.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*store.RunRecord, bool) {
	id := r.PathValue("id")
	rec, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return nil, false
		}
		s.log.Error("loading run", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return nil, false
	}
	return rec, true
}
