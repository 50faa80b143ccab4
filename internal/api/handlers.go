package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/specs"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

type harvestRequest struct {
	Brand          string   `json:"brand"`
	Model          string   `json:"model"`
	EquipmentClass string   `json:"equipment_class"`
	SeedURLs       []string `json:"seed_urls"`
}

// submitHarvest handles POST /v1/harvest. It registers a run and enqueues
// the work item, returning 202 with the run ID.
func (s *Server) submitHarvest(w http.ResponseWriter, r *http.Request) {
	var req harvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Brand = strings.TrimSpace(req.Brand)
	req.Model = strings.TrimSpace(req.Model)
	if req.Brand == "" || req.Model == "" {
		s.writeError(w, http.StatusBadRequest, "brand and model are required")
		return
	}

	runID, err := s.enqueueRun(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) enqueueRun(ctx context.Context, req harvestRequest) (string, error) {
	runID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	item := specs.WorkItem{
		RunID:          runID,
		Brand:          req.Brand,
		Model:          req.Model,
		EquipmentClass: req.EquipmentClass,
		SeedURLs:       req.SeedURLs,
	}
	if err := s.runStore.StartRun(ctx, item); err != nil {
		return "", fmt.Errorf("register run: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.enqueuer.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	return runID, nil
}

// getRun handles GET /v1/runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runStore.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, specs.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

// cancelRun handles POST /v1/runs/{run_id}/cancel. Only runs a worker is
// actively processing can be aborted; queued runs have no cancel hook yet
// and finished runs are immutable.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if s.enqueuer.Cancel(runID) {
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "canceling"})
		return
	}

	run, err := s.runStore.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, specs.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("cancel run lookup failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run.FinishedAt != nil {
		s.writeError(w, http.StatusConflict, "run already finished")
		return
	}
	s.writeError(w, http.StatusConflict, "run is not cancelable")
}

// listRuns handles GET /v1/runs?status=&limit=&offset=.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *specs.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := parseRunStatus(raw)
		if parseErr != nil {
			s.writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}

	runs, err := s.runStore.ListRuns(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// listSpecs handles GET /v1/specs?brand=&model=. Both filters are optional.
func (s *Server) listSpecs(w http.ResponseWriter, r *http.Request) {
	brand := strings.TrimSpace(r.URL.Query().Get("brand"))
	model := strings.TrimSpace(r.URL.Query().Get("model"))
	records, err := s.specStore.GetSpecs(r.Context(), brand, model)
	if err != nil {
		s.logger.Error("list specs failed",
			zap.String("brand", brand), zap.String("model", model), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load specs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"specs": records})
}

// getSpecs handles GET /v1/specs/{brand}/{model}.
func (s *Server) getSpecs(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")
	model := chi.URLParam(r, "model")
	records, err := s.specStore.GetSpecs(r.Context(), brand, model)
	if err != nil {
		s.logger.Error("get specs failed",
			zap.String("brand", brand), zap.String("model", model), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load specs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"brand": brand,
		"model": model,
		"specs": records,
	})
}

// getRimpull handles GET /v1/rimpull/{brand}/{model}. Machines without a
// consolidated curve return 404; most equipment classes never have one.
func (s *Server) getRimpull(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")
	model := chi.URLParam(r, "model")
	curve, err := s.specStore.GetRimpull(r.Context(), brand, model)
	if err != nil {
		s.logger.Error("get rimpull failed",
			zap.String("brand", brand), zap.String("model", model), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load rimpull curve")
		return
	}
	if curve == nil {
		s.writeError(w, http.StatusNotFound, "no rimpull curve for this machine")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rimpull": curve})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseRunStatus(input string) (specs.RunStatus, error) {
	switch strings.ToLower(input) {
	case "queued":
		return specs.RunQueued, nil
	case "running":
		return specs.RunRunning, nil
	case "succeeded", "success":
		return specs.RunSucceeded, nil
	case "failed", "failure", "error":
		return specs.RunFailed, nil
	case "canceled", "cancelled":
		return specs.RunCanceled, nil
	default:
		return "", errors.New("invalid status")
	}
}
