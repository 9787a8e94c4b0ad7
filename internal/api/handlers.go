package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/engine"
	"github.com/keremavci/engram/internal/recall"
	"github.com/keremavci/engram/internal/record"
)

type Handlers struct {
	eng *engine.Engine
}

func NewHandlers(eng *engine.Engine) *Handlers {
	return &Handlers{eng: eng}
}

// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/v1/records
func (h *Handlers) StoreRecord(w http.ResponseWriter, r *http.Request) {
	var req engine.StoreInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.eng.Store(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// GET /api/v1/records/{id}?scope=
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}

	rec, err := h.eng.Get(r.Context(), scope, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// DELETE /api/v1/records/{id}?scope=
func (h *Handlers) ForgetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}

	rec, err := h.eng.Forget(r.Context(), scope, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(rec.Status), "id": id.String()})
}

type recallRequest struct {
	Query string        `json:"query"`
	Scope *record.Scope `json:"scope,omitempty"`
	Kind  *record.Kind  `json:"kind,omitempty"`
	Limit int           `json:"limit,omitempty"`
}

// POST /api/v1/records/recall
func (h *Handlers) Recall(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.eng.Recall(r.Context(), req.Query, recall.Options{
		Scope: req.Scope,
		Kind:  req.Kind,
		Limit: req.Limit,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type fusedRequest struct {
	Query string `json:"query"`
	By    string `json:"by,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// POST /api/v1/records/fused
func (h *Handlers) Fused(w http.ResponseWriter, r *http.Request) {
	var req fusedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.eng.Fused(r.Context(), req.Query, req.By, req.Limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type promoteRequest struct {
	Scope  *record.Scope `json:"scope,omitempty"`
	Target record.Scope  `json:"target"`
}

// POST /api/v1/records/{id}/promote
func (h *Handlers) PromoteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.eng.Promote(r.Context(), req.Scope, id, req.Target)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /api/v1/records/{id}/related
func (h *Handlers) RelatedRecords(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	edges, err := h.eng.Related(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"edges": edges})
}

// GET /api/v1/records/{id}/history
func (h *Handlers) RecordHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	transitions, err := h.eng.History(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}

type feedbackRequest struct {
	Useful bool `json:"useful"`
}

// POST /api/v1/retrievals/{id}/feedback
func (h *Handlers) Feedback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid retrieval id")
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.eng.Feedback(r.Context(), id, req.Useful); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id.String(), "useful": req.Useful})
}

type consolidateRequest struct {
	Scope  *record.Scope `json:"scope,omitempty"`
	DryRun bool          `json:"dry_run,omitempty"`
}

// POST /api/v1/consolidate
func (h *Handlers) Consolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Scope != nil && !record.ValidScope(*req.Scope) {
		writeError(w, http.StatusBadRequest, "invalid scope")
		return
	}

	report, err := h.eng.Consolidate(r.Context(), req.Scope, req.DryRun)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type evolveRequest struct {
	DryRun   bool   `json:"dry_run,omitempty"`
	Lookback string `json:"lookback,omitempty"`
}

// POST /api/v1/evolve
func (h *Handlers) Evolve(w http.ResponseWriter, r *http.Request) {
	var req evolveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	var lookback time.Duration
	if req.Lookback != "" {
		d, err := time.ParseDuration(req.Lookback)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lookback: "+err.Error())
			return
		}
		lookback = d
	}

	outcome, err := h.eng.Evolve(r.Context(), req.DryRun, lookback)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// GET /api/v1/peek/{scope}?limit=
func (h *Handlers) Peek(w http.ResponseWriter, r *http.Request) {
	scope := record.Scope(chi.URLParam(r, "scope"))
	if !record.ValidScope(scope) {
		writeError(w, http.StatusBadRequest, "invalid scope")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	peeked, err := h.eng.Peek(r.Context(), scope, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": peeked})
}

// GET /api/v1/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.eng.Stats(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GET /api/v1/tuning
func (h *Handlers) Tuning(w http.ResponseWriter, r *http.Request) {
	state := h.eng.Tuning()
	writeJSON(w, http.StatusOK, map[string]any{
		"scope_weights":        state.ScopeWeights,
		"half_lives":           state.HalfLives,
		"promote_importance":   state.PromoteImportance,
		"promote_access_count": state.PromoteAccessCount,
		"default_strategy":     state.DefaultStrategy,
	})
}

// GET /api/v1/tuning/changes?limit=
func (h *Handlers) TuningChanges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	changes, err := h.eng.TuningChanges(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func scopeParam(w http.ResponseWriter, r *http.Request) (*record.Scope, bool) {
	v := r.URL.Query().Get("scope")
	if v == "" {
		return nil, true
	}
	scope := record.Scope(v)
	if !record.ValidScope(scope) {
		writeError(w, http.StatusBadRequest, "invalid scope")
		return nil, false
	}
	return &scope, true
}

// writeEngineError maps the engine's error taxonomy onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		ve *record.ValidationError
		nf *record.NotFoundError
		su *record.StoreUnavailableError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &su):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
