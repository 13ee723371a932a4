package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/metrics"
	"github.com/wonny/stagegate/internal/s5_gate"
	"github.com/wonny/stagegate/pkg/logger"
)

// GateHandler serves gate decisions and sector stage lookups
// ⭐ SSOT: 게이트/stage 조회 API 핸들러는 이 구조체에서만
type GateHandler struct {
	decider    s5_gate.Decider
	engine     *s5_gate.Engine
	metrics    *metrics.Metrics
	configHash string
	logger     *logger.Logger
}

// NewGateHandler creates a new gate handler
// decider 는 보통 CachedEngine, Redis 없으면 engine 그대로
func NewGateHandler(decider s5_gate.Decider, engine *s5_gate.Engine, m *metrics.Metrics, configHash string, log *logger.Logger) *GateHandler {
	return &GateHandler{
		decider:    decider,
		engine:     engine,
		metrics:    m,
		configHash: configHash,
		logger:     log.WithField("module", "gate_api"),
	}
}

// GateResponse is a gate decision plus the sizing multiplier for its stage
type GateResponse struct {
	contracts.GateDecision
	RiskMult   float64 `json:"risk_mult"`
	ConfigHash string  `json:"config_hash"`
}

// GetGate returns the gate decision for a spider on a date
// GET /api/v1/gate/{spider}/{date}
func (h *GateHandler) GetGate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	spiderID := vars["spider"]

	date, err := parseDateParam(vars["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	dec, err := h.decider.Decide(r.Context(), spiderID, date)
	if err != nil {
		h.logger.WithError(err).WithEntity(spiderID).Error("Gate decision failed")
		respondError(w, http.StatusServiceUnavailable, "stage store unavailable")
		return
	}
	h.metrics.ObserveGate(string(dec.Reason))

	respondJSON(w, http.StatusOK, GateResponse{
		GateDecision: dec,
		RiskMult:     s5_gate.RiskMultiplier(h.engine.Config(), dec.Stage),
		ConfigHash:   h.configHash,
	})
}

// StageResponse is one entity's stage history
type StageResponse struct {
	EntityID string               `json:"entity_id"`
	Count    int                  `json:"count"`
	Records  []StageRecordPayload `json:"records"`
}

// StageRecordPayload is a stage record with an ISO date
type StageRecordPayload struct {
	Date        string          `json:"date"`
	Stage       contracts.Stage `json:"stage"`
	StageName   string          `json:"stage_name"`
	StageReason string          `json:"stage_reason"`
}

// GetStages returns the stored stage history for an entity
// GET /api/v1/stages/{entity}?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *GateHandler) GetStages(w http.ResponseWriter, r *http.Request) {
	entityID := mux.Vars(r)["entity"]

	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := parseDateParam(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = d
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := parseDateParam(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = d
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		respondError(w, http.StatusBadRequest, "to is before from")
		return
	}

	store := h.engine.Store()
	if err := store.Load(r.Context()); err != nil {
		h.logger.WithError(err).Error("Stage store load failed")
		respondError(w, http.StatusServiceUnavailable, "stage store unavailable")
		return
	}
	if !store.HasEntity(entityID) {
		respondError(w, http.StatusNotFound, "unknown entity")
		return
	}

	recs, err := store.EntityRecords(entityID, from, to)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "stage store unavailable")
		return
	}

	payload := make([]StageRecordPayload, 0, len(recs))
	for _, rec := range recs {
		payload = append(payload, StageRecordPayload{
			Date:        contracts.ISODate(rec.Date),
			Stage:       rec.Stage,
			StageName:   rec.StageName,
			StageReason: rec.Reason(),
		})
	}

	respondJSON(w, http.StatusOK, StageResponse{
		EntityID: entityID,
		Count:    len(payload),
		Records:  payload,
	})
}

// GetRisk returns the risk multiplier for a stage id
// GET /api/v1/risk/{stage}
func (h *GateHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	stage, err := contracts.ParseStage(mux.Vars(r)["stage"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stage":      stage,
		"stage_name": stage.Name(),
		"allowed":    h.engine.StageAllowed(stage),
		"risk_mult":  s5_gate.RiskMultiplier(h.engine.Config(), &stage),
	})
}

// GetStore returns the stage store state
// GET /api/v1/store
func (h *GateHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	store := h.engine.Store()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":    store.Stats(),
		"entities": store.Entities(),
	})
}

// RefreshStore reloads the stage store from its source
// POST /api/v1/store/refresh
func (h *GateHandler) RefreshStore(w http.ResponseWriter, r *http.Request) {
	store := h.engine.Store()
	if err := store.Refresh(r.Context()); err != nil {
		h.logger.WithError(err).Error("Stage store refresh failed")
		respondError(w, http.StatusInternalServerError, "refresh failed, previous index kept")
		return
	}

	stats := store.Stats()
	h.metrics.SetStore(stats.Records, stats.Generation)
	respondJSON(w, http.StatusOK, stats)
}
