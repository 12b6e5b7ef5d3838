package handler

import (
	"net/http"

	"github.com/freeeve/dice-odds/api/internal/service"
)

// OddsHandler serves the public probability endpoints.
type OddsHandler struct {
	oddsSvc *service.OddsService
}

// NewOddsHandler creates an OddsHandler.
func NewOddsHandler(oddsSvc *service.OddsService) *OddsHandler {
	return &OddsHandler{oddsSvc: oddsSvc}
}

// Round handles GET /api/v1/odds/round
func (h *OddsHandler) Round(w http.ResponseWriter, r *http.Request) {
	cfg, err := roundConfigParams(r.URL.Query(), h.oddsSvc.DefaultRoundConfig())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	odds, err := h.oddsSvc.RoundOdds(cfg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, odds)
}

// Battle handles GET /api/v1/odds/battle?attack=&defend=&stop=&balanced=
func (h *OddsHandler) Battle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	units, err := unitsParams(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := roundConfigParams(q, h.oddsSvc.DefaultRoundConfig())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balanced, err := boolParam(q, "balanced", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	odds, err := h.oddsSvc.BattleOdds(r.Context(), units, cfg, balanced)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, odds)
}

// WinChance handles GET /api/v1/odds/winchance
func (h *OddsHandler) WinChance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	units, err := unitsParams(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := roundConfigParams(q, h.oddsSvc.DefaultRoundConfig())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balanced, err := boolParam(q, "balanced", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chance, err := h.oddsSvc.WinChance(units, cfg, balanced)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"units":      units,
		"config":     cfg,
		"balanced":   balanced,
		"win_chance": chance,
	})
}

// Ideal handles GET /api/v1/odds/ideal?defend=&threshold=
func (h *OddsHandler) Ideal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	defend, err := intParam(q, "defend", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	threshold, err := floatParam(q, "threshold", 0.8)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := roundConfigParams(q, h.oddsSvc.DefaultRoundConfig())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balanced, err := boolParam(q, "balanced", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	attack, err := h.oddsSvc.IdealUnits(defend, threshold, cfg, balanced)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"defend":    defend,
		"threshold": threshold,
		"attack":    attack,
	})
}

// Grid handles GET /api/v1/odds/grid?attack=&defend=
func (h *OddsHandler) Grid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	attack, err := intParam(q, "attack", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defend, err := intParam(q, "defend", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := roundConfigParams(q, h.oddsSvc.DefaultRoundConfig())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balanced, err := boolParam(q, "balanced", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	grid, err := h.oddsSvc.WinGrid(attack, defend, cfg, balanced)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// Stats handles GET /api/v1/odds/stats
func (h *OddsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.oddsSvc.Stats())
}
