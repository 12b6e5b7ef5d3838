package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/freeeve/dice-odds/api/internal/auth"
	"github.com/freeeve/dice-odds/api/internal/service"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// BattleHandler handles battle session endpoints.
type BattleHandler struct {
	battleSvc *service.BattleService
}

// NewBattleHandler creates a BattleHandler.
func NewBattleHandler(battleSvc *service.BattleService) *BattleHandler {
	return &BattleHandler{battleSvc: battleSvc}
}

// CreateBattle handles POST /api/v1/battles
func (h *BattleHandler) CreateBattle(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req service.CreateBattleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.battleSvc.Create(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// ListBattles handles GET /api/v1/battles
func (h *BattleHandler) ListBattles(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	sessions, err := h.battleSvc.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetBattle handles GET /api/v1/battles/{id}
func (h *BattleHandler) GetBattle(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	sess, err := h.battleSvc.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// methodRequest is the optional body of round and blitz requests.
type methodRequest struct {
	Method string `json:"method"`
}

func decodeMethod(r *http.Request) (string, error) {
	var req methodRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return req.Method, nil
}

// Round handles POST /api/v1/battles/{id}/round
func (h *BattleHandler) Round(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	method, err := decodeMethod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.battleSvc.Round(r.Context(), userID, r.PathValue("id"), method)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Blitz handles POST /api/v1/battles/{id}/blitz
func (h *BattleHandler) Blitz(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	method, err := decodeMethod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.battleSvc.Blitz(r.Context(), userID, r.PathValue("id"), method)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Reset handles POST /api/v1/battles/{id}/reset
func (h *BattleHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	sess, err := h.battleSvc.Reset(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// DeleteBattle handles DELETE /api/v1/battles/{id}
func (h *BattleHandler) DeleteBattle(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if err := h.battleSvc.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /api/v1/battles/history?limit=
func (h *BattleHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	limit, err := intParam(r.URL.Query(), "limit", defaultHistoryLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxHistoryLimit)

	records, err := h.battleSvc.History(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Stats handles GET /api/v1/battles/stats
func (h *BattleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	stats, err := h.battleSvc.Stats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
