package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freeeve/dice-odds/api/internal/service"
	"github.com/freeeve/dice-odds/api/pkg/dice"
)

func TestWriteJSONRoundConfig(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, dice.DefaultRoundConfig)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type=application/json, got %s", ct)
	}

	var got dice.RoundConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got != dice.DefaultRoundConfig {
		t.Errorf("expected %v, got %v", dice.DefaultRoundConfig, got)
	}
}

func TestWriteJSONStatusText(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]dice.Status{"status": dice.StatusDefenderWin})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	body := strings.TrimSpace(rec.Body.String())
	if body != `{"status":"defender_win"}` {
		t.Errorf("expected defender_win status, got %s", body)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadRequest, "invalid attack")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	var result map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result["error"] != "invalid attack" {
		t.Errorf("expected error=invalid attack, got %s", result["error"])
	}
}

func TestDecodeJSONCreateBattle(t *testing.T) {
	body := `{"attack":12,"defend":7,"stop_until":2,"config":{"faces":8,"attack_dice":2,"defend_dice":2},"seed":99}`
	req := httptest.NewRequest(http.MethodPost, "/battles", strings.NewReader(body))

	var cr service.CreateBattleRequest
	if err := decodeJSON(req, &cr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cr.Attack != 12 || cr.Defend != 7 || cr.StopUntil != 2 {
		t.Errorf("expected 12v7 stop 2, got %dv%d stop %d", cr.Attack, cr.Defend, cr.StopUntil)
	}
	if cr.Config == nil || cr.Config.Faces != 8 || cr.Config.FavourDefenderOnDraw {
		t.Errorf("expected 8-faced config without draw favour, got %+v", cr.Config)
	}
	if cr.Seed == nil || *cr.Seed != 99 {
		t.Errorf("expected seed 99, got %v", cr.Seed)
	}
}

func TestDecodeJSONInvalidBody(t *testing.T) {
	for _, body := range []string{"", "not json", `{"attack":"many"}`} {
		req := httptest.NewRequest(http.MethodPost, "/battles", strings.NewReader(body))
		var cr service.CreateBattleRequest
		if err := decodeJSON(req, &cr); err == nil {
			t.Errorf("%q: expected decode error", body)
		}
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", service.ErrInvalidRequest), http.StatusBadRequest},
		{service.ErrTooManyUnits, http.StatusBadRequest},
		{service.ErrTooManyDice, http.StatusBadRequest},
		{service.ErrBattleNotFound, http.StatusNotFound},
		{service.ErrNotOwner, http.StatusForbidden},
		{fmt.Errorf("round: %w", dice.ErrBattleComplete), http.StatusConflict},
		{dice.ErrThresholdUnreachable, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeServiceError(rec, tt.err)
		if rec.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
	}
}

func TestWriteServiceErrorHidesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, errors.New("redis: connection refused"))

	var result map[string]string
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result["error"] != "internal error" {
		t.Errorf("expected generic internal error, got %q", result["error"])
	}
}
