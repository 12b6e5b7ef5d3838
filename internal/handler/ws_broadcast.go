package handler

import "github.com/freeeve/dice-odds/api/internal/service"

var _ service.Broadcaster = (*Hub)(nil)

// BroadcastBattleEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastBattleEvent(battleID string, eventType string, data any) {
	h.BroadcastToBattle(battleID, WSEvent{
		Type:     eventType,
		BattleID: battleID,
		Data:     data,
	})
}
