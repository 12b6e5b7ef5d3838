package service

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastBattleEvent(battleID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastBattleEvent(string, string, any) {}

// Event types sent to battle subscribers.
const (
	EventBattleRound    = "battle_round"
	EventBattleBlitz    = "battle_blitz"
	EventBattleReset    = "battle_reset"
	EventBattleComplete = "battle_complete"
)
