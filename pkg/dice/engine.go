package dice

import (
	"sync"
	"sync/atomic"
)

// Engine owns the round, battle and win chance caches. It is safe for
// concurrent use. Each cache lock covers lookup and insert only; the cached
// model computes itself exactly once outside the lock, and callers racing on
// the same key wait for that single computation.
type Engine struct {
	roundMu sync.Mutex
	rounds  map[RoundConfig]*RoundOutcome

	battleMu sync.Mutex
	battles  map[RoundConfig]map[BattleUnits]*BattleOutcome

	winMu sync.Mutex
	wins  map[winKey]*WinChanceTable

	roundBuilds    atomic.Int64
	battleBuilds   atomic.Int64
	battleAdopted  atomic.Int64
	winTableBuilds atomic.Int64
	hits           atomic.Int64
}

type winKey struct {
	config   RoundConfig
	balanced bool
	balance  BalanceParams
}

// Stats counts cache activity since the engine was created.
type Stats struct {
	RoundBuilds    int64 `json:"round_builds"`
	BattleBuilds   int64 `json:"battle_builds"`
	BattleAdopted  int64 `json:"battle_adopted"`
	WinTableBuilds int64 `json:"win_table_builds"`
	Hits           int64 `json:"hits"`
	Rounds         int   `json:"rounds"`
	Battles        int   `json:"battles"`
	WinTables      int   `json:"win_tables"`
}

func NewEngine() *Engine {
	return &Engine{
		rounds:  make(map[RoundConfig]*RoundOutcome),
		battles: make(map[RoundConfig]map[BattleUnits]*BattleOutcome),
		wins:    make(map[winKey]*WinChanceTable),
	}
}

// Round returns the calculated round distribution for cfg.
func (e *Engine) Round(cfg RoundConfig) (*RoundOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := e.round(cfg)
	r.Calculate()
	return r, nil
}

// Battle returns the calculated raw distribution for units under cfg.
// Battles with an early stop are built fresh on each call on top of the
// cached full battle.
func (e *Engine) Battle(units BattleUnits, cfg RoundConfig) (*BattleOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := units.Validate(); err != nil {
		return nil, err
	}
	b := e.battle(units, cfg)
	b.Calculate()
	return b, nil
}

// BalancedBattle returns a reshaped copy of the cached raw distribution.
func (e *Engine) BalancedBattle(units BattleUnits, cfg RoundConfig, p BalanceParams) (*BattleOutcome, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := e.Battle(units, cfg)
	if err != nil {
		return nil, err
	}
	return Balance(raw, p), nil
}

// WinChances returns a calculated table covering at least required units on
// each side. A request beyond the cached table replaces it with a larger one.
func (e *Engine) WinChances(required int, cfg RoundConfig, balance *BalanceParams) (*WinChanceTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key := winKey{config: cfg}
	if balance != nil {
		if err := balance.Validate(); err != nil {
			return nil, err
		}
		key.balanced, key.balance = true, *balance
	}
	size := max(NextPowerOfTwo(required+1), 64)

	e.winMu.Lock()
	t, ok := e.wins[key]
	if !ok || required >= t.size {
		var err error
		t, err = NewWinChanceTable(cfg, size+1, balance)
		if err != nil {
			e.winMu.Unlock()
			return nil, err
		}
		t.src = e
		e.wins[key] = t
		e.winTableBuilds.Add(1)
	} else {
		e.hits.Add(1)
	}
	e.winMu.Unlock()

	t.Calculate()
	return t, nil
}

// Cached returns the ready raw battle for units, or nil when it has not been
// calculated yet.
func (e *Engine) Cached(units BattleUnits, cfg RoundConfig) *BattleOutcome {
	if units.IsEarlyStop() {
		return nil
	}
	return e.readyBattle(cfg, unitState{attack: units.Attack, defend: units.Defend})
}

// Preload stores a ready raw full battle calculated elsewhere, such as one
// decoded from a shared cache. An existing entry wins. It reports whether b
// was stored.
func (e *Engine) Preload(b *BattleOutcome) bool {
	if b == nil || b.Kind() != Raw || !b.Ready() || b.Units().IsEarlyStop() {
		return false
	}
	e.battleMu.Lock()
	defer e.battleMu.Unlock()
	byUnits, ok := e.battles[b.config]
	if !ok {
		byUnits = make(map[BattleUnits]*BattleOutcome)
		e.battles[b.config] = byUnits
	}
	if _, ok := byUnits[b.units]; ok {
		return false
	}
	byUnits[b.units] = b
	e.battleAdopted.Add(1)
	return true
}

// Clear drops every cached model.
func (e *Engine) Clear() {
	e.roundMu.Lock()
	e.rounds = make(map[RoundConfig]*RoundOutcome)
	e.roundMu.Unlock()

	e.battleMu.Lock()
	e.battles = make(map[RoundConfig]map[BattleUnits]*BattleOutcome)
	e.battleMu.Unlock()

	e.winMu.Lock()
	e.wins = make(map[winKey]*WinChanceTable)
	e.winMu.Unlock()
}

func (e *Engine) Stats() Stats {
	s := Stats{
		RoundBuilds:    e.roundBuilds.Load(),
		BattleBuilds:   e.battleBuilds.Load(),
		BattleAdopted:  e.battleAdopted.Load(),
		WinTableBuilds: e.winTableBuilds.Load(),
		Hits:           e.hits.Load(),
	}
	e.roundMu.Lock()
	s.Rounds = len(e.rounds)
	e.roundMu.Unlock()
	e.battleMu.Lock()
	for _, m := range e.battles {
		s.Battles += len(m)
	}
	e.battleMu.Unlock()
	e.winMu.Lock()
	s.WinTables = len(e.wins)
	e.winMu.Unlock()
	return s
}

func (e *Engine) round(cfg RoundConfig) *RoundOutcome {
	e.roundMu.Lock()
	r, ok := e.rounds[cfg]
	if !ok {
		r = NewRoundOutcome(cfg)
		e.rounds[cfg] = r
		e.roundBuilds.Add(1)
	} else {
		e.hits.Add(1)
	}
	e.roundMu.Unlock()
	return r
}

func (e *Engine) battle(units BattleUnits, cfg RoundConfig) *BattleOutcome {
	if units.IsEarlyStop() {
		b := NewBattleOutcome(units, cfg)
		b.src = e
		return b
	}

	e.battleMu.Lock()
	defer e.battleMu.Unlock()
	byUnits, ok := e.battles[cfg]
	if !ok {
		byUnits = make(map[BattleUnits]*BattleOutcome)
		e.battles[cfg] = byUnits
	}
	b, ok := byUnits[units]
	if ok {
		e.hits.Add(1)
		return b
	}
	b = NewBattleOutcome(units, cfg)
	b.src = e
	byUnits[units] = b
	e.battleBuilds.Add(1)
	return b
}

func (e *Engine) readyBattle(cfg RoundConfig, s unitState) *BattleOutcome {
	e.battleMu.Lock()
	b := e.battles[cfg][BattleUnits{Attack: s.attack, Defend: s.defend}]
	e.battleMu.Unlock()
	if b == nil || !b.Ready() {
		return nil
	}
	return b
}

// adoptBattles caches sub-battles resolved while computing a larger one.
// Existing entries win.
func (e *Engine) adoptBattles(cfg RoundConfig, states map[unitState]lossPair) {
	if len(states) == 0 {
		return
	}
	e.battleMu.Lock()
	defer e.battleMu.Unlock()
	byUnits, ok := e.battles[cfg]
	if !ok {
		byUnits = make(map[BattleUnits]*BattleOutcome, len(states))
		e.battles[cfg] = byUnits
	}
	for s, lp := range states {
		units := BattleUnits{Attack: s.attack, Defend: s.defend}
		if _, ok := byUnits[units]; ok {
			continue
		}
		byUnits[units] = newReadyBattle(units, cfg, lp.attack, lp.defend)
		e.battleAdopted.Add(1)
	}
}
