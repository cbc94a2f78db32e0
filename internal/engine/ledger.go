package engine

import (
	"futures_control/internal/metrics"
	"futures_control/internal/models"
	"sync"
)

// Ledger is the authoritative in-memory record of open positions, the
// round-level base order size and the exit-condition toggles. Every read and
// write goes through the single mutex; the exchange round-trips themselves
// happen outside it, only the bookkeeping is serialized.
//
// Nothing here survives a restart. That is an operating constraint of the
// bot, not an oversight: the protective stop lives on the exchange, the
// in-memory averaging state does not.
type Ledger struct {
	mu         sync.Mutex
	positions  map[string]*models.Position
	roundSize  float64 // USDT notional shared by both coins; 0 = unset
	exits      map[string]models.ExitSet
	limitPrice map[string]string // last limit-close input per coin, for the UI
}

func NewLedger() *Ledger {
	l := &Ledger{
		positions:  make(map[string]*models.Position),
		exits:      make(map[string]models.ExitSet),
		limitPrice: make(map[string]string),
	}
	for _, ins := range models.Instruments {
		l.exits[ins.Coin] = models.NewExitSet()
	}
	return l
}

// Position returns a copy of the tracked position for the coin
func (l *Ledger) Position(coin string) (models.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[coin]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// OpenCoins snapshots the coins currently holding a tracked position
func (l *Ledger) OpenCoins() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	coins := make([]string, 0, len(l.positions))
	for c := range l.positions {
		coins = append(coins, c)
	}
	return coins
}

// SetPosition records a freshly opened position
func (l *Ledger) SetPosition(p models.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := p
	l.positions[p.Coin] = &cp
	metrics.SetOpenPositions(len(l.positions))
}

// RecordAdd re-anchors the position on a new fill. The entry price is
// overwritten with the latest fill rather than averaged; the trailing stop
// and the add trigger only ever read the last fill, so a weighted average
// would be dead weight here.
func (l *Ledger) RecordAdd(coin string, fillPrice, nextAddPrice float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[coin]
	if !ok {
		return
	}
	p.EntryPrice = fillPrice
	p.LastAddPrice = fillPrice
	p.NextAddPrice = nextAddPrice
	p.Adds++
}

// RemovePosition drops the coin's position. When it was the last one, the
// round base order size is cleared and the next open recomputes it from the
// wallet. Returns true when the round was cleared.
func (l *Ledger) RemovePosition(coin string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, coin)
	metrics.SetOpenPositions(len(l.positions))
	if len(l.positions) == 0 && l.roundSize != 0 {
		l.roundSize = 0
		metrics.SetRoundSize(0)
		return true
	}
	return false
}

// RoundSize returns the round's base order size, ok=false when unset
func (l *Ledger) RoundSize() (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roundSize, l.roundSize != 0
}

// SetRoundSizeIfUnset fixes the round size unless another open won the race
// while the caller was fetching the wallet balance; the winning value is
// returned either way.
func (l *Ledger) SetRoundSizeIfUnset(size float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.roundSize == 0 {
		l.roundSize = size
		metrics.SetRoundSize(size)
	}
	return l.roundSize
}

// ClearRoundSize resets the round after a manual close left both coins flat
func (l *Ledger) ClearRoundSize() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roundSize = 0
	metrics.SetRoundSize(0)
}

// Toggle flips one exit condition and returns its new state
func (l *Ledger) Toggle(coin string, tf models.TimeFrame, condition string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.exits[coin]
	if !ok {
		return false, models.ErrUnknownCoin
	}
	conds, ok := set[tf]
	if !ok {
		return false, models.ErrUnknownToggle
	}
	cur, ok := conds[condition]
	if !ok {
		return false, models.ErrUnknownToggle
	}
	conds[condition] = !cur
	return !cur, nil
}

// ExitSet returns a copy of the coin's toggle set, safe to evaluate outside
// the lock
func (l *Ledger) ExitSet(coin string) models.ExitSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.exits[coin]
	if !ok {
		return models.NewExitSet()
	}
	return set.Clone()
}

// SetLimitPrice caches the raw limit-close input so the panel re-renders it
func (l *Ledger) SetLimitPrice(coin, raw string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limitPrice[coin] = raw
}

func (l *Ledger) LimitPrice(coin string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitPrice[coin]
}

// Snapshot captures everything the control panel renders in one lock hold
type Snapshot struct {
	Positions   map[string]models.Position `json:"positions"`
	RoundSize   float64                    `json:"round_size_usdt"`
	Exits       map[string]models.ExitSet  `json:"exits"`
	LimitPrices map[string]string          `json:"limit_prices"`
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		Positions:   make(map[string]models.Position, len(l.positions)),
		RoundSize:   l.roundSize,
		Exits:       make(map[string]models.ExitSet, len(l.exits)),
		LimitPrices: make(map[string]string, len(l.limitPrice)),
	}
	for c, p := range l.positions {
		snap.Positions[c] = *p
	}
	for c, s := range l.exits {
		snap.Exits[c] = s.Clone()
	}
	for c, v := range l.limitPrice {
		snap.LimitPrices[c] = v
	}
	return snap
}
