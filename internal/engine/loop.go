package engine

import (
	"context"
	"log"
	"math"
	"time"

	"futures_control/internal/analysis"
	"futures_control/internal/metrics"
	"futures_control/internal/models"
)

// ensureLoop starts the management loop on the first open. The loop runs
// for the life of the process; ticks with no tracked positions are no-ops,
// so there is nothing to gain from stopping it.
func (e *Engine) ensureLoop() {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.loopStarted {
		return
	}
	e.loopStarted = true
	go e.runLoop()
	log.Printf("🔁 Auto-management loop started (every %s)", loopInterval)
}

func (e *Engine) runLoop() {
	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for range ticker.C {
		for _, coin := range e.ledger.OpenCoins() {
			ctx, cancel := context.WithTimeout(context.Background(), loopInterval*4)
			if err := e.manageCoin(ctx, coin); err != nil {
				symbol, _ := models.SymbolFor(coin)
				metrics.IncLoopError(symbol)
				log.Printf("⚠️ %s management tick failed: %v", coin, err)
			}
			cancel()
		}
	}
}

// manageCoin runs one management tick for one coin: reconcile with the
// exchange, evaluate exit conditions, then check the scale-in trigger.
// An exit this tick suppresses the add check.
func (e *Engine) manageCoin(ctx context.Context, coin string) error {
	pos, ok := e.ledger.Position(coin)
	if !ok {
		return nil
	}

	qty, err := e.exchange.GetPositionQty(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	if qty == 0 {
		// Stopped out, limit-closed, or closed on the exchange directly.
		e.ledger.RemovePosition(coin)
		log.Printf("🧹 %s flat on exchange, dropping tracked position", pos.Symbol)
		if e.onClose != nil {
			e.onClose(coin, "closed on exchange")
		}
		return nil
	}

	price, err := e.exchange.GetPrice(ctx, pos.Symbol)
	if err != nil {
		return err
	}

	closed, err := e.checkExits(ctx, pos, qty, price)
	if err != nil {
		// Indicator data is advisory; a failed evaluation must not block
		// the scale-in path.
		log.Printf("⚠️ %s exit evaluation failed: %v", pos.Symbol, err)
	}
	if closed {
		return nil
	}

	if addTriggered(pos.Side, price, pos.NextAddPrice) {
		return e.addStep(ctx, pos, price)
	}
	return nil
}

// checkExits evaluates the enabled exit conditions against fresh 1m and 3m
// klines and closes the position at market when one fires.
func (e *Engine) checkExits(ctx context.Context, pos models.Position, qty, price float64) (bool, error) {
	set := e.ledger.ExitSet(pos.Coin)
	if !set.AnyEnabled() {
		return false, nil
	}

	fast, err := e.exchange.GetKlines(ctx, pos.Symbol, fastInterval, klineLimit)
	if err != nil {
		return false, err
	}
	slow, err := e.exchange.GetKlines(ctx, pos.Symbol, slowInterval, klineLimit)
	if err != nil {
		return false, err
	}

	triggered, reason := analysis.EvaluateExits(pos.Side, price, fast, slow, set)
	if !triggered {
		return false, nil
	}

	if err := e.exchange.PlaceReduceOnlyMarketOrder(ctx, pos.Symbol, closeSideFor(qty), math.Abs(qty)); err != nil {
		return false, err
	}
	metrics.IncOrder(pos.Symbol, "reduce_market")
	metrics.IncExit(pos.Symbol, reason)
	e.ledger.RemovePosition(pos.Coin)
	log.Printf("🎯 %s closed by exit condition %s at %.4f", pos.Symbol, reason, price)
	if e.onClose != nil {
		e.onClose(pos.Coin, reason)
	}
	return true, nil
}

// addStep fires the next scale-in: another base-size market order in the
// position's direction, stop re-anchored on the new fill, trigger advanced
// 0.25% past that fill.
func (e *Engine) addStep(ctx context.Context, pos models.Position, price float64) error {
	fill, filled, err := e.marketOrderByNotional(ctx, pos.Symbol, orderSide(pos.Side), pos.BaseOrderSize)
	if err != nil {
		return err
	}

	e.placeProtectiveStop(ctx, pos.Symbol, pos.Side, fill)
	e.ledger.RecordAdd(pos.Coin, fill, nextAddPrice(pos.Side, fill))
	metrics.IncAdd(pos.Symbol)

	log.Printf("➕ Add #%d on %s | Fill: %.4f | Qty: %.8f | Next add: %.4f",
		pos.Adds+1, pos.Symbol, fill, filled, nextAddPrice(pos.Side, fill))

	if e.onAdd != nil {
		if p, ok := e.ledger.Position(pos.Coin); ok {
			e.onAdd(p)
		}
	}
	return nil
}

func addTriggered(side models.Side, price, trigger float64) bool {
	if side == models.SideLong {
		return price >= trigger
	}
	return price <= trigger
}
