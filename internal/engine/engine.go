package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"futures_control/internal/exchange"
	"futures_control/internal/metrics"
	"futures_control/internal/models"
)

// Fixed playbook parameters. The whole strategy is these four numbers:
// open at 8% of the wallet, add every +0.25% move in favor, trail the stop
// 0.50% behind the newest fill, all at 5x cross margin.
const (
	leverage      = 5
	roundFraction = 0.08
	addStepPct    = 0.0025
	stopOffsetPct = 0.005

	loopInterval = 1500 * time.Millisecond

	fastInterval = "1m"
	slowInterval = "3m"
	klineLimit   = 120
)

// Engine is the position controller plus the auto-management loop. All
// mutable state lives in the Ledger; the engine itself only holds wiring.
type Engine struct {
	exchange exchange.ExchangeClient
	ledger   *Ledger

	loopMu      sync.Mutex
	loopStarted bool

	onOpen  func(models.Position, float64)
	onAdd   func(models.Position)
	onClose func(coin, reason string)
}

func NewEngine(ex exchange.ExchangeClient) *Engine {
	return &Engine{
		exchange: ex,
		ledger:   NewLedger(),
	}
}

// SetCallbacks wires the notification hooks (Telegram). Any of them may be
// nil when the bot runs headless.
func (e *Engine) SetCallbacks(
	onOpen func(models.Position, float64),
	onAdd func(models.Position),
	onClose func(coin, reason string),
) {
	e.onOpen = onOpen
	e.onAdd = onAdd
	e.onClose = onClose
}

// State returns the ledger snapshot the control panel renders
func (e *Engine) State() Snapshot {
	return e.ledger.Snapshot()
}

// ToggleExit flips one exit-condition toggle and returns its new state
func (e *Engine) ToggleExit(coin string, tf models.TimeFrame, condition string) (bool, error) {
	state, err := e.ledger.Toggle(coin, tf, condition)
	if err != nil {
		return false, err
	}
	log.Printf("⚙️ %s %s %s → %v", coin, tf, condition, state)
	return state, nil
}

// CacheLimitPrice remembers the last limit-close input for the panel
func (e *Engine) CacheLimitPrice(coin, raw string) {
	e.ledger.SetLimitPrice(coin, raw)
}

// Open starts a new position for the coin. The first open of a round fixes
// the base order size at 8% of the wallet for every order until both coins
// are flat again.
func (e *Engine) Open(ctx context.Context, coin string, side models.Side) (*models.OpenResult, error) {
	symbol, ok := models.SymbolFor(coin)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownCoin, coin)
	}

	qty, err := e.exchange.GetPositionQty(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if qty != 0 {
		return nil, fmt.Errorf("%w for %s", models.ErrPositionOpen, coin)
	}

	// Best-effort account setup; stale settings are acceptable.
	if err := e.exchange.SetMarginType(ctx, symbol, exchange.MarginTypeCrossed); err != nil {
		log.Printf("⚠️ %s: set cross margin failed: %v", symbol, err)
	}
	if err := e.exchange.SetLeverage(ctx, symbol, leverage); err != nil {
		log.Printf("⚠️ %s: set leverage failed: %v", symbol, err)
	}

	baseSize, err := e.roundOrderSize(ctx)
	if err != nil {
		return nil, err
	}

	fill, filled, err := e.marketOrderByNotional(ctx, symbol, orderSide(side), baseSize)
	if err != nil {
		return nil, err
	}

	e.placeProtectiveStop(ctx, symbol, side, fill)

	pos := models.Position{
		Coin:          coin,
		Symbol:        symbol,
		Side:          side,
		EntryPrice:    fill,
		BaseOrderSize: baseSize,
		LastAddPrice:  fill,
		NextAddPrice:  nextAddPrice(side, fill),
		OpenTime:      time.Now(),
	}
	e.ledger.SetPosition(pos)
	e.ensureLoop()

	log.Printf("✅ Opened %s %s | Entry: %.4f | Qty: %.8f | Base: %.2f USDT | Next add: %.4f",
		side, symbol, fill, filled, baseSize, pos.NextAddPrice)

	if e.onOpen != nil {
		e.onOpen(pos, filled)
	}

	return &models.OpenResult{
		Coin:          coin,
		Side:          side,
		Price:         fill,
		Quantity:      filled,
		BaseOrderSize: baseSize,
	}, nil
}

// CloseMarket closes the coin's full live quantity with a reduce-only market
// order. The close side comes from the sign of the reported quantity, not
// from the ledger, so it also works on positions the ledger lost track of.
func (e *Engine) CloseMarket(ctx context.Context, coin string) error {
	symbol, ok := models.SymbolFor(coin)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownCoin, coin)
	}

	qty, err := e.exchange.GetPositionQty(ctx, symbol)
	if err != nil {
		return err
	}
	if qty == 0 {
		return fmt.Errorf("%w for %s", models.ErrNoPosition, coin)
	}

	if err := e.exchange.PlaceReduceOnlyMarketOrder(ctx, symbol, closeSideFor(qty), math.Abs(qty)); err != nil {
		return err
	}
	metrics.IncOrder(symbol, "reduce_market")
	log.Printf("🎯 Market-closed %s (qty %.8f)", symbol, math.Abs(qty))

	e.resetRoundIfFlat(ctx)
	if e.onClose != nil {
		e.onClose(coin, "manual market close")
	}
	return nil
}

// CloseLimit rests a reduce-only limit order for the full current size,
// price floored to the instrument's tick.
func (e *Engine) CloseLimit(ctx context.Context, coin string, price float64) error {
	symbol, ok := models.SymbolFor(coin)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownCoin, coin)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return models.ErrInvalidPrice
	}

	qty, err := e.exchange.GetPositionQty(ctx, symbol)
	if err != nil {
		return err
	}
	if qty == 0 {
		return fmt.Errorf("%w for %s", models.ErrNoPosition, coin)
	}

	f, err := e.exchange.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return err
	}
	px := exchange.FloorToTick(price, f.TickSize)

	if err := e.exchange.PlaceReduceOnlyLimitOrder(ctx, symbol, closeSideFor(qty), math.Abs(qty), px); err != nil {
		return err
	}
	metrics.IncOrder(symbol, "reduce_limit")
	log.Printf("📝 Limit close resting for %s: qty %.8f at %.4f", symbol, math.Abs(qty), px)
	return nil
}

// roundOrderSize reuses the round's fixed base order size, or computes it
// from the wallet (8%, rounded to cents) when this open starts a new round.
// The balance fetch happens outside the ledger lock; SetRoundSizeIfUnset
// resolves the race if two opens both found it unset.
func (e *Engine) roundOrderSize(ctx context.Context) (float64, error) {
	if size, ok := e.ledger.RoundSize(); ok {
		return size, nil
	}
	balance, err := e.exchange.GetWalletBalance(ctx)
	if err != nil {
		return 0, err
	}
	amount := math.Round(balance*roundFraction*100) / 100
	size := e.ledger.SetRoundSizeIfUnset(amount)
	log.Printf("💰 Round base order size: %.2f USDT (wallet %.2f)", size, balance)
	return size, nil
}

// marketOrderByNotional converts a USDT notional into a quantity at the
// current price, floored to the step size with the minimum-quantity floor
// applied, and fills it at market.
func (e *Engine) marketOrderByNotional(ctx context.Context, symbol, side string, notional float64) (float64, float64, error) {
	price, err := e.exchange.GetPrice(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}
	f, err := e.exchange.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}

	qty := exchange.FloorToStep(notional/price, f.StepSize)
	if qty < f.MinQty {
		qty = f.MinQty
	}

	fill, filled, err := e.exchange.PlaceMarketOrder(ctx, symbol, side, qty)
	if err != nil {
		return 0, 0, err
	}
	metrics.IncOrder(symbol, "market")
	return fill, filled, nil
}

// placeProtectiveStop replaces the protective stop: cancel everything open
// on the symbol, then rest a close-position STOP_MARKET 0.50% against the
// side, anchored on the given fill price. Best-effort: a failed replacement
// leaves the previous stop state in place until the next re-anchor.
func (e *Engine) placeProtectiveStop(ctx context.Context, symbol string, side models.Side, refPrice float64) {
	if err := e.exchange.CancelAllOpenOrders(ctx, symbol); err != nil {
		log.Printf("⚠️ %s: cancel open orders failed: %v", symbol, err)
	}

	stopPrice := refPrice * (1 - stopOffsetPct)
	stopSide := exchange.SideSell
	if side == models.SideShort {
		stopPrice = refPrice * (1 + stopOffsetPct)
		stopSide = exchange.SideBuy
	}

	if err := e.exchange.PlaceStopMarketClose(ctx, symbol, stopSide, stopPrice); err != nil {
		log.Printf("⚠️ %s: protective stop placement failed: %v", symbol, err)
		return
	}
	metrics.IncOrder(symbol, "stop_market")
	log.Printf("🛡️ %s: protective stop re-anchored to %.4f (ref %.4f)", symbol, stopPrice, refPrice)
}

// resetRoundIfFlat clears the round sizing when the exchange reports both
// instruments flat. Used after manual closes; the loop path clears the round
// through RemovePosition instead.
func (e *Engine) resetRoundIfFlat(ctx context.Context) {
	for _, ins := range models.Instruments {
		qty, err := e.exchange.GetPositionQty(ctx, ins.Symbol)
		if err != nil {
			log.Printf("⚠️ %s: flat check failed: %v", ins.Symbol, err)
			return
		}
		if qty != 0 {
			return
		}
	}
	e.ledger.ClearRoundSize()
	log.Printf("🔄 Both instruments flat, round sizing reset")
}

func nextAddPrice(side models.Side, fill float64) float64 {
	if side == models.SideLong {
		return fill * (1 + addStepPct)
	}
	return fill * (1 - addStepPct)
}

func orderSide(side models.Side) string {
	if side == models.SideLong {
		return exchange.SideBuy
	}
	return exchange.SideSell
}

// closeSideFor derives the closing order side from the signed quantity
func closeSideFor(qty float64) string {
	if qty > 0 {
		return exchange.SideSell
	}
	return exchange.SideBuy
}
