package exchange

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
)

// EmulatorClient - paper trading client. Market data comes from the wrapped
// real client; balance, position quantity and resting orders are simulated
// in memory so the engine can be exercised without touching the account.
type EmulatorClient struct {
	baseAPI ExchangeClient

	mu        sync.RWMutex
	balance   float64
	positions map[string]float64 // signed qty per symbol
	stops     map[string]float64 // resting stop price per symbol
}

func NewEmulatorClient(initialBalance float64, api ExchangeClient) *EmulatorClient {
	return &EmulatorClient{
		baseAPI:   api,
		balance:   initialBalance,
		positions: make(map[string]float64),
		stops:     make(map[string]float64),
	}
}

func (e *EmulatorClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return e.baseAPI.GetPrice(ctx, symbol)
}

func (e *EmulatorClient) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]Kline, error) {
	return e.baseAPI.GetKlines(ctx, symbol, interval, limit)
}

func (e *EmulatorClient) GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error) {
	return e.baseAPI.GetSymbolFilters(ctx, symbol)
}

func (e *EmulatorClient) GetPositionQty(ctx context.Context, symbol string) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.positions[symbol], nil
}

func (e *EmulatorClient) GetWalletBalance(ctx context.Context) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balance, nil
}

func (e *EmulatorClient) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) (float64, float64, error) {
	price, err := e.baseAPI.GetPrice(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	signed := quantity
	if side == SideSell {
		signed = -quantity
	}
	e.positions[symbol] += signed

	log.Printf("✅ Emulator: %s %s qty %.8f at %.4f (position now %.8f)",
		side, symbol, quantity, price, e.positions[symbol])
	return price, quantity, nil
}

func (e *EmulatorClient) PlaceReduceOnlyMarketOrder(ctx context.Context, symbol, side string, quantity float64) error {
	price, err := e.baseAPI.GetPrice(ctx, symbol)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.positions[symbol]
	if cur == 0 {
		return fmt.Errorf("emulator: no position for %s", symbol)
	}

	// reduce-only: never flip through zero
	reduce := math.Min(quantity, math.Abs(cur))
	if cur > 0 {
		e.positions[symbol] = cur - reduce
	} else {
		e.positions[symbol] = cur + reduce
	}

	log.Printf("🎯 Emulator: reduce-only %s %s qty %.8f at %.4f (position now %.8f)",
		side, symbol, reduce, price, e.positions[symbol])
	return nil
}

func (e *EmulatorClient) PlaceReduceOnlyLimitOrder(ctx context.Context, symbol, side string, quantity, price float64) error {
	// Fill simulation for resting limits is out of scope; log and accept.
	log.Printf("📝 Emulator: resting limit %s %s qty %.8f at %.4f (not simulated)",
		side, symbol, quantity, price)
	return nil
}

func (e *EmulatorClient) PlaceStopMarketClose(ctx context.Context, symbol, side string, stopPrice float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops[symbol] = stopPrice
	log.Printf("🛡️ Emulator: protective stop %s %s at %.4f", side, symbol, stopPrice)
	return nil
}

func (e *EmulatorClient) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.stops, symbol)
	return nil
}

func (e *EmulatorClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (e *EmulatorClient) SetMarginType(ctx context.Context, symbol string, marginType string) error {
	return nil
}
