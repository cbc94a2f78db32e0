package exchange

import (
	"context"
	"time"
)

// Order sides as the exchange understands them
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// MarginTypeCrossed is the only margin mode this bot runs with
const MarginTypeCrossed = "CROSSED"

// Kline is one OHLC candle, oldest-first in every slice this package returns
type Kline struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// SymbolFilters carries the rounding granularity of one instrument
type SymbolFilters struct {
	StepSize float64 // quantity granularity (LOT_SIZE)
	MinQty   float64 // minimum order quantity (LOT_SIZE)
	TickSize float64 // price granularity (PRICE_FILTER)
}

// ExchangeClient is the full surface the position engine needs from the
// exchange. FuturesClient talks to Binance USDT-M futures; EmulatorClient
// wraps it for paper trading.
type ExchangeClient interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	// GetPositionQty returns the signed position amount:
	// positive = long, negative = short, zero = flat.
	GetPositionQty(ctx context.Context, symbol string) (float64, error)
	GetWalletBalance(ctx context.Context) (float64, error)
	GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]Kline, error)

	// PlaceMarketOrder returns the fill price and filled quantity
	PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) (float64, float64, error)
	PlaceReduceOnlyMarketOrder(ctx context.Context, symbol, side string, quantity float64) error
	PlaceReduceOnlyLimitOrder(ctx context.Context, symbol, side string, quantity, price float64) error
	// PlaceStopMarketClose places a STOP_MARKET order with closePosition
	// semantics: it closes whatever quantity the position holds when it fires.
	PlaceStopMarketClose(ctx context.Context, symbol, side string, stopPrice float64) error
	CancelAllOpenOrders(ctx context.Context, symbol string) error

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginType(ctx context.Context, symbol string, marginType string) error
}
