package models

import (
	"errors"
	"fmt"
	"time"
)

// Side of a position
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ParseSide validates a user-supplied side string
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideLong:
		return SideLong, nil
	case SideShort:
		return SideShort, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// Opposite returns the side that closes this one
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Command precondition errors, surfaced to the caller as structured results.
var (
	ErrInvalidSide   = errors.New("invalid side")
	ErrPositionOpen  = errors.New("position already open")
	ErrNoPosition    = errors.New("no position")
	ErrInvalidPrice  = errors.New("invalid price")
	ErrUnknownCoin   = errors.New("unknown instrument")
	ErrUnknownToggle = errors.New("unknown exit condition")
)

// Instrument maps a short coin code to its exchange symbol.
// The set is static for the process lifetime.
type Instrument struct {
	Coin   string
	Symbol string
}

var Instruments = []Instrument{
	{Coin: "BTC", Symbol: "BTCUSDT"},
	{Coin: "ETH", Symbol: "ETHUSDT"},
}

// SymbolFor resolves a coin code to its exchange symbol
func SymbolFor(coin string) (string, bool) {
	for _, ins := range Instruments {
		if ins.Coin == coin {
			return ins.Symbol, true
		}
	}
	return "", false
}

// Position is the per-coin averaging/trailing record. At most one exists per
// instrument. EntryPrice tracks the most recent fill, not a weighted average:
// the trailing stop and the add trigger both anchor on the last fill, so
// nothing downstream reads an averaged entry.
type Position struct {
	Coin          string    `json:"coin"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	EntryPrice    float64   `json:"entry_price"`
	BaseOrderSize float64   `json:"base_order_size"` // USDT notional per order, fixed for the round
	LastAddPrice  float64   `json:"last_add_price"`
	NextAddPrice  float64   `json:"next_add_price"` // threshold for the next 0.25% add
	Adds          int       `json:"adds"`
	OpenTime      time.Time `json:"open_time"`
}

// OpenResult is returned by the open command
type OpenResult struct {
	Coin          string  `json:"coin"`
	Side          Side    `json:"side"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"qty"`
	BaseOrderSize float64 `json:"base_usdt"`
}
