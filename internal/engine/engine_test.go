package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"futures_control/internal/exchange"
	"futures_control/internal/models"
)

type stubOrder struct {
	symbol string
	side   string
	qty    float64
	price  float64
}

// stubExchange fakes the exchange surface with just enough bookkeeping to
// observe what the engine sent. Market fills land at the configured price
// and move the signed position; reduce-only market orders flatten it.
type stubExchange struct {
	mu sync.Mutex

	price        map[string]float64
	balance      float64
	balanceCalls int
	qty          map[string]float64
	filters      exchange.SymbolFilters
	klines       map[string][]exchange.Kline

	marketOrders []stubOrder
	reduceMarket []stubOrder
	reduceLimit  []stubOrder
	stops        []stubOrder
	cancels      int
}

func newStub() *stubExchange {
	return &stubExchange{
		price:   map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 4000},
		balance: 10000,
		qty:     map[string]float64{},
		filters: exchange.SymbolFilters{StepSize: 0.001, MinQty: 0.001, TickSize: 0.01},
		klines:  map[string][]exchange.Kline{},
	}
}

func (s *stubExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.price[symbol], nil
}

func (s *stubExchange) GetPositionQty(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qty[symbol], nil
}

func (s *stubExchange) GetWalletBalance(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balanceCalls++
	return s.balance, nil
}

func (s *stubExchange) GetSymbolFilters(ctx context.Context, symbol string) (exchange.SymbolFilters, error) {
	return s.filters, nil
}

func (s *stubExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.klines[interval], nil
}

func (s *stubExchange) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fill := s.price[symbol]
	if side == exchange.SideBuy {
		s.qty[symbol] += quantity
	} else {
		s.qty[symbol] -= quantity
	}
	s.marketOrders = append(s.marketOrders, stubOrder{symbol: symbol, side: side, qty: quantity, price: fill})
	return fill, quantity, nil
}

func (s *stubExchange) PlaceReduceOnlyMarketOrder(ctx context.Context, symbol, side string, quantity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qty[symbol] = 0
	s.reduceMarket = append(s.reduceMarket, stubOrder{symbol: symbol, side: side, qty: quantity})
	return nil
}

func (s *stubExchange) PlaceReduceOnlyLimitOrder(ctx context.Context, symbol, side string, quantity, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reduceLimit = append(s.reduceLimit, stubOrder{symbol: symbol, side: side, qty: quantity, price: price})
	return nil
}

func (s *stubExchange) PlaceStopMarketClose(ctx context.Context, symbol, side string, stopPrice float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, stubOrder{symbol: symbol, side: side, price: stopPrice})
	return nil
}

func (s *stubExchange) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	return nil
}

func (s *stubExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (s *stubExchange) SetMarginType(ctx context.Context, symbol string, marginType string) error {
	return nil
}

func (s *stubExchange) setPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price[symbol] = price
}

func (s *stubExchange) setBalance(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
}

func (s *stubExchange) setKlines(interval string, candles []exchange.Kline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.klines[interval] = candles
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestOpenComputesQuantityAndStop(t *testing.T) {
	stub := newStub()
	e := NewEngine(stub)
	ctx := context.Background()

	result, err := e.Open(ctx, "BTC", models.SideLong)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// 8% of 10000 is 800 USDT; at 50000 that is 0.016 BTC on a 0.001 step.
	if result.BaseOrderSize != 800 {
		t.Fatalf("expected base order size 800, got %v", result.BaseOrderSize)
	}
	if !closeTo(result.Quantity, 0.016) {
		t.Fatalf("expected quantity 0.016, got %v", result.Quantity)
	}

	if len(stub.marketOrders) != 1 || stub.marketOrders[0].side != exchange.SideBuy {
		t.Fatalf("expected one BUY market order, got %+v", stub.marketOrders)
	}
	if stub.cancels != 1 {
		t.Fatalf("expected a cancel before the protective stop, got %d", stub.cancels)
	}
	if len(stub.stops) != 1 || stub.stops[0].side != exchange.SideSell {
		t.Fatalf("expected one SELL protective stop, got %+v", stub.stops)
	}
	if !closeTo(stub.stops[0].price, 50000*0.995) {
		t.Fatalf("expected stop at 49750, got %v", stub.stops[0].price)
	}

	pos, ok := e.ledger.Position("BTC")
	if !ok {
		t.Fatal("position not tracked after open")
	}
	if !closeTo(pos.NextAddPrice, 50000*1.0025) {
		t.Fatalf("expected next add at 50125, got %v", pos.NextAddPrice)
	}
}

func TestOpenFixesRoundSizeForBothCoins(t *testing.T) {
	stub := newStub()
	e := NewEngine(stub)
	ctx := context.Background()

	if _, err := e.Open(ctx, "BTC", models.SideLong); err != nil {
		t.Fatalf("open BTC failed: %v", err)
	}

	// Wallet changes must not move the base size within a round.
	stub.setBalance(2000)

	result, err := e.Open(ctx, "ETH", models.SideShort)
	if err != nil {
		t.Fatalf("open ETH failed: %v", err)
	}
	if result.BaseOrderSize != 800 {
		t.Fatalf("second open must reuse the round size 800, got %v", result.BaseOrderSize)
	}
	if stub.balanceCalls != 1 {
		t.Fatalf("wallet must be read once per round, got %d reads", stub.balanceCalls)
	}

	pos, _ := e.ledger.Position("ETH")
	if !closeTo(pos.NextAddPrice, 4000*0.9975) {
		t.Fatalf("short add trigger must sit below entry, got %v", pos.NextAddPrice)
	}
}

func TestOpenRejectsLivePosition(t *testing.T) {
	stub := newStub()
	stub.qty["BTCUSDT"] = 0.5
	e := NewEngine(stub)

	_, err := e.Open(context.Background(), "BTC", models.SideLong)
	if !errors.Is(err, models.ErrPositionOpen) {
		t.Fatalf("expected ErrPositionOpen, got %v", err)
	}
	if len(stub.marketOrders) != 0 {
		t.Fatalf("no order may be sent for a rejected open, got %+v", stub.marketOrders)
	}
}

func TestOpenUnknownCoin(t *testing.T) {
	e := NewEngine(newStub())
	_, err := e.Open(context.Background(), "DOGE", models.SideLong)
	if !errors.Is(err, models.ErrUnknownCoin) {
		t.Fatalf("expected ErrUnknownCoin, got %v", err)
	}
}

func TestCloseMarketWhenFlat(t *testing.T) {
	stub := newStub()
	e := NewEngine(stub)

	err := e.CloseMarket(context.Background(), "BTC")
	if !errors.Is(err, models.ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
	if len(stub.reduceMarket) != 0 {
		t.Fatalf("no order may be sent when flat, got %+v", stub.reduceMarket)
	}
}

func TestCloseMarketResetsRound(t *testing.T) {
	stub := newStub()
	e := NewEngine(stub)
	ctx := context.Background()

	if _, err := e.Open(ctx, "BTC", models.SideLong); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := e.CloseMarket(ctx, "BTC"); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if len(stub.reduceMarket) != 1 || stub.reduceMarket[0].side != exchange.SideSell {
		t.Fatalf("expected one SELL reduce-only close, got %+v", stub.reduceMarket)
	}
	if !closeTo(stub.reduceMarket[0].qty, 0.016) {
		t.Fatalf("close must cover the full quantity, got %v", stub.reduceMarket[0].qty)
	}

	if e.State().RoundSize != 0 {
		t.Fatal("round size must reset once both coins are flat")
	}

	// The next tick drops the stale ledger entry.
	if err := e.manageCoin(ctx, "BTC"); err != nil {
		t.Fatalf("manage tick failed: %v", err)
	}
	if _, ok := e.ledger.Position("BTC"); ok {
		t.Fatal("flat-on-exchange position must be dropped by the loop")
	}

	// A fresh round prices off the new wallet.
	stub.setBalance(5000)
	result, err := e.Open(ctx, "BTC", models.SideLong)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if result.BaseOrderSize != 400 {
		t.Fatalf("new round must recompute the base size, got %v", result.BaseOrderSize)
	}
}

func TestCloseMarketKeepsRoundWhileOtherCoinLive(t *testing.T) {
	stub := newStub()
	e := NewEngine(stub)
	ctx := context.Background()

	if _, err := e.Open(ctx, "BTC", models.SideLong); err != nil {
		t.Fatalf("open BTC failed: %v", err)
	}
	if _, err := e.Open(ctx, "ETH", models.SideLong); err != nil {
		t.Fatalf("open ETH failed: %v", err)
	}

	if err := e.CloseMarket(ctx, "BTC"); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if e.State().RoundSize != 800 {
		t.Fatalf("round size must survive while ETH is live, got %v", e.State().RoundSize)
	}
}

func TestManageCoinAddStep(t *testing.T) {
	stub := newStub()
	stub.price["BTCUSDT"] = 100
	e := NewEngine(stub)
	ctx := context.Background()

	if _, err := e.Open(ctx, "BTC", models.SideLong); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Below the +0.25% trigger: nothing happens.
	stub.setPrice("BTCUSDT", 100.2)
	if err := e.manageCoin(ctx, "BTC"); err != nil {
		t.Fatalf("manage tick failed: %v", err)
	}
	if len(stub.marketOrders) != 1 {
		t.Fatalf("no add below the trigger, got %d market orders", len(stub.marketOrders))
	}

	// Through the trigger: one more base-size order, stop re-anchored.
	stub.setPrice("BTCUSDT", 100.3)
	if err := e.manageCoin(ctx, "BTC"); err != nil {
		t.Fatalf("manage tick failed: %v", err)
	}
	if len(stub.marketOrders) != 2 {
		t.Fatalf("expected the add to fire, got %d market orders", len(stub.marketOrders))
	}
	if len(stub.stops) != 2 || stub.cancels != 2 {
		t.Fatalf("add must replace the protective stop, got %d stops %d cancels", len(stub.stops), stub.cancels)
	}
	if !closeTo(stub.stops[1].price, 100.3*0.995) {
		t.Fatalf("stop must anchor on the add fill, got %v", stub.stops[1].price)
	}

	pos, _ := e.ledger.Position("BTC")
	if pos.Adds != 1 {
		t.Fatalf("expected 1 add, got %d", pos.Adds)
	}
	if !closeTo(pos.LastAddPrice, 100.3) {
		t.Fatalf("last add price must be the fill, got %v", pos.LastAddPrice)
	}
	if !closeTo(pos.NextAddPrice, 100.3*1.0025) {
		t.Fatalf("next trigger must advance past the fill, got %v", pos.NextAddPrice)
	}
}

func TestManageCoinShortAddDirection(t *testing.T) {
	stub := newStub()
	stub.price["BTCUSDT"] = 100
	e := NewEngine(stub)
	ctx := context.Background()

	if _, err := e.Open(ctx, "BTC", models.SideShort); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Price rising is against a short: no add.
	stub.setPrice("BTCUSDT", 100.5)
	if err := e.manageCoin(ctx, "BTC"); err != nil {
		t.Fatalf("manage tick failed: %v", err)
	}
	if len(stub.marketOrders) != 1 {
		t.Fatal("short must not add on a rising price")
	}

	stub.setPrice("BTCUSDT", 99.7)
	if err := e.manageCoin(ctx, "BTC"); err != nil {
		t.Fatalf("manage tick failed: %v", err)
	}
	if len(stub.marketOrders) != 2 {
		t.Fatal("short add must fire below the trigger")
	}
	if stub.marketOrders[1].side != exchange.SideSell {
		t.Fatalf("short add must SELL, got %s", stub.marketOrders[1].side)
	}
	if len(stub.stops) != 2 || !closeTo(stub.stops[1].price, 99.7*1.005) {
		t.Fatalf("short stop must sit above the fill, got %+v", stub.stops)
	}
}

func TestManageCoinExitTriggerCloses(t *testing.T) {
	stub := newStub()
	stub.price["BTCUSDT"] = 100
	e := NewEngine(stub)
	ctx := context.Background()

	if _, err := e.Open(ctx, "BTC", models.SideShort); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := e.ToggleExit("BTC", models.TF1, models.ExitCE); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}

	// Short squeeze: flat at 100 with a final 1m candle at 120.
	spike := make([]exchange.Kline, 120)
	flat := make([]exchange.Kline, 120)
	for i := range spike {
		spike[i] = exchange.Kline{Open: 100, High: 100, Low: 100, Close: 100}
		flat[i] = spike[i]
	}
	spike[119] = exchange.Kline{Open: 100, High: 120, Low: 120, Close: 120}
	stub.setKlines("1m", spike)
	stub.setKlines("3m", flat)
	stub.setPrice("BTCUSDT", 120)

	if err := e.manageCoin(ctx, "BTC"); err != nil {
		t.Fatalf("manage tick failed: %v", err)
	}

	if len(stub.reduceMarket) != 1 || stub.reduceMarket[0].side != exchange.SideBuy {
		t.Fatalf("short must be bought back on the exit trigger, got %+v", stub.reduceMarket)
	}
	if _, ok := e.ledger.Position("BTC"); ok {
		t.Fatal("closed position must leave the ledger")
	}
	if e.State().RoundSize != 0 {
		t.Fatal("last position closing must reset the round")
	}
}

func TestCloseLimitFloorsToTick(t *testing.T) {
	stub := newStub()
	e := NewEngine(stub)
	ctx := context.Background()

	if _, err := e.Open(ctx, "BTC", models.SideLong); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := e.CloseLimit(ctx, "BTC", 49753.456); err != nil {
		t.Fatalf("close limit failed: %v", err)
	}
	if len(stub.reduceLimit) != 1 {
		t.Fatalf("expected one limit order, got %d", len(stub.reduceLimit))
	}
	got := stub.reduceLimit[0]
	if got.side != exchange.SideSell || !closeTo(got.qty, 0.016) {
		t.Fatalf("limit close must SELL the full size, got %+v", got)
	}
	if !closeTo(got.price, 49753.45) {
		t.Fatalf("price must floor to the tick, got %v", got.price)
	}
}

func TestCloseLimitRejectsBadPrice(t *testing.T) {
	stub := newStub()
	stub.qty["BTCUSDT"] = 1
	e := NewEngine(stub)
	ctx := context.Background()

	for _, px := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		if err := e.CloseLimit(ctx, "BTC", px); !errors.Is(err, models.ErrInvalidPrice) {
			t.Fatalf("price %v: expected ErrInvalidPrice, got %v", px, err)
		}
	}
	if len(stub.reduceLimit) != 0 {
		t.Fatalf("no order may be sent for a rejected price, got %+v", stub.reduceLimit)
	}
}

func TestCloseLimitWhenFlat(t *testing.T) {
	e := NewEngine(newStub())
	err := e.CloseLimit(context.Background(), "BTC", 100)
	if !errors.Is(err, models.ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
}
