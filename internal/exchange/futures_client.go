package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
)

// FuturesClient - real Binance USDT-M Futures client
type FuturesClient struct {
	client *futures.Client

	mu      sync.Mutex
	filters map[string]SymbolFilters // exchangeInfo is static per session
}

func NewFuturesClient(apiKey, secretKey string, testnet bool) *FuturesClient {
	client := futures.NewClient(apiKey, secretKey)
	if testnet {
		futures.UseTestnet = true
	}
	return &FuturesClient{
		client:  client,
		filters: make(map[string]SymbolFilters),
	}
}

func (b *FuturesClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price data for %s", symbol)
	}
	return parseFloat(prices[0].Price), nil
}

func (b *FuturesClient) GetPositionQty(ctx context.Context, symbol string) (float64, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(risks) == 0 {
		return 0, nil
	}
	return parseFloat(risks[0].PositionAmt), nil
}

func (b *FuturesClient) GetWalletBalance(ctx context.Context) (float64, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, err
	}
	return parseFloat(account.TotalWalletBalance), nil
}

func (b *FuturesClient) GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error) {
	b.mu.Lock()
	if f, ok := b.filters[symbol]; ok {
		b.mu.Unlock()
		return f, nil
	}
	b.mu.Unlock()

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return SymbolFilters{}, err
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		lot := s.LotSizeFilter()
		price := s.PriceFilter()
		if lot == nil || price == nil {
			return SymbolFilters{}, fmt.Errorf("missing filters for %s", symbol)
		}
		f := SymbolFilters{
			StepSize: parseFloat(lot.StepSize),
			MinQty:   parseFloat(lot.MinQuantity),
			TickSize: parseFloat(price.TickSize),
		}
		b.mu.Lock()
		b.filters[symbol] = f
		b.mu.Unlock()
		return f, nil
	}
	return SymbolFilters{}, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

func (b *FuturesClient) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]Kline, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Kline, len(klines))
	for i, k := range klines {
		result[i] = Kline{
			OpenTime:  time.Unix(k.OpenTime/1000, 0),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			CloseTime: time.Unix(k.CloseTime/1000, 0),
		}
	}
	return result, nil
}

func (b *FuturesClient) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) (float64, float64, error) {
	f, err := b.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}

	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatAmount(quantity, f.StepSize)).
		NewClientOrderID(newOrderID()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return 0, 0, err
	}

	fill := parseFloat(res.AvgPrice)
	if fill <= 0 {
		// RESULT responses normally carry the average fill; fall back to the
		// ticker so the caller always gets a usable anchor price.
		fill, err = b.GetPrice(ctx, symbol)
		if err != nil {
			return 0, 0, err
		}
	}
	filled := parseFloat(res.ExecutedQuantity)
	if filled <= 0 {
		filled = quantity
	}
	return fill, filled, nil
}

func (b *FuturesClient) PlaceReduceOnlyMarketOrder(ctx context.Context, symbol, side string, quantity float64) error {
	f, err := b.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return err
	}

	_, err = b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatAmount(quantity, f.StepSize)).
		ReduceOnly(true).
		NewClientOrderID(newOrderID()).
		Do(ctx)
	return err
}

func (b *FuturesClient) PlaceReduceOnlyLimitOrder(ctx context.Context, symbol, side string, quantity, price float64) error {
	f, err := b.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return err
	}

	_, err = b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(formatAmount(quantity, f.StepSize)).
		Price(formatAmount(price, f.TickSize)).
		ReduceOnly(true).
		NewClientOrderID(newOrderID()).
		Do(ctx)
	return err
}

func (b *FuturesClient) PlaceStopMarketClose(ctx context.Context, symbol, side string, stopPrice float64) error {
	f, err := b.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return err
	}

	_, err = b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderType(futures.AlgoOrderTypeStopMarket)).
		StopPrice(formatAmount(stopPrice, f.TickSize)).
		ClosePosition(true).
		WorkingType(futures.WorkingTypeContractPrice).
		NewClientOrderID(newOrderID()).
		Do(ctx)
	return err
}

func (b *FuturesClient) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	return b.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
}

func (b *FuturesClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	return err
}

func (b *FuturesClient) SetMarginType(ctx context.Context, symbol string, marginType string) error {
	return b.client.NewChangeMarginTypeService().Symbol(symbol).MarginType(futures.MarginType(marginType)).Do(ctx)
}

func newOrderID() string {
	return "fc-" + uuid.NewString()
}

// Helper function
func parseFloat(s string) float64 {
	var f float64
	fmt.Sscanf(s, "%f", &f)
	return f
}
