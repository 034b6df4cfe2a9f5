package binance

import (
	"context"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
	"strings"
	"sync"
)

type Config struct {
	Label   string
	Key     string
	Secret  string
	Testnet bool
}

// venue error codes treated specially
const (
	codeUnknownOrder      = -2011
	codeOrderNotExist     = -2013
	codeNoNeedChangeMode  = -4059
	codeNoNeedChangeLever = -4028
)

// Client is an exchange.Client for Binance USDⓈ-M futures.
type Client struct {
	Config Config
	api    *futures.Client

	lock    sync.RWMutex
	filters map[string]exchange.SymbolFilters
}

func NewClient(config Config) *Client {
	if config.Testnet {
		futures.UseTestnet = true
	}
	return &Client{
		Config:  config,
		api:     futures.NewClient(config.Key, config.Secret),
		filters: make(map[string]exchange.SymbolFilters),
	}
}

func (c *Client) ExchangeName() string {
	return exchange.Binance
}

func (c *Client) Filters(ctx context.Context, symbol string) (exchange.SymbolFilters, error) {
	c.lock.RLock()
	f, ok := c.filters[symbol]
	c.lock.RUnlock()
	if ok {
		return f, nil
	}
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return f, wrap(err, "exchange info")
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, s := range info.Symbols {
		c.filters[s.Symbol] = parseFilters(s.Symbol, s.Filters)
	}
	f, ok = c.filters[symbol]
	if !ok {
		return f, errors.Errorf("symbol %s not listed", symbol)
	}
	return f, nil
}

func (c *Client) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	res, err := c.api.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, wrap(err, "premium index")
	}
	for _, p := range res {
		if p.Symbol == symbol {
			return toDecimal(p.MarkPrice), nil
		}
	}
	return decimal.Zero, errors.Errorf("no mark price for %s", symbol)
}

func (c *Client) BookTicker(ctx context.Context, symbol string) (exchange.BookTicker, error) {
	res, err := c.api.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return exchange.BookTicker{}, wrap(err, "book ticker")
	}
	for _, t := range res {
		if t.Symbol == symbol {
			return exchange.BookTicker{
				Symbol: symbol,
				Bid:    toDecimal(t.BidPrice),
				Ask:    toDecimal(t.AskPrice),
			}, nil
		}
	}
	return exchange.BookTicker{}, errors.Errorf("no book ticker for %s", symbol)
}

func (c *Client) AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	res, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, wrap(err, "account")
	}
	for _, a := range res.Assets {
		if strings.EqualFold(a.Asset, asset) {
			return toDecimal(a.AvailableBalance), nil
		}
	}
	return decimal.Zero, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	s := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type))
	if req.TimeInForce != "" {
		s = s.TimeInForce(futures.TimeInForceType(req.TimeInForce))
	}
	if req.Quantity.IsPositive() {
		s = s.Quantity(req.Quantity.String())
	}
	if req.Price.IsPositive() {
		s = s.Price(req.Price.String())
	}
	if req.StopPrice.IsPositive() {
		s = s.StopPrice(req.StopPrice.String()).WorkingType(futures.WorkingTypeMarkPrice)
	}
	if req.ClosePosition {
		s = s.ClosePosition(true)
	} else if req.ReduceOnly {
		s = s.ReduceOnly(true)
	}
	if req.ClientOrderId != "" {
		s = s.NewClientOrderID(req.ClientOrderId)
	}
	res, err := s.Do(ctx)
	if err != nil {
		return exchange.Order{}, wrap(err, "create order")
	}
	return exchange.Order{
		Symbol:        res.Symbol,
		OrderId:       res.OrderID,
		ClientOrderId: res.ClientOrderID,
		Side:          exchange.OrderSide(res.Side),
		Type:          exchange.OrderType(res.Type),
		TimeInForce:   exchange.TimeInForce(res.TimeInForce),
		Status:        exchange.OrderStatus(res.Status),
		Price:         toDecimal(res.Price),
		StopPrice:     toDecimal(res.StopPrice),
		OrigQty:       toDecimal(res.OrigQuantity),
		ExecutedQty:   toDecimal(res.ExecutedQuantity),
		AvgPrice:      toDecimal(res.AvgPrice),
		ReduceOnly:    res.ReduceOnly,
		ClosePosition: res.ClosePosition,
		UpdateTime:    res.UpdateTime,
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderId int64) error {
	_, err := c.api.NewCancelOrderService().Symbol(symbol).OrderID(orderId).Do(ctx)
	return wrap(err, "cancel order")
}

func (c *Client) GetOrder(ctx context.Context, symbol string, orderId int64) (exchange.Order, error) {
	o, err := c.api.NewGetOrderService().Symbol(symbol).OrderID(orderId).Do(ctx)
	if err != nil {
		return exchange.Order{}, wrap(err, "get order")
	}
	return convertOrder(o), nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	s := c.api.NewListOpenOrdersService()
	if symbol != "" {
		s = s.Symbol(symbol)
	}
	res, err := s.Do(ctx)
	if err != nil {
		return nil, wrap(err, "open orders")
	}
	orders := make([]exchange.Order, 0, len(res))
	for _, o := range res {
		orders = append(orders, convertOrder(o))
	}
	return orders, nil
}

// ReplaceOrder reprices a resting limit order in place (order modify), so the book never loses it.
func (c *Client) ReplaceOrder(ctx context.Context, symbol string, orderId int64, side exchange.OrderSide, qty, price decimal.Decimal) (exchange.Order, error) {
	o, err := c.api.NewModifyOrderService().
		Symbol(symbol).
		OrderID(orderId).
		Side(futures.SideType(side)).
		Quantity(qty.String()).
		Price(price.String()).
		Do(ctx)
	if err != nil {
		return exchange.Order{}, wrap(err, "modify order")
	}
	return convertOrder(&futures.Order{
		Symbol:           o.Symbol,
		OrderID:          o.OrderID,
		ClientOrderID:    o.ClientOrderID,
		Side:             o.Side,
		Type:             o.Type,
		TimeInForce:      o.TimeInForce,
		Status:           o.Status,
		Price:            o.Price,
		StopPrice:        o.StopPrice,
		OrigQuantity:     o.OriginalQuantity,
		ExecutedQuantity: o.ExecutedQuantity,
		AvgPrice:         o.AveragePrice,
		ReduceOnly:       o.ReduceOnly,
		ClosePosition:    o.ClosePosition,
		UpdateTime:       o.UpdateTime,
	}), nil
}

func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	res, err := c.api.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, wrap(err, "klines")
	}
	candles := make([]exchange.Candle, 0, len(res))
	for _, k := range res {
		candles = append(candles, exchange.Candle{
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Open:      toDecimal(k.Open),
			High:      toDecimal(k.High),
			Low:       toDecimal(k.Low),
			Close:     toDecimal(k.Close),
			Volume:    toDecimal(k.Volume),
		})
	}
	return candles, nil
}

func (c *Client) PositionAmount(ctx context.Context, symbol string) (decimal.Decimal, error) {
	res, err := c.api.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, wrap(err, "position risk")
	}
	amount := decimal.Zero
	for _, p := range res {
		if p.Symbol == symbol {
			amount = amount.Add(toDecimal(p.PositionAmt))
		}
	}
	return amount, nil
}

// Trades returns the fills of one order. The venue has no per-order filter, so recent fills are scanned.
func (c *Client) Trades(ctx context.Context, symbol string, orderId int64) ([]exchange.Trade, error) {
	res, err := c.api.NewListAccountTradeService().Symbol(symbol).Limit(1000).Do(ctx)
	if err != nil {
		return nil, wrap(err, "account trades")
	}
	var trades []exchange.Trade
	for _, t := range res {
		if t.OrderID != orderId {
			continue
		}
		trades = append(trades, exchange.Trade{
			OrderId:         t.OrderID,
			Price:           toDecimal(t.Price),
			Qty:             toDecimal(t.Quantity),
			Commission:      toDecimal(t.Commission),
			CommissionAsset: t.CommissionAsset,
			RealizedPnl:     toDecimal(t.RealizedPnl),
			Time:            t.Time,
		})
	}
	return trades, nil
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.api.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if isCode(err, codeNoNeedChangeLever) {
		return nil
	}
	return wrap(err, "change leverage")
}

func (c *Client) SetOneWayMode(ctx context.Context) error {
	err := c.api.NewChangePositionModeService().DualSide(false).Do(ctx)
	if isCode(err, codeNoNeedChangeMode) {
		return nil
	}
	return wrap(err, "change position mode")
}

func convertOrder(o *futures.Order) exchange.Order {
	return exchange.Order{
		Symbol:        o.Symbol,
		OrderId:       o.OrderID,
		ClientOrderId: o.ClientOrderID,
		Side:          exchange.OrderSide(o.Side),
		Type:          exchange.OrderType(o.Type),
		TimeInForce:   exchange.TimeInForce(o.TimeInForce),
		Status:        exchange.OrderStatus(o.Status),
		Price:         toDecimal(o.Price),
		StopPrice:     toDecimal(o.StopPrice),
		OrigQty:       toDecimal(o.OrigQuantity),
		ExecutedQty:   toDecimal(o.ExecutedQuantity),
		AvgPrice:      toDecimal(o.AvgPrice),
		ReduceOnly:    o.ReduceOnly,
		ClosePosition: o.ClosePosition,
		UpdateTime:    o.UpdateTime,
	}
}

// parseFilters reads PRICE_FILTER, LOT_SIZE and MIN_NOTIONAL out of the raw filter list.
func parseFilters(symbol string, raw []map[string]interface{}) exchange.SymbolFilters {
	f := exchange.SymbolFilters{Symbol: symbol}
	for _, m := range raw {
		switch m["filterType"] {
		case "PRICE_FILTER":
			f.TickSize = field(m, "tickSize")
		case "LOT_SIZE":
			f.StepSize = field(m, "stepSize")
			f.MinQty = field(m, "minQty")
		case "MIN_NOTIONAL":
			f.MinNotional = field(m, "notional")
			if f.MinNotional.IsZero() {
				f.MinNotional = field(m, "minNotional")
			}
		}
	}
	return f
}

func field(m map[string]interface{}, key string) decimal.Decimal {
	s, ok := m[key].(string)
	if !ok {
		return decimal.Zero
	}
	return toDecimal(s)
}

func toDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// wrap converts venue errors into exchange error types.
func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == codeUnknownOrder || apiErr.Code == codeOrderNotExist {
			return errors.Wrapf(exchange.ErrOrderNotFound, "%s: %s", op, apiErr.Message)
		}
		return errors.Wrap(&exchange.APIError{Code: apiErr.Code, Message: apiErr.Message}, op)
	}
	return errors.Wrap(err, op)
}

func isCode(err error, code int64) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
