package exchange

import "github.com/shopspring/decimal"

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

type OrderType string

const (
	TypeMarket           OrderType = "MARKET"
	TypeLimit            OrderType = "LIMIT"
	TypeStop             OrderType = "STOP"
	TypeStopMarket       OrderType = "STOP_MARKET"
	TypeTakeProfit       OrderType = "TAKE_PROFIT"
	TypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	GTX TimeInForce = "GTX" // post only
)

type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// SymbolFilters are the per-instrument trading constraints.
type SymbolFilters struct {
	Symbol      string
	TickSize    decimal.Decimal // price increment
	StepSize    decimal.Decimal // quantity increment
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}

type BookTicker struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
}

type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	TimeInForce   TimeInForce
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	StopPrice     decimal.Decimal
	ReduceOnly    bool
	ClosePosition bool
	ClientOrderId string
}

type Order struct {
	Symbol        string
	OrderId       int64
	ClientOrderId string
	Side          OrderSide
	Type          OrderType
	TimeInForce   TimeInForce
	Status        OrderStatus

	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	OrigQty     decimal.Decimal
	ExecutedQty decimal.Decimal
	AvgPrice    decimal.Decimal

	ReduceOnly    bool
	ClosePosition bool
	UpdateTime    int64 // ms
}

// IsExit reports whether the order protects or closes a position rather than opening one.
func (o Order) IsExit() bool {
	switch o.Type {
	case TypeStop, TypeStopMarket, TypeTakeProfit, TypeTakeProfitMarket:
		return true
	}
	return o.ReduceOnly || o.ClosePosition
}

// Working reports whether the order can still trade.
func (o Order) Working() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyFilled
}

func (o Order) Filled() bool {
	return o.Status == StatusFilled
}

// IsTakeProfit matches the orders treated as take-profit when a bracket is rebuilt from open orders.
func (o Order) IsTakeProfit() bool {
	return (o.Type == TypeLimit && o.ReduceOnly) || o.Type == TypeTakeProfit || o.Type == TypeTakeProfitMarket
}

// IsStopLoss matches the orders treated as stop-loss when a bracket is rebuilt from open orders.
func (o Order) IsStopLoss() bool {
	return (o.Type == TypeStop || o.Type == TypeStopMarket) && (o.ClosePosition || o.ReduceOnly)
}

// SplitOrders separates open orders into entries and exits.
func SplitOrders(orders []Order) (entries, exits []Order) {
	for _, o := range orders {
		if o.IsExit() {
			exits = append(exits, o)
		} else {
			entries = append(entries, o)
		}
	}
	return
}

type Candle struct {
	OpenTime  int64 // ms
	CloseTime int64 // ms
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Trade is one fill of an order.
type Trade struct {
	OrderId         int64
	Price           decimal.Decimal
	Qty             decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	RealizedPnl     decimal.Decimal
	Time            int64 // ms
}
