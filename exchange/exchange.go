package exchange

import (
	"context"
	"github.com/shopspring/decimal"
)

// Client is the futures venue as seen by the executor.
// Implementations adapt the venue's API quirks behind this contract.
type Client interface {
	ExchangeName() string

	Filters(ctx context.Context, symbol string) (SymbolFilters, error)
	MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	BookTicker(ctx context.Context, symbol string) (BookTicker, error)
	AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, symbol string, orderId int64) error
	GetOrder(ctx context.Context, symbol string, orderId int64) (Order, error)
	// OpenOrders lists working orders, for all symbols when symbol is empty.
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)

	// Candles returns the latest candles, oldest first. The last one may still be open.
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// PositionAmount is signed, positive for long.
	PositionAmount(ctx context.Context, symbol string) (decimal.Decimal, error)
	Trades(ctx context.Context, symbol string, orderId int64) ([]Trade, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetOneWayMode(ctx context.Context) error
}

// Replacer is implemented by clients that can reprice a resting limit order in place,
// without a window where no order is working. qty is the new total order quantity,
// executed part included.
type Replacer interface {
	ReplaceOrder(ctx context.Context, symbol string, orderId int64, side OrderSide, qty, price decimal.Decimal) (Order, error)
}
