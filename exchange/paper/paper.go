// Package paper is an in-memory futures venue. It fills market orders against the configured book,
// rests limit orders until the book crosses them and triggers conditional orders on mark price.
package paper

import (
	"context"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/qbracket/exchange"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	takerFee = decimal.RequireFromString("0.0004")
	makerFee = decimal.RequireFromString("0.0002")
)

const (
	codePrecision        = -1111
	codeWouldImmediately = -2021
	codeReduceOnly       = -2022
	codeQtyTooSmall      = -4003
	codePostOnly         = -5022
)

type position struct {
	amount decimal.Decimal // signed
	entry  decimal.Decimal
}

// Exchange implements exchange.Client and exchange.Replacer.
type Exchange struct {
	// OnGetOrder runs before GetOrder reads the order, without the lock held.
	OnGetOrder func(ex *Exchange, o exchange.Order)

	lock      sync.Mutex
	nextId    int64
	filters   map[string]exchange.SymbolFilters
	books     map[string]exchange.BookTicker
	marks     map[string]decimal.Decimal
	balances  map[string]decimal.Decimal
	candles   map[string][]exchange.Candle
	positions map[string]*position
	orders    map[int64]*exchange.Order
	trades    map[int64][]exchange.Trade
	failures  map[string][]error
	calls     map[string]int
}

func New() *Exchange {
	return &Exchange{
		nextId:    1000,
		filters:   make(map[string]exchange.SymbolFilters),
		books:     make(map[string]exchange.BookTicker),
		marks:     make(map[string]decimal.Decimal),
		balances:  make(map[string]decimal.Decimal),
		candles:   make(map[string][]exchange.Candle),
		positions: make(map[string]*position),
		orders:    make(map[int64]*exchange.Order),
		trades:    make(map[int64][]exchange.Trade),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
	}
}

func (ex *Exchange) ExchangeName() string {
	return exchange.Paper
}

func (ex *Exchange) SetFilters(f exchange.SymbolFilters) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	ex.filters[f.Symbol] = f
}

func (ex *Exchange) SetBalance(asset string, amount decimal.Decimal) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	ex.balances[strings.ToUpper(asset)] = amount
}

// SetBook moves best bid/ask and fills resting limit orders the new book crosses.
func (ex *Exchange) SetBook(symbol string, bid, ask decimal.Decimal) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	ex.books[symbol] = exchange.BookTicker{Symbol: symbol, Bid: bid, Ask: ask}
	for _, o := range ex.sortedOrders(symbol) {
		if o.Type != exchange.TypeLimit || !o.Working() {
			continue
		}
		if (o.Side == exchange.Buy && o.Price.GreaterThanOrEqual(ask)) ||
			(o.Side == exchange.Sell && o.Price.LessThanOrEqual(bid)) {
			ex.fill(o, o.OrigQty.Sub(o.ExecutedQty), o.Price, makerFee)
		}
	}
}

// SetMark moves the mark price and triggers conditional orders.
func (ex *Exchange) SetMark(symbol string, mark decimal.Decimal) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	ex.marks[symbol] = mark
	for _, o := range ex.sortedOrders(symbol) {
		if !o.Working() || !triggered(*o, mark) {
			continue
		}
		pos := ex.position(symbol)
		qty := pos.amount.Abs()
		if !o.ClosePosition && o.OrigQty.LessThan(qty) {
			qty = o.OrigQty
		}
		if qty.IsZero() || !closes(o.Side, pos.amount) {
			o.Status = exchange.StatusExpired
			continue
		}
		ex.fill(o, qty, mark, takerFee)
	}
}

func (ex *Exchange) SetCandles(symbol, interval string, candles []exchange.Candle) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	ex.candles[symbol+"@"+interval] = candles
}

// SetPosition overrides the position, as if it was changed outside this process.
func (ex *Exchange) SetPosition(symbol string, amount, entry decimal.Decimal) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	ex.positions[symbol] = &position{amount: amount, entry: entry}
}

// Fill executes qty of a working limit order at its price.
func (ex *Exchange) Fill(orderId int64, qty decimal.Decimal) error {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	o, ok := ex.orders[orderId]
	if !ok || !o.Working() {
		return exchange.ErrOrderNotFound
	}
	remain := o.OrigQty.Sub(o.ExecutedQty)
	if qty.GreaterThan(remain) {
		qty = remain
	}
	ex.fill(o, qty, o.Price, makerFee)
	return nil
}

// FailNext makes the next call of op (e.g. "CancelOrder") return err.
func (ex *Exchange) FailNext(op string, err error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	ex.failures[op] = append(ex.failures[op], err)
}

// Calls returns how many times op was invoked.
func (ex *Exchange) Calls(op string) int {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	return ex.calls[op]
}

// Orders returns all orders of symbol ever placed, in placement order.
func (ex *Exchange) Orders(symbol string) []exchange.Order {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	var orders []exchange.Order
	for _, o := range ex.sortedOrders(symbol) {
		orders = append(orders, *o)
	}
	return orders
}

func (ex *Exchange) Filters(ctx context.Context, symbol string) (exchange.SymbolFilters, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("Filters"); err != nil {
		return exchange.SymbolFilters{}, err
	}
	f, ok := ex.filters[symbol]
	if !ok {
		return f, errors.Errorf("symbol %s not listed", symbol)
	}
	return f, nil
}

func (ex *Exchange) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("MarkPrice"); err != nil {
		return decimal.Zero, err
	}
	if m, ok := ex.marks[symbol]; ok {
		return m, nil
	}
	b, ok := ex.books[symbol]
	if !ok {
		return decimal.Zero, errors.Errorf("no mark price for %s", symbol)
	}
	return b.Bid.Add(b.Ask).Div(decimal.NewFromInt(2)), nil
}

func (ex *Exchange) BookTicker(ctx context.Context, symbol string) (exchange.BookTicker, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("BookTicker"); err != nil {
		return exchange.BookTicker{}, err
	}
	b, ok := ex.books[symbol]
	if !ok {
		return b, errors.Errorf("no book ticker for %s", symbol)
	}
	return b, nil
}

func (ex *Exchange) AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("AvailableBalance"); err != nil {
		return decimal.Zero, err
	}
	return ex.balances[strings.ToUpper(asset)], nil
}

func (ex *Exchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("PlaceOrder"); err != nil {
		return exchange.Order{}, err
	}
	if err := ex.check(req); err != nil {
		return exchange.Order{}, err
	}
	book := ex.books[req.Symbol]
	pos := ex.position(req.Symbol)
	if req.ReduceOnly && !req.ClosePosition && req.Type == exchange.TypeMarket {
		if !closes(req.Side, pos.amount) {
			return exchange.Order{}, &exchange.APIError{Code: codeReduceOnly, Message: "ReduceOnly Order is rejected."}
		}
		if req.Quantity.GreaterThan(pos.amount.Abs()) {
			req.Quantity = pos.amount.Abs()
		}
	}

	ex.nextId++
	o := &exchange.Order{
		Symbol:        req.Symbol,
		OrderId:       ex.nextId,
		ClientOrderId: req.ClientOrderId,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		Status:        exchange.StatusNew,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		OrigQty:       req.Quantity,
		ReduceOnly:    req.ReduceOnly,
		ClosePosition: req.ClosePosition,
		UpdateTime:    time.Now().UnixNano() / int64(time.Millisecond),
	}
	if o.ClientOrderId == "" {
		o.ClientOrderId = uuid.New().String()
	}

	switch req.Type {
	case exchange.TypeMarket:
		price := book.Ask
		if req.Side == exchange.Sell {
			price = book.Bid
		}
		if !price.IsPositive() {
			price = ex.marks[req.Symbol]
		}
		ex.orders[o.OrderId] = o
		ex.fill(o, o.OrigQty, price, takerFee)
	case exchange.TypeLimit:
		crossing := (req.Side == exchange.Buy && book.Ask.IsPositive() && req.Price.GreaterThanOrEqual(book.Ask)) ||
			(req.Side == exchange.Sell && book.Bid.IsPositive() && req.Price.LessThanOrEqual(book.Bid))
		switch {
		case req.TimeInForce == exchange.GTX && crossing:
			return exchange.Order{}, &exchange.APIError{Code: codePostOnly, Message: "Order would immediately match and take."}
		case req.TimeInForce == exchange.IOC:
			ex.orders[o.OrderId] = o
			if crossing {
				price := book.Ask
				if req.Side == exchange.Sell {
					price = book.Bid
				}
				ex.fill(o, o.OrigQty, price, takerFee)
			} else {
				o.Status = exchange.StatusExpired
			}
		default:
			ex.orders[o.OrderId] = o
			if crossing {
				ex.fill(o, o.OrigQty, req.Price, takerFee)
			}
		}
	default:
		mark := ex.marks[req.Symbol]
		if mark.IsPositive() && triggered(*o, mark) {
			return exchange.Order{}, &exchange.APIError{Code: codeWouldImmediately, Message: "Order would immediately trigger."}
		}
		ex.orders[o.OrderId] = o
	}
	return *o, nil
}

func (ex *Exchange) CancelOrder(ctx context.Context, symbol string, orderId int64) error {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("CancelOrder"); err != nil {
		return err
	}
	o, ok := ex.orders[orderId]
	if !ok || o.Symbol != symbol || !o.Working() {
		return errors.Wrapf(exchange.ErrOrderNotFound, "cancel %d", orderId)
	}
	o.Status = exchange.StatusCanceled
	return nil
}

func (ex *Exchange) GetOrder(ctx context.Context, symbol string, orderId int64) (exchange.Order, error) {
	if hook := ex.OnGetOrder; hook != nil {
		ex.lock.Lock()
		o, ok := ex.orders[orderId]
		var snapshot exchange.Order
		if ok {
			snapshot = *o
		}
		ex.lock.Unlock()
		if ok {
			hook(ex, snapshot)
		}
	}
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("GetOrder"); err != nil {
		return exchange.Order{}, err
	}
	o, ok := ex.orders[orderId]
	if !ok || o.Symbol != symbol {
		return exchange.Order{}, errors.Wrapf(exchange.ErrOrderNotFound, "order %d", orderId)
	}
	return *o, nil
}

func (ex *Exchange) OpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("OpenOrders"); err != nil {
		return nil, err
	}
	var orders []exchange.Order
	for _, o := range ex.sortedOrders(symbol) {
		if o.Working() {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (ex *Exchange) ReplaceOrder(ctx context.Context, symbol string, orderId int64, side exchange.OrderSide, qty, price decimal.Decimal) (exchange.Order, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("ReplaceOrder"); err != nil {
		return exchange.Order{}, err
	}
	o, ok := ex.orders[orderId]
	if !ok || o.Symbol != symbol || !o.Working() || o.Type != exchange.TypeLimit {
		return exchange.Order{}, errors.Wrapf(exchange.ErrOrderNotFound, "modify %d", orderId)
	}
	if err := ex.check(exchange.OrderRequest{Symbol: symbol, Type: exchange.TypeLimit, Quantity: qty, Price: price}); err != nil {
		return exchange.Order{}, err
	}
	if !qty.GreaterThan(o.ExecutedQty) {
		return exchange.Order{}, &exchange.APIError{Code: codeQtyTooSmall, Message: "Quantity less than or equal to executed quantity."}
	}
	o.Side = side
	o.Price = price
	o.OrigQty = qty
	o.UpdateTime = time.Now().UnixNano() / int64(time.Millisecond)
	return *o, nil
}

func (ex *Exchange) Candles(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("Candles"); err != nil {
		return nil, err
	}
	candles := ex.candles[symbol+"@"+interval]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return append([]exchange.Candle(nil), candles...), nil
}

func (ex *Exchange) PositionAmount(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("PositionAmount"); err != nil {
		return decimal.Zero, err
	}
	return ex.position(symbol).amount, nil
}

func (ex *Exchange) Trades(ctx context.Context, symbol string, orderId int64) ([]exchange.Trade, error) {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	if err := ex.enter("Trades"); err != nil {
		return nil, err
	}
	return append([]exchange.Trade(nil), ex.trades[orderId]...), nil
}

func (ex *Exchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	return ex.enter("SetLeverage")
}

func (ex *Exchange) SetOneWayMode(ctx context.Context) error {
	ex.lock.Lock()
	defer ex.lock.Unlock()
	return ex.enter("SetOneWayMode")
}

// enter counts the call and pops an injected failure.
func (ex *Exchange) enter(op string) error {
	ex.calls[op]++
	if errs := ex.failures[op]; len(errs) > 0 {
		ex.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

// check applies the symbol filters like the venue does.
func (ex *Exchange) check(req exchange.OrderRequest) error {
	f, ok := ex.filters[req.Symbol]
	if !ok {
		return errors.Errorf("symbol %s not listed", req.Symbol)
	}
	if req.ClosePosition {
		if !onStep(req.StopPrice, f.TickSize) {
			return &exchange.APIError{Code: codePrecision, Message: "Precision is over the maximum defined for this asset."}
		}
		return nil
	}
	if !onStep(req.Quantity, f.StepSize) || !onStep(req.Price, f.TickSize) || !onStep(req.StopPrice, f.TickSize) {
		return &exchange.APIError{Code: codePrecision, Message: "Precision is over the maximum defined for this asset."}
	}
	if !req.Quantity.IsPositive() || req.Quantity.LessThan(f.MinQty) {
		return &exchange.APIError{Code: codeQtyTooSmall, Message: "Quantity less than or equal to zero."}
	}
	return nil
}

func (ex *Exchange) position(symbol string) *position {
	p, ok := ex.positions[symbol]
	if !ok {
		p = &position{}
		ex.positions[symbol] = p
	}
	return p
}

// fill executes qty of o at price and books the fill against the position.
func (ex *Exchange) fill(o *exchange.Order, qty, price, feeRate decimal.Decimal) {
	if !qty.IsPositive() {
		return
	}
	pos := ex.position(o.Symbol)
	delta := qty
	if o.Side == exchange.Sell {
		delta = qty.Neg()
	}
	pnl := decimal.Zero
	switch {
	case pos.amount.IsZero() || pos.amount.Sign() == delta.Sign():
		total := pos.amount.Abs().Add(qty)
		pos.entry = pos.amount.Abs().Mul(pos.entry).Add(qty.Mul(price)).Div(total)
		pos.amount = pos.amount.Add(delta)
	default:
		closing := decimal.Min(qty, pos.amount.Abs())
		pnl = closing.Mul(price.Sub(pos.entry))
		if pos.amount.IsNegative() {
			pnl = pnl.Neg()
		}
		pos.amount = pos.amount.Add(delta)
		switch {
		case pos.amount.IsZero():
			pos.entry = decimal.Zero
		case pos.amount.Sign() == delta.Sign():
			pos.entry = price
		}
	}

	executed := o.ExecutedQty.Add(qty)
	o.AvgPrice = o.AvgPrice.Mul(o.ExecutedQty).Add(price.Mul(qty)).Div(executed)
	o.ExecutedQty = executed
	if executed.GreaterThanOrEqual(o.OrigQty) || o.ClosePosition {
		o.Status = exchange.StatusFilled
	} else {
		o.Status = exchange.StatusPartiallyFilled
	}
	o.UpdateTime = time.Now().UnixNano() / int64(time.Millisecond)
	ex.trades[o.OrderId] = append(ex.trades[o.OrderId], exchange.Trade{
		OrderId:         o.OrderId,
		Price:           price,
		Qty:             qty,
		Commission:      price.Mul(qty).Mul(feeRate),
		CommissionAsset: "USDT",
		RealizedPnl:     pnl,
		Time:            o.UpdateTime,
	})
}

func (ex *Exchange) sortedOrders(symbol string) []*exchange.Order {
	var orders []*exchange.Order
	for _, o := range ex.orders {
		if symbol == "" || o.Symbol == symbol {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderId < orders[j].OrderId })
	return orders
}

func triggered(o exchange.Order, mark decimal.Decimal) bool {
	switch o.Type {
	case exchange.TypeStop, exchange.TypeStopMarket:
		if o.Side == exchange.Buy {
			return mark.GreaterThanOrEqual(o.StopPrice)
		}
		return mark.LessThanOrEqual(o.StopPrice)
	case exchange.TypeTakeProfit, exchange.TypeTakeProfitMarket:
		if o.Side == exchange.Buy {
			return mark.LessThanOrEqual(o.StopPrice)
		}
		return mark.GreaterThanOrEqual(o.StopPrice)
	}
	return false
}

// closes reports whether an order on side reduces a position of amount.
func closes(side exchange.OrderSide, amount decimal.Decimal) bool {
	return (side == exchange.Sell && amount.IsPositive()) || (side == exchange.Buy && amount.IsNegative())
}

func onStep(v, step decimal.Decimal) bool {
	if v.IsZero() || !step.IsPositive() {
		return true
	}
	return v.Mod(step).IsZero()
}
