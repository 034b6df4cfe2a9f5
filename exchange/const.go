package exchange

const (
	Binance = "binance"
	Paper   = "paper"
)
