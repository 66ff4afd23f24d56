package storage

import "nftswap/internal/model"

// Recorder defines a sink for executed trades.
type Recorder interface {
	PutTradeBatch(trades []model.TradeRecord) error
}
