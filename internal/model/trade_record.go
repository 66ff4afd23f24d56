package model

// TradeRecord is one executed trade, ready for storage.
type TradeRecord struct {
	PoolID       string   `json:"pool_id"`
	Side         string   `json:"side"` // "buy" or "sell", from the caller's view
	Caller       string   `json:"caller"`
	NumItems     uint64   `json:"num_items"`
	Identifiers  []string `json:"identifiers"`
	SpotBefore   string   `json:"spot_before"`
	SpotAfter    string   `json:"spot_after"`
	TotalAmount  string   `json:"total_amount"`
	TradeFee     string   `json:"trade_fee"`
	ProtocolFee  string   `json:"protocol_fee"`
	RoyaltyTotal string   `json:"royalty_total"`
	ExecutedAt   string   `json:"executed_at"`
}

// TradeSideBuy and TradeSideSell name the two trade directions.
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)
