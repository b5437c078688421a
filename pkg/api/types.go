package api

// API response types for REST endpoints and WebSocket messages

// BookInfo is one product's resting order counts.
type BookInfo struct {
	Product string `json:"product"`
	Buys    uint64 `json:"buys"`
	Sells   uint64 `json:"sells"`
}

// TradeInfo is one entry from the trade tape, newest first.
type TradeInfo struct {
	Seq       uint64 `json:"seq"`
	Product   string `json:"product"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// WSTradeUpdate is pushed to every WebSocket observer when a trade executes.
type WSTradeUpdate struct {
	Type      string `json:"type"` // always "trade"
	Product   string `json:"product"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
