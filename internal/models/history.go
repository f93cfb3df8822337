package models

import "time"

// HistoryRecord представляет запись в журнале сделок
//
// На позицию пишется ровно одна запись (append-only):
// создаётся при исполнении (status Filled), финализируется
// при терминальном закрытии (close_price, pnl, причина).
// Отменённый лимитный ордер тоже получает запись со статусом Cancelled.
type HistoryRecord struct {
	ID         string `json:"id" db:"id"` // UUID
	PositionID string `json:"position_id" db:"position_id"`
	AccountID  string `json:"account_id" db:"account_id"`
	Symbol     string `json:"symbol" db:"symbol"`

	Side       string  `json:"side" db:"side"`
	Leverage   int     `json:"leverage" db:"leverage"`
	MarginType string  `json:"margin_type" db:"margin_type"`
	Quantity   float64 `json:"quantity" db:"quantity"`

	OpenPrice  *float64 `json:"open_price,omitempty" db:"open_price"`
	ClosePrice *float64 `json:"close_price,omitempty" db:"close_price"`
	Pnl        float64  `json:"pnl" db:"pnl"`

	// Filled пока позиция открыта; затем Take Profit / Stop Loss /
	// Liquidation / Manual Close / Cancelled
	Status string `json:"status" db:"status"`

	ExecutedAt time.Time `json:"executed_at" db:"executed_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
