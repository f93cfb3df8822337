package models

import "time"

// Position представляет маржинальную позицию (ордер с плечом)
//
// Жизненный цикл:
//
//	Pending → Filled → Closed | Liquidated
//	Pending → Cancelled
//
// Pending и Filled - единственные нетерминальные статусы.
// Терминальные записи больше не изменяются.
type Position struct {
	ID        string `json:"id" db:"id"`                 // UUID
	AccountID string `json:"account_id" db:"account_id"` // владелец (суб-аккаунт)
	Symbol    string `json:"symbol" db:"symbol"`         // BTCUSDT

	// Торговые параметры
	Side       string `json:"side" db:"side"`               // Long, Short
	Leverage   int    `json:"leverage" db:"leverage"`       // 1..125
	MarginType string `json:"margin_type" db:"margin_type"` // Isolated, Cross
	OrderType  string `json:"order_type" db:"order_type"`   // Market, Limit

	LimitPrice *float64 `json:"limit_price,omitempty" db:"limit_price"` // только для Limit
	Quantity   float64  `json:"quantity" db:"quantity"`                 // в монетах базового актива

	// Опциональные reduce-only триггеры
	TakeProfitPrice *float64 `json:"take_profit_price,omitempty" db:"take_profit_price"`
	StopLossPrice   *float64 `json:"stop_loss_price,omitempty" db:"stop_loss_price"`

	// Поля исполнения (не-null тогда и только тогда, когда статус Filled/Closed/Liquidated)
	OpenPrice        *float64 `json:"open_price,omitempty" db:"open_price"`
	LiquidationPrice *float64 `json:"liquidation_price,omitempty" db:"liquidation_price"`
	InitialMargin    float64  `json:"initial_margin" db:"initial_margin"` // зарезервировано в USDT

	// Терминальные поля (не-null тогда и только тогда, когда статус Closed/Liquidated)
	ClosePrice  *float64 `json:"close_price,omitempty" db:"close_price"`
	Pnl         *float64 `json:"pnl,omitempty" db:"pnl"`
	CloseReason string   `json:"close_reason,omitempty" db:"close_reason"`

	Status string `json:"status" db:"status"`

	ExecutedAt *time.Time `json:"executed_at,omitempty" db:"executed_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Статусы позиции (state machine)
const (
	StatusPending    = "Pending"    // лимитный ордер ждёт касания цены
	StatusFilled     = "Filled"     // позиция открыта, маржа зарезервирована
	StatusCancelled  = "Cancelled"  // лимитный ордер отменён до исполнения
	StatusClosed     = "Closed"     // закрыта (TP/SL/вручную), маржа возвращена
	StatusLiquidated = "Liquidated" // принудительно ликвидирована
)

// Стороны позиции
const (
	SideLong  = "Long"
	SideShort = "Short"
)

// Режимы маржи
const (
	MarginIsolated = "Isolated"
	MarginCross    = "Cross"
)

// Типы ордера
const (
	OrderMarket = "Market"
	OrderLimit  = "Limit"
)

// Причины закрытия
const (
	ReasonTakeProfit  = "Take Profit"
	ReasonStopLoss    = "Stop Loss"
	ReasonLiquidation = "Liquidation"
	ReasonManualClose = "Manual Close"
	ReasonCancelled   = "Cancelled"
)

// ValidTransitions определяет допустимые переходы между статусами
var ValidTransitions = map[string][]string{
	StatusPending: {StatusFilled, StatusCancelled},
	StatusFilled:  {StatusClosed, StatusLiquidated},
	// Терминальные статусы: переходов нет
	StatusCancelled:  {},
	StatusClosed:     {},
	StatusLiquidated: {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true если статус терминальный (запись больше не меняется)
func IsTerminal(s string) bool {
	return s == StatusCancelled || s == StatusClosed || s == StatusLiquidated
}

// IsOpen возвращает true если позиция удерживает маржу (открыта)
func IsOpen(s string) bool {
	return s == StatusFilled
}

// StatusForReason возвращает терминальный статус для причины закрытия
func StatusForReason(reason string) string {
	switch reason {
	case ReasonLiquidation:
		return StatusLiquidated
	case ReasonCancelled:
		return StatusCancelled
	default:
		return StatusClosed
	}
}

// ValidSide проверяет сторону позиции
func ValidSide(s string) bool {
	return s == SideLong || s == SideShort
}

// ValidMarginType проверяет режим маржи
func ValidMarginType(s string) bool {
	return s == MarginIsolated || s == MarginCross
}

// ValidOrderType проверяет тип ордера
func ValidOrderType(s string) bool {
	return s == OrderMarket || s == OrderLimit
}
