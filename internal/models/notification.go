package models

import "time"

// Notification представляет уведомление о событии жизненного цикла позиции
type Notification struct {
	ID         int                    `json:"id" db:"id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	Type       string                 `json:"type" db:"type"`         // FILL, CLOSE, TP, SL, LIQUIDATION, CANCEL, MARGIN
	Severity   string                 `json:"severity" db:"severity"` // info, warn, error
	AccountID  string                 `json:"account_id" db:"account_id"`
	PositionID *string                `json:"position_id,omitempty" db:"position_id"`
	Message    string                 `json:"message" db:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeFill        = "FILL"        // ордер исполнен
	NotificationTypeClose       = "CLOSE"       // закрытие вручную
	NotificationTypeTP          = "TP"          // сработал Take Profit
	NotificationTypeSL          = "SL"          // сработал Stop Loss
	NotificationTypeLiquidation = "LIQUIDATION" // ликвидация позиции
	NotificationTypeCancel      = "CANCEL"      // отмена лимитного ордера
	NotificationTypeMargin      = "MARGIN"      // недостаток маржи
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
