package websocket

import (
	"time"

	"futures/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderPlaced - размещён лимитный ордер
	MessageTypeOrderPlaced MessageType = "orderPlaced"

	// MessageTypePositionFilled - позиция открыта
	// (market при создании, limit при касании цены)
	MessageTypePositionFilled MessageType = "positionFilled"

	// MessageTypePositionClosed - позиция закрыта (TP, SL или вручную)
	MessageTypePositionClosed MessageType = "positionClosed"

	// MessageTypePositionLiquidated - позиция принудительно ликвидирована
	MessageTypePositionLiquidated MessageType = "positionLiquidated"

	// MessageTypePositionCancelled - лимитный ордер отменён
	MessageTypePositionCancelled MessageType = "positionCancelled"

	// MessageTypeNotification - новое уведомление
	MessageTypeNotification MessageType = "notification"

	// MessageTypePriceUpdate - обновление цены символа
	MessageTypePriceUpdate MessageType = "priceUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PositionEventMessage - событие жизненного цикла позиции
//
// Несёт полный снимок позиции на момент события: статус, цены
// исполнения и закрытия, PnL, причину закрытия.
type PositionEventMessage struct {
	BaseMessage
	Data *PositionEventData `json:"data"`
}

// PositionEventData - данные события позиции
type PositionEventData struct {
	// ID позиции (UUID)
	PositionID string `json:"position_id"`

	// Аккаунт-владелец
	AccountID string `json:"account_id"`

	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Leverage   int    `json:"leverage"`
	MarginType string `json:"margin_type"`
	OrderType  string `json:"order_type"`

	Quantity float64 `json:"quantity"`

	// Статус после события (Pending, Filled, Closed, Liquidated, Cancelled)
	Status string `json:"status"`

	OpenPrice        *float64 `json:"open_price,omitempty"`
	LiquidationPrice *float64 `json:"liquidation_price,omitempty"`
	InitialMargin    float64  `json:"initial_margin"`

	ClosePrice  *float64 `json:"close_price,omitempty"`
	Pnl         *float64 `json:"pnl,omitempty"`
	CloseReason string   `json:"close_reason,omitempty"`
}

// NotificationMessage - сообщение о новом уведомлении
type NotificationMessage struct {
	BaseMessage
	Data *NotificationData `json:"data"`
}

// NotificationData - данные уведомления
type NotificationData struct {
	// ID уведомления в БД
	ID int `json:"id"`

	// Тип уведомления (FILL, CLOSE, TP, SL, LIQUIDATION, CANCEL, MARGIN)
	Type string `json:"type"`

	// Уровень важности (info, warn, error)
	Severity string `json:"severity"`

	AccountID string `json:"account_id"`

	// ID связанной позиции (если применимо)
	PositionID *string `json:"position_id,omitempty"`

	// Текст сообщения
	Message string `json:"message"`

	// Дополнительные метаданные (цены, PnL и т.д.)
	Meta map[string]interface{} `json:"meta,omitempty"`

	// Время создания уведомления
	Timestamp time.Time `json:"timestamp"`
}

// PriceUpdateMessage - сообщение об обновлении цены символа
type PriceUpdateMessage struct {
	BaseMessage
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// ============ Фабричные функции для создания сообщений ============

// NewPositionEventMessage создает сообщение события позиции
func NewPositionEventMessage(event string, p *models.Position) *PositionEventMessage {
	return &PositionEventMessage{
		BaseMessage: BaseMessage{
			Type:      MessageType(event),
			Timestamp: time.Now(),
		},
		Data: &PositionEventData{
			PositionID:       p.ID,
			AccountID:        p.AccountID,
			Symbol:           p.Symbol,
			Side:             p.Side,
			Leverage:         p.Leverage,
			MarginType:       p.MarginType,
			OrderType:        p.OrderType,
			Quantity:         p.Quantity,
			Status:           p.Status,
			OpenPrice:        p.OpenPrice,
			LiquidationPrice: p.LiquidationPrice,
			InitialMargin:    p.InitialMargin,
			ClosePrice:       p.ClosePrice,
			Pnl:              p.Pnl,
			CloseReason:      p.CloseReason,
		},
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: &NotificationData{
			ID:         notif.ID,
			Type:       notif.Type,
			Severity:   notif.Severity,
			AccountID:  notif.AccountID,
			PositionID: notif.PositionID,
			Message:    notif.Message,
			Meta:       notif.Meta,
			Timestamp:  notif.Timestamp,
		},
	}
}

// NewPriceUpdateMessage создает сообщение обновления цены
func NewPriceUpdateMessage(symbol string, price float64) *PriceUpdateMessage {
	return &PriceUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePriceUpdate,
			Timestamp: time.Now(),
		},
		Symbol: symbol,
		Price:  price,
	}
}
