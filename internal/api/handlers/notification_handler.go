package handlers

import (
	"net/http"
	"strconv"
	"time"

	"futures/internal/service"
)

// NotificationHandler отвечает за журнал уведомлений
//
// Endpoints:
// - GET /api/v1/notifications?account_id=... - получение уведомлений аккаунта
// - GET /api/v1/notifications?account_id=...&limit=50 - с ограничением количества
type NotificationHandler struct {
	notificationService service.NotificationServiceInterface
}

// NewNotificationHandler создает новый NotificationHandler с внедрением зависимости
func NewNotificationHandler(notificationService service.NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// GetNotificationsResponse представляет ответ списка уведомлений
type GetNotificationsResponse struct {
	Notifications []NotificationDTO `json:"notifications"`
	Total         int               `json:"total"`
}

// NotificationDTO представляет уведомление в API
type NotificationDTO struct {
	ID         int                    `json:"id"`
	Timestamp  string                 `json:"timestamp"`
	Type       string                 `json:"type"`
	Severity   string                 `json:"severity"`
	PositionID *string                `json:"position_id,omitempty"`
	Message    string                 `json:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// GetNotifications возвращает уведомления аккаунта (новые сверху)
//
// GET /api/v1/notifications?account_id=acc-1&limit=50
//
// Query параметры:
// - account_id (string, обязательный): аккаунт-владелец
// - limit (int): количество записей (по умолчанию 100, максимум 500)
//
// Типы уведомлений:
// - FILL: исполнение ордера
// - CLOSE: закрытие вручную
// - TP: срабатывание Take Profit
// - SL: срабатывание Stop Loss
// - LIQUIDATION: ликвидация позиции
// - CANCEL: отмена лимитного ордера
// - MARGIN: недостаток маржи
//
// HTTP коды:
// - 200 OK: успешно, возвращает массив уведомлений
// - 400 Bad Request: не указан account_id
// - 500 Internal Server Error: ошибка сервера
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		respondWithError(w, http.StatusBadRequest, "VALIDATION", "account_id is required")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	notifications, err := h.notificationService.GetNotifications(accountID, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	dtos := make([]NotificationDTO, 0, len(notifications))
	for _, n := range notifications {
		dtos = append(dtos, NotificationDTO{
			ID:         n.ID,
			Timestamp:  n.Timestamp.Format(time.RFC3339),
			Type:       n.Type,
			Severity:   n.Severity,
			PositionID: n.PositionID,
			Message:    n.Message,
			Meta:       n.Meta,
		})
	}

	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: dtos,
		Total:         len(dtos),
	})
}
