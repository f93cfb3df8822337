package service

import (
	"time"

	"futures/internal/models"
)

// NotificationService предоставляет бизнес-логику для управления уведомлениями.
//
// Отвечает за:
// - Создание уведомлений о событиях жизненного цикла позиций
// - Получение журнала уведомлений аккаунта
// - Broadcast уведомлений через WebSocket
//
// Типы уведомлений:
// - FILL: исполнение ордера
// - CLOSE: закрытие вручную
// - TP: срабатывание Take Profit
// - SL: срабатывание Stop Loss
// - LIQUIDATION: ликвидация позиции
// - CANCEL: отмена лимитного ордера
// - MARGIN: недостаток маржи
type NotificationService struct {
	notificationRepo NotificationRepositoryInterface
	wsHub            Broadcaster
}

// NewNotificationService создает новый экземпляр NotificationService.
func NewNotificationService(notificationRepo NotificationRepositoryInterface) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast уведомлений.
//
// Вызывается после инициализации Hub в main.go:
//
//	notifService := service.NewNotificationService(notifRepo)
//	notifService.SetWebSocketHub(wsHub)
func (s *NotificationService) SetWebSocketHub(hub Broadcaster) {
	s.wsHub = hub
}

// CreateNotification создает новое уведомление.
//
// После успешного создания отправляет broadcast через WebSocket (если hub настроен).
func (s *NotificationService) CreateNotification(notif *models.Notification) error {
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}

	if err := s.notificationRepo.Create(notif); err != nil {
		return err
	}

	// Broadcast через WebSocket hub для real-time обновления UI
	if s.wsHub != nil {
		s.wsHub.BroadcastNotification(notif)
	}

	return nil
}

// GetNotifications возвращает последние уведомления аккаунта
// (новые сверху).
func (s *NotificationService) GetNotifications(accountID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	return s.notificationRepo.GetRecent(accountID, limit)
}

// CleanupOld удаляет уведомления старше заданного возраста.
func (s *NotificationService) CleanupOld(maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return s.notificationRepo.DeleteOlderThan(time.Now().Add(-maxAge))
}
