package service

import (
	"context"
	"time"

	"futures/internal/engine"
	"futures/internal/feed"
	"futures/internal/models"
	"futures/internal/repository"
)

// PositionRepositoryInterface определяет интерфейс репозитория позиций
type PositionRepositoryInterface interface {
	Create(p *models.Position) error
	GetByID(id string) (*models.Position, error)
	ListOpenByAccount(accountID string) ([]*models.Position, error)
	ListOpen() ([]*models.Position, error)
	ListPendingLimit(limit int, after repository.PageCursor) ([]*models.Position, error)
	ListFilled(limit int, after repository.PageCursor) ([]*models.Position, error)
	MarkFilled(id string, openPrice, liquidationPrice, initialMargin float64, executedAt time.Time) error
	MarkClosed(id string, closePrice, pnl float64, reason string, closedAt time.Time) error
	MarkCancelled(id string) error
	CountByStatus(status string) (int, error)
}

// WalletRepositoryInterface определяет интерфейс репозитория кошельков
type WalletRepositoryInterface interface {
	GetBalance(accountID, asset string) (*models.WalletBalance, error)
	Reserve(accountID, asset string, amount float64) error
	Credit(accountID, asset string, amount float64) error
}

// HistoryRepositoryInterface определяет интерфейс репозитория истории сделок
type HistoryRepositoryInterface interface {
	Upsert(rec *models.HistoryRecord) error
	Finalize(positionID string, closePrice, pnl float64, status string) error
	ListByAccount(accountID string, limit, offset int) ([]*models.HistoryRecord, error)
	DeleteOlderThan(timestamp time.Time) (int64, error)
}

// NotificationRepositoryInterface определяет интерфейс репозитория уведомлений
type NotificationRepositoryInterface interface {
	Create(n *models.Notification) error
	GetRecent(accountID string, limit int) ([]*models.Notification, error)
	DeleteOlderThan(timestamp time.Time) (int64, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ PositionRepositoryInterface = (*repository.PositionRepository)(nil)
var _ WalletRepositoryInterface = (*repository.WalletRepository)(nil)
var _ HistoryRepositoryInterface = (*repository.HistoryRepository)(nil)
var _ NotificationRepositoryInterface = (*repository.NotificationRepository)(nil)

// PriceProvider отдаёт цены и управляет подписками на потоки котировок
type PriceProvider interface {
	// Get возвращает кэшированную цену (без сетевых запросов)
	Get(symbol string) (float64, bool)
	// Price возвращает свежую цену: кэш либо REST fallback
	Price(ctx context.Context, symbol string) (float64, error)
	Watch(symbol, id string)
	Unwatch(symbol, id string)
}

var _ PriceProvider = (*feed.Manager)(nil)

// Broadcaster рассылает события жизненного цикла позиций по WebSocket
type Broadcaster interface {
	BroadcastPositionEvent(event string, p *models.Position)
	BroadcastNotification(n *models.Notification)
}

// ============ Интерфейсы сервисов для Dependency Injection ============

// PositionServiceInterface определяет интерфейс сервиса позиций
type PositionServiceInterface interface {
	CreatePosition(ctx context.Context, req *CreatePositionRequest) (*models.Position, error)
	ClosePosition(ctx context.Context, id string) (*models.Position, error)
	CancelOrder(id string) error
	GetPosition(id string) (*models.Position, error)
	ListOpen(accountID string) ([]*models.Position, error)
	ListHistory(accountID string, limit, offset int) ([]*models.HistoryRecord, error)
	GetBalance(accountID string) (*models.WalletBalance, error)
	Deposit(accountID string, amount float64) error
}

// NotificationServiceInterface определяет интерфейс сервиса уведомлений
type NotificationServiceInterface interface {
	CreateNotification(n *models.Notification) error
	GetNotifications(accountID string, limit int) ([]*models.Notification, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ PositionServiceInterface = (*PositionService)(nil)
var _ NotificationServiceInterface = (*NotificationService)(nil)

// Сканер вызывает сервис позиций через engine.Lifecycle
var _ engine.Lifecycle = (*PositionService)(nil)
