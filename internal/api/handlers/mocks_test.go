package handlers

import (
	"context"
	"fmt"
	"time"

	"futures/internal/models"
	"futures/internal/repository"
	"futures/internal/service"
)

// ============ Mock PositionService ============

type MockPositionService struct {
	positions map[string]*models.Position
	history   []*models.HistoryRecord
	balances  map[string]float64

	createErr error
	closeErr  error
	cancelErr error
	nextID    int
}

func NewMockPositionService() *MockPositionService {
	return &MockPositionService{
		positions: make(map[string]*models.Position),
		balances:  map[string]float64{"acc-1": 1000},
		nextID:    1,
	}
}

func (m *MockPositionService) CreatePosition(ctx context.Context, req *service.CreatePositionRequest) (*models.Position, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	p := &models.Position{
		ID:         fmt.Sprintf("pos-%d", m.nextID),
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Leverage:   req.Leverage,
		MarginType: req.MarginType,
		OrderType:  req.OrderType,
		LimitPrice: req.LimitPrice,
		Quantity:   req.Quantity,
		Status:     models.StatusFilled,
		CreatedAt:  time.Now(),
	}
	if req.OrderType == models.OrderLimit {
		p.Status = models.StatusPending
	}
	m.nextID++
	m.positions[p.ID] = p
	return p, nil
}

func (m *MockPositionService) ClosePosition(ctx context.Context, id string) (*models.Position, error) {
	if m.closeErr != nil {
		return nil, m.closeErr
	}
	p, exists := m.positions[id]
	if !exists {
		return nil, repository.ErrPositionNotFound
	}
	if models.IsTerminal(p.Status) {
		return nil, service.ErrAlreadyClosed
	}
	p.Status = models.StatusClosed
	return p, nil
}

func (m *MockPositionService) CancelOrder(id string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	p, exists := m.positions[id]
	if !exists {
		return repository.ErrPositionNotFound
	}
	if p.Status == models.StatusFilled {
		return service.ErrNotCancellable
	}
	p.Status = models.StatusCancelled
	return nil
}

func (m *MockPositionService) GetPosition(id string) (*models.Position, error) {
	p, exists := m.positions[id]
	if !exists {
		return nil, repository.ErrPositionNotFound
	}
	return p, nil
}

func (m *MockPositionService) ListOpen(accountID string) ([]*models.Position, error) {
	var result []*models.Position
	for _, p := range m.positions {
		if p.AccountID == accountID && !models.IsTerminal(p.Status) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *MockPositionService) ListHistory(accountID string, limit, offset int) ([]*models.HistoryRecord, error) {
	var result []*models.HistoryRecord
	for _, rec := range m.history {
		if rec.AccountID == accountID {
			result = append(result, rec)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockPositionService) GetBalance(accountID string) (*models.WalletBalance, error) {
	balance, exists := m.balances[accountID]
	if !exists {
		return nil, repository.ErrWalletNotFound
	}
	return &models.WalletBalance{
		AccountID: accountID,
		Asset:     models.AssetUSDT,
		Balance:   balance,
	}, nil
}

func (m *MockPositionService) Deposit(accountID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", service.ErrValidation)
	}
	m.balances[accountID] += amount
	return nil
}

// Интерфейс сервиса покрыт моком
var _ service.PositionServiceInterface = (*MockPositionService)(nil)

// ============ Mock NotificationService ============

type MockNotificationService struct {
	notifications []*models.Notification
	getErr        error
	nextID        int
}

func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{nextID: 1}
}

func (m *MockNotificationService) CreateNotification(n *models.Notification) error {
	n.ID = m.nextID
	m.nextID++
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *MockNotificationService) GetNotifications(accountID string, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Notification
	for i := len(m.notifications) - 1; i >= 0 && len(result) < limit; i-- {
		if m.notifications[i].AccountID == accountID {
			result = append(result, m.notifications[i])
		}
	}
	return result, nil
}

var _ service.NotificationServiceInterface = (*MockNotificationService)(nil)

// AddNotification - хелпер для наполнения мока в тестах
func (m *MockNotificationService) AddNotification(accountID, notifType, severity, message string) {
	m.CreateNotification(&models.Notification{
		Type:      notifType,
		Severity:  severity,
		AccountID: accountID,
		Message:   message,
	})
}
