package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"futures/internal/models"
	"futures/internal/repository"
)

// ============ Mock PositionRepository ============

type MockPositionRepository struct {
	mu        sync.Mutex
	positions map[string]*models.Position
	createErr error
	getErr    error
}

func NewMockPositionRepository() *MockPositionRepository {
	return &MockPositionRepository{
		positions: make(map[string]*models.Position),
	}
}

func (m *MockPositionRepository) Create(p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *p
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.positions[p.ID] = &cp
	return nil
}

func (m *MockPositionRepository) GetByID(id string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, exists := m.positions[id]
	if !exists {
		return nil, repository.ErrPositionNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPositionRepository) ListOpenByAccount(accountID string) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Position
	for _, p := range m.positions {
		if p.AccountID == accountID && !models.IsTerminal(p.Status) {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockPositionRepository) ListOpen() ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Position
	for _, p := range m.positions {
		if !models.IsTerminal(p.Status) {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockPositionRepository) ListPendingLimit(limit int, after repository.PageCursor) ([]*models.Position, error) {
	return m.listByStatus(models.StatusPending, limit, after)
}

func (m *MockPositionRepository) ListFilled(limit int, after repository.PageCursor) ([]*models.Position, error) {
	return m.listByStatus(models.StatusFilled, limit, after)
}

func (m *MockPositionRepository) listByStatus(status string, limit int, after repository.PageCursor) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Position
	for _, p := range m.positions {
		if p.Status != status {
			continue
		}
		if p.CreatedAt.Before(after.CreatedAt) ||
			(p.CreatedAt.Equal(after.CreatedAt) && p.ID <= after.ID) {
			continue
		}
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MockPositionRepository) MarkFilled(id string, openPrice, liquidationPrice, initialMargin float64, executedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, exists := m.positions[id]
	if !exists {
		return repository.ErrPositionNotFound
	}
	if p.Status != models.StatusPending {
		return repository.ErrNotInExpectedState
	}
	p.Status = models.StatusFilled
	p.OpenPrice = &openPrice
	p.LiquidationPrice = &liquidationPrice
	p.InitialMargin = initialMargin
	p.ExecutedAt = &executedAt
	return nil
}

func (m *MockPositionRepository) MarkClosed(id string, closePrice, pnl float64, reason string, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, exists := m.positions[id]
	if !exists {
		return repository.ErrPositionNotFound
	}
	if p.Status != models.StatusFilled {
		return repository.ErrNotInExpectedState
	}
	p.Status = models.StatusForReason(reason)
	p.ClosePrice = &closePrice
	p.Pnl = &pnl
	p.CloseReason = reason
	p.ClosedAt = &closedAt
	return nil
}

func (m *MockPositionRepository) MarkCancelled(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, exists := m.positions[id]
	if !exists {
		return repository.ErrPositionNotFound
	}
	if p.Status != models.StatusPending {
		return repository.ErrNotInExpectedState
	}
	p.Status = models.StatusCancelled
	return nil
}

func (m *MockPositionRepository) CountByStatus(status string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.positions {
		if p.Status == status {
			count++
		}
	}
	return count, nil
}

// ============ Mock WalletRepository ============

type MockWalletRepository struct {
	mu         sync.Mutex
	balances   map[string]float64
	reserveErr error
	creditErr  error
}

func NewMockWalletRepository(initial float64) *MockWalletRepository {
	return &MockWalletRepository{
		balances: map[string]float64{"acc-1": initial},
	}
}

func (m *MockWalletRepository) GetBalance(accountID, asset string) (*models.WalletBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, exists := m.balances[accountID]
	if !exists {
		return nil, repository.ErrWalletNotFound
	}
	return &models.WalletBalance{
		AccountID: accountID,
		Asset:     asset,
		Balance:   balance,
	}, nil
}

func (m *MockWalletRepository) Reserve(accountID, asset string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveErr != nil {
		return m.reserveErr
	}
	balance := m.balances[accountID]
	if balance < amount {
		return repository.ErrInsufficientFunds
	}
	m.balances[accountID] = balance - amount
	return nil
}

func (m *MockWalletRepository) Credit(accountID, asset string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creditErr != nil {
		return m.creditErr
	}
	m.balances[accountID] += amount
	return nil
}

func (m *MockWalletRepository) balance(accountID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID]
}

// ============ Mock HistoryRepository ============

type MockHistoryRepository struct {
	mu      sync.Mutex
	records map[string]*models.HistoryRecord
}

func NewMockHistoryRepository() *MockHistoryRepository {
	return &MockHistoryRepository{
		records: make(map[string]*models.HistoryRecord),
	}
}

func (m *MockHistoryRepository) Upsert(rec *models.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.PositionID] = &cp
	return nil
}

func (m *MockHistoryRepository) Finalize(positionID string, closePrice, pnl float64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, exists := m.records[positionID]
	if !exists {
		return repository.ErrHistoryNotFound
	}
	rec.ClosePrice = &closePrice
	rec.Pnl = pnl
	rec.Status = status
	return nil
}

func (m *MockHistoryRepository) ListByAccount(accountID string, limit, offset int) ([]*models.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.HistoryRecord
	for _, rec := range m.records {
		if rec.AccountID == accountID {
			cp := *rec
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockHistoryRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	return 0, nil
}

func (m *MockHistoryRepository) get(positionID string) *models.HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[positionID]
}

// ============ Mock NotificationRepository ============

type MockNotificationRepository struct {
	mu            sync.Mutex
	notifications []*models.Notification
	createErr     error
	nextID        int
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{nextID: 1}
}

func (m *MockNotificationRepository) Create(n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = m.nextID
	m.nextID++
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *MockNotificationRepository) GetRecent(accountID string, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Notification
	for i := len(m.notifications) - 1; i >= 0 && len(result) < limit; i-- {
		if m.notifications[i].AccountID == accountID {
			result = append(result, m.notifications[i])
		}
	}
	return result, nil
}

func (m *MockNotificationRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	return 0, nil
}

func (m *MockNotificationRepository) typesSeen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.notifications))
	for _, n := range m.notifications {
		types = append(types, n.Type)
	}
	return types
}

// ============ Mock PriceProvider ============

type MockPriceProvider struct {
	mu        sync.Mutex
	prices    map[string]float64
	priceErr  error
	watches   []string
	unwatches []string
}

func NewMockPriceProvider() *MockPriceProvider {
	return &MockPriceProvider{
		prices: map[string]float64{"BTCUSDT": 100.0},
	}
}

func (m *MockPriceProvider) Get(symbol string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, exists := m.prices[symbol]
	return price, exists
}

func (m *MockPriceProvider) Price(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.priceErr != nil {
		return 0, m.priceErr
	}
	return m.prices[symbol], nil
}

func (m *MockPriceProvider) Watch(symbol, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches = append(m.watches, symbol+"/"+id)
}

func (m *MockPriceProvider) Unwatch(symbol, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unwatches = append(m.unwatches, symbol+"/"+id)
}

// ============ Mock WebSocket Broadcaster ============

type MockBroadcaster struct {
	mu            sync.Mutex
	events        []string
	notifications []*models.Notification
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) BroadcastPositionEvent(event string, p *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MockBroadcaster) BroadcastNotification(n *models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
}
