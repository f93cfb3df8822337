package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"futures/internal/engine"
	"futures/internal/models"
	"futures/internal/repository"
	"futures/pkg/utils"
)

// Ошибки сервиса позиций
var (
	// ErrValidation помечает ошибки входных данных (HTTP 400)
	ErrValidation = errors.New("validation error")
	// ErrAlreadyClosed - позиция уже в терминальном статусе
	ErrAlreadyClosed = errors.New("position already closed")
	// ErrNotCancellable - отменить можно только ожидающий лимитный ордер
	ErrNotCancellable = errors.New("order is not cancellable")
)

// quantityStep - минимальный шаг объёма: 1e-8 базового актива.
// Объём запроса приводится к сетке шага перед сохранением.
const quantityStep = 1e-8

// MarginParams - параметры маржинальных расчётов
type MarginParams struct {
	MaintenanceMarginRate float64
	FeeBuffer             float64
	MinLeverage           int
	MaxLeverage           int
}

// CreatePositionRequest - запрос на открытие позиции
type CreatePositionRequest struct {
	AccountID  string   `json:"account_id"`
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Leverage   int      `json:"leverage"`
	MarginType string   `json:"margin_type"`
	OrderType  string   `json:"order_type"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
	Quantity   float64  `json:"quantity"`

	TakeProfitPrice *float64 `json:"take_profit_price,omitempty"`
	StopLossPrice   *float64 `json:"stop_loss_price,omitempty"`
}

// PositionService предоставляет бизнес-логику жизненного цикла позиций.
//
// Отвечает за:
// - Открытие рыночных и лимитных позиций с резервированием маржи
// - Исполнение лимитных ордеров (делегируется сканером)
// - Закрытие по триггерам и вручную с выплатой кошельку
// - Отмену лимитных ордеров
// - Подписки на цены: Watch при создании, Unwatch в терминале
//
// Денежные инварианты:
// - Маржа резервируется ровно один раз - в момент исполнения
// - Выплата при закрытии выполняется ровно один раз: CAS-переход
//   статуса в БД сериализует конкурентные закрытия
type PositionService struct {
	positions PositionRepositoryInterface
	wallets   WalletRepositoryInterface
	history   HistoryRepositoryInterface
	notifier  NotificationServiceInterface
	prices    PriceProvider
	params    MarginParams
	logger    *zap.Logger

	hub Broadcaster
}

// NewPositionService создает новый экземпляр PositionService.
func NewPositionService(
	positions PositionRepositoryInterface,
	wallets WalletRepositoryInterface,
	history HistoryRepositoryInterface,
	notifier NotificationServiceInterface,
	prices PriceProvider,
	params MarginParams,
	logger *zap.Logger,
) *PositionService {
	if params.MinLeverage < 1 {
		params.MinLeverage = 1
	}
	if params.MaxLeverage < params.MinLeverage {
		params.MaxLeverage = 125
	}
	return &PositionService{
		positions: positions,
		wallets:   wallets,
		history:   history,
		notifier:  notifier,
		prices:    prices,
		params:    params,
		logger:    logger,
	}
}

// SetHub устанавливает WebSocket hub для broadcast событий позиций.
// Вызывается после инициализации Hub в main.go.
func (s *PositionService) SetHub(hub Broadcaster) {
	s.hub = hub
}

// CreatePosition открывает позицию
//
// Market: резервирует маржу и сразу открывает позицию по текущей цене.
// Limit: создаёт Pending ордер без резервирования - маржа списывается
// в момент исполнения, по лимитной цене.
//
// В обоих случаях позиция начинает следить за ценой символа.
func (s *PositionService) CreatePosition(ctx context.Context, req *CreatePositionRequest) (*models.Position, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	quantity := utils.RoundToStep(req.Quantity, quantityStep)
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity is below minimum step %g", ErrValidation, quantityStep)
	}

	p := &models.Position{
		ID:              uuid.NewString(),
		AccountID:       req.AccountID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Leverage:        req.Leverage,
		MarginType:      req.MarginType,
		OrderType:       req.OrderType,
		LimitPrice:      req.LimitPrice,
		Quantity:        quantity,
		TakeProfitPrice: req.TakeProfitPrice,
		StopLossPrice:   req.StopLossPrice,
		Status:          models.StatusPending,
	}

	if req.OrderType == models.OrderLimit {
		return s.createLimit(p)
	}
	return s.createMarket(ctx, p)
}

// createLimit создаёт ожидающий лимитный ордер
func (s *PositionService) createLimit(p *models.Position) (*models.Position, error) {
	if err := s.validateTriggers(p.Side, *p.LimitPrice, p.TakeProfitPrice, p.StopLossPrice); err != nil {
		return nil, err
	}

	if err := s.positions.Create(p); err != nil {
		return nil, err
	}

	s.prices.Watch(p.Symbol, p.ID)

	s.logger.Info("limit order placed",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.Float64("limit_price", *p.LimitPrice))

	s.broadcast("orderPlaced", p)
	return p, nil
}

// createMarket открывает позицию по рынку
func (s *PositionService) createMarket(ctx context.Context, p *models.Position) (*models.Position, error) {
	price, err := s.prices.Price(ctx, p.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch price for %s: %w", p.Symbol, err)
	}

	if err := s.validateTriggers(p.Side, price, p.TakeProfitPrice, p.StopLossPrice); err != nil {
		return nil, err
	}

	im := engine.InitialMargin(price, p.Quantity, p.Leverage)
	liq := engine.LiquidationPrice(p.Side, price, p.Quantity, p.Leverage,
		s.params.MaintenanceMarginRate, s.params.FeeBuffer)
	now := time.Now()

	// Сначала маржа: позиция без зарезервированных средств не существует
	if err := s.wallets.Reserve(p.AccountID, models.AssetUSDT, im); err != nil {
		return nil, err
	}

	p.Status = models.StatusFilled
	p.OpenPrice = &price
	p.LiquidationPrice = &liq
	p.InitialMargin = im
	p.ExecutedAt = &now

	if err := s.positions.Create(p); err != nil {
		// Возвращаем резерв - позиция не создалась
		if creditErr := s.wallets.Credit(p.AccountID, models.AssetUSDT, im); creditErr != nil {
			s.logger.Error("failed to refund margin after create failure",
				zap.String("account_id", p.AccountID),
				zap.Float64("amount", im),
				zap.Error(creditErr))
		}
		return nil, err
	}

	s.prices.Watch(p.Symbol, p.ID)
	s.recordFill(p)

	s.logger.Info("market position opened",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.Float64("open_price", price),
		zap.Float64("initial_margin", im))

	s.broadcast("positionFilled", p)
	return p, nil
}

// FillLimitOrder исполняет лимитный ордер по указанной цене
//
// Вызывается сканером при касании лимитной цены. При нехватке средств
// возвращает repository.ErrInsufficientFunds, ордер остаётся Pending.
func (s *PositionService) FillLimitOrder(id string, price float64) error {
	p, err := s.positions.GetByID(id)
	if err != nil {
		return err
	}

	// Ордер уже отменён или исполнен - резервировать маржу незачем,
	// CAS в MarkFilled всё равно бы откатил её обратно
	if !models.CanTransition(p.Status, models.StatusFilled) {
		return fmt.Errorf("%w: position is %s", repository.ErrNotInExpectedState, p.Status)
	}

	im := engine.InitialMargin(price, p.Quantity, p.Leverage)
	liq := engine.LiquidationPrice(p.Side, price, p.Quantity, p.Leverage,
		s.params.MaintenanceMarginRate, s.params.FeeBuffer)
	now := time.Now()

	if err := s.wallets.Reserve(p.AccountID, models.AssetUSDT, im); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			s.notifyMargin(p, im)
		}
		return err
	}

	if err := s.positions.MarkFilled(id, price, liq, im, now); err != nil {
		// Переход не состоялся (гонка с отменой) - возвращаем резерв
		if creditErr := s.wallets.Credit(p.AccountID, models.AssetUSDT, im); creditErr != nil {
			s.logger.Error("failed to refund margin after fill race",
				zap.String("position_id", id),
				zap.Error(creditErr))
		}
		return err
	}

	p.Status = models.StatusFilled
	p.OpenPrice = &price
	p.LiquidationPrice = &liq
	p.InitialMargin = im
	p.ExecutedAt = &now

	s.recordFill(p)
	s.broadcast("positionFilled", p)
	return nil
}

// TriggerClose закрывает позицию по сработавшему триггеру (вызов сканера)
func (s *PositionService) TriggerClose(id string, reason string, price float64) error {
	return s.close(id, reason, price)
}

// ClosePosition закрывает открытую позицию вручную по текущей цене
func (s *PositionService) ClosePosition(ctx context.Context, id string) (*models.Position, error) {
	p, err := s.positions.GetByID(id)
	if err != nil {
		return nil, err
	}

	if models.IsTerminal(p.Status) {
		return nil, ErrAlreadyClosed
	}
	if p.Status != models.StatusFilled {
		return nil, fmt.Errorf("%w: position is not open", ErrNotCancellable)
	}

	price, err := s.prices.Price(ctx, p.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch price for %s: %w", p.Symbol, err)
	}

	if err := s.close(id, models.ReasonManualClose, price); err != nil {
		return nil, err
	}

	return s.positions.GetByID(id)
}

// close выполняет терминальный переход Filled -> Closed|Liquidated
//
// Ровно один конкурентный вызов по данному id выигрывает CAS в БД;
// проигравшие получают ErrAlreadyClosed и не трогают кошелёк.
func (s *PositionService) close(id, reason string, price float64) error {
	p, err := s.positions.GetByID(id)
	if err != nil {
		return err
	}

	if models.IsTerminal(p.Status) {
		return ErrAlreadyClosed
	}
	if p.OpenPrice == nil {
		return fmt.Errorf("%w: position has no open price", repository.ErrNotInExpectedState)
	}

	pnl := engine.RealizedPnl(p.Side, *p.OpenPrice, price, p.Quantity, p.InitialMargin)
	now := time.Now()

	if err := s.positions.MarkClosed(id, price, pnl, reason, now); err != nil {
		if errors.Is(err, repository.ErrNotInExpectedState) {
			return ErrAlreadyClosed
		}
		return err
	}

	// Переход выигран - выплата выполняется ровно один раз
	payout := engine.Payout(p.InitialMargin, pnl)
	if payout > 0 {
		if err := s.wallets.Credit(p.AccountID, models.AssetUSDT, payout); err != nil {
			s.logger.Error("failed to credit close payout",
				zap.String("position_id", id),
				zap.Float64("payout", payout),
				zap.Error(err))
		}
	}

	// В истории терминальный статус хранит причину закрытия
	if err := s.history.Finalize(id, price, pnl, reason); err != nil {
		s.logger.Error("failed to finalize history record",
			zap.String("position_id", id),
			zap.Error(err))
	}

	s.prices.Unwatch(p.Symbol, id)
	s.notifyClose(p, reason, price, pnl)

	p.Status = models.StatusForReason(reason)
	p.ClosePrice = &price
	p.Pnl = &pnl
	p.CloseReason = reason
	p.ClosedAt = &now
	s.broadcast(closeEvent(reason), p)

	s.logger.Info("position closed",
		zap.String("position_id", id),
		zap.String("reason", reason),
		zap.Float64("close_price", price),
		zap.Float64("pnl", pnl))

	return nil
}

// CancelOrder отменяет ожидающий лимитный ордер
//
// Идемпотентен: отмена уже отменённого ордера - успех.
func (s *PositionService) CancelOrder(id string) error {
	p, err := s.positions.GetByID(id)
	if err != nil {
		return err
	}

	if err := s.positions.MarkCancelled(id); err != nil {
		if errors.Is(err, repository.ErrNotInExpectedState) {
			current, getErr := s.positions.GetByID(id)
			if getErr != nil {
				return getErr
			}
			if current.Status == models.StatusCancelled {
				return nil
			}
			return ErrNotCancellable
		}
		return err
	}

	// Маржа по Pending не резервировалась - возвращать нечего
	if err := s.history.Upsert(&models.HistoryRecord{
		ID:         uuid.NewString(),
		PositionID: p.ID,
		AccountID:  p.AccountID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Leverage:   p.Leverage,
		MarginType: p.MarginType,
		Quantity:   p.Quantity,
		Status:     models.StatusCancelled,
		ExecutedAt: time.Now(),
	}); err != nil {
		s.logger.Error("failed to record cancelled order",
			zap.String("position_id", id),
			zap.Error(err))
	}

	s.prices.Unwatch(p.Symbol, id)

	posID := p.ID
	s.notify(&models.Notification{
		Type:       models.NotificationTypeCancel,
		Severity:   models.SeverityInfo,
		AccountID:  p.AccountID,
		PositionID: &posID,
		Message:    fmt.Sprintf("Limit order %s %s cancelled", p.Side, p.Symbol),
	})

	p.Status = models.StatusCancelled
	s.broadcast("positionCancelled", p)

	s.logger.Info("limit order cancelled", zap.String("position_id", id))
	return nil
}

// GetPosition возвращает позицию по ID
func (s *PositionService) GetPosition(id string) (*models.Position, error) {
	return s.positions.GetByID(id)
}

// ListOpen возвращает нетерминальные позиции аккаунта
func (s *PositionService) ListOpen(accountID string) ([]*models.Position, error) {
	return s.positions.ListOpenByAccount(accountID)
}

// ListHistory возвращает страницу истории сделок аккаунта
func (s *PositionService) ListHistory(accountID string, limit, offset int) ([]*models.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return s.history.ListByAccount(accountID, limit, offset)
}

// GetBalance возвращает баланс аккаунта в USDT
func (s *PositionService) GetBalance(accountID string) (*models.WalletBalance, error) {
	return s.wallets.GetBalance(accountID, models.AssetUSDT)
}

// Deposit зачисляет средства на кошелёк аккаунта
func (s *PositionService) Deposit(accountID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", ErrValidation)
	}
	return s.wallets.Credit(accountID, models.AssetUSDT, amount)
}

// RestoreWatches восстанавливает подписки на цены после рестарта
//
// Каждая нетерминальная позиция снова голосует за поток своего символа.
func (s *PositionService) RestoreWatches() error {
	open, err := s.positions.ListOpen()
	if err != nil {
		return err
	}

	for _, p := range open {
		s.prices.Watch(p.Symbol, p.ID)
	}

	s.logger.Info("price watches restored", zap.Int("positions", len(open)))
	return nil
}

// ============ Внутренние хелперы ============

// validate проверяет запрос на открытие позиции
func (s *PositionService) validate(req *CreatePositionRequest) error {
	if req.AccountID == "" {
		return fmt.Errorf("%w: account_id is required", ErrValidation)
	}
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if !models.ValidSide(req.Side) {
		return fmt.Errorf("%w: side must be %s or %s", ErrValidation, models.SideLong, models.SideShort)
	}
	if !models.ValidMarginType(req.MarginType) {
		return fmt.Errorf("%w: margin_type must be %s or %s", ErrValidation, models.MarginIsolated, models.MarginCross)
	}
	if !models.ValidOrderType(req.OrderType) {
		return fmt.Errorf("%w: order_type must be %s or %s", ErrValidation, models.OrderMarket, models.OrderLimit)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if req.Leverage < s.params.MinLeverage || req.Leverage > s.params.MaxLeverage {
		return fmt.Errorf("%w: leverage must be between %d and %d",
			ErrValidation, s.params.MinLeverage, s.params.MaxLeverage)
	}
	if req.OrderType == models.OrderLimit {
		if req.LimitPrice == nil || *req.LimitPrice <= 0 {
			return fmt.Errorf("%w: positive limit_price is required for limit orders", ErrValidation)
		}
	} else if req.LimitPrice != nil {
		return fmt.Errorf("%w: limit_price is not allowed for market orders", ErrValidation)
	}
	return nil
}

// validateTriggers проверяет расположение TP/SL относительно цены входа
func (s *PositionService) validateTriggers(side string, entry float64, tp, sl *float64) error {
	long := side != models.SideShort

	if tp != nil {
		if *tp <= 0 {
			return fmt.Errorf("%w: take_profit_price must be positive", ErrValidation)
		}
		if long && *tp <= entry {
			return fmt.Errorf("%w: take profit for long must be above entry price", ErrValidation)
		}
		if !long && *tp >= entry {
			return fmt.Errorf("%w: take profit for short must be below entry price", ErrValidation)
		}
	}

	if sl != nil {
		if *sl <= 0 {
			return fmt.Errorf("%w: stop_loss_price must be positive", ErrValidation)
		}
		if long && *sl >= entry {
			return fmt.Errorf("%w: stop loss for long must be below entry price", ErrValidation)
		}
		if !long && *sl <= entry {
			return fmt.Errorf("%w: stop loss for short must be above entry price", ErrValidation)
		}
	}

	return nil
}

// recordFill пишет запись истории и уведомление об исполнении
func (s *PositionService) recordFill(p *models.Position) {
	if err := s.history.Upsert(&models.HistoryRecord{
		ID:         uuid.NewString(),
		PositionID: p.ID,
		AccountID:  p.AccountID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Leverage:   p.Leverage,
		MarginType: p.MarginType,
		Quantity:   p.Quantity,
		OpenPrice:  p.OpenPrice,
		Status:     models.StatusFilled,
		ExecutedAt: *p.ExecutedAt,
	}); err != nil {
		s.logger.Error("failed to record fill in history",
			zap.String("position_id", p.ID),
			zap.Error(err))
	}

	posID := p.ID
	s.notify(&models.Notification{
		Type:       models.NotificationTypeFill,
		Severity:   models.SeverityInfo,
		AccountID:  p.AccountID,
		PositionID: &posID,
		Message:    fmt.Sprintf("%s %s x%d filled at %.8g", p.Side, p.Symbol, p.Leverage, *p.OpenPrice),
		Meta: map[string]interface{}{
			"open_price":     *p.OpenPrice,
			"initial_margin": p.InitialMargin,
		},
	})
}

// notifyClose пишет уведомление о закрытии с типом по причине
func (s *PositionService) notifyClose(p *models.Position, reason string, price, pnl float64) {
	var notifType, severity string
	switch reason {
	case models.ReasonLiquidation:
		notifType, severity = models.NotificationTypeLiquidation, models.SeverityError
	case models.ReasonTakeProfit:
		notifType, severity = models.NotificationTypeTP, models.SeverityInfo
	case models.ReasonStopLoss:
		notifType, severity = models.NotificationTypeSL, models.SeverityWarn
	default:
		notifType, severity = models.NotificationTypeClose, models.SeverityInfo
	}

	posID := p.ID
	s.notify(&models.Notification{
		Type:       notifType,
		Severity:   severity,
		AccountID:  p.AccountID,
		PositionID: &posID,
		Message:    fmt.Sprintf("%s %s closed: %s, PnL %.4f USDT", p.Side, p.Symbol, reason, pnl),
		Meta: map[string]interface{}{
			"close_price": price,
			"pnl":         pnl,
			"reason":      reason,
		},
	})
}

// notifyMargin пишет уведомление о нехватке средств при исполнении
func (s *PositionService) notifyMargin(p *models.Position, required float64) {
	posID := p.ID
	s.notify(&models.Notification{
		Type:       models.NotificationTypeMargin,
		Severity:   models.SeverityWarn,
		AccountID:  p.AccountID,
		PositionID: &posID,
		Message:    fmt.Sprintf("Insufficient margin to fill %s %s: need %.4f USDT", p.Side, p.Symbol, required),
		Meta: map[string]interface{}{
			"required_margin": required,
		},
	})
}

func (s *PositionService) notify(n *models.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.CreateNotification(n); err != nil {
		s.logger.Error("failed to create notification",
			zap.String("type", n.Type),
			zap.Error(err))
	}
}

func (s *PositionService) broadcast(event string, p *models.Position) {
	if s.hub != nil {
		s.hub.BroadcastPositionEvent(event, p)
	}
}

// closeEvent возвращает имя WebSocket события для причины закрытия
func closeEvent(reason string) string {
	if reason == models.ReasonLiquidation {
		return "positionLiquidated"
	}
	return "positionClosed"
}
