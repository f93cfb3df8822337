package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"futures/internal/models"
	"futures/internal/repository"
	"futures/pkg/utils"
)

// PositionPager - постраничная keyset-выборка позиций для прохода
// сканера. Курсор по (created_at, id) не сдвигается, когда строки
// предыдущих страниц покидают выборку после исполнения или закрытия
// в этом же цикле.
//
// Реализуется repository.PositionRepository
type PositionPager interface {
	ListPendingLimit(limit int, after repository.PageCursor) ([]*models.Position, error)
	ListFilled(limit int, after repository.PageCursor) ([]*models.Position, error)
}

// PriceSource - источник последних цен
//
// Реализуется feed.Manager. Второе возвращаемое значение - признак
// свежести: false означает что цены нет или она старше TTL.
type PriceSource interface {
	Get(symbol string) (float64, bool)
}

// Lifecycle - операции жизненного цикла, которые сканер делегирует сервису
//
// Сервис отвечает за кошелёк, историю, уведомления и broadcast;
// сканер только решает КОГДА сработал триггер.
type Lifecycle interface {
	// FillLimitOrder исполняет лимитный ордер по указанной цене
	FillLimitOrder(id string, price float64) error
	// TriggerClose закрывает открытую позицию по причине reason
	TriggerClose(id string, reason string, price float64) error
}

// Config - параметры сканера
type Config struct {
	Interval time.Duration
	PageSize int
}

// Scanner - периодический триггерный сканер
//
// Каждый тик выполняет два прохода:
//  1. Pending лимитные ордера: исполнение при касании лимитной цены
//  2. Filled позиции: ликвидация, Take Profit, Stop Loss
//
// Приоритет триггеров на одном тике: Liquidation > Take Profit > Stop Loss.
// Проход не реентерабелен: если предыдущий ещё идёт, тик пропускается.
type Scanner struct {
	cfg       Config
	positions PositionPager
	prices    PriceSource
	lifecycle Lifecycle
	logger    *zap.Logger

	// 1 = проход выполняется
	running int32
}

// NewScanner создаёт сканер
func NewScanner(cfg Config, positions PositionPager, prices PriceSource, lifecycle Lifecycle, logger *zap.Logger) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 2500 * time.Millisecond
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	return &Scanner{
		cfg:       cfg,
		positions: positions,
		prices:    prices,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// Run запускает цикл сканера до отмены контекста
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Info("trigger scanner started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("page_size", s.cfg.PageSize))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("trigger scanner stopped")
			return
		case <-ticker.C:
			s.Scan()
		}
	}
}

// Scan выполняет один полный проход (оба пасса)
//
// Безопасен для вызова из нескольких мест: конкурентный вызов
// при идущем проходе возвращается сразу.
func (s *Scanner) Scan() {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		ScansSkipped.Inc()
		return
	}
	defer atomic.StoreInt32(&s.running, 0)

	start := time.Now()

	pending := s.scanPendingLimits()
	open := s.scanOpenPositions()

	PendingOrders.Set(float64(pending))
	OpenPositions.Set(float64(open))
	ScanDuration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	ScansTotal.Inc()
}

// scanPendingLimits проходит по ожидающим лимитным ордерам
// и исполняет те, чью лимитную цену коснулся рынок.
// Возвращает количество просмотренных ордеров.
func (s *Scanner) scanPendingLimits() int {
	total := 0

	var after repository.PageCursor
	for {
		page, err := s.positions.ListPendingLimit(s.cfg.PageSize, after)
		if err != nil {
			s.logger.Error("failed to list pending limit orders", zap.Error(err))
			return total
		}

		for _, p := range page {
			total++
			s.checkPendingLimit(p)
		}

		if len(page) < s.cfg.PageSize {
			return total
		}
		after = repository.After(page[len(page)-1])
	}
}

// checkPendingLimit проверяет и при касании исполняет один лимитный ордер
func (s *Scanner) checkPendingLimit(p *models.Position) {
	if p.LimitPrice == nil {
		return
	}

	price, fresh := s.prices.Get(p.Symbol)
	if !fresh {
		StalePriceSkips.Inc()
		return
	}

	// Buy-limit лонга исполняется при цене <= лимита,
	// sell-limit шорта - при цене >= лимита
	var touched bool
	if p.Side == models.SideShort {
		touched = utils.CrossedUp(price, *p.LimitPrice)
	} else {
		touched = utils.CrossedDown(price, *p.LimitPrice)
	}

	if !touched {
		return
	}

	// Исполняем по лимитной цене, не по тику
	err := s.lifecycle.FillLimitOrder(p.ID, *p.LimitPrice)
	switch {
	case err == nil:
		TriggersTotal.WithLabelValues("limit_fill").Inc()
		s.logger.Info("limit order filled",
			zap.String("position_id", p.ID),
			zap.String("symbol", p.Symbol),
			zap.Float64("limit_price", *p.LimitPrice),
			zap.Float64("tick_price", price))
	case errors.Is(err, repository.ErrInsufficientFunds):
		// Ордер остаётся Pending: средства могут появиться позже
		InsufficientMarginTotal.Inc()
		s.logger.Warn("limit touched but margin insufficient, order stays pending",
			zap.String("position_id", p.ID),
			zap.String("symbol", p.Symbol))
	case errors.Is(err, repository.ErrNotInExpectedState):
		// Гонка с отменой или с другим исполнением - не ошибка
		s.logger.Debug("limit fill lost race",
			zap.String("position_id", p.ID))
	default:
		s.logger.Error("failed to fill limit order",
			zap.String("position_id", p.ID),
			zap.Error(err))
	}
}

// scanOpenPositions проходит по открытым позициям и закрывает те,
// у которых сработал триггер. Возвращает количество просмотренных.
func (s *Scanner) scanOpenPositions() int {
	total := 0

	var after repository.PageCursor
	for {
		page, err := s.positions.ListFilled(s.cfg.PageSize, after)
		if err != nil {
			s.logger.Error("failed to list open positions", zap.Error(err))
			return total
		}

		for _, p := range page {
			total++
			s.checkOpenPosition(p)
		}

		if len(page) < s.cfg.PageSize {
			return total
		}
		after = repository.After(page[len(page)-1])
	}
}

// checkOpenPosition проверяет триггеры одной открытой позиции
// в порядке приоритета: Liquidation > Take Profit > Stop Loss
func (s *Scanner) checkOpenPosition(p *models.Position) {
	price, fresh := s.prices.Get(p.Symbol)
	if !fresh {
		StalePriceSkips.Inc()
		return
	}

	reason, execPrice, ok := EvaluateTriggers(p, price)
	if !ok {
		return
	}

	err := s.lifecycle.TriggerClose(p.ID, reason, execPrice)
	switch {
	case err == nil:
		TriggersTotal.WithLabelValues(triggerLabel(reason)).Inc()
		s.logger.Info("position trigger fired",
			zap.String("position_id", p.ID),
			zap.String("symbol", p.Symbol),
			zap.String("reason", reason),
			zap.Float64("exec_price", execPrice),
			zap.Float64("tick_price", price))
	case errors.Is(err, repository.ErrNotInExpectedState):
		s.logger.Debug("trigger close lost race",
			zap.String("position_id", p.ID))
	default:
		s.logger.Error("failed to close position on trigger",
			zap.String("position_id", p.ID),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// EvaluateTriggers возвращает сработавший триггер для позиции при
// текущей цене: причину закрытия, цену исполнения и признак срабатывания.
//
// Цена исполнения - уровень триггера, а не тик: позиция закрывается
// по той цене, которую запросил трейдер (или по цене ликвидации).
func EvaluateTriggers(p *models.Position, price float64) (reason string, execPrice float64, ok bool) {
	long := p.Side != models.SideShort

	// 1. Ликвидация
	if p.LiquidationPrice != nil && *p.LiquidationPrice > 0 {
		liq := *p.LiquidationPrice
		if (long && utils.CrossedDown(price, liq)) || (!long && utils.CrossedUp(price, liq)) {
			return models.ReasonLiquidation, liq, true
		}
	}

	// 2. Take Profit
	if p.TakeProfitPrice != nil {
		tp := *p.TakeProfitPrice
		if (long && utils.CrossedUp(price, tp)) || (!long && utils.CrossedDown(price, tp)) {
			return models.ReasonTakeProfit, tp, true
		}
	}

	// 3. Stop Loss
	if p.StopLossPrice != nil {
		sl := *p.StopLossPrice
		if (long && utils.CrossedDown(price, sl)) || (!long && utils.CrossedUp(price, sl)) {
			return models.ReasonStopLoss, sl, true
		}
	}

	return "", 0, false
}

// triggerLabel переводит причину закрытия в метку метрики
func triggerLabel(reason string) string {
	switch reason {
	case models.ReasonLiquidation:
		return "liquidation"
	case models.ReasonTakeProfit:
		return "take_profit"
	case models.ReasonStopLoss:
		return "stop_loss"
	default:
		return "other"
	}
}
