package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stream - управляемый поток цен одного символа
//
// Реализуется SymbolStream; в тестах подменяется заглушкой.
type Stream interface {
	Connect()
	Close()
}

// StreamFactory создаёт поток для символа, который пишет цены в onPrice
type StreamFactory func(symbol string, onPrice func(string, float64)) Stream

// PriceFetcher - REST fallback источник цены
//
// Реализуется RestClient.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// Manager - менеджер подписок на цены
//
// Подписки считаются по множеству идентификаторов: одна позиция
// вносит максимум один голос за символ, повторный Watch тем же id
// ничего не меняет, Unwatch идемпотентен. Поток символа открыт
// тогда и только тогда, когда у символа есть хотя бы один подписчик.
//
// При обнулении подписчиков поток закрывается не сразу, а после
// grace-периода: короткий разрыв (закрыли позицию и тут же открыли
// новую) не приводит к переподключению.
type Manager struct {
	cache       *PriceCache
	rest        PriceFetcher
	factory     StreamFactory
	gracePeriod time.Duration
	logger      *zap.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	ids        map[string]struct{}
	stream     Stream
	graceTimer *time.Timer
}

// NewManager создаёт менеджер подписок
func NewManager(cache *PriceCache, rest PriceFetcher, factory StreamFactory, gracePeriod time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		cache:       cache,
		rest:        rest,
		factory:     factory,
		gracePeriod: gracePeriod,
		logger:      logger,
		subs:        make(map[string]*subscription),
	}
}

// Watch регистрирует интерес позиции id к символу
//
// Первый подписчик символа открывает поток. Watch во время
// grace-периода отменяет отложенное закрытие - соединение
// переиспользуется.
func (m *Manager) Watch(symbol, id string) {
	m.mu.Lock()

	sub, ok := m.subs[symbol]
	if !ok {
		sub = &subscription{ids: make(map[string]struct{})}
		m.subs[symbol] = sub
		WatchedSymbols.Inc()
	}

	if sub.graceTimer != nil {
		sub.graceTimer.Stop()
		sub.graceTimer = nil
	}

	sub.ids[id] = struct{}{}

	var toConnect Stream
	if sub.stream == nil {
		sub.stream = m.factory(symbol, m.onPrice)
		toConnect = sub.stream
	}
	m.mu.Unlock()

	if toConnect != nil {
		toConnect.Connect()
		m.logger.Info("symbol watch opened stream",
			zap.String("symbol", symbol),
			zap.String("position_id", id))
	}
}

// Unwatch снимает интерес позиции id к символу
//
// Идемпотентен: повторный вызов и вызов для неизвестного id - no-op.
// Последний подписчик запускает grace-таймер закрытия потока.
func (m *Manager) Unwatch(symbol, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[symbol]
	if !ok {
		return
	}

	delete(sub.ids, id)

	if len(sub.ids) > 0 || sub.graceTimer != nil {
		return
	}

	symbolCopy := symbol
	sub.graceTimer = time.AfterFunc(m.gracePeriod, func() {
		m.expire(symbolCopy)
	})
}

// expire закрывает поток символа, если подписчики так и не вернулись
func (m *Manager) expire(symbol string) {
	m.mu.Lock()

	sub, ok := m.subs[symbol]
	if !ok {
		m.mu.Unlock()
		return
	}

	if len(sub.ids) > 0 {
		// Кто-то успел подписаться между срабатыванием таймера и локом
		sub.graceTimer = nil
		m.mu.Unlock()
		return
	}

	stream := sub.stream
	delete(m.subs, symbol)
	WatchedSymbols.Dec()
	m.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	m.logger.Info("symbol stream closed after grace period",
		zap.String("symbol", symbol))
}

// onPrice - callback потоков, пишет тик в кэш
func (m *Manager) onPrice(symbol string, price float64) {
	m.cache.Set(symbol, price)
}

// Get возвращает цену из кэша и признак свежести.
// Не блокирует: без свежего кэша сканер просто пропускает символ.
func (m *Manager) Get(symbol string) (float64, bool) {
	return m.cache.Get(symbol)
}

// Price возвращает свежую цену, при устаревшем кэше уходя в REST
//
// Используется операциями по требованию (открытие рыночного ордера,
// ручное закрытие), которым нужна цена прямо сейчас.
func (m *Manager) Price(ctx context.Context, symbol string) (float64, error) {
	if price, fresh := m.cache.Get(symbol); fresh {
		return price, nil
	}

	RestFallbacks.Inc()
	price, err := m.rest.FetchPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}

	m.cache.Set(symbol, price)
	return price, nil
}

// WatcherCount возвращает количество подписчиков символа
func (m *Manager) WatcherCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[symbol]
	if !ok {
		return 0
	}
	return len(sub.ids)
}

// HasStream сообщает, открыт ли поток символа
func (m *Manager) HasStream(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[symbol]
	return ok && sub.stream != nil
}

// Close закрывает все потоки (shutdown сервиса)
func (m *Manager) Close() {
	m.mu.Lock()
	var streams []Stream
	for symbol, sub := range m.subs {
		if sub.graceTimer != nil {
			sub.graceTimer.Stop()
		}
		if sub.stream != nil {
			streams = append(streams, sub.stream)
		}
		delete(m.subs, symbol)
		WatchedSymbols.Dec()
	}
	m.mu.Unlock()

	for _, stream := range streams {
		stream.Close()
	}
}
