package feed

import (
	"sync"
	"time"
)

// PriceCache - кэш последних цен с TTL
//
// Цена старше TTL считается устаревшей: сканер пропускает символ,
// а запросы по требованию уходят в REST fallback. Сами записи не
// удаляются - хранится последняя известная цена и её возраст.
type PriceCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]priceEntry

	// подменяется в тестах
	now func() time.Time
}

type priceEntry struct {
	price float64
	at    time.Time
}

// NewPriceCache создаёт кэш с указанным TTL
func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		ttl:     ttl,
		entries: make(map[string]priceEntry),
		now:     time.Now,
	}
}

// Set записывает цену символа с текущим временем
func (c *PriceCache) Set(symbol string, price float64) {
	c.mu.Lock()
	c.entries[symbol] = priceEntry{price: price, at: c.now()}
	c.mu.Unlock()
}

// Get возвращает цену и признак свежести.
// Устаревшая цена возвращается с fresh=false - вызывающий решает,
// годится ли она ему.
func (c *PriceCache) Get(symbol string) (price float64, fresh bool) {
	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()

	if !ok {
		return 0, false
	}

	return entry.price, c.now().Sub(entry.at) <= c.ttl
}

// Age возвращает возраст записи. Для неизвестного символа ok=false.
func (c *PriceCache) Age(symbol string) (time.Duration, bool) {
	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()

	if !ok {
		return 0, false
	}
	return c.now().Sub(entry.at), true
}
