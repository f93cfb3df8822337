package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"futures/pkg/ratelimit"
	"futures/pkg/retry"
)

var restJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// validPrice отсекает мусорные котировки: нули, отрицательные,
// NaN и Inf. Строки "NaN" и "Inf" проходят ParseFloat без ошибки,
// а NaN в сравнениях с нулём невидим.
func validPrice(price float64) bool {
	return !math.IsNaN(price) && !math.IsInf(price, 0) && price > 0
}

// Ошибки REST клиента
var (
	ErrPriceUnavailable = errors.New("price unavailable from all mirrors")
	ErrUnknownSymbol    = errors.New("unknown symbol")
)

// tickerResponse - ответ /api/v3/ticker/price
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// RestClient - REST fallback для получения цены
//
// Перебирает зеркала в заданном порядке; зеркало, ответившее
// ошибкой или не уложившееся в таймаут, пропускается. Один общий
// rate limiter на все зеркала.
type RestClient struct {
	bases   []string
	client  *http.Client
	limiter *ratelimit.RateLimiter
	logger  *zap.Logger
}

// NewRestClient создаёт клиент с перебором зеркал
func NewRestClient(bases []string, timeout time.Duration, limiter *ratelimit.RateLimiter, logger *zap.Logger) *RestClient {
	return &RestClient{
		bases: bases,
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// FetchPrice возвращает последнюю цену символа
//
// Один вызов - один полный проход по зеркалам с короткими retry
// поверх него. Неизвестный символ не ретраится: все зеркала
// отвечают одинаково.
func (c *RestClient) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	cfg := retry.Config{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		RetryIf:      retry.RetryIfNotContext,
	}

	return retry.DoWithResult(ctx, func() (float64, error) {
		return c.sweep(ctx, symbol)
	}, cfg)
}

// sweep один раз перебирает все зеркала
func (c *RestClient) sweep(ctx context.Context, symbol string) (float64, error) {
	var lastErr error

	for _, base := range c.bases {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}

		price, err := c.fetchFrom(ctx, base, symbol)
		if err == nil {
			return price, nil
		}
		if errors.Is(err, ErrUnknownSymbol) {
			return 0, retry.Permanent(err)
		}

		c.logger.Debug("price mirror failed",
			zap.String("mirror", base),
			zap.String("symbol", symbol),
			zap.Error(err))
		lastErr = err
	}

	if lastErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrPriceUnavailable, lastErr)
	}
	return 0, ErrPriceUnavailable
}

// fetchFrom запрашивает цену у одного зеркала
func (c *RestClient) fetchFrom(ctx context.Context, base, symbol string) (float64, error) {
	url := base + "/api/v3/ticker/price?symbol=" + symbol

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// продолжаем
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return 0, ErrUnknownSymbol
	default:
		return 0, fmt.Errorf("mirror returned status %d", resp.StatusCode)
	}

	var ticker tickerResponse
	if err := restJSON.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", ticker.Price, err)
	}
	if !validPrice(price) {
		return 0, fmt.Errorf("invalid price %v", price)
	}

	return price, nil
}
