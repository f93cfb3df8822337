package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Feed     FeedConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string

	// Разрешённые CORS origins (через запятую в CORS_ALLOWED_ORIGINS)
	CORSAllowedOrigins []string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// EngineConfig - настройки триггерного сканера и маржинальных расчётов
type EngineConfig struct {
	// Периодичность сканера (лимитные ордера + открытые позиции)
	ScanInterval time.Duration
	// Размер страницы выборки из БД за один проход
	PageSize int

	// Maintenance margin rate (доля, 0.005 = 0.5%)
	MaintenanceMarginRate float64
	// Буфер на комиссии F в формуле цены ликвидации (USDT)
	FeeBuffer float64
	// Допустимое плечо
	MinLeverage int
	MaxLeverage int

	// Периодичность фоновой чистки журналов
	CleanupInterval time.Duration
	// Сроки хранения записей истории и уведомлений
	HistoryRetention      time.Duration
	NotificationRetention time.Duration
}

// FeedConfig - настройки ценового фида (WebSocket + REST fallback)
type FeedConfig struct {
	// WebSocket базовый URL потока сделок
	WSBase string
	// REST зеркала, перебираются по порядку
	RestBases []string

	// TTL кэша цены: старше - считается устаревшей
	PriceTTL time.Duration
	// Таймаут одного REST запроса
	FetchTimeout time.Duration

	// Supervised reconnect: экспоненциальный backoff
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration

	// Задержка закрытия соединения после обнуления подписчиков
	GracePeriod time.Duration
	// Интервал ping для поддержания WS соединения
	PingInterval time.Duration
	// Таймаут записи ping в WS соединение
	WriteTimeout time.Duration

	// REST rate limit (запросов в секунду / burst)
	RestRate  float64
	RestBurst float64
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
				"http://localhost:8080",
				"http://127.0.0.1:8080",
				"http://localhost:5173",
				"http://127.0.0.1:5173",
			}),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "futures"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Engine: EngineConfig{
			ScanInterval:          getEnvAsDuration("SCAN_INTERVAL", 2500*time.Millisecond),
			PageSize:              getEnvAsInt("SCAN_PAGE_SIZE", 500),
			MaintenanceMarginRate: getEnvAsFloat("MAINTENANCE_MARGIN_RATE", 0.005),
			FeeBuffer:             getEnvAsFloat("FEE_BUFFER", 0),
			MinLeverage:           getEnvAsInt("MIN_LEVERAGE", 1),
			MaxLeverage:           getEnvAsInt("MAX_LEVERAGE", 125),
			CleanupInterval:       getEnvAsDuration("CLEANUP_INTERVAL", 24*time.Hour),
			HistoryRetention:      getEnvAsDuration("HISTORY_RETENTION", 180*24*time.Hour),
			NotificationRetention: getEnvAsDuration("NOTIFICATION_RETENTION", 30*24*time.Hour),
		},
		Feed: FeedConfig{
			WSBase: getEnv("FEED_WS_BASE", "wss://stream.binance.com:9443/ws"),
			RestBases: getEnvAsSlice("FEED_REST_BASES", []string{
				"https://api.binance.com",
				"https://api1.binance.com",
				"https://api2.binance.com",
				"https://api3.binance.com",
			}),
			PriceTTL:          getEnvAsDuration("PRICE_TTL", 7*time.Second),
			FetchTimeout:      getEnvAsDuration("FETCH_TIMEOUT", 3500*time.Millisecond),
			ReconnectMinDelay: getEnvAsDuration("WS_RECONNECT_MIN", 1*time.Second),
			ReconnectMaxDelay: getEnvAsDuration("WS_RECONNECT_MAX", 16*time.Second),
			GracePeriod:       getEnvAsDuration("FEED_GRACE_PERIOD", 5*time.Second),
			PingInterval:      getEnvAsDuration("WS_PING_INTERVAL", 25*time.Second),
			WriteTimeout:      getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			RestRate:          getEnvAsFloat("REST_RATE", 10),
			RestBurst:         getEnvAsFloat("REST_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Сканер
	if c.Engine.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %v", c.Engine.ScanInterval)
	}

	if c.Engine.PageSize < 1 {
		return fmt.Errorf("SCAN_PAGE_SIZE must be at least 1, got %d", c.Engine.PageSize)
	}

	// Маржинальные параметры
	if c.Engine.MaintenanceMarginRate < 0 || c.Engine.MaintenanceMarginRate >= 1 {
		return fmt.Errorf("MAINTENANCE_MARGIN_RATE must be in [0, 1), got %v", c.Engine.MaintenanceMarginRate)
	}

	if c.Engine.MinLeverage < 1 {
		return fmt.Errorf("MIN_LEVERAGE must be at least 1, got %d", c.Engine.MinLeverage)
	}

	if c.Engine.MaxLeverage < c.Engine.MinLeverage {
		return fmt.Errorf("MAX_LEVERAGE must be >= MIN_LEVERAGE, got %d < %d",
			c.Engine.MaxLeverage, c.Engine.MinLeverage)
	}

	// Фид
	if len(c.Feed.RestBases) == 0 {
		return fmt.Errorf("FEED_REST_BASES must contain at least one mirror")
	}

	if c.Feed.PriceTTL <= 0 {
		return fmt.Errorf("PRICE_TTL must be positive, got %v", c.Feed.PriceTTL)
	}

	if c.Feed.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", c.Feed.FetchTimeout)
	}

	if c.Feed.ReconnectMinDelay <= 0 || c.Feed.ReconnectMaxDelay < c.Feed.ReconnectMinDelay {
		return fmt.Errorf("invalid reconnect delays: min=%v max=%v",
			c.Feed.ReconnectMinDelay, c.Feed.ReconnectMaxDelay)
	}

	if c.Feed.GracePeriod < 0 {
		return fmt.Errorf("FEED_GRACE_PERIOD cannot be negative, got %v", c.Feed.GracePeriod)
	}

	if c.Feed.WriteTimeout <= 0 {
		return fmt.Errorf("WS_WRITE_TIMEOUT must be positive, got %v", c.Feed.WriteTimeout)
	}

	if c.Engine.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive, got %v", c.Engine.CleanupInterval)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
