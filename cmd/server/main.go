package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"futures/internal/api"
	"futures/internal/config"
	"futures/internal/engine"
	"futures/internal/feed"
	"futures/internal/repository"
	"futures/internal/service"
	"futures/internal/websocket"
	"futures/pkg/ratelimit"
	"futures/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// .env опционален: в контейнере конфигурация приходит из окружения
	_ = godotenv.Load()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.MustLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database",
			zap.String("dsn", cfg.Database.DSNWithoutPassword()),
			zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация репозиториев
	positionRepo := repository.NewPositionRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Ценовой фид: кэш + REST fallback + WebSocket потоки по подписке
	priceCache := feed.NewPriceCache(cfg.Feed.PriceTTL)
	restLimiter := ratelimit.NewRateLimiter(cfg.Feed.RestRate, cfg.Feed.RestBurst)
	restClient := feed.NewRestClient(cfg.Feed.RestBases, cfg.Feed.FetchTimeout, restLimiter, logger)

	streamConfig := feed.StreamConfig{
		InitialDelay:   cfg.Feed.ReconnectMinDelay,
		MaxDelay:       cfg.Feed.ReconnectMaxDelay,
		ConnectTimeout: cfg.Feed.FetchTimeout,
		PingInterval:   cfg.Feed.PingInterval,
		WriteTimeout:   cfg.Feed.WriteTimeout,
	}
	streamFactory := func(symbol string, onPrice func(string, float64)) feed.Stream {
		return feed.NewSymbolStream(cfg.Feed.WSBase, symbol, streamConfig, onPrice, logger)
	}

	priceManager := feed.NewManager(priceCache, restClient, streamFactory, cfg.Feed.GracePeriod, logger)

	// WebSocket hub для real-time обновлений клиентам
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Инициализация сервисов
	notificationService := service.NewNotificationService(notificationRepo)
	notificationService.SetWebSocketHub(hub)

	positionService := service.NewPositionService(
		positionRepo,
		walletRepo,
		historyRepo,
		notificationService,
		priceManager,
		service.MarginParams{
			MaintenanceMarginRate: cfg.Engine.MaintenanceMarginRate,
			FeeBuffer:             cfg.Engine.FeeBuffer,
			MinLeverage:           cfg.Engine.MinLeverage,
			MaxLeverage:           cfg.Engine.MaxLeverage,
		},
		logger,
	)
	positionService.SetHub(hub)

	// Восстановление подписок на цены для открытых позиций после рестарта
	if err := positionService.RestoreWatches(); err != nil {
		logger.Error("failed to restore price watches", zap.Error(err))
	}

	// Триггерный сканер: лимитные ордера + TP/SL/ликвидация
	scanner := engine.NewScanner(
		engine.Config{
			Interval: cfg.Engine.ScanInterval,
			PageSize: cfg.Engine.PageSize,
		},
		positionRepo,
		priceManager,
		positionService,
		logger,
	)

	scanCtx, stopScanner := context.WithCancel(context.Background())
	go scanner.Run(scanCtx)

	// Фоновая чистка журналов истории и уведомлений
	go runCleanup(scanCtx, cfg, historyRepo, notificationService, logger)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		PositionService:     positionService,
		NotificationService: notificationService,
		Hub:                 hub,
		Logger:              logger,
		AllowedOrigins:      cfg.Server.CORSAllowedOrigins,
	}

	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Сначала останавливаем фоновые контуры, затем HTTP
	stopScanner()
	priceManager.Close()
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// runCleanup периодически удаляет устаревшие записи истории и
// уведомлений. Ошибки чистки не фатальны, следующая попытка
// через CleanupInterval.
func runCleanup(ctx context.Context, cfg *config.Config, history *repository.HistoryRepository, notifications *service.NotificationService, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.Engine.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-cfg.Engine.HistoryRetention)
			if deleted, err := history.DeleteOlderThan(cutoff); err != nil {
				logger.Error("history cleanup failed", zap.Error(err))
			} else if deleted > 0 {
				logger.Info("history cleanup done", zap.Int64("deleted", deleted))
			}

			if deleted, err := notifications.CleanupOld(cfg.Engine.NotificationRetention); err != nil {
				logger.Error("notification cleanup failed", zap.Error(err))
			} else if deleted > 0 {
				logger.Info("notification cleanup done", zap.Int64("deleted", deleted))
			}
		}
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
