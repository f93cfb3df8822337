package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"futures/internal/api/handlers"
	"futures/internal/api/middleware"
	"futures/internal/service"
	"futures/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	PositionService     service.PositionServiceInterface
	NotificationService service.NotificationServiceInterface
	Hub                 *websocket.Hub
	Logger              *zap.Logger

	// Разрешённые CORS origins (cfg.Server.CORSAllowedOrigins)
	AllowedOrigins []string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /positions/
//	│   ├── POST / - открыть позицию или разместить лимитный ордер
//	│   ├── GET /?account_id=... - открытые позиции аккаунта
//	│   ├── GET /{id} - получить позицию
//	│   ├── POST /{id}/close - закрыть вручную
//	│   └── POST /{id}/cancel - отменить лимитный ордер
//	├── /history
//	│   └── GET /?account_id=... - история сделок
//	├── /wallet/
//	│   ├── GET /{account_id} - баланс
//	│   └── POST /{account_id}/deposit - пополнение
//	└── /notifications
//	    └── GET /?account_id=... - журнал уведомлений
//
// /ws/
//
//	└── /stream - WebSocket для real-time обновлений
//
// /metrics - Prometheus метрики
// /health - health check
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	logger := zap.NewNop()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}

	var allowedOrigins []string
	if deps != nil {
		allowedOrigins = deps.AllowedOrigins
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS(allowedOrigins))

	// Создание handlers с внедрением зависимостей
	var positionHandler *handlers.PositionHandler
	var walletHandler *handlers.WalletHandler
	if deps != nil && deps.PositionService != nil {
		positionHandler = handlers.NewPositionHandler(deps.PositionService)
		walletHandler = handlers.NewWalletHandler(deps.PositionService)
	}

	var notificationHandler *handlers.NotificationHandler
	if deps != nil && deps.NotificationService != nil {
		notificationHandler = handlers.NewNotificationHandler(deps.NotificationService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Position routes
	if positionHandler != nil {
		api.HandleFunc("/positions", positionHandler.CreatePosition).Methods("POST")
		api.HandleFunc("/positions", positionHandler.ListPositions).Methods("GET")
		api.HandleFunc("/positions/{id}", positionHandler.GetPosition).Methods("GET")
		api.HandleFunc("/positions/{id}/close", positionHandler.ClosePosition).Methods("POST")
		api.HandleFunc("/positions/{id}/cancel", positionHandler.CancelOrder).Methods("POST")
		api.HandleFunc("/history", positionHandler.GetHistory).Methods("GET")
	}

	// Wallet routes
	if walletHandler != nil {
		api.HandleFunc("/wallet/{account_id}", walletHandler.GetBalance).Methods("GET")
		api.HandleFunc("/wallet/{account_id}/deposit", walletHandler.Deposit).Methods("POST")
	}

	// Notification routes
	if notificationHandler != nil {
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
