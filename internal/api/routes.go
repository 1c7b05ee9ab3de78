package api

import (
	"net/http"

	"riskguard/internal/api/handlers"
	"riskguard/internal/api/middleware"
	"riskguard/internal/service"
	"riskguard/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	PositionService     service.PositionServiceInterface
	SubscriptionService service.SubscriptionServiceInterface
	NotificationService service.NotificationServiceInterface
	RiskService         service.RiskServiceInterface
	Monitor             handlers.MonitorSource
	Hub                 *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
// Организует версионирование API (v1).
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /monitor/
//	│   └── GET /status - состояние риск-монитора
//	├── /positions/
//	│   ├── GET / - список открытых позиций
//	│   ├── GET /closed - последние закрытые позиции
//	│   └── GET /{id} - конкретная позиция
//	├── /subscriptions/
//	│   ├── GET / - список подписок с лимитами
//	│   ├── GET /{id} - конкретная подписка
//	│   ├── PUT /{id}/budget - дневной бюджет подписки
//	│   ├── PUT /{id}/symbols/{symbol}/budget - бюджет по символу
//	│   └── DELETE /{id}/symbols/{symbol}/budget - удалить лимит по символу
//	├── /bots/
//	│   ├── GET / - список ботов с лимитами
//	│   ├── PUT /{id}/budget - дневной бюджет бота
//	│   ├── PUT /{id}/symbols/{symbol}/budget - бюджет по символу
//	│   └── DELETE /{id}/symbols/{symbol}/budget - удалить лимит по символу
//	├── /notifications/
//	│   ├── GET / - журнал уведомлений
//	│   ├── POST /{id}/read - пометить прочитанным
//	│   ├── POST /read-all - пометить все прочитанными
//	│   └── DELETE / - очистить журнал
//	└── /risk/
//	    └── POST /reset-daily - обнулить дневные счетчики убытков
//
// /ws - WebSocket для real-time уведомлений
// /health - health check
// /metrics - Prometheus метрики
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
//
// Аутентификации нет: API живет во внутреннем периметре платформы.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var monitorHandler *handlers.MonitorHandler
	if deps != nil && deps.Monitor != nil {
		monitorHandler = handlers.NewMonitorHandler(deps.Monitor)
	}

	var positionHandler *handlers.PositionHandler
	if deps != nil && deps.PositionService != nil {
		positionHandler = handlers.NewPositionHandler(deps.PositionService)
	}

	var subscriptionHandler *handlers.SubscriptionHandler
	if deps != nil && deps.SubscriptionService != nil {
		subscriptionHandler = handlers.NewSubscriptionHandler(deps.SubscriptionService)
	}

	var notificationHandler *handlers.NotificationHandler
	if deps != nil && deps.NotificationService != nil {
		notificationHandler = handlers.NewNotificationHandler(deps.NotificationService)
	}

	var riskHandler *handlers.RiskHandler
	if deps != nil && deps.RiskService != nil {
		riskHandler = handlers.NewRiskHandler(deps.RiskService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Monitor routes
	if monitorHandler != nil {
		api.HandleFunc("/monitor/status", monitorHandler.GetStatus).Methods("GET")
	}

	// Position routes
	if positionHandler != nil {
		api.HandleFunc("/positions", positionHandler.GetOpenPositions).Methods("GET")
		api.HandleFunc("/positions/closed", positionHandler.GetClosedPositions).Methods("GET")
		api.HandleFunc("/positions/{id}", positionHandler.GetPosition).Methods("GET")
	}

	// Subscription and bot budget routes
	if subscriptionHandler != nil {
		api.HandleFunc("/subscriptions", subscriptionHandler.GetSubscriptions).Methods("GET")
		api.HandleFunc("/subscriptions/{id}", subscriptionHandler.GetSubscription).Methods("GET")
		api.HandleFunc("/subscriptions/{id}/budget", subscriptionHandler.SetSubscriptionBudget).Methods("PUT")
		api.HandleFunc("/subscriptions/{id}/symbols/{symbol}/budget", subscriptionHandler.SetSymbolBudget).Methods("PUT")
		api.HandleFunc("/subscriptions/{id}/symbols/{symbol}/budget", subscriptionHandler.ClearSymbolBudget).Methods("DELETE")

		api.HandleFunc("/bots", subscriptionHandler.GetBots).Methods("GET")
		api.HandleFunc("/bots/{id}/budget", subscriptionHandler.SetBotBudget).Methods("PUT")
		api.HandleFunc("/bots/{id}/symbols/{symbol}/budget", subscriptionHandler.SetBotSymbolBudget).Methods("PUT")
		api.HandleFunc("/bots/{id}/symbols/{symbol}/budget", subscriptionHandler.ClearBotSymbolBudget).Methods("DELETE")
	}

	// Notification routes
	if notificationHandler != nil {
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		api.HandleFunc("/notifications/read-all", notificationHandler.MarkAllRead).Methods("POST")
		api.HandleFunc("/notifications/{id}/read", notificationHandler.MarkRead).Methods("POST")
		api.HandleFunc("/notifications", notificationHandler.ClearNotifications).Methods("DELETE")
	}

	// Risk ops routes
	if riskHandler != nil {
		api.HandleFunc("/risk/reset-daily", riskHandler.ResetDaily).Methods("POST")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
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
