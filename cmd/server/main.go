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

	"riskguard/internal/alert"
	"riskguard/internal/api"
	"riskguard/internal/config"
	"riskguard/internal/exchange"
	"riskguard/internal/monitor"
	"riskguard/internal/repository"
	"riskguard/internal/service"
	"riskguard/internal/websocket"
	"riskguard/pkg/crypto"
	"riskguard/pkg/utils"

	_ "github.com/lib/pq"
)

// Параметры фонового обновления балансов аккаунтов
const (
	balanceRefreshInterval = 5 * time.Minute
	balanceRefreshParallel = 4
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load config", utils.Err(err))
	}

	// Логгер поднимается раньше всего остального
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	defer logger.Sync()

	utils.Info("starting riskguard",
		utils.Component("main"),
		utils.String("db", cfg.Database.DSNWithoutPassword()),
		utils.Duration("monitor_interval", cfg.Monitor.Interval))

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		utils.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	utils.Info("connected to database", utils.Component("main"))

	// Производный AES-256 ключ для хранимых API ключей бирж
	encryptionKey, err := crypto.DeriveKey(cfg.Security.MasterKey, cfg.Security.Salt)
	if err != nil {
		utils.Fatal("failed to derive encryption key", utils.Err(err))
	}

	// Инициализация репозиториев
	monitoringRepo := repository.NewMonitoringRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	botRepo := repository.NewBotRepository(db)
	accountRepo := repository.NewExchangeAccountRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Инициализация сервисов
	exchangeService := service.NewExchangeService(accountRepo, encryptionKey)
	notificationService := service.NewNotificationService(notificationRepo)
	positionService := service.NewPositionService(positionRepo)
	subscriptionService := service.NewSubscriptionService(subscriptionRepo, botRepo)
	riskService := service.NewRiskService(monitoringRepo)

	// WebSocket hub для real-time уведомлений и балансов
	hub := websocket.NewHub()
	go hub.Run()
	notificationService.SetWebSocketHub(hub)
	exchangeService.SetWebSocketHub(hub)

	// Операторские алерты: телеграм если настроен, иначе лог
	alerter := alert.New(cfg.Telegram)

	// Контур контроля дневных лимитов убытка
	riskMonitor := monitor.New(cfg.Monitor, monitoringRepo, exchangeService, notificationService, alerter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Monitor.Enabled {
		if err := riskMonitor.Start(ctx); err != nil {
			utils.Fatal("failed to start risk monitor", utils.Err(err))
		}
	} else {
		utils.Warn("risk monitor disabled by config, daily loss limits are not enforced",
			utils.Component("main"))
	}

	// Фоновое обновление балансов
	go refreshBalances(ctx, exchangeService)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		PositionService:     positionService,
		SubscriptionService: subscriptionService,
		NotificationService: notificationService,
		RiskService:         riskService,
		Monitor:             riskMonitor,
		Hub:                 hub,
	}

	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		utils.Info("http server listening",
			utils.Component("main"),
			utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Fatal("http server failed", utils.Err(err))
		}
	}()

	// Ожидание сигнала остановки
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Info("shutdown signal received", utils.Component("main"))

	// Монитор останавливается первым: начатый цикл доводится до конца,
	// чтобы не оборвать проводку закрытия на середине
	riskMonitor.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.Error("http server shutdown failed", utils.Err(err))
	}

	hub.Stop()
	exchangeService.CloseAll()
	exchange.CloseGlobalClient()

	utils.Info("server exited", utils.Component("main"))
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

// refreshBalances периодически обновляет балансы всех биржевых аккаунтов.
// Первый проход выполняется сразу и прогревает кэш соединений.
func refreshBalances(ctx context.Context, exchangeService *service.ExchangeService) {
	refresh := func() {
		refreshed := exchangeService.RefreshAllBalances(ctx, balanceRefreshParallel)
		if refreshed > 0 {
			utils.Debug("account balances refreshed",
				utils.Component("main"),
				utils.Int("accounts", refreshed))
		}
	}

	refresh()

	ticker := time.NewTicker(balanceRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
