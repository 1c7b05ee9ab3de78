// Package integration contains integration tests for the risk enforcement service.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: ledger transactions, daily counter resets
//
// Integration tests use build tag "integration" to separate from unit tests.
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"riskguard/internal/alert"
	"riskguard/internal/api"
	"riskguard/internal/api/handlers"
	"riskguard/internal/config"
	"riskguard/internal/monitor"
	"riskguard/internal/repository"
	"riskguard/internal/service"
	"riskguard/internal/websocket"
	"riskguard/pkg/crypto"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB       *sql.DB
	Router   *mux.Router
	Server   *httptest.Server
	Hub      *websocket.Hub
	Monitor  *monitor.Monitor
	Repos    *TestRepositories
	Services *TestServices
	Handlers *TestHandlers
	Cleanup  func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Monitoring      *repository.MonitoringRepository
	Position        *repository.PositionRepository
	Subscription    *repository.SubscriptionRepository
	Bot             *repository.BotRepository
	ExchangeAccount *repository.ExchangeAccountRepository
	Notification    *repository.NotificationRepository
}

// TestServices contains all service instances for testing
type TestServices struct {
	Exchange     *service.ExchangeService
	Position     *service.PositionService
	Subscription *service.SubscriptionService
	Notification *service.NotificationService
	Risk         *service.RiskService
}

// TestHandlers contains all handler instances for testing
type TestHandlers struct {
	Monitor      *handlers.MonitorHandler
	Position     *handlers.PositionHandler
	Subscription *handlers.SubscriptionHandler
	Notification *handlers.NotificationHandler
	Risk         *handlers.RiskHandler
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "riskguard_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// testMonitorConfig returns monitor settings for tests. The monitor is wired
// into the router but never started, so /monitor/status reports idle.
func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		Enabled:             false,
		Interval:            30 * time.Second,
		Workers:             2,
		ProbeTimeout:        5 * time.Second,
		CloseTimeout:        10 * time.Second,
		DivergenceTolerance: 0.05,
	}
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	// Set connection pool settings
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	// Initialize tables
	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	// Create WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Create repositories
	repos := &TestRepositories{
		Monitoring:      repository.NewMonitoringRepository(db),
		Position:        repository.NewPositionRepository(db),
		Subscription:    repository.NewSubscriptionRepository(db),
		Bot:             repository.NewBotRepository(db),
		ExchangeAccount: repository.NewExchangeAccountRepository(db),
		Notification:    repository.NewNotificationRepository(db),
	}

	// Create services
	encryptionKey, err := crypto.DeriveKey("riskguard-test-master-key", "riskguard-test-salt")
	if err != nil {
		t.Fatalf("failed to derive test encryption key: %v", err)
	}
	services := &TestServices{
		Exchange:     service.NewExchangeService(repos.ExchangeAccount, encryptionKey),
		Position:     service.NewPositionService(repos.Position),
		Subscription: service.NewSubscriptionService(repos.Subscription, repos.Bot),
		Notification: service.NewNotificationService(repos.Notification),
		Risk:         service.NewRiskService(repos.Monitoring),
	}
	// Set WebSocket hub for broadcast services
	services.Notification.SetWebSocketHub(hub)
	services.Exchange.SetWebSocketHub(hub)

	// Monitor is constructed against the real ledger but not started:
	// cycles would probe live exchange connections
	riskMonitor := monitor.New(testMonitorConfig(), repos.Monitoring, services.Exchange, services.Notification, alert.NewLog())

	// Create handlers
	testHandlers := &TestHandlers{
		Monitor:      handlers.NewMonitorHandler(riskMonitor),
		Position:     handlers.NewPositionHandler(services.Position),
		Subscription: handlers.NewSubscriptionHandler(services.Subscription),
		Notification: handlers.NewNotificationHandler(services.Notification),
		Risk:         handlers.NewRiskHandler(services.Risk),
	}

	// Setup router
	deps := &api.Dependencies{
		PositionService:     services.Position,
		SubscriptionService: services.Subscription,
		NotificationService: services.Notification,
		RiskService:         services.Risk,
		Monitor:             riskMonitor,
		Hub:                 hub,
	}
	router := api.SetupRoutes(deps)

	// Create test server
	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		hub.Stop()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:       db,
		Router:   router,
		Server:   server,
		Hub:      hub,
		Monitor:  riskMonitor,
		Repos:    repos,
		Services: services,
		Handlers: testHandlers,
		Cleanup:  cleanup,
	}
}

// initTestTables creates or truncates tables for testing
func initTestTables(db *sql.DB) error {
	// Create tables if not exist
	tables := []string{
		`CREATE TABLE IF NOT EXISTS bots (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			status VARCHAR(20) DEFAULT 'active',
			max_daily_loss DECIMAL(20, 2),
			current_daily_loss DECIMAL(20, 2) NOT NULL DEFAULT 0,
			open_positions INT DEFAULT 0,
			total_pnl DECIMAL(20, 2) DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS exchange_accounts (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL,
			exchange VARCHAR(50) NOT NULL,
			label VARCHAR(100) DEFAULT '',
			api_key TEXT NOT NULL DEFAULT '',
			secret_key TEXT NOT NULL DEFAULT '',
			passphrase TEXT DEFAULT '',
			connected BOOLEAN DEFAULT false,
			balance DECIMAL(20, 8) DEFAULT 0,
			last_error TEXT DEFAULT '',
			updated_at TIMESTAMP DEFAULT NOW(),
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL,
			bot_id INT NOT NULL,
			exchange_account_id INT NOT NULL,
			exchange VARCHAR(50) NOT NULL,
			status VARCHAR(20) DEFAULT 'active',
			max_daily_loss DECIMAL(20, 2),
			current_daily_loss DECIMAL(20, 2) NOT NULL DEFAULT 0,
			open_positions INT DEFAULT 0,
			total_pnl DECIMAL(20, 2) DEFAULT 0,
			win_count INT DEFAULT 0,
			loss_count INT DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id SERIAL PRIMARY KEY,
			subscription_id INT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
			symbol VARCHAR(30) NOT NULL,
			side VARCHAR(10) NOT NULL,
			status VARCHAR(20) DEFAULT 'open',
			entry_price DECIMAL(20, 8) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			leverage INT DEFAULT 1,
			exit_price DECIMAL(20, 8),
			exit_quantity DECIMAL(20, 8),
			realized_pnl DECIMAL(20, 2),
			close_reason VARCHAR(50),
			opened_at TIMESTAMP NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS subscription_symbol_limits (
			id SERIAL PRIMARY KEY,
			subscription_id INT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
			symbol VARCHAR(30) NOT NULL,
			max_daily_loss DECIMAL(20, 2),
			current_daily_loss DECIMAL(20, 2) NOT NULL DEFAULT 0,
			open_positions INT DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW(),
			UNIQUE (subscription_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS bot_symbol_limits (
			id SERIAL PRIMARY KEY,
			bot_id INT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			symbol VARCHAR(30) NOT NULL,
			max_daily_loss DECIMAL(20, 2),
			current_daily_loss DECIMAL(20, 2) NOT NULL DEFAULT 0,
			open_positions INT DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW(),
			UNIQUE (bot_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL DEFAULT 0,
			timestamp TIMESTAMP DEFAULT NOW(),
			type VARCHAR(50) NOT NULL,
			severity VARCHAR(10) DEFAULT 'info',
			position_id INT,
			title TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			read BOOLEAN DEFAULT false,
			meta JSONB DEFAULT '{}'
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"notifications",
		"positions",
		"subscription_symbol_limits",
		"bot_symbol_limits",
		"subscriptions",
		"bots",
		"exchange_accounts",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableName))
	return err
}

// ============================================================
// Seed helpers
// ============================================================

// seedBot inserts a bot row and returns its id
func seedBot(t *testing.T, db *sql.DB, name string, maxDailyLoss *float64) int {
	t.Helper()

	var id int
	err := db.QueryRow(`
		INSERT INTO bots (name, status, max_daily_loss)
		VALUES ($1, 'active', $2)
		RETURNING id
	`, name, maxDailyLoss).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed bot: %v", err)
	}
	return id
}

// seedExchangeAccount inserts an exchange account row and returns its id
func seedExchangeAccount(t *testing.T, db *sql.DB, userID int, exchange string) int {
	t.Helper()

	var id int
	err := db.QueryRow(`
		INSERT INTO exchange_accounts (user_id, exchange, label, api_key, secret_key, connected)
		VALUES ($1, $2, 'test account', 'enc-api-key', 'enc-secret-key', true)
		RETURNING id
	`, userID, exchange).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed exchange account: %v", err)
	}
	return id
}

// seedSubscription inserts an active subscription row and returns its id
func seedSubscription(t *testing.T, db *sql.DB, userID, botID, accountID int, maxDailyLoss *float64) int {
	t.Helper()

	var id int
	err := db.QueryRow(`
		INSERT INTO subscriptions (user_id, bot_id, exchange_account_id, exchange, status, max_daily_loss)
		VALUES ($1, $2, $3, 'bybit', 'active', $4)
		RETURNING id
	`, userID, botID, accountID, maxDailyLoss).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}
	return id
}

// seedOpenPosition inserts an open position row, bumps the subscription
// open counter and returns the position id
func seedOpenPosition(t *testing.T, db *sql.DB, subscriptionID int, symbol, side string) int {
	t.Helper()

	var id int
	err := db.QueryRow(`
		INSERT INTO positions (subscription_id, symbol, side, status, entry_price, quantity, leverage, opened_at)
		VALUES ($1, $2, $3, 'open', 50000, 0.1, 5, NOW())
		RETURNING id
	`, subscriptionID, symbol, side).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}

	if _, err := db.Exec(`UPDATE subscriptions SET open_positions = open_positions + 1 WHERE id = $1`, subscriptionID); err != nil {
		t.Fatalf("failed to bump subscription open counter: %v", err)
	}
	return id
}

// seedSubscriptionSymbolLimit inserts a per-symbol budget row for a subscription
func seedSubscriptionSymbolLimit(t *testing.T, db *sql.DB, subscriptionID int, symbol string, maxDailyLoss *float64) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO subscription_symbol_limits (subscription_id, symbol, max_daily_loss)
		VALUES ($1, $2, $3)
	`, subscriptionID, symbol, maxDailyLoss)
	if err != nil {
		t.Fatalf("failed to seed subscription symbol limit: %v", err)
	}
}

// seedBotSymbolLimit inserts a per-symbol budget row for a bot
func seedBotSymbolLimit(t *testing.T, db *sql.DB, botID int, symbol string, maxDailyLoss *float64) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO bot_symbol_limits (bot_id, symbol, max_daily_loss)
		VALUES ($1, $2, $3)
	`, botID, symbol, maxDailyLoss)
	if err != nil {
		t.Fatalf("failed to seed bot symbol limit: %v", err)
	}
}

// fptr returns a pointer to the given float, for nullable budget columns
func fptr(v float64) *float64 {
	return &v
}
