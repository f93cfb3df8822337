// Package integration contains integration tests for the futures trading engine.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: schema, repository operations, concurrent transitions
//
// Tests are skipped automatically when the test database is unavailable.
// Run with: go test ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"futures/internal/api"
	"futures/internal/repository"
	"futures/internal/service"
	"futures/internal/websocket"

	"go.uber.org/zap"

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
	Server   *httptest.Server
	Hub      *websocket.Hub
	Repos    *TestRepositories
	Services *TestServices
	Prices   *fixedPriceProvider
	Cleanup  func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Position     *repository.PositionRepository
	Wallet       *repository.WalletRepository
	History      *repository.HistoryRepository
	Notification *repository.NotificationRepository
}

// TestServices contains all service instances for testing
type TestServices struct {
	Position     *service.PositionService
	Notification *service.NotificationService
}

// fixedPriceProvider - детерминированный источник цен для интеграционных
// тестов: никакого сетевого фида, цены задаются тестом напрямую
type fixedPriceProvider struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newFixedPriceProvider() *fixedPriceProvider {
	return &fixedPriceProvider{prices: map[string]float64{
		"BTCUSDT": 100.0,
		"ETHUSDT": 2000.0,
	}}
}

func (p *fixedPriceProvider) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *fixedPriceProvider) Get(symbol string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	return price, ok
}

func (p *fixedPriceProvider) Price(ctx context.Context, symbol string) (float64, error) {
	if price, ok := p.Get(symbol); ok {
		return price, nil
	}
	return 0, fmt.Errorf("no price for %s", symbol)
}

func (p *fixedPriceProvider) Watch(symbol, id string)   {}
func (p *fixedPriceProvider) Unwatch(symbol, id string) {}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "futures_test"),
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

	logger := zap.NewNop()

	// Create WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Create repositories
	repos := &TestRepositories{
		Position:     repository.NewPositionRepository(db),
		Wallet:       repository.NewWalletRepository(db),
		History:      repository.NewHistoryRepository(db),
		Notification: repository.NewNotificationRepository(db),
	}

	// Create services
	prices := newFixedPriceProvider()

	notificationSvc := service.NewNotificationService(repos.Notification)
	notificationSvc.SetWebSocketHub(hub)

	positionSvc := service.NewPositionService(
		repos.Position,
		repos.Wallet,
		repos.History,
		notificationSvc,
		prices,
		service.MarginParams{
			MaintenanceMarginRate: 0.004,
			MinLeverage:           1,
			MaxLeverage:           125,
		},
		logger,
	)
	positionSvc.SetHub(hub)

	services := &TestServices{
		Position:     positionSvc,
		Notification: notificationSvc,
	}

	// Setup router
	deps := &api.Dependencies{
		PositionService:     positionSvc,
		NotificationService: notificationSvc,
		Hub:                 hub,
		Logger:              logger,
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
		Server:   server,
		Hub:      hub,
		Repos:    repos,
		Services: services,
		Prices:   prices,
		Cleanup:  cleanup,
	}
}

// initTestTables creates or truncates tables for testing
func initTestTables(db *sql.DB) error {
	// Create tables if not exist
	tables := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY,
			account_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			leverage INT NOT NULL,
			margin_type VARCHAR(10) NOT NULL,
			order_type VARCHAR(10) NOT NULL,
			limit_price DECIMAL(20, 8),
			quantity DECIMAL(20, 8) NOT NULL,
			take_profit_price DECIMAL(20, 8),
			stop_loss_price DECIMAL(20, 8),
			open_price DECIMAL(20, 8),
			liquidation_price DECIMAL(20, 8),
			initial_margin DECIMAL(20, 8) NOT NULL DEFAULT 0,
			close_price DECIMAL(20, 8),
			pnl DECIMAL(20, 8),
			close_reason VARCHAR(20) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			executed_at TIMESTAMP,
			closed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_balances (
			account_id VARCHAR(64) NOT NULL,
			asset VARCHAR(10) NOT NULL,
			balance DECIMAL(20, 8) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT NOW(),
			PRIMARY KEY (account_id, asset)
		)`,
		`CREATE TABLE IF NOT EXISTS trade_history (
			id UUID PRIMARY KEY,
			position_id UUID UNIQUE NOT NULL,
			account_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			leverage INT NOT NULL,
			margin_type VARCHAR(10) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			open_price DECIMAL(20, 8),
			close_price DECIMAL(20, 8),
			pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			executed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMP DEFAULT NOW(),
			type VARCHAR(50) NOT NULL,
			severity VARCHAR(10) DEFAULT 'info',
			account_id VARCHAR(64) NOT NULL,
			position_id UUID,
			message TEXT NOT NULL,
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
		"trade_history",
		"positions",
		"wallet_balances",
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
