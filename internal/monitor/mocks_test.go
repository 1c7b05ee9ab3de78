package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"riskguard/internal/exchange"
	"riskguard/internal/models"
	"riskguard/internal/repository"
	"riskguard/pkg/utils"
)

// ============ mockLedger ============

// mockLedger - мок леджера мониторинга.
// applyFailN > 0 имитирует транзиентный сбой: первые N записей падают
// с applyErr, дальше проходят. applyFailN == 0 при заданном applyErr
// означает постоянный сбой.
type mockLedger struct {
	mu         sync.Mutex
	records    []*models.MonitoringRecord
	loadErr    error
	applyErr   error
	applyFailN int
	applyCalls int
	applied    []*models.ForcedClosure
	closedIDs  map[int]bool
}

func newMockLedger(records ...*models.MonitoringRecord) *mockLedger {
	return &mockLedger{
		records:   records,
		closedIDs: make(map[int]bool),
	}
}

func (m *mockLedger) LoadOpenMonitoringRecords() ([]*models.MonitoringRecord, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.records, nil
}

func (m *mockLedger) ApplyForcedClosure(fc *models.ForcedClosure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.applyCalls++
	if m.applyErr != nil {
		if m.applyFailN == 0 || m.applyCalls <= m.applyFailN {
			return m.applyErr
		}
	}
	if m.closedIDs[fc.PositionID] {
		return repository.ErrPositionAlreadyClosed
	}
	m.closedIDs[fc.PositionID] = true
	m.applied = append(m.applied, fc)
	return nil
}

func (m *mockLedger) appliedClosures() []*models.ForcedClosure {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ForcedClosure, len(m.applied))
	copy(out, m.applied)
	return out
}

// ============ mockConnProvider ============

// mockConnProvider - мок пула биржевых соединений.
// Аккаунт без зарегистрированной биржи получает ErrUnsupportedExchange,
// как и сервис при неизвестном имени биржи.
type mockConnProvider struct {
	exchanges map[int]exchange.Exchange
	err       error
}

func newMockConnProvider() *mockConnProvider {
	return &mockConnProvider{exchanges: make(map[int]exchange.Exchange)}
}

func (m *mockConnProvider) WithConnection(ctx context.Context, accountID int, fn func(conn exchange.Exchange) error) error {
	if m.err != nil {
		return m.err
	}
	conn, ok := m.exchanges[accountID]
	if !ok {
		return fmt.Errorf("account %d: %w", accountID, exchange.ErrUnsupportedExchange)
	}
	return fn(conn)
}

// ============ mockExchange ============

// mockExchange - мок биржевого адаптера.
// positionsFailN > 0: первые N вызовов GetOpenPositions падают с
// positionsErr, дальше успех. positionsFailN == 0 при заданной ошибке
// означает постоянный сбой.
type mockExchange struct {
	mu              sync.Mutex
	name            string
	positions       []*exchange.Position
	positionsErr    error
	positionsFailN  int
	positionCalls   int
	closeResult     *exchange.CloseResult
	closeErr        error
	closeCalls      int
	lastCloseSymbol string
	lastCloseSide   string
	lastCloseQty    float64
}

func (m *mockExchange) Connect(apiKey, secret, passphrase string) error { return nil }

func (m *mockExchange) GetName() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockExchange) GetBalance(ctx context.Context) (float64, error) { return 0, nil }

func (m *mockExchange) GetOpenPositions(ctx context.Context) ([]*exchange.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.positionCalls++
	if m.positionsErr != nil {
		if m.positionsFailN == 0 || m.positionCalls <= m.positionsFailN {
			return nil, m.positionsErr
		}
	}
	return m.positions, nil
}

func (m *mockExchange) ClosePosition(ctx context.Context, symbol, side string, qty float64) (*exchange.CloseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCalls++
	m.lastCloseSymbol = symbol
	m.lastCloseSide = side
	m.lastCloseQty = qty

	if m.closeErr != nil {
		return nil, m.closeErr
	}
	if m.closeResult != nil {
		return m.closeResult, nil
	}
	return &exchange.CloseResult{
		OrderID:  "mock-order",
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		ClosedAt: time.Now(),
	}, nil
}

func (m *mockExchange) Close() error { return nil }

// ============ mockNotifier ============

type forcedCloseCall struct {
	userID  int
	fc      *models.ForcedClosure
	cycleID string
}

type ledgerAlertCall struct {
	userID     int
	positionID int
	message    string
	meta       map[string]interface{}
}

// mockNotifier - мок канала уведомлений
type mockNotifier struct {
	mu            sync.Mutex
	forcedCloses  []forcedCloseCall
	ledgerAlerts  []ledgerAlertCall
	monitorEvents []string

	forcedCloseErr  error
	ledgerAlertErr  error
	monitorEventErr error
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{}
}

func (m *mockNotifier) NotifyForcedClose(userID int, fc *models.ForcedClosure, cycleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedCloseErr != nil {
		return m.forcedCloseErr
	}
	m.forcedCloses = append(m.forcedCloses, forcedCloseCall{userID: userID, fc: fc, cycleID: cycleID})
	return nil
}

func (m *mockNotifier) NotifyLedgerAlert(userID, positionID int, message string, meta map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledgerAlertErr != nil {
		return m.ledgerAlertErr
	}
	m.ledgerAlerts = append(m.ledgerAlerts, ledgerAlertCall{
		userID:     userID,
		positionID: positionID,
		message:    message,
		meta:       meta,
	})
	return nil
}

func (m *mockNotifier) NotifyMonitorEvent(message string, meta map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.monitorEventErr != nil {
		return m.monitorEventErr
	}
	m.monitorEvents = append(m.monitorEvents, message)
	return nil
}

func (m *mockNotifier) forcedCloseCalls() []forcedCloseCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]forcedCloseCall, len(m.forcedCloses))
	copy(out, m.forcedCloses)
	return out
}

func (m *mockNotifier) ledgerAlertCalls() []ledgerAlertCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledgerAlertCall, len(m.ledgerAlerts))
	copy(out, m.ledgerAlerts)
	return out
}

func (m *mockNotifier) monitorEventMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.monitorEvents))
	copy(out, m.monitorEvents)
	return out
}

// ============ mockAlerter ============

// mockAlerter - мок операторского алертера
type mockAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *mockAlerter) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
}

func (a *mockAlerter) Alertf(format string, args ...interface{}) {
	a.Alert(fmt.Sprintf(format, args...))
}

func (a *mockAlerter) alertMessages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.messages))
	copy(out, a.messages)
	return out
}

// ============ Вспомогательные функции ============

func floatPtr(v float64) *float64 { return &v }

// testScope строит статистику скоупа с текущим убытком и потолком
func testScope(current float64, max *float64) models.ScopeStat {
	return models.ScopeStat{MaxDailyLoss: max, CurrentDailyLoss: current}
}

func scopePtr(s models.ScopeStat) *models.ScopeStat { return &s }

// testLogger возвращает логгер, молчащий в тестах
func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "fatal"})
}

// testRecord строит запись мониторинга с типовыми идентификаторами
func testRecord(positionID, accountID int, symbol, side string, entry, qty float64, symbolScope *models.ScopeStat, subScope models.ScopeStat) *models.MonitoringRecord {
	return &models.MonitoringRecord{
		PositionID:        positionID,
		SubscriptionID:    positionID + 100,
		BotID:             positionID + 200,
		UserID:            positionID + 300,
		ExchangeAccountID: accountID,
		Exchange:          "bybit",
		Symbol:            symbol,
		Side:              side,
		EntryPrice:        entry,
		Quantity:          qty,
		Leverage:          1,
		SymbolScope:       symbolScope,
		SubscriptionScope: subScope,
		LoadedAt:          time.Now(),
	}
}

// exchangePosition строит позицию в формате биржевого адаптера
func exchangePosition(symbol, side string, unrealized float64) *exchange.Position {
	return &exchange.Position{
		Symbol:        symbol,
		Side:          side,
		Size:          1,
		EntryPrice:    100,
		MarkPrice:     100,
		Leverage:      1,
		UnrealizedPnl: unrealized,
		UpdatedAt:     time.Now(),
	}
}
