package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"riskguard/internal/exchange"
	"riskguard/internal/models"
	"riskguard/internal/repository"
)

// ============ MockMonitoringRepository ============

// MockMonitoringRepository - мок репозитория цикла мониторинга
type MockMonitoringRepository struct {
	records    []*models.MonitoringRecord
	applied    []*models.ForcedClosure
	closedIDs  map[int]bool
	loadErr    error
	applyErr   error
	resetErr   error
	resetCount int64
}

// NewMockMonitoringRepository создает новый мок
func NewMockMonitoringRepository() *MockMonitoringRepository {
	return &MockMonitoringRepository{
		closedIDs: make(map[int]bool),
	}
}

func (m *MockMonitoringRepository) LoadOpenMonitoringRecords() ([]*models.MonitoringRecord, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.records, nil
}

func (m *MockMonitoringRepository) ApplyForcedClosure(fc *models.ForcedClosure) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	if m.closedIDs[fc.PositionID] {
		return repository.ErrPositionAlreadyClosed
	}
	m.closedIDs[fc.PositionID] = true
	m.applied = append(m.applied, fc)
	return nil
}

func (m *MockMonitoringRepository) ResetDailyCounters() (int64, error) {
	if m.resetErr != nil {
		return 0, m.resetErr
	}
	return m.resetCount, nil
}

// ============ MockPositionRepository ============

// MockPositionRepository - мок репозитория позиций
type MockPositionRepository struct {
	positions map[int]*models.Position
	createErr error
	getErr    error
	nextID    int
}

// NewMockPositionRepository создает новый мок
func NewMockPositionRepository() *MockPositionRepository {
	return &MockPositionRepository{
		positions: make(map[int]*models.Position),
		nextID:    1,
	}
}

func (m *MockPositionRepository) Create(position *models.Position) error {
	if m.createErr != nil {
		return m.createErr
	}
	position.ID = m.nextID
	m.nextID++
	if position.Status == "" {
		position.Status = models.PositionStatusOpen
	}
	position.CreatedAt = time.Now()
	position.UpdatedAt = time.Now()
	m.positions[position.ID] = position
	return nil
}

func (m *MockPositionRepository) GetByID(id int) (*models.Position, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	position, ok := m.positions[id]
	if !ok {
		return nil, repository.ErrPositionNotFound
	}
	return position, nil
}

func (m *MockPositionRepository) GetOpen() ([]*models.Position, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Position
	for _, p := range m.positions {
		if p.Status == models.PositionStatusOpen {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockPositionRepository) GetOpenBySubscription(subscriptionID int) ([]*models.Position, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Position
	for _, p := range m.positions {
		if p.Status == models.PositionStatusOpen && p.SubscriptionID == subscriptionID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockPositionRepository) GetRecentlyClosed(limit int) ([]*models.Position, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Position
	for _, p := range m.positions {
		if p.Status == models.PositionStatusClosed {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].ClosedAt, result[j].ClosedAt
		if ti == nil || tj == nil {
			return result[i].ID > result[j].ID
		}
		return ti.After(*tj)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockPositionRepository) CountOpen() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, p := range m.positions {
		if p.Status == models.PositionStatusOpen {
			count++
		}
	}
	return count, nil
}

// ============ MockSubscriptionRepository ============

// MockSubscriptionRepository - мок репозитория подписок
type MockSubscriptionRepository struct {
	subscriptions map[int]*models.Subscription
	symbolLimits  map[int]map[string]*models.SubscriptionSymbolLimit
	createErr     error
	getErr        error
	updateErr     error
	deleteErr     error
	nextID        int
	nextLimitID   int
}

// NewMockSubscriptionRepository создает новый мок
func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{
		subscriptions: make(map[int]*models.Subscription),
		symbolLimits:  make(map[int]map[string]*models.SubscriptionSymbolLimit),
		nextID:        1,
		nextLimitID:   1,
	}
}

func (m *MockSubscriptionRepository) Create(subscription *models.Subscription) error {
	if m.createErr != nil {
		return m.createErr
	}
	subscription.ID = m.nextID
	m.nextID++
	if subscription.Status == "" {
		subscription.Status = models.SubscriptionStatusActive
	}
	subscription.CreatedAt = time.Now()
	subscription.UpdatedAt = time.Now()
	m.subscriptions[subscription.ID] = subscription
	return nil
}

func (m *MockSubscriptionRepository) GetByID(id int) (*models.Subscription, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	subscription, ok := m.subscriptions[id]
	if !ok {
		return nil, repository.ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (m *MockSubscriptionRepository) GetAll() ([]*models.Subscription, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		result = append(result, sub)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockSubscriptionRepository) GetActive() ([]*models.Subscription, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Subscription
	for _, sub := range m.subscriptions {
		if sub.Status == models.SubscriptionStatusActive {
			result = append(result, sub)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockSubscriptionRepository) SetMaxDailyLoss(id int, maxDailyLoss *float64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	subscription, ok := m.subscriptions[id]
	if !ok {
		return repository.ErrSubscriptionNotFound
	}
	subscription.MaxDailyLoss = maxDailyLoss
	subscription.UpdatedAt = time.Now()
	return nil
}

func (m *MockSubscriptionRepository) GetSymbolLimits(subscriptionID int) ([]*models.SubscriptionSymbolLimit, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.SubscriptionSymbolLimit
	for _, limit := range m.symbolLimits[subscriptionID] {
		result = append(result, limit)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (m *MockSubscriptionRepository) UpsertSymbolLimit(limit *models.SubscriptionSymbolLimit) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	limits, ok := m.symbolLimits[limit.SubscriptionID]
	if !ok {
		limits = make(map[string]*models.SubscriptionSymbolLimit)
		m.symbolLimits[limit.SubscriptionID] = limits
	}
	// Как и в БД: при конфликте обновляется только потолок,
	// накопленный убыток сохраняется
	if existing, ok := limits[limit.Symbol]; ok {
		existing.MaxDailyLoss = limit.MaxDailyLoss
		existing.UpdatedAt = time.Now()
		limit.ID = existing.ID
		limit.CurrentDailyLoss = existing.CurrentDailyLoss
		return nil
	}
	limit.ID = m.nextLimitID
	m.nextLimitID++
	limit.CreatedAt = time.Now()
	limit.UpdatedAt = time.Now()
	limits[limit.Symbol] = limit
	return nil
}

func (m *MockSubscriptionRepository) DeleteSymbolLimit(subscriptionID int, symbol string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	limits, ok := m.symbolLimits[subscriptionID]
	if !ok {
		return repository.ErrSymbolLimitNotFound
	}
	if _, ok := limits[symbol]; !ok {
		return repository.ErrSymbolLimitNotFound
	}
	delete(limits, symbol)
	return nil
}

// ============ MockBotRepository ============

// MockBotRepository - мок репозитория ботов
type MockBotRepository struct {
	bots         map[int]*models.Bot
	symbolLimits map[int]map[string]*models.BotSymbolLimit
	createErr    error
	getErr       error
	updateErr    error
	deleteErr    error
	nextID       int
	nextLimitID  int
}

// NewMockBotRepository создает новый мок
func NewMockBotRepository() *MockBotRepository {
	return &MockBotRepository{
		bots:         make(map[int]*models.Bot),
		symbolLimits: make(map[int]map[string]*models.BotSymbolLimit),
		nextID:       1,
		nextLimitID:  1,
	}
}

func (m *MockBotRepository) Create(bot *models.Bot) error {
	if m.createErr != nil {
		return m.createErr
	}
	bot.ID = m.nextID
	m.nextID++
	if bot.Status == "" {
		bot.Status = models.BotStatusActive
	}
	bot.CreatedAt = time.Now()
	bot.UpdatedAt = time.Now()
	m.bots[bot.ID] = bot
	return nil
}

func (m *MockBotRepository) GetByID(id int) (*models.Bot, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	bot, ok := m.bots[id]
	if !ok {
		return nil, repository.ErrBotNotFound
	}
	return bot, nil
}

func (m *MockBotRepository) GetAll() ([]*models.Bot, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.Bot, 0, len(m.bots))
	for _, bot := range m.bots {
		result = append(result, bot)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockBotRepository) SetMaxDailyLoss(id int, maxDailyLoss *float64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	bot, ok := m.bots[id]
	if !ok {
		return repository.ErrBotNotFound
	}
	bot.MaxDailyLoss = maxDailyLoss
	bot.UpdatedAt = time.Now()
	return nil
}

func (m *MockBotRepository) GetSymbolLimits(botID int) ([]*models.BotSymbolLimit, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.BotSymbolLimit
	for _, limit := range m.symbolLimits[botID] {
		result = append(result, limit)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (m *MockBotRepository) UpsertSymbolLimit(limit *models.BotSymbolLimit) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	limits, ok := m.symbolLimits[limit.BotID]
	if !ok {
		limits = make(map[string]*models.BotSymbolLimit)
		m.symbolLimits[limit.BotID] = limits
	}
	if existing, ok := limits[limit.Symbol]; ok {
		existing.MaxDailyLoss = limit.MaxDailyLoss
		existing.UpdatedAt = time.Now()
		limit.ID = existing.ID
		limit.CurrentDailyLoss = existing.CurrentDailyLoss
		return nil
	}
	limit.ID = m.nextLimitID
	m.nextLimitID++
	limit.CreatedAt = time.Now()
	limit.UpdatedAt = time.Now()
	limits[limit.Symbol] = limit
	return nil
}

func (m *MockBotRepository) DeleteSymbolLimit(botID int, symbol string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	limits, ok := m.symbolLimits[botID]
	if !ok {
		return repository.ErrSymbolLimitNotFound
	}
	if _, ok := limits[symbol]; !ok {
		return repository.ErrSymbolLimitNotFound
	}
	delete(limits, symbol)
	return nil
}

// ============ MockExchangeAccountRepository ============

// MockExchangeAccountRepository - мок репозитория биржевых аккаунтов
type MockExchangeAccountRepository struct {
	accounts  map[int]*models.ExchangeAccount
	createErr error
	getErr    error
	updateErr error
	deleteErr error
	nextID    int
}

// NewMockExchangeAccountRepository создает новый мок
func NewMockExchangeAccountRepository() *MockExchangeAccountRepository {
	return &MockExchangeAccountRepository{
		accounts: make(map[int]*models.ExchangeAccount),
		nextID:   1,
	}
}

func (m *MockExchangeAccountRepository) Create(account *models.ExchangeAccount) error {
	if m.createErr != nil {
		return m.createErr
	}
	account.ID = m.nextID
	m.nextID++
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	m.accounts[account.ID] = account
	return nil
}

func (m *MockExchangeAccountRepository) GetByID(id int) (*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrExchangeAccountNotFound
	}
	return account, nil
}

func (m *MockExchangeAccountRepository) GetByUserID(userID int) ([]*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.ExchangeAccount
	for _, account := range m.accounts {
		if account.UserID == userID {
			result = append(result, account)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockExchangeAccountRepository) GetAll() ([]*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.ExchangeAccount, 0, len(m.accounts))
	for _, account := range m.accounts {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockExchangeAccountRepository) GetConnected() ([]*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.ExchangeAccount
	for _, account := range m.accounts {
		if account.Connected {
			result = append(result, account)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockExchangeAccountRepository) UpdateBalance(id int, balance float64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrExchangeAccountNotFound
	}
	account.Balance = balance
	account.UpdatedAt = time.Now()
	return nil
}

func (m *MockExchangeAccountRepository) SetConnected(id int, connected bool, lastError string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrExchangeAccountNotFound
	}
	account.Connected = connected
	account.LastError = lastError
	account.UpdatedAt = time.Now()
	return nil
}

func (m *MockExchangeAccountRepository) Delete(id int) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.accounts[id]; !ok {
		return repository.ErrExchangeAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *MockExchangeAccountRepository) CountConnected() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, account := range m.accounts {
		if account.Connected {
			count++
		}
	}
	return count, nil
}

// ============ MockNotificationRepository ============

// MockNotificationRepository - мок репозитория уведомлений.
// lastLimit запоминает limit последнего запроса списка для проверки клампинга.
type MockNotificationRepository struct {
	notifications []*models.Notification
	createErr     error
	getErr        error
	updateErr     error
	deleteErr     error
	nextID        int
	lastLimit     int
}

// NewMockNotificationRepository создает новый мок
func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{nextID: 1}
}

func (m *MockNotificationRepository) Create(notification *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	notification.ID = m.nextID
	m.nextID++
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}
	m.notifications = append(m.notifications, notification)
	return nil
}

func (m *MockNotificationRepository) GetByID(id int) (*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, n := range m.notifications {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, repository.ErrNotificationNotFound
}

func (m *MockNotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.lastLimit = limit
	return m.newestFirst(func(n *models.Notification) bool { return true }, limit), nil
}

func (m *MockNotificationRepository) GetByUserID(userID, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.lastLimit = limit
	return m.newestFirst(func(n *models.Notification) bool { return n.UserID == userID }, limit), nil
}

func (m *MockNotificationRepository) GetByPositionID(positionID, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.lastLimit = limit
	return m.newestFirst(func(n *models.Notification) bool {
		return n.PositionID != nil && *n.PositionID == positionID
	}, limit), nil
}

func (m *MockNotificationRepository) GetBySeverity(severity string, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.lastLimit = limit
	return m.newestFirst(func(n *models.Notification) bool { return n.Severity == severity }, limit), nil
}

func (m *MockNotificationRepository) MarkRead(id int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, n := range m.notifications {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

func (m *MockNotificationRepository) MarkAllRead(userID int) (int64, error) {
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	var marked int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			marked++
		}
	}
	return marked, nil
}

func (m *MockNotificationRepository) DeleteAll() error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.notifications = nil
	return nil
}

func (m *MockNotificationRepository) DeleteOlderThan(t time.Time) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var kept []*models.Notification
	var deleted int64
	for _, n := range m.notifications {
		if n.Timestamp.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return deleted, nil
}

func (m *MockNotificationRepository) KeepRecent(n int) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	if len(m.notifications) <= n {
		return 0, nil
	}
	deleted := int64(len(m.notifications) - n)
	m.notifications = m.notifications[len(m.notifications)-n:]
	return deleted, nil
}

func (m *MockNotificationRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.notifications), nil
}

func (m *MockNotificationRepository) CountUnreadByUserID(userID int) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

// newestFirst возвращает до limit подходящих уведомлений от новых к старым
func (m *MockNotificationRepository) newestFirst(match func(*models.Notification) bool, limit int) []*models.Notification {
	var result []*models.Notification
	for i := len(m.notifications) - 1; i >= 0 && len(result) < limit; i-- {
		if match(m.notifications[i]) {
			result = append(result, m.notifications[i])
		}
	}
	return result
}

// ============ MockWebSocketBroadcaster ============

// MockWebSocketBroadcaster - мок WebSocket hub для проверки broadcast уведомлений
type MockWebSocketBroadcaster struct {
	notifications []*models.Notification
}

// NewMockWebSocketBroadcaster создает новый мок
func NewMockWebSocketBroadcaster() *MockWebSocketBroadcaster {
	return &MockWebSocketBroadcaster{}
}

func (m *MockWebSocketBroadcaster) BroadcastNotification(notif *models.Notification) {
	m.notifications = append(m.notifications, notif)
}

// ============ MockBalanceBroadcaster ============

// MockBalanceBroadcaster - мок WebSocket hub для проверки broadcast балансов.
// Мьютекс нужен: RefreshAllBalances вызывает broadcast из нескольких горутин.
type MockBalanceBroadcaster struct {
	mu      sync.Mutex
	updates map[int]float64
}

// NewMockBalanceBroadcaster создает новый мок
func NewMockBalanceBroadcaster() *MockBalanceBroadcaster {
	return &MockBalanceBroadcaster{updates: make(map[int]float64)}
}

func (m *MockBalanceBroadcaster) BroadcastBalanceUpdate(accountID int, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[accountID] = balance
}

// BalanceFor возвращает последний broadcast баланс аккаунта
func (m *MockBalanceBroadcaster) BalanceFor(accountID int) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.updates[accountID]
	return balance, ok
}

// ============ MockExchange ============

// MockExchange - мок биржевого адаптера
type MockExchange struct {
	name         string
	balance      float64
	balanceErr   error
	positions    []*exchange.Position
	positionsErr error
	closeResult  *exchange.CloseResult
	closeErr     error
	connectErr   error
	closed       bool
	balanceCalls int
}

func (m *MockExchange) Connect(apiKey, secret, passphrase string) error {
	return m.connectErr
}

func (m *MockExchange) GetName() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *MockExchange) GetBalance(ctx context.Context) (float64, error) {
	m.balanceCalls++
	if m.balanceErr != nil {
		return 0, m.balanceErr
	}
	return m.balance, nil
}

func (m *MockExchange) GetOpenPositions(ctx context.Context) ([]*exchange.Position, error) {
	if m.positionsErr != nil {
		return nil, m.positionsErr
	}
	return m.positions, nil
}

func (m *MockExchange) ClosePosition(ctx context.Context, symbol, side string, qty float64) (*exchange.CloseResult, error) {
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

func (m *MockExchange) Close() error {
	m.closed = true
	return nil
}

// ============ Вспомогательные функции ============

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
