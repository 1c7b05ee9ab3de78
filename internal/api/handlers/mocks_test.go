package handlers

import (
	"errors"
	"sync"
	"time"

	"riskguard/internal/models"
	"riskguard/internal/monitor"
	"riskguard/internal/repository"
	"riskguard/internal/service"
	"riskguard/pkg/utils"
)

// ============ Mock Position Service ============

// MockPositionService мок для PositionServiceInterface
type MockPositionService struct {
	positions map[int]*models.Position
	getErr    error
	nextID    int
	mu        sync.RWMutex
}

// NewMockPositionService создает новый мок сервиса позиций
func NewMockPositionService() *MockPositionService {
	return &MockPositionService{
		positions: make(map[int]*models.Position),
		nextID:    1,
	}
}

func (m *MockPositionService) GetOpenPositions() ([]*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		if p.IsOpen() {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *MockPositionService) GetPosition(id int) (*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	if position, exists := m.positions[id]; exists {
		return position, nil
	}
	return nil, service.ErrPositionNotFound
}

func (m *MockPositionService) GetClosedPositions(limit int) ([]*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	// Клампинг как в настоящем сервисе
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	result := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		if !p.IsOpen() {
			result = append(result, p)
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockPositionService) CountOpen() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return 0, m.getErr
	}

	count := 0
	for _, p := range m.positions {
		if p.IsOpen() {
			count++
		}
	}
	return count, nil
}

// SetError устанавливает ошибку для указанной операции
func (m *MockPositionService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "get":
		m.getErr = err
	}
}

// AddPosition добавляет позицию напрямую (для настройки тестов)
func (m *MockPositionService) AddPosition(position *models.Position) *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	if position.ID == 0 {
		position.ID = m.nextID
		m.nextID++
	}
	if position.OpenedAt.IsZero() {
		position.OpenedAt = time.Now()
	}
	m.positions[position.ID] = position
	return position
}

// ============ Mock Subscription Service ============

// MockSubscriptionService мок для SubscriptionServiceInterface
type MockSubscriptionService struct {
	subscriptions map[int]*models.Subscription
	bots          map[int]*models.Bot
	subLimits     map[int]map[string]*models.SubscriptionSymbolLimit
	botLimits     map[int]map[string]*models.BotSymbolLimit
	getErr        error
	setErr        error
	clearErr      error
	nextLimitID   int
	mu            sync.RWMutex
}

// NewMockSubscriptionService создает новый мок сервиса подписок
func NewMockSubscriptionService() *MockSubscriptionService {
	return &MockSubscriptionService{
		subscriptions: make(map[int]*models.Subscription),
		bots:          make(map[int]*models.Bot),
		subLimits:     make(map[int]map[string]*models.SubscriptionSymbolLimit),
		botLimits:     make(map[int]map[string]*models.BotSymbolLimit),
		nextLimitID:   1,
	}
}

func (m *MockSubscriptionService) GetSubscriptions() ([]*service.SubscriptionWithLimits, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*service.SubscriptionWithLimits, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		result = append(result, &service.SubscriptionWithLimits{
			Subscription: sub,
			SymbolLimits: m.collectSubLimits(sub.ID),
		})
	}
	return result, nil
}

func (m *MockSubscriptionService) GetSubscription(id int) (*service.SubscriptionWithLimits, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	sub, exists := m.subscriptions[id]
	if !exists {
		return nil, service.ErrSubscriptionNotFound
	}
	return &service.SubscriptionWithLimits{
		Subscription: sub,
		SymbolLimits: m.collectSubLimits(id),
	}, nil
}

func (m *MockSubscriptionService) SetSubscriptionBudget(id int, maxDailyLoss *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	if err := utils.ValidateDailyLossLimit(maxDailyLoss); err != nil {
		return err
	}

	sub, exists := m.subscriptions[id]
	if !exists {
		return service.ErrSubscriptionNotFound
	}
	sub.MaxDailyLoss = maxDailyLoss
	return nil
}

func (m *MockSubscriptionService) SetSymbolBudget(subscriptionID int, symbol string, maxDailyLoss *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	if err := utils.ValidateSymbol(symbol); err != nil {
		return err
	}
	if err := utils.ValidateDailyLossLimit(maxDailyLoss); err != nil {
		return err
	}

	if _, exists := m.subscriptions[subscriptionID]; !exists {
		return service.ErrSubscriptionNotFound
	}

	normalized := utils.NormalizeSymbol(symbol)
	if m.subLimits[subscriptionID] == nil {
		m.subLimits[subscriptionID] = make(map[string]*models.SubscriptionSymbolLimit)
	}
	if limit, exists := m.subLimits[subscriptionID][normalized]; exists {
		limit.MaxDailyLoss = maxDailyLoss
		return nil
	}
	m.subLimits[subscriptionID][normalized] = &models.SubscriptionSymbolLimit{
		ID:             m.nextLimitID,
		SubscriptionID: subscriptionID,
		Symbol:         normalized,
		MaxDailyLoss:   maxDailyLoss,
	}
	m.nextLimitID++
	return nil
}

func (m *MockSubscriptionService) ClearSymbolBudget(subscriptionID int, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clearErr != nil {
		return m.clearErr
	}
	if err := utils.ValidateSymbol(symbol); err != nil {
		return err
	}

	normalized := utils.NormalizeSymbol(symbol)
	if _, exists := m.subLimits[subscriptionID][normalized]; !exists {
		return service.ErrSymbolLimitNotFound
	}
	delete(m.subLimits[subscriptionID], normalized)
	return nil
}

func (m *MockSubscriptionService) GetBots() ([]*service.BotWithLimits, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*service.BotWithLimits, 0, len(m.bots))
	for _, bot := range m.bots {
		result = append(result, &service.BotWithLimits{
			Bot:          bot,
			SymbolLimits: m.collectBotLimits(bot.ID),
		})
	}
	return result, nil
}

func (m *MockSubscriptionService) SetBotBudget(botID int, maxDailyLoss *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	if err := utils.ValidateDailyLossLimit(maxDailyLoss); err != nil {
		return err
	}

	bot, exists := m.bots[botID]
	if !exists {
		return service.ErrBotNotFound
	}
	bot.MaxDailyLoss = maxDailyLoss
	return nil
}

func (m *MockSubscriptionService) SetBotSymbolBudget(botID int, symbol string, maxDailyLoss *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	if err := utils.ValidateSymbol(symbol); err != nil {
		return err
	}
	if err := utils.ValidateDailyLossLimit(maxDailyLoss); err != nil {
		return err
	}

	if _, exists := m.bots[botID]; !exists {
		return service.ErrBotNotFound
	}

	normalized := utils.NormalizeSymbol(symbol)
	if m.botLimits[botID] == nil {
		m.botLimits[botID] = make(map[string]*models.BotSymbolLimit)
	}
	if limit, exists := m.botLimits[botID][normalized]; exists {
		limit.MaxDailyLoss = maxDailyLoss
		return nil
	}
	m.botLimits[botID][normalized] = &models.BotSymbolLimit{
		ID:           m.nextLimitID,
		BotID:        botID,
		Symbol:       normalized,
		MaxDailyLoss: maxDailyLoss,
	}
	m.nextLimitID++
	return nil
}

func (m *MockSubscriptionService) ClearBotSymbolBudget(botID int, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clearErr != nil {
		return m.clearErr
	}
	if err := utils.ValidateSymbol(symbol); err != nil {
		return err
	}

	normalized := utils.NormalizeSymbol(symbol)
	if _, exists := m.botLimits[botID][normalized]; !exists {
		return service.ErrSymbolLimitNotFound
	}
	delete(m.botLimits[botID], normalized)
	return nil
}

// collectSubLimits собирает symbol-лимиты подписки (вызывать под блокировкой)
func (m *MockSubscriptionService) collectSubLimits(subscriptionID int) []*models.SubscriptionSymbolLimit {
	limits := make([]*models.SubscriptionSymbolLimit, 0, len(m.subLimits[subscriptionID]))
	for _, l := range m.subLimits[subscriptionID] {
		limits = append(limits, l)
	}
	return limits
}

// collectBotLimits собирает symbol-лимиты бота (вызывать под блокировкой)
func (m *MockSubscriptionService) collectBotLimits(botID int) []*models.BotSymbolLimit {
	limits := make([]*models.BotSymbolLimit, 0, len(m.botLimits[botID]))
	for _, l := range m.botLimits[botID] {
		limits = append(limits, l)
	}
	return limits
}

// SetError устанавливает ошибку для указанной операции
func (m *MockSubscriptionService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "get":
		m.getErr = err
	case "set":
		m.setErr = err
	case "clear":
		m.clearErr = err
	}
}

// AddSubscription добавляет подписку напрямую (для настройки тестов)
func (m *MockSubscriptionService) AddSubscription(sub *models.Subscription) *models.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscriptions[sub.ID] = sub
	return sub
}

// AddBot добавляет бота напрямую (для настройки тестов)
func (m *MockSubscriptionService) AddBot(bot *models.Bot) *models.Bot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bots[bot.ID] = bot
	return bot
}

// AddSymbolLimit добавляет symbol-лимит подписки напрямую (для настройки тестов)
func (m *MockSubscriptionService) AddSymbolLimit(subscriptionID int, symbol string, maxDailyLoss *float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subLimits[subscriptionID] == nil {
		m.subLimits[subscriptionID] = make(map[string]*models.SubscriptionSymbolLimit)
	}
	m.subLimits[subscriptionID][symbol] = &models.SubscriptionSymbolLimit{
		ID:             m.nextLimitID,
		SubscriptionID: subscriptionID,
		Symbol:         symbol,
		MaxDailyLoss:   maxDailyLoss,
	}
	m.nextLimitID++
}

// AddBotSymbolLimit добавляет symbol-лимит бота напрямую (для настройки тестов)
func (m *MockSubscriptionService) AddBotSymbolLimit(botID int, symbol string, maxDailyLoss *float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.botLimits[botID] == nil {
		m.botLimits[botID] = make(map[string]*models.BotSymbolLimit)
	}
	m.botLimits[botID][symbol] = &models.BotSymbolLimit{
		ID:           m.nextLimitID,
		BotID:        botID,
		Symbol:       symbol,
		MaxDailyLoss: maxDailyLoss,
	}
	m.nextLimitID++
}

// ============ Mock Notification Service ============

// MockNotificationService мок для NotificationServiceInterface
type MockNotificationService struct {
	notifications []*models.Notification
	createErr     error
	getErr        error
	markErr       error
	clearErr      error
	nextID        int
	mu            sync.RWMutex
}

// NewMockNotificationService создает новый мок сервиса уведомлений
func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{
		notifications: make([]*models.Notification, 0),
		nextID:        1,
	}
}

func (m *MockNotificationService) CreateNotification(notif *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}

	notif.ID = m.nextID
	m.nextID++
	notif.Timestamp = time.Now()
	m.notifications = append(m.notifications, notif)
	return nil
}

func (m *MockNotificationService) GetNotifications(limit int) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.Notification, 0, len(m.notifications))
	result = append(result, m.notifications...)

	limit = clampLimit(limit)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationService) GetUserNotifications(userID, limit int) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}

	limit = clampLimit(limit)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationService) MarkRead(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return m.markErr
	}

	for _, n := range m.notifications {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

func (m *MockNotificationService) MarkAllRead(userID int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return 0, m.markErr
	}

	var updated int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			updated++
		}
	}
	return updated, nil
}

func (m *MockNotificationService) ClearNotifications() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clearErr != nil {
		return m.clearErr
	}

	m.notifications = make([]*models.Notification, 0)
	return nil
}

func (m *MockNotificationService) GetNotificationCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.notifications), nil
}

// clampLimit повторяет клампинг настоящего сервиса (100 по умолчанию, 500 максимум)
func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// SetError устанавливает ошибку для указанной операции
func (m *MockNotificationService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "create":
		m.createErr = err
	case "get":
		m.getErr = err
	case "mark":
		m.markErr = err
	case "clear":
		m.clearErr = err
	}
}

// AddNotification добавляет уведомление напрямую (для настройки тестов)
func (m *MockNotificationService) AddNotification(userID int, notifType, severity, title, message string) *models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	notif := &models.Notification{
		ID:        m.nextID,
		UserID:    userID,
		Type:      notifType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
	m.nextID++
	m.notifications = append(m.notifications, notif)
	return notif
}

// ============ Mock Risk Service ============

// MockRiskService мок для RiskServiceInterface
type MockRiskService struct {
	resetRows  int64
	resetCalls int
	resetErr   error
	mu         sync.RWMutex
}

// NewMockRiskService создает новый мок сервиса риск-операций
func NewMockRiskService() *MockRiskService {
	return &MockRiskService{}
}

func (m *MockRiskService) ResetDailyCounters() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resetErr != nil {
		return 0, m.resetErr
	}
	m.resetCalls++
	return m.resetRows, nil
}

// SetError устанавливает ошибку для указанной операции
func (m *MockRiskService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "reset":
		m.resetErr = err
	}
}

// SetResetRows задает количество строк, возвращаемое сбросом
func (m *MockRiskService) SetResetRows(rows int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetRows = rows
}

// ResetCalls возвращает количество выполненных сбросов
func (m *MockRiskService) ResetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.resetCalls
}

// ============ Mock Monitor Source ============

// MockMonitorSource мок для MonitorSource
type MockMonitorSource struct {
	status monitor.Status
	mu     sync.RWMutex
}

// NewMockMonitorSource создает новый мок источника статуса монитора
func NewMockMonitorSource() *MockMonitorSource {
	return &MockMonitorSource{
		status: monitor.Status{
			State:    monitor.StateIdle,
			Interval: "30s",
			Workers:  4,
		},
	}
}

func (m *MockMonitorSource) Status() monitor.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.status
}

// SetStatus устанавливает статус напрямую (для настройки тестов)
func (m *MockMonitorSource) SetStatus(status monitor.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status = status
}

// ============ Helper errors for tests ============

var (
	ErrMockDatabase = errors.New("mock database error")
	ErrMockService  = errors.New("mock service error")
)

// floatPtr возвращает указатель на float64 (для литералов в тестах)
func floatPtr(v float64) *float64 {
	return &v
}

// ============ Проверяем, что моки реализуют интерфейсы ============

var _ service.PositionServiceInterface = (*MockPositionService)(nil)
var _ service.SubscriptionServiceInterface = (*MockSubscriptionService)(nil)
var _ service.NotificationServiceInterface = (*MockNotificationService)(nil)
var _ service.RiskServiceInterface = (*MockRiskService)(nil)
var _ MonitorSource = (*MockMonitorSource)(nil)
