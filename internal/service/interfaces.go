package service

import (
	"time"

	"riskguard/internal/models"
	"riskguard/internal/repository"
)

// MonitoringRepositoryInterface определяет интерфейс репозитория цикла мониторинга
type MonitoringRepositoryInterface interface {
	LoadOpenMonitoringRecords() ([]*models.MonitoringRecord, error)
	ApplyForcedClosure(fc *models.ForcedClosure) error
	ResetDailyCounters() (int64, error)
}

// PositionRepositoryInterface определяет интерфейс репозитория позиций
type PositionRepositoryInterface interface {
	Create(position *models.Position) error
	GetByID(id int) (*models.Position, error)
	GetOpen() ([]*models.Position, error)
	GetOpenBySubscription(subscriptionID int) ([]*models.Position, error)
	GetRecentlyClosed(limit int) ([]*models.Position, error)
	CountOpen() (int, error)
}

// SubscriptionRepositoryInterface определяет интерфейс репозитория подписок
type SubscriptionRepositoryInterface interface {
	Create(subscription *models.Subscription) error
	GetByID(id int) (*models.Subscription, error)
	GetAll() ([]*models.Subscription, error)
	GetActive() ([]*models.Subscription, error)
	SetMaxDailyLoss(id int, maxDailyLoss *float64) error
	GetSymbolLimits(subscriptionID int) ([]*models.SubscriptionSymbolLimit, error)
	UpsertSymbolLimit(limit *models.SubscriptionSymbolLimit) error
	DeleteSymbolLimit(subscriptionID int, symbol string) error
}

// BotRepositoryInterface определяет интерфейс репозитория ботов
type BotRepositoryInterface interface {
	Create(bot *models.Bot) error
	GetByID(id int) (*models.Bot, error)
	GetAll() ([]*models.Bot, error)
	SetMaxDailyLoss(id int, maxDailyLoss *float64) error
	GetSymbolLimits(botID int) ([]*models.BotSymbolLimit, error)
	UpsertSymbolLimit(limit *models.BotSymbolLimit) error
	DeleteSymbolLimit(botID int, symbol string) error
}

// ExchangeAccountRepositoryInterface определяет интерфейс репозитория биржевых аккаунтов
type ExchangeAccountRepositoryInterface interface {
	Create(account *models.ExchangeAccount) error
	GetByID(id int) (*models.ExchangeAccount, error)
	GetByUserID(userID int) ([]*models.ExchangeAccount, error)
	GetAll() ([]*models.ExchangeAccount, error)
	GetConnected() ([]*models.ExchangeAccount, error)
	UpdateBalance(id int, balance float64) error
	SetConnected(id int, connected bool, lastError string) error
	Delete(id int) error
	CountConnected() (int, error)
}

// NotificationRepositoryInterface определяет интерфейс репозитория уведомлений
type NotificationRepositoryInterface interface {
	Create(notification *models.Notification) error
	GetByID(id int) (*models.Notification, error)
	GetRecent(limit int) ([]*models.Notification, error)
	GetByUserID(userID, limit int) ([]*models.Notification, error)
	GetByPositionID(positionID, limit int) ([]*models.Notification, error)
	GetBySeverity(severity string, limit int) ([]*models.Notification, error)
	MarkRead(id int) error
	MarkAllRead(userID int) (int64, error)
	DeleteAll() error
	DeleteOlderThan(t time.Time) (int64, error)
	KeepRecent(n int) (int64, error)
	Count() (int, error)
	CountUnreadByUserID(userID int) (int, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ MonitoringRepositoryInterface = (*repository.MonitoringRepository)(nil)
var _ PositionRepositoryInterface = (*repository.PositionRepository)(nil)
var _ SubscriptionRepositoryInterface = (*repository.SubscriptionRepository)(nil)
var _ BotRepositoryInterface = (*repository.BotRepository)(nil)
var _ ExchangeAccountRepositoryInterface = (*repository.ExchangeAccountRepository)(nil)
var _ NotificationRepositoryInterface = (*repository.NotificationRepository)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// PositionServiceInterface определяет интерфейс сервиса позиций
type PositionServiceInterface interface {
	GetOpenPositions() ([]*models.Position, error)
	GetPosition(id int) (*models.Position, error)
	GetClosedPositions(limit int) ([]*models.Position, error)
	CountOpen() (int, error)
}

// SubscriptionServiceInterface определяет интерфейс сервиса подписок и бюджетов
type SubscriptionServiceInterface interface {
	GetSubscriptions() ([]*SubscriptionWithLimits, error)
	GetSubscription(id int) (*SubscriptionWithLimits, error)
	SetSubscriptionBudget(id int, maxDailyLoss *float64) error
	SetSymbolBudget(subscriptionID int, symbol string, maxDailyLoss *float64) error
	ClearSymbolBudget(subscriptionID int, symbol string) error
	GetBots() ([]*BotWithLimits, error)
	SetBotBudget(botID int, maxDailyLoss *float64) error
	SetBotSymbolBudget(botID int, symbol string, maxDailyLoss *float64) error
	ClearBotSymbolBudget(botID int, symbol string) error
}

// NotificationServiceInterface определяет интерфейс сервиса уведомлений
type NotificationServiceInterface interface {
	CreateNotification(notif *models.Notification) error
	GetNotifications(limit int) ([]*models.Notification, error)
	GetUserNotifications(userID, limit int) ([]*models.Notification, error)
	MarkRead(id int) error
	MarkAllRead(userID int) (int64, error)
	ClearNotifications() error
	GetNotificationCount() (int, error)
}

// RiskServiceInterface определяет интерфейс сервиса операций риск-учёта
type RiskServiceInterface interface {
	ResetDailyCounters() (int64, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ PositionServiceInterface = (*PositionService)(nil)
var _ SubscriptionServiceInterface = (*SubscriptionService)(nil)
var _ NotificationServiceInterface = (*NotificationService)(nil)
var _ RiskServiceInterface = (*RiskService)(nil)
