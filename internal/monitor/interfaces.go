package monitor

import (
	"context"

	"riskguard/internal/exchange"
	"riskguard/internal/models"
	"riskguard/internal/repository"
	"riskguard/internal/service"
)

// Ledger - операции хранилища, потребляемые циклом монитора.
//
// LoadOpenMonitoringRecords строит снапшот цикла, ApplyForcedClosure проводит
// состоявшееся закрытие по всем уровням учёта одной транзакцией.
type Ledger interface {
	LoadOpenMonitoringRecords() ([]*models.MonitoringRecord, error)
	ApplyForcedClosure(fc *models.ForcedClosure) error
}

// ConnectionProvider выдаёт монопольный доступ к биржевой сессии аккаунта.
//
// Пока fn выполняется, никакая другая горутина не работает с этой же
// credential-сессией: SDK бирж не рассчитаны на конкурентное использование
// одной сессии.
type ConnectionProvider interface {
	WithConnection(ctx context.Context, accountID int, fn func(conn exchange.Exchange) error) error
}

// Notifier - best-effort уведомления пользователя о событиях контура.
// Ошибки уведомлений логируются и не влияют на уже выполненные шаги.
type Notifier interface {
	NotifyForcedClose(userID int, fc *models.ForcedClosure, cycleID string) error
	NotifyLedgerAlert(userID, positionID int, message string, meta map[string]interface{}) error
	NotifyMonitorEvent(message string, meta map[string]interface{}) error
}

// OpsAlerter - операторский канал для событий, требующих ручного вмешательства
type OpsAlerter interface {
	Alert(msg string)
	Alertf(format string, args ...interface{})
}

// Проверяем, что реальные зависимости реализуют интерфейсы
var _ Ledger = (*repository.MonitoringRepository)(nil)
var _ ConnectionProvider = (*service.ExchangeService)(nil)
var _ Notifier = (*service.NotificationService)(nil)
