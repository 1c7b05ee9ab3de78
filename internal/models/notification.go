package models

import "time"

// Notification представляет уведомление пользователя о событии риск-контура
type Notification struct {
	ID         int                    `json:"id" db:"id"`
	UserID     int                    `json:"user_id" db:"user_id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	Type       string                 `json:"type" db:"type"`         // FORCED_CLOSE, LEDGER_ALERT, MONITOR, ERROR
	Severity   string                 `json:"severity" db:"severity"` // info, warn, error
	PositionID *int                   `json:"position_id,omitempty" db:"position_id"`
	Title      string                 `json:"title" db:"title"`
	Message    string                 `json:"message" db:"message"`
	Read       bool                   `json:"read" db:"read"`
	Meta       map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeForcedClose = "FORCED_CLOSE" // принудительное закрытие по риск-лимиту
	NotificationTypeLedgerAlert = "LEDGER_ALERT" // расхождение состояния биржи и БД
	NotificationTypeMonitor     = "MONITOR"      // запуск/остановка риск-монитора
	NotificationTypeError       = "ERROR"        // ошибка API/адаптера
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
