package websocket

import (
	"time"

	"riskguard/internal/models"
)

// MessageType различает сообщения в общем WebSocket потоке
type MessageType string

const (
	// MessageTypeNotification - уведомление риск-контура: принудительное
	// закрытие, расхождение леджера, события монитора, ошибки
	MessageTypeNotification MessageType = "notification"

	// MessageTypeBalanceUpdate шлет фоновая задача обновления балансов
	MessageTypeBalanceUpdate MessageType = "balanceUpdate"
)

// BaseMessage встраивается в каждое исходящее сообщение
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now()}
}

// NotificationMessage - конверт уведомления для frontend.
// Полезная нагрузка лежит в поле data
type NotificationMessage struct {
	BaseMessage
	Data *NotificationData `json:"data"`
}

// NotificationData повторяет форму models.Notification на проводе
type NotificationData struct {
	// ID строки в БД
	ID int `json:"id"`

	// Адресат уведомления
	UserID int `json:"user_id"`

	// Тип события (FORCED_CLOSE, LEDGER_ALERT, MONITOR, ERROR)
	Type string `json:"type"`

	// Уровень важности (info, warn, error)
	Severity string `json:"severity"`

	// Связанная позиция, если событие привязано к конкретной
	PositionID *int `json:"position_id,omitempty"`

	// Заголовок и текст
	Title   string `json:"title"`
	Message string `json:"message"`

	// Произвольные метаданные события (символ, PNL, причина, cycle_id)
	Meta map[string]interface{} `json:"meta,omitempty"`

	// Момент создания уведомления
	Timestamp time.Time `json:"timestamp"`
}

// BalanceUpdateMessage несет свежий баланс биржевого аккаунта
type BalanceUpdateMessage struct {
	BaseMessage
	AccountID int     `json:"account_id"`
	Balance   float64 `json:"balance"`
}

// ============ Конструкторы сообщений ============

// NewNotificationMessage упаковывает уведомление в конверт
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	data := &NotificationData{
		ID:         notif.ID,
		UserID:     notif.UserID,
		Type:       notif.Type,
		Severity:   notif.Severity,
		PositionID: notif.PositionID,
		Title:      notif.Title,
		Message:    notif.Message,
		Meta:       notif.Meta,
		Timestamp:  notif.Timestamp,
	}
	return &NotificationMessage{
		BaseMessage: newBase(MessageTypeNotification),
		Data:        data,
	}
}

// NewBalanceUpdateMessage упаковывает баланс аккаунта в конверт
func NewBalanceUpdateMessage(accountID int, balance float64) *BalanceUpdateMessage {
	return &BalanceUpdateMessage{
		BaseMessage: newBase(MessageTypeBalanceUpdate),
		AccountID:   accountID,
		Balance:     balance,
	}
}
