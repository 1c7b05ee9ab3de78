package models

import "time"

// Subscription представляет подписку пользователя на бота.
//
// Подписка привязана к одному биржевому аккаунту и несёт собственный
// дневной риск-бюджет: current_daily_loss накапливает реализованные убытки
// с момента последнего дневного сброса, max_daily_loss задаёт потолок.
type Subscription struct {
	ID                int       `json:"id" db:"id"`
	UserID            int       `json:"user_id" db:"user_id"`
	BotID             int       `json:"bot_id" db:"bot_id"`
	ExchangeAccountID int       `json:"exchange_account_id" db:"exchange_account_id"`
	Exchange          string    `json:"exchange" db:"exchange"`                       // bybit, okx, bitget
	Status            string    `json:"status" db:"status"`                           // active, paused, cancelled
	MaxDailyLoss      *float64  `json:"max_daily_loss,omitempty" db:"max_daily_loss"` // nil = лимит не задан
	CurrentDailyLoss  float64   `json:"current_daily_loss" db:"current_daily_loss"`   // USDT за текущий день
	OpenPositions     int       `json:"open_positions" db:"open_positions"`
	TotalPnl          float64   `json:"total_pnl" db:"total_pnl"`
	WinCount          int       `json:"win_count" db:"win_count"`
	LossCount         int       `json:"loss_count" db:"loss_count"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Статусы подписки
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPaused    = "paused"
	SubscriptionStatusCancelled = "cancelled"
)
