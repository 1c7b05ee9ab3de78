package models

import "time"

// Bot представляет торгового бота (стратегию), на которого подписываются пользователи
type Bot struct {
	ID               int       `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Status           string    `json:"status" db:"status"`                           // active, paused, archived
	MaxDailyLoss     *float64  `json:"max_daily_loss,omitempty" db:"max_daily_loss"` // nil = лимит не задан
	CurrentDailyLoss float64   `json:"current_daily_loss" db:"current_daily_loss"`   // накопленный убыток за день (USDT)
	OpenPositions    int       `json:"open_positions" db:"open_positions"`           // суммарно по всем подпискам
	TotalPnl         float64   `json:"total_pnl" db:"total_pnl"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Статусы бота
const (
	BotStatusActive   = "active"
	BotStatusPaused   = "paused"
	BotStatusArchived = "archived"
)
