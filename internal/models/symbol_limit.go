package models

import "time"

// SubscriptionSymbolLimit представляет дневной лимит убытка по одному символу
// внутри подписки. Самый узкий уровень риск-иерархии: проверяется первым.
type SubscriptionSymbolLimit struct {
	ID               int       `json:"id" db:"id"`
	SubscriptionID   int       `json:"subscription_id" db:"subscription_id"`
	Symbol           string    `json:"symbol" db:"symbol"`                           // BTCUSDT
	MaxDailyLoss     *float64  `json:"max_daily_loss,omitempty" db:"max_daily_loss"` // nil = лимит не задан
	CurrentDailyLoss float64   `json:"current_daily_loss" db:"current_daily_loss"`
	OpenPositions    int       `json:"open_positions" db:"open_positions"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// BotSymbolLimit представляет дневной лимит убытка по символу на уровне бота.
//
// Обновляется как учётный уровень при принудительном закрытии, но сам по себе
// не является триггером закрытия (см. monitor.Evaluate).
type BotSymbolLimit struct {
	ID               int       `json:"id" db:"id"`
	BotID            int       `json:"bot_id" db:"bot_id"`
	Symbol           string    `json:"symbol" db:"symbol"`
	MaxDailyLoss     *float64  `json:"max_daily_loss,omitempty" db:"max_daily_loss"` // nil = лимит не задан
	CurrentDailyLoss float64   `json:"current_daily_loss" db:"current_daily_loss"`
	OpenPositions    int       `json:"open_positions" db:"open_positions"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
