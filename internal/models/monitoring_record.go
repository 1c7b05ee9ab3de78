package models

import "time"

// ScopeStat представляет срез одного уровня риск-бюджета на момент цикла
type ScopeStat struct {
	MaxDailyLoss     *float64 `json:"max_daily_loss,omitempty"` // nil = лимит не задан
	CurrentDailyLoss float64  `json:"current_daily_loss"`
}

// Bounded сообщает, задан ли на уровне потолок дневного убытка.
func (s ScopeStat) Bounded() bool {
	return s.MaxDailyLoss != nil
}

// MonitoringRecord представляет снапшот открытой позиции вместе с применимыми
// к ней риск-бюджетами.
//
// Формируется заново на каждый цикл монитора, никогда не сохраняется в БД
// и отбрасывается после обработки.
type MonitoringRecord struct {
	PositionID        int        `json:"position_id"`
	SubscriptionID    int        `json:"subscription_id"`
	BotID             int        `json:"bot_id"`
	UserID            int        `json:"user_id"`
	ExchangeAccountID int        `json:"exchange_account_id"`
	Exchange          string     `json:"exchange"`
	Symbol            string     `json:"symbol"`
	Side              string     `json:"side"` // long, short
	EntryPrice        float64    `json:"entry_price"`
	Quantity          float64    `json:"quantity"`
	Leverage          int        `json:"leverage"`
	SymbolScope       *ScopeStat `json:"symbol_scope,omitempty"` // nil если лимит по символу не заведён
	SubscriptionScope ScopeStat  `json:"subscription_scope"`
	LoadedAt          time.Time  `json:"loaded_at"`
}

// ForcedClosure представляет итог принудительного закрытия позиции,
// подлежащий атомарной проводке по всем уровням учёта.
type ForcedClosure struct {
	PositionID     int       `json:"position_id"`
	SubscriptionID int       `json:"subscription_id"`
	BotID          int       `json:"bot_id"`
	Symbol         string    `json:"symbol"`
	ExitPrice      float64   `json:"exit_price"`
	ExitQuantity   float64   `json:"exit_quantity"`
	RealizedPnl    float64   `json:"realized_pnl"`
	CloseReason    string    `json:"close_reason"`
	ClosedAt       time.Time `json:"closed_at"`
}

// LossDelta возвращает вклад закрытия в дневной убыток: прибыльные и нулевые
// закрытия дневной счётчик не двигают.
func (fc *ForcedClosure) LossDelta() float64 {
	if fc.RealizedPnl < 0 {
		return -fc.RealizedPnl
	}
	return 0
}
