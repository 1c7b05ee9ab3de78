package models

import "time"

// Position представляет открытую маржинальную позицию подписки.
//
// Позиция никогда не удаляется физически: закрытие выполняется переводом
// status в "closed" с заполнением exit-полей.
type Position struct {
	ID             int        `json:"id" db:"id"`
	SubscriptionID int        `json:"subscription_id" db:"subscription_id"`
	Symbol         string     `json:"symbol" db:"symbol"` // BTCUSDT
	Side           string     `json:"side" db:"side"`     // long, short
	Status         string     `json:"status" db:"status"` // open, closed
	EntryPrice     float64    `json:"entry_price" db:"entry_price"`
	Quantity       float64    `json:"quantity" db:"quantity"` // объём в монетах актива
	Leverage       int        `json:"leverage" db:"leverage"`
	ExitPrice      *float64   `json:"exit_price,omitempty" db:"exit_price"`
	ExitQuantity   *float64   `json:"exit_quantity,omitempty" db:"exit_quantity"`
	RealizedPnl    *float64   `json:"realized_pnl,omitempty" db:"realized_pnl"`
	CloseReason    *string    `json:"close_reason,omitempty" db:"close_reason"`
	OpenedAt       time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Статусы позиции
const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Стороны позиции
const (
	PositionSideLong  = "long"
	PositionSideShort = "short"
)

// Причины закрытия позиции
const (
	CloseReasonSymbolRiskLimit       = "symbol_risk_limit"       // превышен лимит по символу подписки
	CloseReasonSubscriptionRiskLimit = "subscription_risk_limit" // превышен лимит подписки
	CloseReasonSignal                = "signal"                  // штатное закрытие по сигналу бота
	CloseReasonManual                = "manual"                  // закрыто пользователем
)

// IsOpen сообщает, открыта ли позиция.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// OppositeSide возвращает сторону компенсирующего ордера для закрытия.
func (p *Position) OppositeSide() string {
	if p.Side == PositionSideLong {
		return PositionSideShort
	}
	return PositionSideLong
}
