package exchange

import (
	"context"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Exchange определяет унифицированный интерфейс для работы с любой биржей
type Exchange interface {
	// Connect проверяет API ключи и подготавливает клиент к работе
	Connect(apiKey, secret, passphrase string) error

	// GetName возвращает имя биржи
	GetName() string

	// GetBalance получает equity фьючерсного аккаунта в USDT
	GetBalance(ctx context.Context) (float64, error)

	// GetOpenPositions получает список открытых позиций
	GetOpenPositions(ctx context.Context) ([]*Position, error)

	// ClosePosition закрывает позицию reduce-only рыночным ордером.
	// qty задается в монетах базового актива.
	ClosePosition(ctx context.Context, symbol, side string, qty float64) (*CloseResult, error)

	// Close закрывает соединения с биржей
	Close() error
}

// Position представляет открытую позицию
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`        // "long" или "short"
	Size          float64   `json:"size"`        // объем в монетах базового актива
	EntryPrice    float64   `json:"entry_price"` // средняя цена входа
	MarkPrice     float64   `json:"mark_price"`  // текущая маркет цена
	Leverage      int       `json:"leverage"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	Liquidation   bool      `json:"liquidation"` // позиция в процессе ликвидации
	UpdatedAt     time.Time `json:"updated_at"`
}

// CloseResult содержит параметры исполненного закрывающего ордера
type CloseResult struct {
	OrderID      string    `json:"order_id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`     // сторона закрывающего ордера: "buy" или "sell"
	Quantity     float64   `json:"quantity"` // фактически закрытый объем в монетах
	AvgFillPrice float64   `json:"avg_fill_price"` // 0 если биржа не вернула цену исполнения
	ClosedAt     time.Time `json:"closed_at"`
}

// orderFill содержит параметры исполнения ордера, запрошенные после размещения
type orderFill struct {
	qty   float64
	price float64
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Side constants for orders (используются при размещении ордеров)
const (
	SideBuy  = "buy"  // покупка (открытие long или закрытие short)
	SideSell = "sell" // продажа (открытие short или закрытие long)
)

// Side constants for positions (используются для описания направления позиции)
const (
	SideLong  = "long"  // длинная позиция (ставка на рост)
	SideShort = "short" // короткая позиция (ставка на падение)
)

// parseFloat разбирает числовую строку биржевого ответа, пустая строка дает 0
func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
