package monitor

import (
	"context"
	"time"

	"riskguard/internal/exchange"
	"riskguard/internal/models"
	"riskguard/pkg/utils"
)

// Executor выполняет принудительное закрытие позиции на бирже
type Executor struct {
	exchanges           ConnectionProvider
	timeout             time.Duration
	divergenceTolerance float64
}

// NewExecutor создает новый экземпляр исполнителя
func NewExecutor(exchanges ConnectionProvider, timeout time.Duration, divergenceTolerance float64) *Executor {
	return &Executor{
		exchanges:           exchanges,
		timeout:             timeout,
		divergenceTolerance: divergenceTolerance,
	}
}

// ForceClose закрывает позицию рыночным ордером и собирает запись закрытия
// для леджера.
//
// Ровно одна попытка: при ошибке позиция остаётся открытой и будет
// переоценена в следующем цикле, ретраи здесь только размазали бы
// закрытие по времени на падающем рынке.
//
// Реализованный PNL берётся из снимка unrealizedPnl перед закрытием,
// цена выхода восстанавливается из него арифметически. Средняя цена
// исполнения от биржи используется только для контроля расхождения.
func (e *Executor) ForceClose(ctx context.Context, log *utils.Logger, rec *models.MonitoringRecord, unrealizedPnl float64, reason string) (*models.ForcedClosure, error) {
	closeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	symbol := utils.NormalizeSymbol(rec.Symbol)

	var result *exchange.CloseResult
	err := e.exchanges.WithConnection(closeCtx, rec.ExchangeAccountID, func(conn exchange.Exchange) error {
		res, err := conn.ClosePosition(closeCtx, symbol, rec.Side, rec.Quantity)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	exitQty := rec.Quantity
	if result.Quantity > 0 {
		exitQty = result.Quantity
	}

	exitPrice := utils.CalculateExitPrice(rec.Side, rec.EntryPrice, unrealizedPnl, exitQty)

	closedAt := result.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	e.checkFillDivergence(log, rec, result, exitPrice)

	return &models.ForcedClosure{
		PositionID:     rec.PositionID,
		SubscriptionID: rec.SubscriptionID,
		BotID:          rec.BotID,
		Symbol:         symbol,
		ExitPrice:      exitPrice,
		ExitQuantity:   exitQty,
		RealizedPnl:    unrealizedPnl,
		CloseReason:    reason,
		ClosedAt:       closedAt,
	}, nil
}

// checkFillDivergence сравнивает расчётную цену выхода со средней ценой
// исполнения от биржи. Расхождение сверх допуска сигнализирует о
// проскальзывании или устаревшем снимке PNL, позиция при этом уже закрыта,
// поэтому только предупреждение и метрика.
func (e *Executor) checkFillDivergence(log *utils.Logger, rec *models.MonitoringRecord, result *exchange.CloseResult, exitPrice float64) {
	if result.AvgFillPrice <= 0 || exitPrice <= 0 {
		return
	}
	diff := utils.Abs(result.AvgFillPrice-exitPrice) / exitPrice
	if diff <= e.divergenceTolerance {
		return
	}

	RecordFillDivergence(rec.Exchange)
	log.Warn("exit price diverges from exchange fill",
		utils.Exchange(rec.Exchange),
		utils.Symbol(rec.Symbol),
		utils.PositionID(rec.PositionID),
		utils.OrderID(result.OrderID),
		utils.Float64("calculated_exit", exitPrice),
		utils.Float64("avg_fill", result.AvgFillPrice),
		utils.Float64("divergence", diff),
		utils.Float64("tolerance", e.divergenceTolerance))
}
