package monitor

import (
	"context"
	"errors"
	"time"

	"riskguard/internal/exchange"
	"riskguard/internal/models"
	"riskguard/pkg/retry"
	"riskguard/pkg/utils"
)

// ErrPositionNotOnExchange возвращается, если биржа не отдала позицию записи.
// Обычно это значит, что позиция уже закрыта вне контура (вручную или ботом).
var ErrPositionNotOnExchange = errors.New("position not found on exchange")

// Prober опрашивает биржу на предмет текущей экспозиции одной позиции
type Prober struct {
	exchanges ConnectionProvider
	timeout   time.Duration
}

// NewProber создает новый экземпляр пробера
func NewProber(exchanges ConnectionProvider, timeout time.Duration) *Prober {
	return &Prober{exchanges: exchanges, timeout: timeout}
}

// Probe возвращает нереализованный PNL позиции по данным биржи.
//
// Адаптер выбирается по биржевому аккаунту записи, позиция ищется по
// нормализованному символу и направлению. Любая ошибка адаптера, таймаут
// или отсутствие позиции на бирже означают пропуск записи в этом цикле:
// вызывающая сторона трактует ошибку как ok=false и идёт дальше.
//
// Сетевые сбои ретраятся внутри таймаута опроса, ErrPositionNotOnExchange
// не ретраится: повторный листинг позиций её не вернёт.
func (p *Prober) Probe(ctx context.Context, rec *models.MonitoringRecord) (float64, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	symbol := utils.NormalizeSymbol(rec.Symbol)

	var unrealized float64
	err := p.exchanges.WithConnection(probeCtx, rec.ExchangeAccountID, func(conn exchange.Exchange) error {
		cfg := retry.ProbeConfig()
		cfg.RetryIf = retry.RetryIfNotContext

		positions, err := retry.DoWithResult(probeCtx, func() ([]*exchange.Position, error) {
			return conn.GetOpenPositions(probeCtx)
		}, cfg)
		if err != nil {
			return err
		}

		for _, pos := range positions {
			if utils.NormalizeSymbol(pos.Symbol) == symbol && pos.Side == rec.Side {
				unrealized = pos.UnrealizedPnl
				return nil
			}
		}
		return ErrPositionNotOnExchange
	})
	if err != nil {
		return 0, err
	}

	return unrealized, nil
}
