package monitor

import (
	"riskguard/internal/models"
	"riskguard/pkg/utils"
)

// Verdict - решение оценщика порогов по одной позиции
type Verdict struct {
	Breached bool
	Reason   string // models.CloseReasonSymbolRiskLimit или CloseReasonSubscriptionRiskLimit

	// Проекция дневного убытка пробитого уровня и его потолок
	ProjectedLoss float64
	MaxLoss       float64
}

// Evaluate решает, пробивает ли позиция с данным нереализованным PNL
// какой-либо из своих дневных риск-бюджетов.
//
// Чистая функция без I/O. Уровни проверяются от узкого к широкому:
// сначала лимит символа внутри подписки, затем лимит всей подписки.
// Узкий уровень всегда выигрывает, даже если пробиты оба.
//
// Уровни бота (symbol-within-bot, bot-global) триггерами не являются:
// они обновляются как учётные уровни при проводке закрытия.
func Evaluate(rec *models.MonitoringRecord, unrealizedPnl float64) Verdict {
	// Прибыльная или нулевая позиция никогда не закрывается принудительно,
	// каким бы ни было состояние бюджетов
	if unrealizedPnl >= 0 {
		return Verdict{}
	}
	loss := utils.Abs(unrealizedPnl)

	if scope := rec.SymbolScope; scope != nil && scope.Bounded() {
		if utils.WouldBreachDailyLimit(scope.CurrentDailyLoss, loss, *scope.MaxDailyLoss) {
			return Verdict{
				Breached:      true,
				Reason:        models.CloseReasonSymbolRiskLimit,
				ProjectedLoss: scope.CurrentDailyLoss + loss,
				MaxLoss:       *scope.MaxDailyLoss,
			}
		}
	}

	if scope := rec.SubscriptionScope; scope.Bounded() {
		if utils.WouldBreachDailyLimit(scope.CurrentDailyLoss, loss, *scope.MaxDailyLoss) {
			return Verdict{
				Breached:      true,
				Reason:        models.CloseReasonSubscriptionRiskLimit,
				ProjectedLoss: scope.CurrentDailyLoss + loss,
				MaxLoss:       *scope.MaxDailyLoss,
			}
		}
	}

	return Verdict{}
}
