package utils

import (
	"math"
)

// math.go - математические утилиты для риск-контроля позиций
//
// Назначение:
// Вспомогательные математические функции для расчёта PNL и дневных лимитов.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - RoundToLotSize: округление объёма до шага биржи
// - CalculatePNL: расчет прибыли/убытка позиции
// - CalculateExitPrice: восстановление цены выхода из PNL
// - WouldBreachDailyLimit: проверка превышения дневного бюджета убытков

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Используется для округления объёма закрывающего ордера до минимального
// шага биржи. Округление вниз гарантирует, что мы не запросим закрытие
// большего объёма, чем реально открыто.
//
// Параметры:
//   - value: исходное значение (объём в монетах актива)
//   - lotSize: минимальный шаг изменения объёма на бирже
//
// Возвращает:
//   - Округлённое значение, кратное lotSize
//   - Если lotSize <= 0, возвращает исходное значение
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
//   - RoundToLotSize(100.5, 1.0) = 100.0
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	// Используем math.Floor для округления вниз
	// Безопаснее для закрытия - не превысим реальный объём позиции
	return math.Floor(value/lotSize) * lotSize
}

// RoundToLotSizeUp округляет значение ВВЕРХ до ближайшего кратного lotSize.
//
// Используется когда нужно гарантировать минимальный объём (например, minQty).
//
// Параметры:
//   - value: исходное значение
//   - lotSize: минимальный шаг
//
// Возвращает:
//   - Округлённое вверх значение, кратное lotSize
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize) * lotSize
}

// RoundToLotSizeNearest округляет к ближайшему кратному lotSize.
//
// Стандартное математическое округление. Используется для нормализации
// float-значений перед сравнением объёмов из БД и с биржи.
//
// Параметры:
//   - value: исходное значение
//   - lotSize: минимальный шаг
//
// Возвращает:
//   - Округлённое значение к ближайшему кратному lotSize
func RoundToLotSizeNearest(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Round(value/lotSize) * lotSize
}

// CalculatePNL расчитывает прибыль/убыток по позиции.
//
// Формулы:
//   - Long PNL = (P_current - P_entry) × qty
//   - Short PNL = (P_entry - P_current) × qty
//
// Параметры:
//   - side: "long" или "short"
//   - entryPrice: цена входа
//   - currentPrice: текущая/выходная цена
//   - quantity: объём позиции
//
// Возвращает:
//   - PNL в валюте котировки (обычно USDT)
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}

	switch side {
	case "long":
		// Лонг: прибыль если цена выросла
		return (currentPrice - entryPrice) * quantity
	case "short":
		// Шорт: прибыль если цена упала
		return (entryPrice - currentPrice) * quantity
	default:
		return 0
	}
}

// CalculateExitPrice восстанавливает цену выхода из зафиксированного PNL.
//
// Обратная операция к CalculatePNL: биржа отдаёт нереализованный PNL,
// а для записи закрытия в БД нужна эквивалентная цена выхода.
//
// Формулы:
//   - Long:  P_exit = P_entry + PNL / qty
//   - Short: P_exit = P_entry - PNL / qty
//
// Параметры:
//   - side: "long" или "short"
//   - entryPrice: цена входа
//   - pnl: прибыль/убыток позиции
//   - quantity: объём позиции
//
// Возвращает:
//   - Цену выхода, при которой позиция даёт указанный PNL
//   - entryPrice если quantity <= 0 или side неизвестен
//
// Примеры:
//   - CalculateExitPrice("long", 100, -15, 10) = 98.5
//   - CalculateExitPrice("short", 100, -15, 10) = 101.5
func CalculateExitPrice(side string, entryPrice, pnl, quantity float64) float64 {
	if quantity <= 0 {
		return entryPrice
	}

	switch side {
	case "long":
		return entryPrice + pnl/quantity
	case "short":
		return entryPrice - pnl/quantity
	default:
		return entryPrice
	}
}

// CalculatePNLPercent расчитывает PNL в процентах от нотионала позиции.
//
// Используется для человекочитаемых уведомлений о принудительном закрытии.
//
// Параметры:
//   - pnl: прибыль/убыток в валюте котировки
//   - entryPrice: цена входа
//   - quantity: объём позиции
//
// Возвращает:
//   - PNL в процентах от entryPrice × quantity
//   - 0 если нотионал некорректен
func CalculatePNLPercent(pnl, entryPrice, quantity float64) float64 {
	notional := entryPrice * quantity
	if notional <= 0 {
		return 0
	}
	return pnl / notional * 100
}

// WouldBreachDailyLimit проверяет, превысит ли дневной бюджет убытков
// добавление нового убытка к уже накопленному.
//
// Сравнение нестрогое: достижение бюджета ровно в ноль остатка
// уже считается превышением.
//
// Параметры:
//   - currentLoss: накопленный дневной убыток (>= 0)
//   - newLoss: величина нового убытка (>= 0)
//   - maxLoss: дневной бюджет убытков
//
// Возвращает:
//   - true если currentLoss + newLoss >= maxLoss
//
// Примечание: maxLoss = 0 означает нулевой бюджет, любой убыток превышает.
// Отсутствие лимита кодируется nil-указателем на уровне моделей и сюда
// не попадает.
func WouldBreachDailyLimit(currentLoss, newLoss, maxLoss float64) bool {
	return currentLoss+newLoss >= maxLoss
}

// Abs возвращает абсолютное значение числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Min возвращает минимум из двух чисел.
func Min(a, b float64) float64 {
	return math.Min(a, b)
}

// Max возвращает максимум из двух чисел.
func Max(a, b float64) float64 {
	return math.Max(a, b)
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
