package utils

import (
	"time"
)

// time.go - работа с суточным окном учёта убытков
//
// Окно совпадает с календарным днём в UTC, поэтому все границы
// считаются в UTC независимо от локальной зоны сервера. Сюда же
// вынесены миллисекундные timestamp для подписи биржевых запросов.

// ============================================================
// Границы суточного окна
// ============================================================

// GetDayStart возвращает начало текущего UTC-дня (00:00:00)
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom возвращает начало UTC-дня, содержащего момент t
func GetDayStartFrom(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GetDayEnd возвращает конец текущего UTC-дня (23:59:59.999999999)
func GetDayEnd() time.Time {
	return GetDayEndFrom(time.Now().UTC())
}

// GetDayEndFrom возвращает последний наносекундный тик UTC-дня момента t
func GetDayEndFrom(t time.Time) time.Time {
	return GetDayStartFrom(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// GetPreviousDayStart возвращает начало вчерашнего UTC-дня
func GetPreviousDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC().AddDate(0, 0, -1))
}

// GetNextDayStart возвращает начало следующего суточного окна.
// До этого момента внешний планировщик должен сбросить дневные
// счётчики убытков
func GetNextDayStart() time.Time {
	return GetNextDayStartFrom(time.Now().UTC())
}

// GetNextDayStartFrom возвращает начало UTC-дня, следующего за моментом t
func GetNextDayStartFrom(t time.Time) time.Time {
	return GetDayStartFrom(t.UTC().AddDate(0, 0, 1))
}

// IsSameUTCDay сообщает, лежат ли два момента в одном UTC-дне.
// Накопленные убытки сравнимы только внутри одного окна
func IsSameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// ============================================================
// Диапазоны
// ============================================================

// TimeRange - замкнутый интервал [Start, End]
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains сообщает, попадает ли момент t в интервал
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration возвращает длину интервала
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// GetDayRange возвращает интервал текущего UTC-дня
func GetDayRange() TimeRange {
	now := time.Now().UTC()
	return TimeRange{Start: GetDayStartFrom(now), End: GetDayEndFrom(now)}
}

// GetLastNHours возвращает интервал последних n часов (минимум один час)
func GetLastNHours(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	end := time.Now().UTC()
	return TimeRange{Start: end.Add(-time.Duration(n) * time.Hour), End: end}
}

// ============================================================
// Форматирование
// ============================================================

// FormatDuration печатает продолжительность для логов и уведомлений.
// Знак отбрасывается, значение огрубляется до двух старших единиц
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var out time.Duration
	switch {
	case days > 0:
		out = time.Duration(days*24+hours) * time.Hour
	case hours > 0:
		out = time.Duration(hours) * time.Hour
		if minutes > 0 {
			out += time.Duration(minutes) * time.Minute
		}
	case minutes > 0:
		out = time.Duration(minutes) * time.Minute
		if seconds > 0 {
			out += time.Duration(seconds) * time.Second
		}
	default:
		out = time.Duration(seconds) * time.Second
	}
	return out.String()
}

// ============================================================
// Timestamp
// ============================================================

// UnixMillis возвращает текущее время в миллисекундах Unix.
// REST API бирж (Bybit, OKX, Bitget) требуют миллисекундный
// timestamp в подписи запроса
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}

// FromUnixMillis разворачивает миллисекунды Unix обратно в time.Time
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
