package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики контура риск-мониторинга
// ============================================================
//
// Использование:
// - Grafana дашборды (длительность цикла, частота срабатываний)
// - Alertmanager: расхождение леджера и серии неудачных закрытий
//   требуют внимания оператора

// ============ Метрики цикла ============

// CyclesTotal - завершённые циклы мониторинга по результату
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "monitor",
		Name:      "cycles_total",
		Help:      "Total number of monitoring cycles",
	},
	[]string{"result"}, // ok, load_failed
)

// CycleDuration - длительность полного цикла мониторинга
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "riskguard",
		Subsystem: "monitor",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full monitoring cycle in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
	},
)

// SnapshotSize - размер снимка открытых позиций в последнем цикле
var SnapshotSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "riskguard",
		Subsystem: "monitor",
		Name:      "snapshot_size",
		Help:      "Number of open positions in the last monitoring snapshot",
	},
)

// MonitorState - текущее состояние монитора (1 у активного состояния)
var MonitorState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "riskguard",
		Subsystem: "monitor",
		Name:      "state",
		Help:      "Monitor lifecycle state (1 for the active state)",
	},
	[]string{"state"}, // idle, running, terminated
)

// ============ Метрики оценки ============

// EvaluationsTotal - проведённые оценки записей по исходу
var EvaluationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "monitor",
		Name:      "evaluations_total",
		Help:      "Total number of record evaluations",
	},
	[]string{"outcome"}, // ok, breach, probe_failed
)

// ProbeFailures - неудачные опросы биржи
var ProbeFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "monitor",
		Name:      "probe_failures_total",
		Help:      "Number of failed exchange exposure probes",
	},
	[]string{"exchange"},
)

// ============ Метрики закрытий ============

// ForcedClosuresTotal - принудительные закрытия по причине
var ForcedClosuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "risk",
		Name:      "forced_closures_total",
		Help:      "Number of forced position closures",
	},
	[]string{"reason"}, // symbol_risk_limit, subscription_risk_limit
)

// ClosureFailures - неудачные попытки принудительного закрытия
var ClosureFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "risk",
		Name:      "closure_failures_total",
		Help:      "Number of failed forced closure attempts",
	},
	[]string{"exchange"},
)

// FillDivergence - расхождения расчётной цены выхода с биржевым филлом
var FillDivergence = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "risk",
		Name:      "fill_divergence_total",
		Help:      "Closures whose exchange fill price diverged beyond tolerance",
	},
	[]string{"exchange"},
)

// ============ Метрики леджера ============

// LedgerRetries - повторные попытки записи закрытия в леджер
var LedgerRetries = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "ledger",
		Name:      "write_retries_total",
		Help:      "Number of ledger write retries",
	},
)

// LedgerDivergence - закрытия, не записанные в леджер после всех ретраев.
// Любое ненулевое значение означает ручную сверку.
var LedgerDivergence = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskguard",
		Subsystem: "ledger",
		Name:      "divergence_total",
		Help:      "Closures executed on the exchange but not recorded in the ledger",
	},
)

// ============ Вспомогательные функции ============

// RecordCycle записывает завершение цикла
func RecordCycle(result string, durationSec float64) {
	CyclesTotal.WithLabelValues(result).Inc()
	CycleDuration.Observe(durationSec)
}

// RecordEvaluation записывает исход оценки одной записи
func RecordEvaluation(outcome string) {
	EvaluationsTotal.WithLabelValues(outcome).Inc()
}

// RecordProbeFailure записывает неудачный опрос биржи
func RecordProbeFailure(exchange string) {
	ProbeFailures.WithLabelValues(exchange).Inc()
}

// RecordForcedClosure записывает принудительное закрытие
func RecordForcedClosure(reason string) {
	ForcedClosuresTotal.WithLabelValues(reason).Inc()
}

// RecordClosureFailure записывает неудачную попытку закрытия
func RecordClosureFailure(exchange string) {
	ClosureFailures.WithLabelValues(exchange).Inc()
}

// RecordFillDivergence записывает расхождение цены исполнения
func RecordFillDivergence(exchange string) {
	FillDivergence.WithLabelValues(exchange).Inc()
}

// RecordLedgerRetry записывает повтор записи в леджер
func RecordLedgerRetry() {
	LedgerRetries.Inc()
}

// RecordLedgerDivergence записывает потерянную запись леджера
func RecordLedgerDivergence() {
	LedgerDivergence.Inc()
}

// SetMonitorState выставляет gauge состояния монитора
func SetMonitorState(state string) {
	for _, s := range []string{StateIdle, StateRunning, StateTerminated} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		MonitorState.WithLabelValues(s).Set(v)
	}
}

// SetSnapshotSize записывает размер снимка последнего цикла
func SetSnapshotSize(n int) {
	SnapshotSize.Set(float64(n))
}
