package monitor

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"riskguard/internal/config"
	"riskguard/internal/exchange"
	"riskguard/internal/models"
	"riskguard/internal/repository"
	"riskguard/pkg/id"
	"riskguard/pkg/retry"
	"riskguard/pkg/utils"
)

// monitor.go - контур принудительного закрытия позиций
//
// Каждый цикл:
//  1. Загрузка снимка открытых позиций с лимитами (один JOIN-запрос)
//  2. Группировка по биржевым аккаунтам, обработка воркерами
//  3. Для каждой записи: опрос биржи -> оценка бюджетов -> при пробое
//     закрытие рыночным ордером -> транзакция учёта -> уведомление
//
// Цикл никогда не прерывается ошибкой одной записи: опрос и закрытие
// изолированы per-record, паника в обработке гасится и логируется.

// Состояния жизненного цикла монитора
const (
	StateIdle       = "idle"
	StateRunning    = "running"
	StateTerminated = "terminated"
)

// Ошибки жизненного цикла
var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrTerminated     = errors.New("monitor already terminated")
)

// CycleStats - итоги последнего завершённого цикла
type CycleStats struct {
	CycleID       string    `json:"cycle_id"`
	StartedAt     time.Time `json:"started_at"`
	DurationMs    int64     `json:"duration_ms"`
	Records       int       `json:"records"`
	ProbeFailures int64     `json:"probe_failures"`
	Breaches      int64     `json:"breaches"`
	Closed        int64     `json:"closed"`
	CloseFailures int64     `json:"close_failures"`
	LedgerAlerts  int64     `json:"ledger_alerts"`
}

// Status - снимок состояния монитора для операторского API
type Status struct {
	State           string      `json:"state"`
	Interval        string      `json:"interval"`
	Workers         int         `json:"workers"`
	CyclesCompleted int64       `json:"cycles_completed"`
	LastCycle       *CycleStats `json:"last_cycle,omitempty"`
}

// cycleCounters - счётчики текущего цикла, инкрементируются воркерами
type cycleCounters struct {
	probeFailures int64
	breaches      int64
	closed        int64
	closeFailures int64
	ledgerAlerts  int64
}

// Monitor - периодический контур контроля дневных лимитов убытка
type Monitor struct {
	cfg      config.MonitorConfig
	ledger   Ledger
	notifier Notifier
	alerter  OpsAlerter
	prober   *Prober
	executor *Executor

	mu        sync.RWMutex
	state     string
	started   bool
	lastCycle *CycleStats

	cycles int64

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New создает монитор поверх леджера, пула биржевых соединений и
// каналов уведомлений
func New(cfg config.MonitorConfig, ledger Ledger, exchanges ConnectionProvider, notifier Notifier, alerter OpsAlerter) *Monitor {
	return &Monitor{
		cfg:      cfg,
		ledger:   ledger,
		notifier: notifier,
		alerter:  alerter,
		prober:   NewProber(exchanges, cfg.ProbeTimeout),
		executor: NewExecutor(exchanges, cfg.CloseTimeout, cfg.DivergenceTolerance),
		state:    StateIdle,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start запускает фоновый цикл мониторинга.
// Первый цикл выполняется через один интервал после запуска.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		return ErrTerminated
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.setState(StateIdle)

	utils.Info("risk monitor started",
		utils.Component("monitor"),
		utils.Duration("interval", m.cfg.Interval),
		utils.Int("workers", m.cfg.Workers))

	if err := m.notifier.NotifyMonitorEvent("risk monitor started", map[string]interface{}{
		"interval": m.cfg.Interval.String(),
		"workers":  m.cfg.Workers,
	}); err != nil {
		utils.Warn("monitor start notification failed", utils.Component("monitor"), utils.Err(err))
	}

	go m.run(ctx)
	return nil
}

// Stop останавливает монитор и дожидается завершения текущего цикла.
// Начатый цикл доводится до конца: сигнал остановки проверяется только
// между циклами.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.state = StateTerminated
		m.mu.Unlock()
		SetMonitorState(StateTerminated)
		return
	}
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

// run - основной цикл тикера
func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)
	defer func() {
		m.setState(StateTerminated)
		utils.Info("risk monitor stopped",
			utils.Component("monitor"),
			utils.Int64("cycles_completed", atomic.LoadInt64(&m.cycles)))
		if err := m.notifier.NotifyMonitorEvent("risk monitor stopped", nil); err != nil {
			utils.Warn("monitor stop notification failed", utils.Component("monitor"), utils.Err(err))
		}
	}()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.setState(StateRunning)
			m.runCycle(ctx)
			m.setState(StateIdle)
		}
	}
}

// runCycle выполняет один полный цикл мониторинга
func (m *Monitor) runCycle(ctx context.Context) {
	start := time.Now()
	cycleID := id.New()
	log := utils.L().WithComponent("monitor").WithCycleID(cycleID)

	records, err := m.ledger.LoadOpenMonitoringRecords()
	if err != nil {
		log.Error("monitoring snapshot load failed, cycle skipped", utils.Err(err))
		RecordCycle("load_failed", time.Since(start).Seconds())
		return
	}

	SetSnapshotSize(len(records))
	batches := groupByAccount(records)

	log.Info("monitoring cycle started",
		utils.Int("records", len(records)),
		utils.Int("accounts", len(batches)))

	counters := &cycleCounters{}
	runBatches(ctx, batches, m.cfg.Workers, func(rec *models.MonitoringRecord) {
		m.processRecord(ctx, log, cycleID, rec, counters)
	})

	duration := time.Since(start)
	RecordCycle("ok", duration.Seconds())
	atomic.AddInt64(&m.cycles, 1)

	stats := &CycleStats{
		CycleID:       cycleID,
		StartedAt:     start.UTC(),
		DurationMs:    duration.Milliseconds(),
		Records:       len(records),
		ProbeFailures: atomic.LoadInt64(&counters.probeFailures),
		Breaches:      atomic.LoadInt64(&counters.breaches),
		Closed:        atomic.LoadInt64(&counters.closed),
		CloseFailures: atomic.LoadInt64(&counters.closeFailures),
		LedgerAlerts:  atomic.LoadInt64(&counters.ledgerAlerts),
	}

	m.mu.Lock()
	m.lastCycle = stats
	m.mu.Unlock()

	log.Info("monitoring cycle finished",
		utils.Int("records", stats.Records),
		utils.Int64("breaches", stats.Breaches),
		utils.Int64("closed", stats.Closed),
		utils.Int64("probe_failures", stats.ProbeFailures),
		utils.Int64("close_failures", stats.CloseFailures),
		utils.Int64("ledger_alerts", stats.LedgerAlerts),
		utils.Duration("duration", duration))
}

// processRecord обрабатывает одну запись снимка: опрос, оценка,
// при пробое закрытие с учётом и уведомлением
func (m *Monitor) processRecord(ctx context.Context, log *utils.Logger, cycleID string, rec *models.MonitoringRecord, counters *cycleCounters) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing monitoring record",
				utils.PositionID(rec.PositionID),
				utils.Any("panic", r),
				utils.String("stack", string(debug.Stack())))
		}
	}()

	unrealized, err := m.prober.Probe(ctx, rec)
	if err != nil {
		atomic.AddInt64(&counters.probeFailures, 1)
		RecordProbeFailure(rec.Exchange)
		RecordEvaluation("probe_failed")

		switch {
		case errors.Is(err, ErrPositionNotOnExchange):
			log.Debug("position not found on exchange, skipping",
				utils.PositionID(rec.PositionID),
				utils.Exchange(rec.Exchange),
				utils.Symbol(rec.Symbol))
		case errors.Is(err, exchange.ErrUnsupportedExchange):
			log.Error("exchange of account is not supported",
				utils.PositionID(rec.PositionID),
				utils.AccountID(rec.ExchangeAccountID),
				utils.Exchange(rec.Exchange),
				utils.Err(err))
		default:
			log.Warn("exposure probe failed, record skipped until next cycle",
				utils.PositionID(rec.PositionID),
				utils.Exchange(rec.Exchange),
				utils.Symbol(rec.Symbol),
				utils.Err(err))
		}
		return
	}

	verdict := Evaluate(rec, unrealized)
	if !verdict.Breached {
		RecordEvaluation("ok")
		return
	}

	atomic.AddInt64(&counters.breaches, 1)
	RecordEvaluation("breach")

	log.Warn("daily loss budget breached",
		utils.PositionID(rec.PositionID),
		utils.Exchange(rec.Exchange),
		utils.Symbol(rec.Symbol),
		utils.Side(rec.Side),
		utils.Reason(verdict.Reason),
		utils.PNL(unrealized),
		utils.Float64("projected_loss", verdict.ProjectedLoss),
		utils.Float64("max_loss", verdict.MaxLoss))

	fc, err := m.executor.ForceClose(ctx, log, rec, unrealized, verdict.Reason)
	if err != nil {
		atomic.AddInt64(&counters.closeFailures, 1)
		RecordClosureFailure(rec.Exchange)
		log.Error("forced closure failed, position stays open until next cycle",
			utils.PositionID(rec.PositionID),
			utils.Exchange(rec.Exchange),
			utils.Symbol(rec.Symbol),
			utils.Err(err))
		return
	}

	atomic.AddInt64(&counters.closed, 1)
	RecordForcedClosure(verdict.Reason)

	log.Info("position force closed",
		utils.PositionID(rec.PositionID),
		utils.Exchange(rec.Exchange),
		utils.Symbol(rec.Symbol),
		utils.Side(rec.Side),
		utils.Reason(fc.CloseReason),
		utils.Price(fc.ExitPrice),
		utils.Quantity(fc.ExitQuantity),
		utils.PNL(fc.RealizedPnl))

	if err := m.applyClosure(ctx, log, rec.UserID, fc); err != nil {
		if !errors.Is(err, repository.ErrPositionAlreadyClosed) {
			atomic.AddInt64(&counters.ledgerAlerts, 1)
		}
		return
	}

	if err := m.notifier.NotifyForcedClose(rec.UserID, fc, cycleID); err != nil {
		log.Warn("forced closure notification failed",
			utils.PositionID(rec.PositionID),
			utils.Err(err))
	}
}

// applyClosure проводит транзакцию учёта закрытия с ретраями.
//
// Позиция на бирже уже закрыта, поэтому запись учёта обязана сойтись.
// ErrPositionAlreadyClosed не ретраится: параллельный актор уже провёл
// закрытие, повторная запись задвоила бы счётчики убытка.
// Исчерпание ретраев означает расхождение биржи и леджера: метрика,
// операторский алерт и уведомление пользователю для ручной сверки.
func (m *Monitor) applyClosure(ctx context.Context, log *utils.Logger, userID int, fc *models.ForcedClosure) error {
	cfg := retry.LedgerWriteConfig()
	cfg.RetryIf = retry.IsRetryable
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		RecordLedgerRetry()
		log.Warn("ledger write retry",
			utils.PositionID(fc.PositionID),
			utils.Int("attempt", attempt),
			utils.Duration("delay", delay),
			utils.Err(err))
	}

	err := retry.Do(ctx, func() error {
		if err := m.ledger.ApplyForcedClosure(fc); err != nil {
			if errors.Is(err, repository.ErrPositionAlreadyClosed) {
				return retry.Permanent(err)
			}
			return err
		}
		return nil
	}, cfg)

	if err == nil {
		log.Info("forced closure recorded in ledger",
			utils.PositionID(fc.PositionID),
			utils.PNL(fc.RealizedPnl),
			utils.Reason(fc.CloseReason))
		return nil
	}

	if errors.Is(err, repository.ErrPositionAlreadyClosed) {
		log.Warn("position already closed in ledger, update skipped",
			utils.PositionID(fc.PositionID))
		return err
	}

	RecordLedgerDivergence()
	log.Error("ledger update lost after retries, manual reconciliation required",
		utils.PositionID(fc.PositionID),
		utils.Symbol(fc.Symbol),
		utils.PNL(fc.RealizedPnl),
		utils.Err(err))

	m.alerter.Alertf("ledger divergence: position %d (%s) closed on exchange but not recorded: %v",
		fc.PositionID, fc.Symbol, err)

	if nerr := m.notifier.NotifyLedgerAlert(userID, fc.PositionID,
		"position was force closed but the accounting update failed, manual reconciliation required",
		map[string]interface{}{
			"symbol":       fc.Symbol,
			"realized_pnl": fc.RealizedPnl,
			"close_reason": fc.CloseReason,
			"error":        err.Error(),
		}); nerr != nil {
		log.Warn("ledger alert notification failed",
			utils.PositionID(fc.PositionID),
			utils.Err(nerr))
	}

	return err
}

// State возвращает текущее состояние монитора
func (m *Monitor) State() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status возвращает снимок состояния для операторского API
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *CycleStats
	if m.lastCycle != nil {
		copied := *m.lastCycle
		last = &copied
	}

	return Status{
		State:           m.state,
		Interval:        m.cfg.Interval.String(),
		Workers:         m.cfg.Workers,
		CyclesCompleted: atomic.LoadInt64(&m.cycles),
		LastCycle:       last,
	}
}

// setState обновляет состояние и gauge метрику
func (m *Monitor) setState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	SetMonitorState(state)
}
