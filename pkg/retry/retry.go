package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// retry.go - повтор операций с экспоненциальной задержкой.
//
// В контуре риска ретраятся два места: опрос позиций на бирже
// (ProbeConfig) и запись транзакции учёта после принудительного
// закрытия (LedgerWriteConfig). Сам закрывающий ордер не ретраится
// никогда: неудача откладывает закрытие до следующего цикла.

// Config задаёт параметры повторов.
//
// Пауза перед повтором растёт экспоненциально:
// InitialDelay * Multiplier^attempt, но не выше MaxDelay.
// Jitter размывает паузу на ±JitterFactor, разводя по времени
// клиентов, упавших одновременно.
type Config struct {
	// MaxRetries - всего попыток, включая первую.
	// Ноль и меньше означает повторять без ограничения.
	MaxRetries int

	// InitialDelay - пауза после первой неудачи (по умолчанию 100ms)
	InitialDelay time.Duration

	// MaxDelay - потолок паузы (по умолчанию 30s)
	MaxDelay time.Duration

	// Multiplier - во сколько раз растёт пауза (по умолчанию 2.0)
	Multiplier float64

	// JitterFactor - доля случайного разброса паузы, от 0 до 1
	JitterFactor float64

	// RetryIf решает, повторять ли после данной ошибки.
	// nil означает повторять после любой.
	RetryIf func(error) bool

	// OnRetry вызывается перед каждой паузой: номер неудавшейся
	// попытки (с единицы), её ошибка и выбранная задержка
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig - повторы для обычных запросов:
// 4 попытки, паузы 100ms, 200ms, 400ms (+ jitter)
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// ProbeConfig - повторы опроса биржи.
//
// Пропущенный опрос ничего не ломает, следующий цикл перечитает
// позицию заново, поэтому попыток мало: 3, паузы 500ms и 1s
func ProbeConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// LedgerWriteConfig - повторы записи учёта закрытия.
//
// К этому моменту ордер на бирже уже исполнен, и леджер обязан
// сойтись с биржей, поэтому настойчивее обычного:
// 5 попыток, паузы 200ms, 400ms, 800ms, 1600ms
func LedgerWriteConfig() Config {
	return Config{
		MaxRetries:   5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// applyDefaults подставляет значения по умолчанию вместо нулевых
// и зажимает JitterFactor в [0, 1]
func (c *Config) applyDefaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	c.JitterFactor = math.Min(math.Max(c.JitterFactor, 0), 1)
}

// delayFor возвращает паузу после неудачной попытки attempt
// (нумерация с нуля): экспонента, потолок, затем jitter
func (c *Config) delayFor(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	d = math.Min(d, float64(c.MaxDelay))
	if c.JitterFactor > 0 {
		d *= 1 + c.JitterFactor*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

// Do повторяет операцию до успеха, исчерпания попыток или отмены
// контекста.
//
//	err := retry.Do(ctx, func() error {
//	    return repo.ApplyForcedClosure(fc)
//	}, retry.LedgerWriteConfig())
func Do(ctx context.Context, op func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, cfg)
	return err
}

// DoWithResult повторяет операцию, возвращающую значение.
//
// Контекст проверяется перед каждой попыткой и во время пауз:
// отмена обрывает серию, наружу уходит последняя ошибка операции,
// а если попыток не было вовсе - ошибка контекста. RetryIf,
// вернувший false, останавливает повторы без паузы.
//
//	positions, err := retry.DoWithResult(ctx, func() ([]*exchange.Position, error) {
//	    return conn.GetOpenPositions(ctx)
//	}, retry.ProbeConfig())
func DoWithResult[T any](ctx context.Context, op func() (T, error), cfg Config) (T, error) {
	cfg.applyDefaults()

	var zero T
	var lastErr error

	for attempt := 0; cfg.MaxRetries <= 0 || attempt < cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}

		// После последней попытки пауза не нужна
		if cfg.MaxRetries > 0 && attempt == cfg.MaxRetries-1 {
			break
		}

		delay := cfg.delayFor(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// ============ Обёртки ошибок ============

// PermanentError помечает ошибку как окончательную: IsRetryable
// вернёт для неё false
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string   { return e.Err.Error() }
func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// Permanent помечает ошибку, после которой повторять бессмысленно.
// Do с RetryIf = IsRetryable остановится на ней сразу:
//
//	if errors.Is(err, repository.ErrPositionAlreadyClosed) {
//	    return retry.Permanent(err)
//	}
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError помечает ошибку как заведомо временную
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string   { return e.Err.Error() }
func (e *TemporaryError) Unwrap() error   { return e.Err }
func (e *TemporaryError) Retryable() bool { return true }
func (e *TemporaryError) Temporary() bool { return true }

// Temporary помечает ошибку, после которой стоит повторить
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}

// ============ Предикаты для RetryIf ============

// RetryableError реализуют ошибки, которые сами знают, можно ли
// их повторять
type RetryableError interface {
	error
	Retryable() bool
}

// temporaryError - временная ошибка в духе net.Error
type temporaryError interface {
	Temporary() bool
}

// IsRetryable сообщает, имеет ли смысл повторять после ошибки.
// Порядок проверок: Retryable() в цепочке ошибки, затем Temporary(),
// для прочих ошибок повторяем. nil не повторяется.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	var temp temporaryError
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return true
}

// RetryIfTemporary повторяет только после временных ошибок
func RetryIfTemporary(err error) bool {
	var temp temporaryError
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}

// RetryIfNotContext исключает из повторов отмену контекста
// и истёкший дедлайн
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ============ Retryer ============

// Retryer хранит конфигурацию для серии однотипных повторов:
//
//	r := retry.NewRetryer(retry.LedgerWriteConfig())
//	err := r.Do(ctx, writeFirst)
//	err = r.Do(ctx, writeSecond)
type Retryer struct {
	cfg Config
}

// NewRetryer создаёт Retryer с данной конфигурацией
func NewRetryer(cfg Config) *Retryer {
	cfg.applyDefaults()
	return &Retryer{cfg: cfg}
}

// Do повторяет операцию с сохранённой конфигурацией
func (r *Retryer) Do(ctx context.Context, op func() error) error {
	return Do(ctx, op, r.cfg)
}

// WithOnRetry возвращает копию Retryer с callback'ом на повторы
func (r *Retryer) WithOnRetry(onRetry func(attempt int, err error, delay time.Duration)) *Retryer {
	cfg := r.cfg
	cfg.OnRetry = onRetry
	return &Retryer{cfg: cfg}
}

// WithRetryIf возвращает копию Retryer с фильтром ошибок
func (r *Retryer) WithRetryIf(retryIf func(error) bool) *Retryer {
	cfg := r.cfg
	cfg.RetryIf = retryIf
	return &Retryer{cfg: cfg}
}

// Retry - Do с конфигурацией по умолчанию
func Retry(ctx context.Context, op func() error) error {
	return Do(ctx, op, DefaultConfig())
}

// RetryN - Do с заданным числом попыток и паузами по умолчанию
func RetryN(ctx context.Context, op func() error, maxRetries int) error {
	cfg := DefaultConfig()
	cfg.MaxRetries = maxRetries
	return Do(ctx, op, cfg)
}
