package ratelimit

import (
	"context"
	"sync"
	"time"
)

// limiter.go - token bucket для темпа REST запросов к биржам.
//
// Ведро вмещает burst токенов и наполняется со скоростью rate токенов
// в секунду. Запрос снимает один токен; пустое ведро означает ждать
// (Wait) или отказаться (Allow). Запас burst покрывает всплеск в
// начале цикла, когда опрашиваются сразу несколько аккаунтов.

// Категории биржевых запросов. Биржи лимитируют чтение и торговлю
// по отдельности.
const (
	CategoryRead  = "read"  // позиции, балансы
	CategoryTrade = "trade" // закрывающие ордера
)

// RateLimiter - ведро токенов с потокобезопасным доступом:
//
//	limiter := NewRateLimiter(10, 20) // 10 req/sec, запас 20
//	if err := limiter.Wait(ctx); err != nil { ... }
//	if limiter.Allow() { ... }
type RateLimiter struct {
	rate   float64 // скорость пополнения, токенов/сек
	burst  float64 // ёмкость ведра
	tokens float64 // текущий запас
	last   time.Time
	mu     sync.Mutex
}

// NewRateLimiter создаёт ведро с заданной скоростью и ёмкостью.
//
// Нулевые и отрицательные аргументы заменяются разумными значениями:
// rate 10/сек, burst вдвое больше rate. Ёмкость меньше скорости
// поднимается до скорости, иначе ведро не вмещает секунду работы.
// Ведро начинает полным.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:   rate,
		burst:  burst,
		tokens: burst,
		last:   time.Now(),
	}
}

// advance доначисляет токены за время с прошлого обращения.
// Вызывается только под mu.
func (rl *RateLimiter) advance() {
	now := time.Now()
	rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.last = now
}

// Allow снимает токен без ожидания. false означает, что запрос
// сейчас отправлять нельзя.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.advance()
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// Wait блокирует до свободного токена или отмены контекста.
// nil означает, что токен снят и запрос можно отправлять.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.advance()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// Сколько ждать до появления недостающей части токена
		shortfall := 1 - rl.tokens
		wait := time.Duration(shortfall / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tokens возвращает текущий запас с учётом доначисления
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.advance()
	return rl.tokens
}

// Rate возвращает скорость пополнения, токенов/сек
func (rl *RateLimiter) Rate() float64 {
	return rl.rate
}

// Burst возвращает ёмкость ведра
func (rl *RateLimiter) Burst() float64 {
	return rl.burst
}

// ============ MultiLimiter ============

// MultiLimiter держит отдельное ведро на каждую категорию запросов.
// Категория без ведра не ограничивается.
type MultiLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

// NewMultiLimiter создаёт пустой набор ограничителей
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*RateLimiter),
	}
}

// NewExchangeLimiter собирает стандартную пару вёдер биржевого
// адаптера: CategoryRead и CategoryTrade
func NewExchangeLimiter(readRate, readBurst, tradeRate, tradeBurst float64) *MultiLimiter {
	ml := NewMultiLimiter()
	ml.Add(CategoryRead, readRate, readBurst)
	ml.Add(CategoryTrade, tradeRate, tradeBurst)
	return ml
}

// Add заводит ведро для категории, заменяя существующее
func (ml *MultiLimiter) Add(category string, rate, burst float64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.limiters[category] = NewRateLimiter(rate, burst)
}

// Wait ожидает токен категории. Категория без ведра проходит сразу.
func (ml *MultiLimiter) Wait(ctx context.Context, category string) error {
	ml.mu.RLock()
	limiter, ok := ml.limiters[category]
	ml.mu.RUnlock()

	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}

// Allow снимает токен категории без ожидания. Категория без ведра
// всегда разрешена.
func (ml *MultiLimiter) Allow(category string) bool {
	ml.mu.RLock()
	limiter, ok := ml.limiters[category]
	ml.mu.RUnlock()

	if !ok {
		return true
	}
	return limiter.Allow()
}

// Get возвращает ведро категории, nil если его нет
func (ml *MultiLimiter) Get(category string) *RateLimiter {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.limiters[category]
}
