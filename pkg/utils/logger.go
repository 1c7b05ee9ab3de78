package utils

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе uber-go/zap
//
// Назначение:
// Единая точка инициализации логгера для всего приложения.
//
// Возможности:
// - Форматы вывода: JSON (прод) и text/console (разработка)
// - Уровни: debug, info, warn, error, fatal
// - Вывод в файл с fallback на stderr
// - Глобальный логгер + типизированные конструкторы полей домена
//   (Exchange, Symbol, PositionID, CycleID и т.д.)
//
// Использование:
//
//	utils.InitGlobalLogger(utils.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
//	utils.Info("monitor started", utils.Component("monitor"))
//
//	log := utils.L().WithComponent("executor").WithSymbol("BTCUSDT")
//	log.Warn("position close failed", utils.Err(err))

// LogConfig - конфигурация логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal (по умолчанию info)
	Format      string // json или text (по умолчанию json)
	Output      string // путь к файлу, "stdout" или "stderr" (по умолчанию stderr)
	Development bool   // режим разработки (подробный вывод, DPanic паникует)
}

// Logger оборачивает zap.Logger вместе с sugared-вариантом
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// ============================================================
// Инициализация
// ============================================================

// InitLogger создаёт логгер по конфигурации.
//
// Никогда не возвращает nil: при некорректном Output пишет в stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	var encCfg zapcore.EncoderConfig
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encCfg = zap.NewProductionEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	switch cfg.Output {
	case "", "stderr":
		// stderr по умолчанию
	case "stdout":
		sink = zapcore.AddSync(os.Stdout)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			// Файл недоступен - остаёмся на stderr, без паники
		} else {
			sink = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, sink, level)

	var opts []zap.Option
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// parseLevel преобразует строковый уровень в zapcore.Level.
// Неизвестные значения трактуются как info.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с постоянными полями.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent возвращает логгер с полем component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithExchange возвращает логгер с полем exchange.
func (l *Logger) WithExchange(exchange string) *Logger {
	return l.With(Exchange(exchange))
}

// WithSymbol возвращает логгер с полем symbol.
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(Symbol(symbol))
}

// WithPositionID возвращает логгер с полем position_id.
func (l *Logger) WithPositionID(id int) *Logger {
	return l.With(PositionID(id))
}

// WithCycleID возвращает логгер с идентификатором цикла монитора.
func (l *Logger) WithCycleID(id string) *Logger {
	return l.With(CycleID(id))
}

// Sugar возвращает sugared-логгер для printf-стиля.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitGlobalLogger инициализирует глобальный логгер по конфигурации.
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger подменяет глобальный логгер (используется в тестах).
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger возвращает глобальный логгер, лениво создавая дефолтный.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	if globalLogger != nil {
		l := globalLogger
		globalMu.RUnlock()
		return l
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Глобальные функции логирования
// ============================================================

// Debug логирует через глобальный логгер на уровне debug.
func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Debug(msg, fields...)
}

// Info логирует через глобальный логгер на уровне info.
func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Info(msg, fields...)
}

// Warn логирует через глобальный логгер на уровне warn.
func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Warn(msg, fields...)
}

// Error логирует через глобальный логгер на уровне error.
func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Error(msg, fields...)
}

// Fatal логирует и завершает процесс.
func Fatal(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Fatal(msg, fields...)
}

// Debugf - printf-стиль на уровне debug.
func Debugf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Debugf(format, args...)
}

// Infof - printf-стиль на уровне info.
func Infof(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Infof(format, args...)
}

// Warnf - printf-стиль на уровне warn.
func Warnf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Warnf(format, args...)
}

// Errorf - printf-стиль на уровне error.
func Errorf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Errorf(format, args...)
}

// Fatalf - printf-стиль с завершением процесса.
func Fatalf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Fatalf(format, args...)
}

// fieldsToInterface разворачивает zap-поля в плоский список ключ/значение
// для sugared-логгера.
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key)
		switch {
		case f.Interface != nil:
			out = append(out, f.Interface)
		case f.String != "":
			out = append(out, f.String)
		default:
			out = append(out, f.Integer)
		}
	}
	return out
}

// ============================================================
// Конструкторы полей домена
// ============================================================

// Exchange - поле exchange (имя биржи).
func Exchange(name string) zap.Field {
	return zap.String("exchange", name)
}

// Symbol - поле symbol (торговый символ).
func Symbol(symbol string) zap.Field {
	return zap.String("symbol", symbol)
}

// PositionID - поле position_id.
func PositionID(id int) zap.Field {
	return zap.Int("position_id", id)
}

// SubscriptionID - поле subscription_id.
func SubscriptionID(id int) zap.Field {
	return zap.Int("subscription_id", id)
}

// BotID - поле bot_id.
func BotID(id int) zap.Field {
	return zap.Int("bot_id", id)
}

// AccountID - поле account_id (биржевой аккаунт).
func AccountID(id int) zap.Field {
	return zap.Int("account_id", id)
}

// CycleID - поле cycle_id (ULID цикла монитора).
func CycleID(id string) zap.Field {
	return zap.String("cycle_id", id)
}

// OrderID - поле order_id (идентификатор ордера на бирже).
func OrderID(id string) zap.Field {
	return zap.String("order_id", id)
}

// Price - поле price.
func Price(price float64) zap.Field {
	return zap.Float64("price", price)
}

// Quantity - поле quantity (объём в монетах актива).
func Quantity(qty float64) zap.Field {
	return zap.Float64("quantity", qty)
}

// PNL - поле pnl.
func PNL(pnl float64) zap.Field {
	return zap.Float64("pnl", pnl)
}

// Side - поле side (long/short).
func Side(side string) zap.Field {
	return zap.String("side", side)
}

// Reason - поле reason (причина закрытия/события).
func Reason(reason string) zap.Field {
	return zap.String("reason", reason)
}

// State - поле state (состояние монитора).
func State(state string) zap.Field {
	return zap.String("state", state)
}

// Latency - поле latency_ms.
func Latency(ms float64) zap.Field {
	return zap.Float64("latency_ms", ms)
}

// RequestID - поле request_id.
func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

// UserID - поле user_id.
func UserID(id int) zap.Field {
	return zap.Int("user_id", id)
}

// Component - поле component (подсистема приложения).
func Component(name string) zap.Field {
	return zap.String("component", name)
}

// ============================================================
// Переэкспорт стандартных конструкторов zap
// ============================================================

// String - строковое поле.
func String(key, value string) zap.Field { return zap.String(key, value) }

// Int - целочисленное поле.
func Int(key string, value int) zap.Field { return zap.Int(key, value) }

// Int64 - поле int64.
func Int64(key string, value int64) zap.Field { return zap.Int64(key, value) }

// Float64 - поле float64.
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }

// Bool - булево поле.
func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }

// Err - поле error (ключ "error").
func Err(err error) zap.Field { return zap.Error(err) }

// Any - поле произвольного типа.
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// Duration - поле time.Duration.
func Duration(key string, value time.Duration) zap.Field { return zap.Duration(key, value) }
