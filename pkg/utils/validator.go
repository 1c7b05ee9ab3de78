package utils

import (
	"errors"
	"fmt"
	"strings"
)

// validator.go - валидация входных данных
//
// Назначение:
// Проверка корректности данных, приходящих из API и конфигурации,
// до обращения к БД и биржам.
//
// Функции:
// - ValidateSymbol: проверка формата символа (BTCUSDT)
// - ValidateSide: проверка направления позиции (long/short)
// - ValidateExchange: проверка поддерживаемой биржи
// - ValidateDailyLossLimit: проверка дневного бюджета убытков
// - ValidateAPIKey / ValidateAPISecret: базовая проверка ключей
//
// Возвращает error с описанием проблемы или nil

// ============================================================
// Ошибки валидации
// ============================================================

var (
	ErrInvalidSymbol    = errors.New("invalid symbol format")
	ErrInvalidSide      = errors.New("invalid position side")
	ErrInvalidExchange  = errors.New("unsupported exchange")
	ErrInvalidLossLimit = errors.New("invalid daily loss limit")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidLeverage  = errors.New("invalid leverage")
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrInvalidAPISecret = errors.New("invalid API secret")
)

// SupportedExchanges список поддерживаемых бирж
var SupportedExchanges = []string{"bybit", "okx", "bitget"}

// Лимиты валидации
const (
	minSymbolLength  = 2
	maxSymbolLength  = 30
	minAPIKeyLength  = 16
	maxPassphraseLen = 64
	maxQuantity      = 1e9
	maxLossLimit     = 1e9
	maxLeverage      = 100
)

// ============================================================
// Символы
// ============================================================

// ValidateSymbol проверяет формат торгового символа.
//
// Допустимы буквы, цифры и разделители -, _, /.
// Длина от 2 до 30 символов.
//
// Примеры валидных: BTCUSDT, btc-usdt, ETH/USDT, 1INCH
func ValidateSymbol(symbol string) error {
	if len(symbol) < minSymbolLength {
		return fmt.Errorf("%w: too short (min %d chars)", ErrInvalidSymbol, minSymbolLength)
	}
	if len(symbol) > maxSymbolLength {
		return fmt.Errorf("%w: too long (max %d chars)", ErrInvalidSymbol, maxSymbolLength)
	}

	for _, r := range symbol {
		if !isSymbolRune(r) {
			return fmt.Errorf("%w: invalid character %q", ErrInvalidSymbol, r)
		}
	}

	return nil
}

func isSymbolRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '/':
		return true
	default:
		return false
	}
}

// IsValidSymbol возвращает true если символ валиден
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// NormalizeSymbol приводит символ к каноничному виду: BTCUSDT.
//
// Удаляет разделители и переводит в верхний регистр.
// Все биржевые адаптеры и БД работают с нормализованной формой.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "/", "")
	return s
}

// ============================================================
// Направление позиции
// ============================================================

// ValidateSide проверяет направление позиции: long или short
func ValidateSide(side string) error {
	switch strings.ToLower(side) {
	case "long", "short":
		return nil
	default:
		return fmt.Errorf("%w: %q (expected long or short)", ErrInvalidSide, side)
	}
}

// NormalizeSide приводит направление к нижнему регистру
func NormalizeSide(side string) string {
	return strings.ToLower(strings.TrimSpace(side))
}

// ============================================================
// Биржи
// ============================================================

// ValidateExchange проверяет, что биржа поддерживается
func ValidateExchange(exchange string) error {
	if exchange == "" {
		return fmt.Errorf("%w: empty", ErrInvalidExchange)
	}

	normalized := NormalizeExchange(exchange)
	for _, supported := range SupportedExchanges {
		if normalized == supported {
			return nil
		}
	}

	return fmt.Errorf("%w: %q (supported: %s)",
		ErrInvalidExchange, exchange, strings.Join(SupportedExchanges, ", "))
}

// IsValidExchange возвращает true если биржа поддерживается
func IsValidExchange(exchange string) bool {
	return ValidateExchange(exchange) == nil
}

// NormalizeExchange приводит имя биржи к нижнему регистру без пробелов
func NormalizeExchange(exchange string) string {
	return strings.ToLower(strings.TrimSpace(exchange))
}

// GetSupportedExchanges возвращает копию списка поддерживаемых бирж
func GetSupportedExchanges() []string {
	result := make([]string, len(SupportedExchanges))
	copy(result, SupportedExchanges)
	return result
}

// ============================================================
// Числовые параметры
// ============================================================

// ValidateDailyLossLimit проверяет дневной бюджет убытков.
//
// nil означает отсутствие лимита и всегда валиден.
// Заданный лимит должен быть >= 0 (ноль = нулевой бюджет,
// любой убыток приводит к закрытию).
func ValidateDailyLossLimit(limit *float64) error {
	if limit == nil {
		return nil
	}
	if *limit < 0 {
		return fmt.Errorf("%w: must be >= 0, got %v", ErrInvalidLossLimit, *limit)
	}
	if *limit > maxLossLimit {
		return fmt.Errorf("%w: too large (max %v)", ErrInvalidLossLimit, float64(maxLossLimit))
	}
	return nil
}

// ValidateQuantity проверяет объём позиции (> 0)
func ValidateQuantity(quantity float64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: must be > 0, got %v", ErrInvalidQuantity, quantity)
	}
	if quantity > maxQuantity {
		return fmt.Errorf("%w: too large (max %v)", ErrInvalidQuantity, float64(maxQuantity))
	}
	return nil
}

// ValidateLeverage проверяет плечо (1-100)
func ValidateLeverage(leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidLeverage, leverage)
	}
	if leverage > maxLeverage {
		return fmt.Errorf("%w: too large (max %d)", ErrInvalidLeverage, maxLeverage)
	}
	return nil
}

// ============================================================
// API ключи
// ============================================================

// ValidateAPIKey проверяет формат API ключа биржи.
//
// Минимум 16 символов, буквы/цифры/дефисы/подчёркивания.
func ValidateAPIKey(apiKey string) error {
	if len(apiKey) < minAPIKeyLength {
		return fmt.Errorf("%w: too short (min %d chars)", ErrInvalidAPIKey, minAPIKeyLength)
	}

	for _, r := range apiKey {
		if !isAPIKeyRune(r) {
			return fmt.Errorf("%w: invalid character", ErrInvalidAPIKey)
		}
	}

	return nil
}

func isAPIKeyRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	default:
		return false
	}
}

// IsValidAPIKey возвращает true если ключ валиден
func IsValidAPIKey(apiKey string) bool {
	return ValidateAPIKey(apiKey) == nil
}

// ValidateAPISecret проверяет секрет API.
//
// Только минимальная длина: биржи используют разные алфавиты
// (base64, hex), поэтому состав символов не ограничиваем.
func ValidateAPISecret(secret string) error {
	if len(secret) < minAPIKeyLength {
		return fmt.Errorf("%w: too short (min %d chars)", ErrInvalidAPISecret, minAPIKeyLength)
	}
	return nil
}

// ValidateAPIPassphrase проверяет passphrase (OKX, Bitget).
//
// Пустая строка допустима: Bybit passphrase не использует.
func ValidateAPIPassphrase(passphrase string) error {
	if len(passphrase) > maxPassphraseLen {
		return fmt.Errorf("passphrase too long (max %d chars)", maxPassphraseLen)
	}
	return nil
}

// ============================================================
// Композитная валидация
// ============================================================

// SymbolLimitValidation параметры запроса установки лимита по символу
type SymbolLimitValidation struct {
	Symbol       string
	MaxDailyLoss *float64
}

// ValidateSymbolLimit проверяет запрос на установку per-symbol лимита
func ValidateSymbolLimit(v SymbolLimitValidation) error {
	var errs ValidationErrors

	errs.AddError("symbol", ValidateSymbol(v.Symbol))
	errs.AddError("max_daily_loss", ValidateDailyLossLimit(v.MaxDailyLoss))

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ============================================================
// ValidationErrors - накопитель ошибок валидации
// ============================================================

// ValidationError ошибка валидации одного поля
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors набор ошибок валидации
type ValidationErrors []ValidationError

// Add добавляет ошибку по полю
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку если она не nil
func (ve *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	ve.Add(field, err.Error())
}

// HasErrors возвращает true если есть хотя бы одна ошибка
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Error реализует интерфейс error
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	parts := make([]string, 0, len(ve))
	for _, e := range ve {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}
