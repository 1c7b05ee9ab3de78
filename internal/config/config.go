package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Monitor  MonitorConfig
	Security SecurityConfig
	Telegram TelegramConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	ShutdownTimeout time.Duration // ожидание завершения активных запросов
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// MonitorConfig - настройки цикла контроля риска
type MonitorConfig struct {
	Enabled  bool          // запускать монитор при старте процесса
	Interval time.Duration // период между циклами опроса
	Workers  int           // размер пула воркеров цикла

	ProbeTimeout time.Duration // таймаут опроса позиции на бирже
	CloseTimeout time.Duration // таймаут принудительного закрытия

	// Допустимое относительное расхождение между расчетным PnL
	// и ценой исполнения биржи, сверх которого пишется предупреждение
	DivergenceTolerance float64
}

// SecurityConfig - настройки безопасности.
// Из MasterKey и Salt выводится AES-256 ключ для хранимых API ключей бирж.
type SecurityConfig struct {
	MasterKey string
	Salt      string
}

// TelegramConfig - настройки операторских уведомлений
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// Enabled сообщает, настроен ли телеграм-канал уведомлений
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из .env файла и переменных окружения.
// Отсутствие .env файла не является ошибкой.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "riskguard"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Monitor: MonitorConfig{
			Enabled:             getEnvAsBool("MONITOR_ENABLED", true),
			Interval:            getEnvAsDuration("MONITOR_INTERVAL", 30*time.Second),
			Workers:             getEnvAsInt("MONITOR_WORKERS", 8),
			ProbeTimeout:        getEnvAsDuration("MONITOR_PROBE_TIMEOUT", 10*time.Second),
			CloseTimeout:        getEnvAsDuration("MONITOR_CLOSE_TIMEOUT", 15*time.Second),
			DivergenceTolerance: getEnvAsFloat("MONITOR_DIVERGENCE_TOLERANCE", 0.005),
		},
		Security: SecurityConfig{
			MasterKey: getEnv("MASTER_KEY", ""),
			Salt:      getEnv("ENCRYPTION_SALT", ""),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", "stdout"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// MASTER_KEY обязателен для шифрования API ключей бирж
	if c.Security.MasterKey == "" {
		return fmt.Errorf("MASTER_KEY is required for encrypting API keys")
	}

	if len(c.Security.MasterKey) < 16 {
		return fmt.Errorf("MASTER_KEY must be at least 16 characters, got %d", len(c.Security.MasterKey))
	}

	if c.Security.Salt == "" {
		return fmt.Errorf("ENCRYPTION_SALT is required for key derivation")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Интервал ниже секунды превращает опрос бирж в флуд
	if c.Monitor.Interval < time.Second {
		return fmt.Errorf("MONITOR_INTERVAL must be at least 1s, got %v", c.Monitor.Interval)
	}

	if c.Monitor.Workers < 1 || c.Monitor.Workers > 64 {
		return fmt.Errorf("MONITOR_WORKERS must be between 1 and 64, got %d", c.Monitor.Workers)
	}

	if c.Monitor.ProbeTimeout <= 0 {
		return fmt.Errorf("MONITOR_PROBE_TIMEOUT must be positive, got %v", c.Monitor.ProbeTimeout)
	}

	if c.Monitor.CloseTimeout <= 0 {
		return fmt.Errorf("MONITOR_CLOSE_TIMEOUT must be positive, got %v", c.Monitor.CloseTimeout)
	}

	if c.Monitor.DivergenceTolerance < 0 {
		return fmt.Errorf("MONITOR_DIVERGENCE_TOLERANCE cannot be negative, got %v", c.Monitor.DivergenceTolerance)
	}

	// Телеграм настраивается целиком либо никак
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == 0) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
