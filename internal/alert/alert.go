package alert

import (
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"riskguard/internal/config"
	"riskguard/pkg/utils"
)

// alert.go - срочные операторские алерты
//
// Канал для событий, требующих внимания человека немедленно:
// расхождение биржи и леджера, серии неудачных закрытий. Это не замена
// журналу уведомлений в БД, а дублирующий push в чат дежурного.
//
// Отправка всегда best-effort: недоставленный алерт не должен ронять
// контур мониторинга.

// Alerter - канал срочных алертов
type Alerter interface {
	Alert(msg string)
	Alertf(format string, args ...interface{})
}

// ============================================================
// Telegram
// ============================================================

// Telegram отправляет алерты в операторский чат
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegram создает телеграм-алертер.
// Ошибка означает невалидный токен или недоступность API Telegram.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Alert отправляет сообщение в операторский чат
func (t *Telegram) Alert(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		utils.Warn("telegram alert delivery failed",
			utils.Component("alert"),
			utils.Err(err))
	}
}

// Alertf отправляет форматированное сообщение
func (t *Telegram) Alertf(format string, args ...interface{}) {
	t.Alert(fmt.Sprintf(format, args...))
}

// ============================================================
// Log fallback
// ============================================================

// Log пишет алерты в основной лог. Используется когда телеграм
// не настроен, чтобы алерты не терялись молча.
type Log struct{}

// NewLog создает лог-алертер
func NewLog() *Log {
	return &Log{}
}

// Alert пишет алерт в лог на уровне warn
func (l *Log) Alert(msg string) {
	utils.Warn("operator alert",
		utils.Component("alert"),
		utils.String("message", msg))
}

// Alertf пишет форматированный алерт
func (l *Log) Alertf(format string, args ...interface{}) {
	l.Alert(fmt.Sprintf(format, args...))
}

// ============================================================
// Фабрика
// ============================================================

// New выбирает канал алертов по конфигурации: телеграм если настроен,
// иначе лог. Сбой инициализации телеграма не фатален.
func New(cfg config.TelegramConfig) Alerter {
	if !cfg.Enabled() {
		utils.Info("telegram alerts disabled, using log alerter",
			utils.Component("alert"))
		return NewLog()
	}

	tg, err := NewTelegram(cfg.BotToken, cfg.ChatID)
	if err != nil {
		utils.Warn("telegram alerter init failed, falling back to log",
			utils.Component("alert"),
			utils.Err(err))
		return NewLog()
	}

	utils.Info("telegram alerts enabled",
		utils.Component("alert"),
		utils.Int64("chat_id", cfg.ChatID))
	return tg
}

var (
	_ Alerter = (*Telegram)(nil)
	_ Alerter = (*Log)(nil)
)
