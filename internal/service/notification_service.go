package service

import (
	"fmt"

	"riskguard/internal/models"
)

// WebSocketBroadcaster - интерфейс для отправки WebSocket сообщений
//
// Позволяет избежать циклических зависимостей между пакетами
// и упрощает тестирование (можно подставить mock)
type WebSocketBroadcaster interface {
	BroadcastNotification(notif *models.Notification)
}

// NotificationService предоставляет бизнес-логику для управления уведомлениями.
//
// Отвечает за:
// - Создание уведомлений с broadcast через WebSocket
// - Получение журнала уведомлений с клампингом лимита
// - Отметку о прочтении и очистку журнала
//
// Типы уведомлений:
// - FORCED_CLOSE: принудительное закрытие позиции по риск-лимиту
// - LEDGER_ALERT: не удалось провести закрытие по учёту
// - MONITOR: запуск/остановка риск-монитора
// - ERROR: ошибка API/адаптера
type NotificationService struct {
	notificationRepo NotificationRepositoryInterface
	wsHub            WebSocketBroadcaster
}

// NewNotificationService создает новый экземпляр NotificationService.
func NewNotificationService(notificationRepo NotificationRepositoryInterface) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast уведомлений.
//
// Вызывается после инициализации Hub в main.go:
//
//	notifService := service.NewNotificationService(notifRepo)
//	notifService.SetWebSocketHub(wsHub)
func (s *NotificationService) SetWebSocketHub(hub WebSocketBroadcaster) {
	s.wsHub = hub
}

// CreateNotification создает новое уведомление.
//
// После успешного сохранения отправляет broadcast через WebSocket
// (если hub настроен). Ошибка broadcast невозможна: отправка неблокирующая.
func (s *NotificationService) CreateNotification(notif *models.Notification) error {
	if err := s.notificationRepo.Create(notif); err != nil {
		return err
	}

	// Broadcast через WebSocket hub для real-time обновления UI
	if s.wsHub != nil {
		s.wsHub.BroadcastNotification(notif)
	}

	return nil
}

// GetNotifications возвращает последние уведомления журнала.
//
// limit: максимальное количество записей (по умолчанию 100, максимум 500).
// Уведомления отсортированы по времени (новые сверху).
func (s *NotificationService) GetNotifications(limit int) ([]*models.Notification, error) {
	return s.notificationRepo.GetRecent(clampNotificationLimit(limit))
}

// GetUserNotifications возвращает уведомления одного пользователя
func (s *NotificationService) GetUserNotifications(userID, limit int) ([]*models.Notification, error) {
	return s.notificationRepo.GetByUserID(userID, clampNotificationLimit(limit))
}

// GetPositionNotifications возвращает уведомления по одной позиции
func (s *NotificationService) GetPositionNotifications(positionID, limit int) ([]*models.Notification, error) {
	return s.notificationRepo.GetByPositionID(positionID, clampNotificationLimit(limit))
}

// MarkRead помечает уведомление прочитанным
func (s *NotificationService) MarkRead(id int) error {
	return s.notificationRepo.MarkRead(id)
}

// MarkAllRead помечает все уведомления пользователя прочитанными.
// Возвращает количество обновленных записей.
func (s *NotificationService) MarkAllRead(userID int) (int64, error) {
	return s.notificationRepo.MarkAllRead(userID)
}

// ClearNotifications очищает журнал уведомлений.
//
// Удаляет все уведомления из базы данных.
func (s *NotificationService) ClearNotifications() error {
	return s.notificationRepo.DeleteAll()
}

// GetNotificationCount возвращает общее количество уведомлений.
func (s *NotificationService) GetNotificationCount() (int, error) {
	return s.notificationRepo.Count()
}

// CleanupOld удаляет уведомления, оставляя только последние N записей.
//
// Используется для периодической очистки журнала.
func (s *NotificationService) CleanupOld(keepCount int) (int64, error) {
	if keepCount <= 0 {
		keepCount = 1000
	}
	return s.notificationRepo.KeepRecent(keepCount)
}

// clampNotificationLimit приводит запрошенный лимит к допустимому диапазону
func clampNotificationLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// NotifyForcedClose создает уведомление о принудительном закрытии позиции.
//
// Вспомогательный метод для удобного создания уведомлений из монитора.
func (s *NotificationService) NotifyForcedClose(userID int, fc *models.ForcedClosure, cycleID string) error {
	positionID := fc.PositionID
	notif := &models.Notification{
		UserID:     userID,
		Type:       models.NotificationTypeForcedClose,
		Severity:   models.SeverityWarn,
		PositionID: &positionID,
		Title:      "Position force closed",
		Message: fmt.Sprintf("%s closed by %s, realized pnl %.2f USDT",
			fc.Symbol, fc.CloseReason, fc.RealizedPnl),
		Meta: map[string]interface{}{
			"cycle_id":     cycleID,
			"symbol":       fc.Symbol,
			"reason":       fc.CloseReason,
			"realized_pnl": fc.RealizedPnl,
			"exit_price":   fc.ExitPrice,
			"exit_qty":     fc.ExitQuantity,
		},
	}
	return s.CreateNotification(notif)
}

// NotifyLedgerAlert создает уведомление о неудачной проводке закрытия.
//
// Позиция закрыта на бирже, но транзакция учёта не прошла после всех
// повторов: требуется ручная сверка.
func (s *NotificationService) NotifyLedgerAlert(userID, positionID int, message string, meta map[string]interface{}) error {
	notif := &models.Notification{
		UserID:     userID,
		Type:       models.NotificationTypeLedgerAlert,
		Severity:   models.SeverityError,
		PositionID: &positionID,
		Title:      "Ledger update failed",
		Message:    message,
		Meta:       meta,
	}
	return s.CreateNotification(notif)
}

// NotifyMonitorEvent создает системное уведомление о событии монитора.
// UserID 0 означает системное уведомление без адресата.
func (s *NotificationService) NotifyMonitorEvent(message string, meta map[string]interface{}) error {
	notif := &models.Notification{
		Type:     models.NotificationTypeMonitor,
		Severity: models.SeverityInfo,
		Title:    "Risk monitor",
		Message:  message,
		Meta:     meta,
	}
	return s.CreateNotification(notif)
}

// NotifyError создает уведомление об ошибке API или адаптера.
func (s *NotificationService) NotifyError(userID int, positionID *int, message string, meta map[string]interface{}) error {
	notif := &models.Notification{
		UserID:     userID,
		Type:       models.NotificationTypeError,
		Severity:   models.SeverityError,
		PositionID: positionID,
		Title:      "Error",
		Message:    message,
		Meta:       meta,
	}
	return s.CreateNotification(notif)
}
