package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"riskguard/internal/models"
	"riskguard/internal/service"

	"github.com/gorilla/mux"
)

// NotificationHandler отвечает за журнал уведомлений
//
// Endpoints:
// - GET /api/v1/notifications - получение журнала уведомлений
// - GET /api/v1/notifications?user_id=3 - уведомления одного пользователя
// - GET /api/v1/notifications?limit=50 - с ограничением количества
// - POST /api/v1/notifications/{id}/read - пометить уведомление прочитанным
// - POST /api/v1/notifications/read-all?user_id=3 - пометить все прочитанными
// - DELETE /api/v1/notifications - очистка журнала уведомлений
//
// Назначение:
// Обрабатывает запросы на чтение журнала событий риск-контура
// (принудительные закрытия, алерты леджера, события монитора, ошибки),
// обеспечивает пагинацию (по умолчанию 100 событий),
// позволяет помечать уведомления прочитанными и очищать историю
type NotificationHandler struct {
	notificationService service.NotificationServiceInterface
}

// NewNotificationHandler создает новый NotificationHandler с внедрением зависимости
func NewNotificationHandler(notificationService service.NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// GetNotificationsResponse представляет ответ списка уведомлений
type GetNotificationsResponse struct {
	Notifications []NotificationDTO `json:"notifications"`
	Total         int               `json:"total"`
}

// NotificationDTO представляет уведомление в API
type NotificationDTO struct {
	ID         int                    `json:"id"`
	UserID     int                    `json:"user_id"`
	Timestamp  string                 `json:"timestamp"`
	Type       string                 `json:"type"`
	Severity   string                 `json:"severity"`
	PositionID *int                   `json:"position_id,omitempty"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Read       bool                   `json:"read"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// GetNotifications возвращает журнал уведомлений
//
// GET /api/v1/notifications
//
// Query параметры:
// - user_id (int): только уведомления этого пользователя
// - limit (int): количество записей (по умолчанию 100, максимум 500)
//
// Типы уведомлений:
// - FORCED_CLOSE: принудительное закрытие позиции по риск-лимиту
// - LEDGER_ALERT: закрытие прошло на бирже, но не записано в учёт
// - MONITOR: запуск/остановка риск-монитора
// - ERROR: ошибка API/адаптера
//
// Примеры запросов:
// - GET /api/v1/notifications - все уведомления (последние 100)
// - GET /api/v1/notifications?user_id=3 - уведомления пользователя 3
// - GET /api/v1/notifications?limit=50 - последние 50
//
// HTTP коды:
// - 200 OK: успешно, возвращает массив уведомлений
// - 400 Bad Request: некорректный user_id
// - 500 Internal Server Error: ошибка сервера
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	// Парсинг query параметров
	userParam := r.URL.Query().Get("user_id")
	limitParam := r.URL.Query().Get("limit")

	limit := 0
	if limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	// Получение уведомлений через service
	var notifications []*models.Notification

	if userParam != "" {
		userID, err := strconv.Atoi(userParam)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid user_id: must be a number")
			return
		}
		notifications, err = h.notificationService.GetUserNotifications(userID, limit)
		if err != nil {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to get notifications: "+err.Error())
			return
		}
	} else {
		var err error
		notifications, err = h.notificationService.GetNotifications(limit)
		if err != nil {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to get notifications: "+err.Error())
			return
		}
	}

	// Преобразуем в DTO
	dtos := make([]NotificationDTO, 0, len(notifications))
	for _, n := range notifications {
		dtos = append(dtos, NotificationDTO{
			ID:         n.ID,
			UserID:     n.UserID,
			Timestamp:  n.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			Type:       n.Type,
			Severity:   n.Severity,
			PositionID: n.PositionID,
			Title:      n.Title,
			Message:    n.Message,
			Read:       n.Read,
			Meta:       n.Meta,
		})
	}

	h.respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: dtos,
		Total:         len(dtos),
	})
}

// MarkRead помечает уведомление прочитанным
//
// POST /api/v1/notifications/{id}/read
//
// HTTP коды:
// - 200 OK: уведомление помечено
// - 400 Bad Request: некорректный ID
// - 500 Internal Server Error: ошибка сервера
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid notification ID: must be a number")
		return
	}

	if err := h.notificationService.MarkRead(id); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to mark notification read: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Notification marked read",
		"id":      id,
	})
}

// MarkAllRead помечает все уведомления пользователя прочитанными
//
// POST /api/v1/notifications/read-all?user_id=3
//
// HTTP коды:
// - 200 OK: возвращает количество обновленных записей
// - 400 Bad Request: отсутствует или некорректен user_id
// - 500 Internal Server Error: ошибка сервера
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "user_id query parameter is required and must be a number")
		return
	}

	updated, err := h.notificationService.MarkAllRead(userID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to mark notifications read: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Notifications marked read",
		"updated": updated,
	})
}

// ClearNotificationsResponse представляет ответ очистки уведомлений
type ClearNotificationsResponse struct {
	Message string `json:"message"`
}

// ClearNotifications очищает журнал уведомлений
//
// DELETE /api/v1/notifications
//
// Удаляет все уведомления из базы данных.
// Это действие необратимо.
//
// HTTP коды:
// - 200 OK: журнал успешно очищен
// - 500 Internal Server Error: ошибка при очистке
func (h *NotificationHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationService.ClearNotifications(); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to clear notifications: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, ClearNotificationsResponse{
		Message: "Notifications cleared successfully",
	})
}

// respondWithError отправляет JSON ошибку
func (h *NotificationHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func (h *NotificationHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
