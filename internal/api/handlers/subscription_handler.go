package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"riskguard/internal/service"
	"riskguard/pkg/utils"

	"github.com/gorilla/mux"
)

// SubscriptionHandler отвечает за подписки, ботов и их риск-бюджеты
//
// Endpoints:
// - GET /api/v1/subscriptions                                - список подписок с лимитами
// - GET /api/v1/subscriptions/{id}                           - конкретная подписка
// - PUT /api/v1/subscriptions/{id}/budget                    - дневной бюджет подписки
// - PUT /api/v1/subscriptions/{id}/symbols/{symbol}/budget   - бюджет по символу подписки
// - DELETE /api/v1/subscriptions/{id}/symbols/{symbol}/budget - удалить лимит по символу
// - GET /api/v1/bots                                         - список ботов с лимитами
// - PUT /api/v1/bots/{id}/budget                             - дневной бюджет бота
// - PUT /api/v1/bots/{id}/symbols/{symbol}/budget            - бюджет по символу бота
// - DELETE /api/v1/bots/{id}/symbols/{symbol}/budget         - удалить лимит по символу бота
//
// Семантика бюджета:
// max_daily_loss задается в USDT, >= 0. Значение null (или отсутствие поля)
// снимает потолок: уровень продолжает учитывать убытки, но закрытий не вызывает.
// DELETE по символу удаляет строку лимита целиком вместе с её учётом.
type SubscriptionHandler struct {
	subscriptionService service.SubscriptionServiceInterface
}

// NewSubscriptionHandler создает новый SubscriptionHandler с внедрением зависимости
func NewSubscriptionHandler(subscriptionService service.SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// SetBudgetRequest - тело запроса установки дневного бюджета
type SetBudgetRequest struct {
	// Потолок дневного убытка в USDT. null снимает потолок.
	MaxDailyLoss *float64 `json:"max_daily_loss"`
}

// GetSubscriptions возвращает все подписки вместе с их symbol-лимитами
// GET /api/v1/subscriptions
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка сервера
func (h *SubscriptionHandler) GetSubscriptions(w http.ResponseWriter, r *http.Request) {
	subscriptions, err := h.subscriptionService.GetSubscriptions()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get subscriptions", err.Error())
		return
	}

	if subscriptions == nil {
		subscriptions = []*service.SubscriptionWithLimits{}
	}

	h.respondWithJSON(w, http.StatusOK, subscriptions)
}

// GetSubscription возвращает подписку с её symbol-лимитами
// GET /api/v1/subscriptions/{id}
//
// HTTP коды:
// - 200 OK: данные подписки
// - 400 Bad Request: некорректный ID
// - 404 Not Found: подписка не найдена
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	subscription, err := h.subscriptionService.GetSubscription(id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, subscription)
}

// SetSubscriptionBudget устанавливает дневной бюджет убытков подписки
// PUT /api/v1/subscriptions/{id}/budget
//
// Тело запроса:
//
//	{"max_daily_loss": 150.0}  - потолок 150 USDT
//	{"max_daily_loss": null}   - снять потолок
//
// HTTP коды:
// - 200 OK: бюджет обновлен
// - 400 Bad Request: некорректные данные
// - 404 Not Found: подписка не найдена
func (h *SubscriptionHandler) SetSubscriptionBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	req, ok := h.decodeBudget(w, r)
	if !ok {
		return
	}

	if err := h.subscriptionService.SetSubscriptionBudget(id, req.MaxDailyLoss); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Budget updated",
		"subscription_id": id,
		"max_daily_loss":  req.MaxDailyLoss,
	})
}

// SetSymbolBudget устанавливает дневной бюджет убытков по символу подписки
// PUT /api/v1/subscriptions/{id}/symbols/{symbol}/budget
//
// Создает строку лимита при первом обращении.
//
// HTTP коды:
// - 200 OK: бюджет обновлен
// - 400 Bad Request: некорректный символ или значение
// - 404 Not Found: подписка не найдена
func (h *SubscriptionHandler) SetSymbolBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	symbol := mux.Vars(r)["symbol"]

	req, ok := h.decodeBudget(w, r)
	if !ok {
		return
	}

	if err := h.subscriptionService.SetSymbolBudget(id, symbol, req.MaxDailyLoss); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Symbol budget updated",
		"subscription_id": id,
		"symbol":          utils.NormalizeSymbol(symbol),
		"max_daily_loss":  req.MaxDailyLoss,
	})
}

// ClearSymbolBudget удаляет строку лимита по символу подписки
// DELETE /api/v1/subscriptions/{id}/symbols/{symbol}/budget
//
// HTTP коды:
// - 200 OK: лимит удален
// - 400 Bad Request: некорректный символ
// - 404 Not Found: лимит не найден
func (h *SubscriptionHandler) ClearSymbolBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	symbol := mux.Vars(r)["symbol"]

	if err := h.subscriptionService.ClearSymbolBudget(id, symbol); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Symbol budget removed",
		"subscription_id": id,
		"symbol":          utils.NormalizeSymbol(symbol),
	})
}

// GetBots возвращает всех ботов вместе с их symbol-лимитами
// GET /api/v1/bots
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка сервера
func (h *SubscriptionHandler) GetBots(w http.ResponseWriter, r *http.Request) {
	bots, err := h.subscriptionService.GetBots()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get bots", err.Error())
		return
	}

	if bots == nil {
		bots = []*service.BotWithLimits{}
	}

	h.respondWithJSON(w, http.StatusOK, bots)
}

// SetBotBudget устанавливает дневной бюджет убытков бота
// PUT /api/v1/bots/{id}/budget
//
// HTTP коды:
// - 200 OK: бюджет обновлен
// - 400 Bad Request: некорректные данные
// - 404 Not Found: бот не найден
func (h *SubscriptionHandler) SetBotBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	req, ok := h.decodeBudget(w, r)
	if !ok {
		return
	}

	if err := h.subscriptionService.SetBotBudget(id, req.MaxDailyLoss); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Budget updated",
		"bot_id":         id,
		"max_daily_loss": req.MaxDailyLoss,
	})
}

// SetBotSymbolBudget устанавливает дневной бюджет убытков по символу бота
// PUT /api/v1/bots/{id}/symbols/{symbol}/budget
//
// HTTP коды:
// - 200 OK: бюджет обновлен
// - 400 Bad Request: некорректный символ или значение
// - 404 Not Found: бот не найден
func (h *SubscriptionHandler) SetBotSymbolBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	symbol := mux.Vars(r)["symbol"]

	req, ok := h.decodeBudget(w, r)
	if !ok {
		return
	}

	if err := h.subscriptionService.SetBotSymbolBudget(id, symbol, req.MaxDailyLoss); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Symbol budget updated",
		"bot_id":         id,
		"symbol":         utils.NormalizeSymbol(symbol),
		"max_daily_loss": req.MaxDailyLoss,
	})
}

// ClearBotSymbolBudget удаляет строку лимита по символу бота
// DELETE /api/v1/bots/{id}/symbols/{symbol}/budget
//
// HTTP коды:
// - 200 OK: лимит удален
// - 400 Bad Request: некорректный символ
// - 404 Not Found: лимит не найден
func (h *SubscriptionHandler) ClearBotSymbolBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	symbol := mux.Vars(r)["symbol"]

	if err := h.subscriptionService.ClearBotSymbolBudget(id, symbol); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Symbol budget removed",
		"bot_id":  id,
		"symbol":  utils.NormalizeSymbol(symbol),
	})
}

// pathID извлекает числовой path-параметр, отвечая 400 при ошибке
func (h *SubscriptionHandler) pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid ID", "ID must be a number")
		return 0, false
	}
	return id, true
}

// decodeBudget читает тело запроса установки бюджета, отвечая 400 при ошибке
func (h *SubscriptionHandler) decodeBudget(w http.ResponseWriter, r *http.Request) (SetBudgetRequest, bool) {
	var req SetBudgetRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return SetBudgetRequest{}, false
	}
	return req, true
}

// handleServiceError обрабатывает ошибки от сервиса и возвращает соответствующий HTTP статус
func (h *SubscriptionHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSubscriptionNotFound):
		h.respondWithError(w, http.StatusNotFound, "Subscription not found", "")

	case errors.Is(err, service.ErrBotNotFound):
		h.respondWithError(w, http.StatusNotFound, "Bot not found", "")

	case errors.Is(err, service.ErrSymbolLimitNotFound):
		h.respondWithError(w, http.StatusNotFound, "Symbol limit not found", "")

	case errors.Is(err, utils.ErrInvalidSymbol):
		h.respondWithError(w, http.StatusBadRequest, "Invalid symbol", err.Error())

	case errors.Is(err, utils.ErrInvalidLossLimit):
		h.respondWithError(w, http.StatusBadRequest, "Invalid daily loss limit", err.Error())

	default:
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}

// respondWithJSON отправляет JSON ответ
func (h *SubscriptionHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *SubscriptionHandler) respondWithError(w http.ResponseWriter, code int, message, details string) {
	h.respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
