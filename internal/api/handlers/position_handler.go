package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"riskguard/internal/models"
	"riskguard/internal/service"

	"github.com/gorilla/mux"
)

// PositionHandler отвечает за чтение позиций
//
// Endpoints:
// - GET /api/v1/positions         - список открытых позиций
// - GET /api/v1/positions/closed  - последние закрытые позиции
// - GET /api/v1/positions/{id}    - конкретная позиция
//
// Назначение:
// Read-only доступ к позициям для дашборда и оперативной сверки.
// Позиции открывает внешний торговый контур, закрывает риск-монитор,
// поэтому мутирующих endpoints здесь нет.
type PositionHandler struct {
	positionService service.PositionServiceInterface
}

// NewPositionHandler создает новый PositionHandler с внедрением зависимости
func NewPositionHandler(positionService service.PositionServiceInterface) *PositionHandler {
	return &PositionHandler{
		positionService: positionService,
	}
}

// GetPositionsResponse представляет ответ списка позиций
type GetPositionsResponse struct {
	Positions []*models.Position `json:"positions"`
	Total     int                `json:"total"`
}

// GetOpenPositions возвращает все открытые позиции
// GET /api/v1/positions
//
// HTTP коды:
// - 200 OK: успешно, возвращает массив позиций
// - 500 Internal Server Error: ошибка сервера
func (h *PositionHandler) GetOpenPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positionService.GetOpenPositions()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get open positions", err.Error())
		return
	}

	if positions == nil {
		positions = []*models.Position{}
	}

	h.respondWithJSON(w, http.StatusOK, GetPositionsResponse{
		Positions: positions,
		Total:     len(positions),
	})
}

// GetClosedPositions возвращает последние закрытые позиции
// GET /api/v1/positions/closed
//
// Query параметры:
// - limit (int): количество записей (по умолчанию 50, максимум 500)
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка сервера
func (h *PositionHandler) GetClosedPositions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	positions, err := h.positionService.GetClosedPositions(limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get closed positions", err.Error())
		return
	}

	if positions == nil {
		positions = []*models.Position{}
	}

	h.respondWithJSON(w, http.StatusOK, GetPositionsResponse{
		Positions: positions,
		Total:     len(positions),
	})
}

// GetPosition возвращает конкретную позицию по ID
// GET /api/v1/positions/{id}
//
// HTTP коды:
// - 200 OK: данные позиции
// - 400 Bad Request: некорректный ID
// - 404 Not Found: позиция не найдена
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid position ID", "ID must be a number")
		return
	}

	position, err := h.positionService.GetPosition(id)
	if err != nil {
		if errors.Is(err, service.ErrPositionNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Position not found", "")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get position", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, position)
}

// respondWithJSON отправляет JSON ответ
func (h *PositionHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *PositionHandler) respondWithError(w http.ResponseWriter, code int, message, details string) {
	h.respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
