package handlers

import (
	"encoding/json"
	"net/http"

	"riskguard/internal/service"
)

// RiskHandler отвечает за административные операции риск-учёта
//
// Endpoints:
// - POST /api/v1/risk/reset-daily - обнуление дневных счетчиков убытков
type RiskHandler struct {
	riskService service.RiskServiceInterface
}

// NewRiskHandler создает новый RiskHandler с внедрением зависимости
func NewRiskHandler(riskService service.RiskServiceInterface) *RiskHandler {
	return &RiskHandler{
		riskService: riskService,
	}
}

// ResetDailyResponse представляет ответ сброса дневных счетчиков
type ResetDailyResponse struct {
	Message   string `json:"message"`
	ResetRows int64  `json:"reset_rows"`
}

// ResetDaily обнуляет накопленные дневные убытки на всех уровнях учёта:
// подписки, symbol-лимиты подписок, symbol-лимиты ботов, боты.
//
// POST /api/v1/risk/reset-daily
//
// Вызывается внешним планировщиком на границе суточного окна (00:00 UTC).
// Потолки лимитов не затрагиваются, только накопленные счетчики.
//
// HTTP коды:
// - 200 OK: счетчики обнулены, возвращает количество строк
// - 500 Internal Server Error: ошибка при сбросе
func (h *RiskHandler) ResetDaily(w http.ResponseWriter, r *http.Request) {
	reset, err := h.riskService.ResetDailyCounters()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to reset daily counters", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, ResetDailyResponse{
		Message:   "Daily loss counters reset",
		ResetRows: reset,
	})
}

// respondWithJSON отправляет JSON ответ
func (h *RiskHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *RiskHandler) respondWithError(w http.ResponseWriter, code int, message, details string) {
	h.respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
