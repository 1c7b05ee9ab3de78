package handlers

import (
	"encoding/json"
	"net/http"

	"riskguard/internal/monitor"
)

// MonitorSource - источник статуса риск-монитора.
//
// Выделен в интерфейс чтобы handler не зависел от жизненного цикла
// монитора и легко подменялся в тестах.
type MonitorSource interface {
	Status() monitor.Status
}

// MonitorHandler отвечает за наблюдение за риск-монитором
//
// Endpoints:
// - GET /api/v1/monitor/status - текущее состояние контура мониторинга
type MonitorHandler struct {
	monitor MonitorSource
}

// NewMonitorHandler создает новый MonitorHandler
func NewMonitorHandler(monitor MonitorSource) *MonitorHandler {
	return &MonitorHandler{
		monitor: monitor,
	}
}

// GetStatus возвращает состояние риск-монитора
// GET /api/v1/monitor/status
//
// Ответ:
//
//	{
//	  "state": "idle",
//	  "interval": "30s",
//	  "workers": 4,
//	  "cycles_completed": 120,
//	  "last_cycle": {
//	    "cycle_id": "01J...",
//	    "records": 14,
//	    "breaches": 1,
//	    "closed": 1,
//	    ...
//	  }
//	}
//
// HTTP коды:
// - 200 OK: статус возвращен
func (h *MonitorHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.monitor.Status())
}

// respondWithJSON отправляет JSON ответ
func (h *MonitorHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
