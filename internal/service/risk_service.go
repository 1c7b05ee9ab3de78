package service

import (
	"riskguard/pkg/utils"
)

// RiskService - операции риск-учёта, выполняемые вне цикла монитора.
//
// Сам контур принудительных закрытий живет в internal/monitor: ему нужны
// прямой доступ к биржевым сессиям и свой жизненный цикл. Здесь только
// административные операции над учётом, вызываемые через API.
type RiskService struct {
	monitoringRepo MonitoringRepositoryInterface
}

// NewRiskService создает новый экземпляр сервиса
func NewRiskService(monitoringRepo MonitoringRepositoryInterface) *RiskService {
	return &RiskService{monitoringRepo: monitoringRepo}
}

// ResetDailyCounters обнуляет накопленные дневные убытки на всех четырех
// уровнях учёта: подписки, symbol-лимиты подписок, symbol-лимиты ботов, боты.
//
// Вызывается внешним планировщиком на границе суточного окна (00:00 UTC).
// Потолки лимитов не затрагиваются. Возвращает количество обнуленных строк.
func (s *RiskService) ResetDailyCounters() (int64, error) {
	reset, err := s.monitoringRepo.ResetDailyCounters()
	if err != nil {
		return 0, err
	}

	utils.Info("daily loss counters reset",
		utils.Int64("rows", reset),
		utils.String("utc_day", utils.GetDayStart().Format("2006-01-02")))
	return reset, nil
}
