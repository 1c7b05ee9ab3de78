package service

import (
	"errors"

	"riskguard/internal/models"
	"riskguard/internal/repository"
)

// ErrPositionNotFound возвращается для запроса несуществующей позиции
var ErrPositionNotFound = errors.New("position not found")

// PositionService - read-only доступ к позициям для API.
//
// Позиции открывает внешний торговый контур, закрывает риск-монитор:
// через этот сервис ничего не изменяется.
type PositionService struct {
	positionRepo PositionRepositoryInterface
}

// NewPositionService создает новый экземпляр сервиса позиций
func NewPositionService(positionRepo PositionRepositoryInterface) *PositionService {
	return &PositionService{positionRepo: positionRepo}
}

// GetOpenPositions возвращает все открытые позиции
func (s *PositionService) GetOpenPositions() ([]*models.Position, error) {
	return s.positionRepo.GetOpen()
}

// GetPosition возвращает позицию по идентификатору
func (s *PositionService) GetPosition(id int) (*models.Position, error) {
	position, err := s.positionRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return position, nil
}

// GetClosedPositions возвращает последние закрытые позиции.
// limit по умолчанию 50, максимум 500.
func (s *PositionService) GetClosedPositions(limit int) ([]*models.Position, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return s.positionRepo.GetRecentlyClosed(limit)
}

// CountOpen возвращает количество открытых позиций
func (s *PositionService) CountOpen() (int, error) {
	return s.positionRepo.CountOpen()
}
