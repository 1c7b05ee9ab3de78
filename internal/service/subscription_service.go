package service

import (
	"errors"

	"riskguard/internal/models"
	"riskguard/internal/repository"
	"riskguard/pkg/utils"
)

// Ошибки сервиса подписок
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrBotNotFound          = errors.New("bot not found")
	ErrSymbolLimitNotFound  = errors.New("symbol limit not found")
)

// SubscriptionWithLimits - подписка вместе с её symbol-лимитами
type SubscriptionWithLimits struct {
	*models.Subscription
	SymbolLimits []*models.SubscriptionSymbolLimit `json:"symbol_limits"`
}

// BotWithLimits - бот вместе с его symbol-лимитами
type BotWithLimits struct {
	*models.Bot
	SymbolLimits []*models.BotSymbolLimit `json:"symbol_limits"`
}

// SubscriptionService - бизнес-логика управления подписками и риск-бюджетами.
//
// Бюджет задаётся указателем: nil снимает потолок (уровень становится
// неограниченным), значение >= 0 устанавливает потолок в USDT.
// Ноль - это нулевой бюджет: любой новый убыток превышает его.
type SubscriptionService struct {
	subscriptionRepo SubscriptionRepositoryInterface
	botRepo          BotRepositoryInterface
}

// NewSubscriptionService создает новый экземпляр сервиса
func NewSubscriptionService(
	subscriptionRepo SubscriptionRepositoryInterface,
	botRepo BotRepositoryInterface,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		botRepo:          botRepo,
	}
}

// GetSubscriptions возвращает все подписки вместе с их symbol-лимитами
func (s *SubscriptionService) GetSubscriptions() ([]*SubscriptionWithLimits, error) {
	subscriptions, err := s.subscriptionRepo.GetAll()
	if err != nil {
		return nil, err
	}

	result := make([]*SubscriptionWithLimits, 0, len(subscriptions))
	for _, sub := range subscriptions {
		limits, err := s.subscriptionRepo.GetSymbolLimits(sub.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, &SubscriptionWithLimits{Subscription: sub, SymbolLimits: limits})
	}
	return result, nil
}

// GetSubscription возвращает подписку с её symbol-лимитами
func (s *SubscriptionService) GetSubscription(id int) (*SubscriptionWithLimits, error) {
	sub, err := s.subscriptionRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	limits, err := s.subscriptionRepo.GetSymbolLimits(id)
	if err != nil {
		return nil, err
	}

	return &SubscriptionWithLimits{Subscription: sub, SymbolLimits: limits}, nil
}

// SetSubscriptionBudget устанавливает дневной бюджет убытков подписки.
// maxDailyLoss = nil снимает потолок.
func (s *SubscriptionService) SetSubscriptionBudget(id int, maxDailyLoss *float64) error {
	if err := utils.ValidateDailyLossLimit(maxDailyLoss); err != nil {
		return err
	}

	if err := s.subscriptionRepo.SetMaxDailyLoss(id, maxDailyLoss); err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return ErrSubscriptionNotFound
		}
		return err
	}
	return nil
}

// SetSymbolBudget устанавливает дневной бюджет убытков по символу подписки.
//
// Создает строку лимита при первом обращении. maxDailyLoss = nil оставляет
// уровень неограниченным: убытки по символу продолжают учитываться, но
// принудительных закрытий этот уровень не вызывает.
func (s *SubscriptionService) SetSymbolBudget(subscriptionID int, symbol string, maxDailyLoss *float64) error {
	// 1. Валидация входных данных
	if err := utils.ValidateSymbol(symbol); err != nil {
		return err
	}
	if err := utils.ValidateDailyLossLimit(maxDailyLoss); err != nil {
		return err
	}

	// 2. Проверяем существование подписки
	if _, err := s.subscriptionRepo.GetByID(subscriptionID); err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return ErrSubscriptionNotFound
		}
		return err
	}

	// 3. Создаем или обновляем лимит
	limit := &models.SubscriptionSymbolLimit{
		SubscriptionID: subscriptionID,
		Symbol:         utils.NormalizeSymbol(symbol),
		MaxDailyLoss:   maxDailyLoss,
	}
	return s.subscriptionRepo.UpsertSymbolLimit(limit)
}

// ClearSymbolBudget удаляет строку лимита по символу подписки.
//
// Вместе с потолком пропадает и учёт убытков по символу: уровень перестаёт
// существовать до следующего SetSymbolBudget.
func (s *SubscriptionService) ClearSymbolBudget(subscriptionID int, symbol string) error {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return err
	}

	err := s.subscriptionRepo.DeleteSymbolLimit(subscriptionID, utils.NormalizeSymbol(symbol))
	if err != nil {
		if errors.Is(err, repository.ErrSymbolLimitNotFound) {
			return ErrSymbolLimitNotFound
		}
		return err
	}
	return nil
}

// GetBots возвращает всех ботов вместе с их symbol-лимитами
func (s *SubscriptionService) GetBots() ([]*BotWithLimits, error) {
	bots, err := s.botRepo.GetAll()
	if err != nil {
		return nil, err
	}

	result := make([]*BotWithLimits, 0, len(bots))
	for _, bot := range bots {
		limits, err := s.botRepo.GetSymbolLimits(bot.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, &BotWithLimits{Bot: bot, SymbolLimits: limits})
	}
	return result, nil
}

// SetBotBudget устанавливает дневной бюджет убытков бота.
// maxDailyLoss = nil снимает потолок.
func (s *SubscriptionService) SetBotBudget(botID int, maxDailyLoss *float64) error {
	if err := utils.ValidateDailyLossLimit(maxDailyLoss); err != nil {
		return err
	}

	if err := s.botRepo.SetMaxDailyLoss(botID, maxDailyLoss); err != nil {
		if errors.Is(err, repository.ErrBotNotFound) {
			return ErrBotNotFound
		}
		return err
	}
	return nil
}

// SetBotSymbolBudget устанавливает дневной бюджет убытков по символу бота
func (s *SubscriptionService) SetBotSymbolBudget(botID int, symbol string, maxDailyLoss *float64) error {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return err
	}
	if err := utils.ValidateDailyLossLimit(maxDailyLoss); err != nil {
		return err
	}

	if _, err := s.botRepo.GetByID(botID); err != nil {
		if errors.Is(err, repository.ErrBotNotFound) {
			return ErrBotNotFound
		}
		return err
	}

	limit := &models.BotSymbolLimit{
		BotID:        botID,
		Symbol:       utils.NormalizeSymbol(symbol),
		MaxDailyLoss: maxDailyLoss,
	}
	return s.botRepo.UpsertSymbolLimit(limit)
}

// ClearBotSymbolBudget удаляет строку лимита по символу бота
func (s *SubscriptionService) ClearBotSymbolBudget(botID int, symbol string) error {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return err
	}

	err := s.botRepo.DeleteSymbolLimit(botID, utils.NormalizeSymbol(symbol))
	if err != nil {
		if errors.Is(err, repository.ErrSymbolLimitNotFound) {
			return ErrSymbolLimitNotFound
		}
		return err
	}
	return nil
}
