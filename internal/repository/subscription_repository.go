package repository

import (
	"database/sql"
	"errors"
	"time"

	"riskguard/internal/models"
)

// Ошибки репозитория подписок
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSymbolLimitNotFound  = errors.New("symbol limit not found")
)

// SubscriptionRepository - работа с таблицами subscriptions и
// subscription_symbol_limits
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository создает новый экземпляр репозитория
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create создает новую подписку
func (r *SubscriptionRepository) Create(subscription *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, bot_id, exchange_account_id, exchange, status, max_daily_loss, current_daily_loss, open_positions, total_pnl, win_count, loss_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	now := time.Now()
	subscription.CreatedAt = now
	subscription.UpdatedAt = now

	if subscription.Status == "" {
		subscription.Status = models.SubscriptionStatusActive
	}

	return r.db.QueryRow(
		query,
		subscription.UserID,
		subscription.BotID,
		subscription.ExchangeAccountID,
		subscription.Exchange,
		subscription.Status,
		subscription.MaxDailyLoss,
		subscription.CurrentDailyLoss,
		subscription.OpenPositions,
		subscription.TotalPnl,
		subscription.WinCount,
		subscription.LossCount,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Scan(&subscription.ID)
}

// GetByID возвращает подписку по ID
func (r *SubscriptionRepository) GetByID(id int) (*models.Subscription, error) {
	query := `
		SELECT id, user_id, bot_id, exchange_account_id, exchange, status, max_daily_loss, current_daily_loss, open_positions, total_pnl, win_count, loss_count, created_at, updated_at
		FROM subscriptions
		WHERE id = $1`

	subscription := &models.Subscription{}
	err := r.db.QueryRow(query, id).Scan(
		&subscription.ID,
		&subscription.UserID,
		&subscription.BotID,
		&subscription.ExchangeAccountID,
		&subscription.Exchange,
		&subscription.Status,
		&subscription.MaxDailyLoss,
		&subscription.CurrentDailyLoss,
		&subscription.OpenPositions,
		&subscription.TotalPnl,
		&subscription.WinCount,
		&subscription.LossCount,
		&subscription.CreatedAt,
		&subscription.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	return subscription, nil
}

// GetAll возвращает все подписки
func (r *SubscriptionRepository) GetAll() ([]*models.Subscription, error) {
	query := `
		SELECT id, user_id, bot_id, exchange_account_id, exchange, status, max_daily_loss, current_daily_loss, open_positions, total_pnl, win_count, loss_count, created_at, updated_at
		FROM subscriptions
		ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// GetActive возвращает активные подписки
func (r *SubscriptionRepository) GetActive() ([]*models.Subscription, error) {
	query := `
		SELECT id, user_id, bot_id, exchange_account_id, exchange, status, max_daily_loss, current_daily_loss, open_positions, total_pnl, win_count, loss_count, created_at, updated_at
		FROM subscriptions
		WHERE status = 'active'
		ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// SetMaxDailyLoss устанавливает дневной лимит убытка подписки.
// nil снимает лимит (NULL в БД).
func (r *SubscriptionRepository) SetMaxDailyLoss(id int, maxDailyLoss *float64) error {
	query := `UPDATE subscriptions SET max_daily_loss = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, maxDailyLoss, time.Now(), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

// GetSymbolLimits возвращает лимиты по символам подписки
func (r *SubscriptionRepository) GetSymbolLimits(subscriptionID int) ([]*models.SubscriptionSymbolLimit, error) {
	query := `
		SELECT id, subscription_id, symbol, max_daily_loss, current_daily_loss, open_positions, created_at, updated_at
		FROM subscription_symbol_limits
		WHERE subscription_id = $1
		ORDER BY symbol`

	rows, err := r.db.Query(query, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var limits []*models.SubscriptionSymbolLimit
	for rows.Next() {
		limit := &models.SubscriptionSymbolLimit{}
		err := rows.Scan(
			&limit.ID,
			&limit.SubscriptionID,
			&limit.Symbol,
			&limit.MaxDailyLoss,
			&limit.CurrentDailyLoss,
			&limit.OpenPositions,
			&limit.CreatedAt,
			&limit.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		limits = append(limits, limit)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return limits, nil
}

// UpsertSymbolLimit создает или обновляет лимит по символу подписки.
// Накопленный дневной убыток существующей строки при обновлении сохраняется.
func (r *SubscriptionRepository) UpsertSymbolLimit(limit *models.SubscriptionSymbolLimit) error {
	query := `
		INSERT INTO subscription_symbol_limits (subscription_id, symbol, max_daily_loss, current_daily_loss, open_positions, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, $4)
		ON CONFLICT (subscription_id, symbol)
		DO UPDATE SET max_daily_loss = EXCLUDED.max_daily_loss, updated_at = EXCLUDED.updated_at
		RETURNING id`

	now := time.Now()
	limit.UpdatedAt = now
	if limit.CreatedAt.IsZero() {
		limit.CreatedAt = now
	}

	return r.db.QueryRow(query, limit.SubscriptionID, limit.Symbol, limit.MaxDailyLoss, now).Scan(&limit.ID)
}

// DeleteSymbolLimit удаляет лимит по символу подписки
func (r *SubscriptionRepository) DeleteSymbolLimit(subscriptionID int, symbol string) error {
	query := `DELETE FROM subscription_symbol_limits WHERE subscription_id = $1 AND symbol = $2`

	result, err := r.db.Exec(query, subscriptionID, symbol)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSymbolLimitNotFound
	}

	return nil
}

// scanSubscriptions читает подписки из результата запроса
func scanSubscriptions(rows *sql.Rows) ([]*models.Subscription, error) {
	var subscriptions []*models.Subscription
	for rows.Next() {
		subscription := &models.Subscription{}
		err := rows.Scan(
			&subscription.ID,
			&subscription.UserID,
			&subscription.BotID,
			&subscription.ExchangeAccountID,
			&subscription.Exchange,
			&subscription.Status,
			&subscription.MaxDailyLoss,
			&subscription.CurrentDailyLoss,
			&subscription.OpenPositions,
			&subscription.TotalPnl,
			&subscription.WinCount,
			&subscription.LossCount,
			&subscription.CreatedAt,
			&subscription.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subscriptions, nil
}
