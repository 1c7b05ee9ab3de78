package repository

import (
	"database/sql"
	"errors"
	"time"

	"riskguard/internal/models"
)

// Ошибки репозитория ботов
var (
	ErrBotNotFound = errors.New("bot not found")
)

// BotRepository - работа с таблицами bots и bot_symbol_limits
type BotRepository struct {
	db *sql.DB
}

// NewBotRepository создает новый экземпляр репозитория
func NewBotRepository(db *sql.DB) *BotRepository {
	return &BotRepository{db: db}
}

// Create создает нового бота
func (r *BotRepository) Create(bot *models.Bot) error {
	query := `
		INSERT INTO bots (name, status, max_daily_loss, current_daily_loss, open_positions, total_pnl, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	if bot.Status == "" {
		bot.Status = models.BotStatusActive
	}

	return r.db.QueryRow(
		query,
		bot.Name,
		bot.Status,
		bot.MaxDailyLoss,
		bot.CurrentDailyLoss,
		bot.OpenPositions,
		bot.TotalPnl,
		bot.CreatedAt,
		bot.UpdatedAt,
	).Scan(&bot.ID)
}

// GetByID возвращает бота по ID
func (r *BotRepository) GetByID(id int) (*models.Bot, error) {
	query := `
		SELECT id, name, status, max_daily_loss, current_daily_loss, open_positions, total_pnl, created_at, updated_at
		FROM bots
		WHERE id = $1`

	bot := &models.Bot{}
	err := r.db.QueryRow(query, id).Scan(
		&bot.ID,
		&bot.Name,
		&bot.Status,
		&bot.MaxDailyLoss,
		&bot.CurrentDailyLoss,
		&bot.OpenPositions,
		&bot.TotalPnl,
		&bot.CreatedAt,
		&bot.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, err
	}

	return bot, nil
}

// GetAll возвращает всех ботов
func (r *BotRepository) GetAll() ([]*models.Bot, error) {
	query := `
		SELECT id, name, status, max_daily_loss, current_daily_loss, open_positions, total_pnl, created_at, updated_at
		FROM bots
		ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []*models.Bot
	for rows.Next() {
		bot := &models.Bot{}
		err := rows.Scan(
			&bot.ID,
			&bot.Name,
			&bot.Status,
			&bot.MaxDailyLoss,
			&bot.CurrentDailyLoss,
			&bot.OpenPositions,
			&bot.TotalPnl,
			&bot.CreatedAt,
			&bot.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return bots, nil
}

// SetMaxDailyLoss устанавливает дневной лимит убытка бота.
// nil снимает лимит (NULL в БД).
func (r *BotRepository) SetMaxDailyLoss(id int, maxDailyLoss *float64) error {
	query := `UPDATE bots SET max_daily_loss = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, maxDailyLoss, time.Now(), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBotNotFound
	}

	return nil
}

// GetSymbolLimits возвращает лимиты по символам бота
func (r *BotRepository) GetSymbolLimits(botID int) ([]*models.BotSymbolLimit, error) {
	query := `
		SELECT id, bot_id, symbol, max_daily_loss, current_daily_loss, open_positions, created_at, updated_at
		FROM bot_symbol_limits
		WHERE bot_id = $1
		ORDER BY symbol`

	rows, err := r.db.Query(query, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var limits []*models.BotSymbolLimit
	for rows.Next() {
		limit := &models.BotSymbolLimit{}
		err := rows.Scan(
			&limit.ID,
			&limit.BotID,
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

// UpsertSymbolLimit создает или обновляет лимит по символу бота.
// Накопленный дневной убыток существующей строки при обновлении сохраняется.
func (r *BotRepository) UpsertSymbolLimit(limit *models.BotSymbolLimit) error {
	query := `
		INSERT INTO bot_symbol_limits (bot_id, symbol, max_daily_loss, current_daily_loss, open_positions, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, $4)
		ON CONFLICT (bot_id, symbol)
		DO UPDATE SET max_daily_loss = EXCLUDED.max_daily_loss, updated_at = EXCLUDED.updated_at
		RETURNING id`

	now := time.Now()
	limit.UpdatedAt = now
	if limit.CreatedAt.IsZero() {
		limit.CreatedAt = now
	}

	return r.db.QueryRow(query, limit.BotID, limit.Symbol, limit.MaxDailyLoss, now).Scan(&limit.ID)
}

// DeleteSymbolLimit удаляет лимит по символу бота
func (r *BotRepository) DeleteSymbolLimit(botID int, symbol string) error {
	query := `DELETE FROM bot_symbol_limits WHERE bot_id = $1 AND symbol = $2`

	result, err := r.db.Exec(query, botID, symbol)
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
