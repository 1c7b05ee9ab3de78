package repository

import (
	"database/sql"
	"errors"
	"time"

	"riskguard/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
)

// PositionRepository - работа с таблицей positions
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create создает новую позицию
func (r *PositionRepository) Create(position *models.Position) error {
	query := `
		INSERT INTO positions (subscription_id, symbol, side, status, entry_price, quantity, leverage, opened_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	now := time.Now()
	if position.Status == "" {
		position.Status = models.PositionStatusOpen
	}
	if position.OpenedAt.IsZero() {
		position.OpenedAt = now
	}
	position.CreatedAt = now
	position.UpdatedAt = now

	return r.db.QueryRow(
		query,
		position.SubscriptionID,
		position.Symbol,
		position.Side,
		position.Status,
		position.EntryPrice,
		position.Quantity,
		position.Leverage,
		position.OpenedAt,
		position.CreatedAt,
		position.UpdatedAt,
	).Scan(&position.ID)
}

// GetByID возвращает позицию по ID
func (r *PositionRepository) GetByID(id int) (*models.Position, error) {
	query := `
		SELECT id, subscription_id, symbol, side, status, entry_price, quantity, leverage,
		       exit_price, exit_quantity, realized_pnl, close_reason, opened_at, closed_at, created_at, updated_at
		FROM positions
		WHERE id = $1`

	position := &models.Position{}
	err := r.db.QueryRow(query, id).Scan(
		&position.ID,
		&position.SubscriptionID,
		&position.Symbol,
		&position.Side,
		&position.Status,
		&position.EntryPrice,
		&position.Quantity,
		&position.Leverage,
		&position.ExitPrice,
		&position.ExitQuantity,
		&position.RealizedPnl,
		&position.CloseReason,
		&position.OpenedAt,
		&position.ClosedAt,
		&position.CreatedAt,
		&position.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	return position, nil
}

// GetOpen возвращает все открытые позиции
func (r *PositionRepository) GetOpen() ([]*models.Position, error) {
	query := `
		SELECT id, subscription_id, symbol, side, status, entry_price, quantity, leverage,
		       exit_price, exit_quantity, realized_pnl, close_reason, opened_at, closed_at, created_at, updated_at
		FROM positions
		WHERE status = 'open'
		ORDER BY opened_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetOpenBySubscription возвращает открытые позиции подписки
func (r *PositionRepository) GetOpenBySubscription(subscriptionID int) ([]*models.Position, error) {
	query := `
		SELECT id, subscription_id, symbol, side, status, entry_price, quantity, leverage,
		       exit_price, exit_quantity, realized_pnl, close_reason, opened_at, closed_at, created_at, updated_at
		FROM positions
		WHERE subscription_id = $1 AND status = 'open'
		ORDER BY opened_at DESC`

	rows, err := r.db.Query(query, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetRecentlyClosed возвращает последние закрытые позиции
func (r *PositionRepository) GetRecentlyClosed(limit int) ([]*models.Position, error) {
	query := `
		SELECT id, subscription_id, symbol, side, status, entry_price, quantity, leverage,
		       exit_price, exit_quantity, realized_pnl, close_reason, opened_at, closed_at, created_at, updated_at
		FROM positions
		WHERE status = 'closed'
		ORDER BY closed_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

// CountOpen возвращает число открытых позиций
func (r *PositionRepository) CountOpen() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM positions WHERE status = 'open'`).Scan(&count)
	return count, err
}

// scanPositions читает позиции из результата запроса
func scanPositions(rows *sql.Rows) ([]*models.Position, error) {
	var positions []*models.Position
	for rows.Next() {
		position := &models.Position{}
		err := rows.Scan(
			&position.ID,
			&position.SubscriptionID,
			&position.Symbol,
			&position.Side,
			&position.Status,
			&position.EntryPrice,
			&position.Quantity,
			&position.Leverage,
			&position.ExitPrice,
			&position.ExitQuantity,
			&position.RealizedPnl,
			&position.CloseReason,
			&position.OpenedAt,
			&position.ClosedAt,
			&position.CreatedAt,
			&position.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}
