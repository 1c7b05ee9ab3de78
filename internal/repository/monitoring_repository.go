package repository

import (
	"database/sql"
	"errors"
	"time"

	"riskguard/internal/models"
)

// Ошибки репозитория мониторинга
var (
	ErrPositionAlreadyClosed = errors.New("position already closed")
)

// MonitoringRepository - выборка снапшотов риск-контура и транзакционная
// проводка принудительных закрытий по всем уровням учёта
type MonitoringRepository struct {
	db *sql.DB
}

// NewMonitoringRepository создает новый экземпляр репозитория
func NewMonitoringRepository(db *sql.DB) *MonitoringRepository {
	return &MonitoringRepository{db: db}
}

// LoadOpenMonitoringRecords возвращает все открытые позиции активных подписок
// вместе с применимыми к ним риск-бюджетами.
//
// Записи отсортированы по биржевому аккаунту: воркеры монитора обрабатывают
// один аккаунт строго последовательно.
func (r *MonitoringRepository) LoadOpenMonitoringRecords() ([]*models.MonitoringRecord, error) {
	query := `
		SELECT
			p.id, p.subscription_id, s.bot_id, s.user_id, s.exchange_account_id, s.exchange,
			p.symbol, p.side, p.entry_price, p.quantity, p.leverage,
			ssl.max_daily_loss, ssl.current_daily_loss,
			s.max_daily_loss, s.current_daily_loss
		FROM positions p
		JOIN subscriptions s ON s.id = p.subscription_id
		LEFT JOIN subscription_symbol_limits ssl
			ON ssl.subscription_id = p.subscription_id AND ssl.symbol = p.symbol
		WHERE p.status = 'open' AND s.status = 'active'
		ORDER BY s.exchange_account_id, p.id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loadedAt := time.Now().UTC()

	var records []*models.MonitoringRecord
	for rows.Next() {
		rec := &models.MonitoringRecord{LoadedAt: loadedAt}

		var (
			symbolMax  sql.NullFloat64
			symbolLoss sql.NullFloat64
			subMax     sql.NullFloat64
		)

		err := rows.Scan(
			&rec.PositionID,
			&rec.SubscriptionID,
			&rec.BotID,
			&rec.UserID,
			&rec.ExchangeAccountID,
			&rec.Exchange,
			&rec.Symbol,
			&rec.Side,
			&rec.EntryPrice,
			&rec.Quantity,
			&rec.Leverage,
			&symbolMax,
			&symbolLoss,
			&subMax,
			&rec.SubscriptionScope.CurrentDailyLoss,
		)
		if err != nil {
			return nil, err
		}

		// current_daily_loss в таблице лимитов NOT NULL, поэтому NULL после
		// LEFT JOIN означает отсутствие строки лимита по символу.
		if symbolLoss.Valid {
			scope := &models.ScopeStat{CurrentDailyLoss: symbolLoss.Float64}
			if symbolMax.Valid {
				v := symbolMax.Float64
				scope.MaxDailyLoss = &v
			}
			rec.SymbolScope = scope
		}
		if subMax.Valid {
			v := subMax.Float64
			rec.SubscriptionScope.MaxDailyLoss = &v
		}

		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// ApplyForcedClosure проводит принудительное закрытие одной транзакцией:
// позиция, подписка, лимит символа подписки, лимит символа бота, бот.
//
// Предусловие status = 'open' на первом UPDATE делает проводку идемпотентной:
// повторный вызов по уже закрытой позиции возвращает ErrPositionAlreadyClosed,
// не тронув счётчики.
func (r *MonitoringRepository) ApplyForcedClosure(fc *models.ForcedClosure) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	lossDelta := fc.LossDelta()
	winDelta := 0
	lossCountDelta := 0
	if fc.RealizedPnl > 0 {
		winDelta = 1
	} else if fc.RealizedPnl < 0 {
		lossCountDelta = 1
	}

	closeQuery := `
		UPDATE positions
		SET status = 'closed', exit_price = $1, exit_quantity = $2, realized_pnl = $3,
		    close_reason = $4, closed_at = $5, updated_at = $5
		WHERE id = $6 AND status = 'open'`

	res, err := tx.Exec(closeQuery, fc.ExitPrice, fc.ExitQuantity, fc.RealizedPnl, fc.CloseReason, fc.ClosedAt, fc.PositionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPositionAlreadyClosed
	}

	subscriptionQuery := `
		UPDATE subscriptions
		SET current_daily_loss = current_daily_loss + $1,
		    open_positions = GREATEST(open_positions - 1, 0),
		    total_pnl = total_pnl + $2,
		    win_count = win_count + $3,
		    loss_count = loss_count + $4,
		    updated_at = $5
		WHERE id = $6`

	if _, err = tx.Exec(subscriptionQuery, lossDelta, fc.RealizedPnl, winDelta, lossCountDelta, fc.ClosedAt, fc.SubscriptionID); err != nil {
		return err
	}

	// Строки лимита по символу может не существовать, нулевое число
	// обновлённых строк здесь не ошибка.
	symbolLimitQuery := `
		UPDATE subscription_symbol_limits
		SET current_daily_loss = current_daily_loss + $1,
		    open_positions = GREATEST(open_positions - 1, 0),
		    updated_at = $2
		WHERE subscription_id = $3 AND symbol = $4`

	if _, err = tx.Exec(symbolLimitQuery, lossDelta, fc.ClosedAt, fc.SubscriptionID, fc.Symbol); err != nil {
		return err
	}

	botSymbolQuery := `
		UPDATE bot_symbol_limits
		SET current_daily_loss = current_daily_loss + $1,
		    open_positions = GREATEST(open_positions - 1, 0),
		    updated_at = $2
		WHERE bot_id = $3 AND symbol = $4`

	if _, err = tx.Exec(botSymbolQuery, lossDelta, fc.ClosedAt, fc.BotID, fc.Symbol); err != nil {
		return err
	}

	botQuery := `
		UPDATE bots
		SET current_daily_loss = current_daily_loss + $1,
		    open_positions = GREATEST(open_positions - 1, 0),
		    total_pnl = total_pnl + $2,
		    updated_at = $3
		WHERE id = $4`

	if _, err = tx.Exec(botQuery, lossDelta, fc.RealizedPnl, fc.ClosedAt, fc.BotID); err != nil {
		return err
	}

	return tx.Commit()
}

// ResetDailyCounters обнуляет дневные счётчики убытка на всех четырёх уровнях
// одной транзакцией. Возвращает суммарное число затронутых строк.
func (r *MonitoringRepository) ResetDailyCounters() (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now()
	tables := []string{"subscriptions", "subscription_symbol_limits", "bot_symbol_limits", "bots"}

	var total int64
	for _, table := range tables {
		query := `UPDATE ` + table + ` SET current_daily_loss = 0, updated_at = $1 WHERE current_daily_loss <> 0`
		res, err := tx.Exec(query, now)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return total, nil
}
