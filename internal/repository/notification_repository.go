package repository

import (
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"riskguard/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория уведомлений
var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// NotificationRepository - работа с таблицей notifications
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create создает новое уведомление
func (r *NotificationRepository) Create(notification *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, timestamp, type, severity, position_id, title, message, read, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now().UTC()
	}
	if notification.Severity == "" {
		notification.Severity = models.SeverityInfo
	}

	var metaJSON []byte
	if notification.Meta != nil {
		data, err := json.Marshal(notification.Meta)
		if err != nil {
			return err
		}
		metaJSON = data
	}

	return r.db.QueryRow(
		query,
		notification.UserID,
		notification.Timestamp,
		notification.Type,
		notification.Severity,
		notification.PositionID,
		notification.Title,
		notification.Message,
		notification.Read,
		metaJSON,
	).Scan(&notification.ID)
}

// GetByID возвращает уведомление по ID
func (r *NotificationRepository) GetByID(id int) (*models.Notification, error) {
	query := `
		SELECT id, user_id, timestamp, type, severity, position_id, title, message, read, meta
		FROM notifications
		WHERE id = $1`

	notification := &models.Notification{}
	var metaJSON []byte

	err := r.db.QueryRow(query, id).Scan(
		&notification.ID,
		&notification.UserID,
		&notification.Timestamp,
		&notification.Type,
		&notification.Severity,
		&notification.PositionID,
		&notification.Title,
		&notification.Message,
		&notification.Read,
		&metaJSON,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &notification.Meta); err != nil {
			return nil, err
		}
	}

	return notification, nil
}

// GetRecent возвращает последние уведомления
func (r *NotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, timestamp, type, severity, position_id, title, message, read, meta
		FROM notifications
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// GetByUserID возвращает последние уведомления пользователя
func (r *NotificationRepository) GetByUserID(userID, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, timestamp, type, severity, position_id, title, message, read, meta
		FROM notifications
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// GetByPositionID возвращает уведомления, связанные с позицией
func (r *NotificationRepository) GetByPositionID(positionID, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, timestamp, type, severity, position_id, title, message, read, meta
		FROM notifications
		WHERE position_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.Query(query, positionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// GetBySeverity возвращает последние уведомления заданного уровня важности
func (r *NotificationRepository) GetBySeverity(severity string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, timestamp, type, severity, position_id, title, message, read, meta
		FROM notifications
		WHERE severity = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.Query(query, severity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// MarkRead помечает уведомление прочитанным
func (r *NotificationRepository) MarkRead(id int) error {
	result, err := r.db.Exec(`UPDATE notifications SET read = true WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

// MarkAllRead помечает все уведомления пользователя прочитанными.
// Возвращает число затронутых строк.
func (r *NotificationRepository) MarkAllRead(userID int) (int64, error) {
	result, err := r.db.Exec(`UPDATE notifications SET read = true WHERE user_id = $1 AND read = false`, userID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// DeleteAll очищает журнал уведомлений
func (r *NotificationRepository) DeleteAll() error {
	_, err := r.db.Exec(`DELETE FROM notifications`)
	return err
}

// DeleteOlderThan удаляет уведомления старше указанного момента.
// Возвращает число удаленных строк.
func (r *NotificationRepository) DeleteOlderThan(t time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE timestamp < $1`, t)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// KeepRecent оставляет только последние n уведомлений.
// Возвращает число удаленных строк.
func (r *NotificationRepository) KeepRecent(n int) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE id NOT IN (
			SELECT id FROM notifications
			ORDER BY timestamp DESC
			LIMIT $1
		)`

	result, err := r.db.Exec(query, n)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Count возвращает общее число уведомлений
func (r *NotificationRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications`).Scan(&count)
	return count, err
}

// CountUnreadByUserID возвращает число непрочитанных уведомлений пользователя
func (r *NotificationRepository) CountUnreadByUserID(userID int) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false`, userID).Scan(&count)
	return count, err
}

// scanNotifications читает уведомления из результата запроса
func scanNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	var notifications []*models.Notification
	for rows.Next() {
		notification := &models.Notification{}
		var metaJSON []byte

		err := rows.Scan(
			&notification.ID,
			&notification.UserID,
			&notification.Timestamp,
			&notification.Type,
			&notification.Severity,
			&notification.PositionID,
			&notification.Title,
			&notification.Message,
			&notification.Read,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &notification.Meta); err != nil {
				return nil, err
			}
		}

		notifications = append(notifications, notification)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}
