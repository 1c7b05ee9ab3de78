package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"riskguard/internal/models"
)

// Ошибки репозитория биржевых аккаунтов
var (
	ErrExchangeAccountNotFound = errors.New("exchange account not found")
	ErrExchangeAccountExists   = errors.New("exchange account already exists")
)

// ExchangeAccountRepository - работа с таблицей exchange_accounts.
//
// Ключи хранятся зашифрованными, репозиторий их не расшифровывает:
// это зона ответственности сервисного слоя.
type ExchangeAccountRepository struct {
	db *sql.DB
}

// NewExchangeAccountRepository создает новый экземпляр репозитория
func NewExchangeAccountRepository(db *sql.DB) *ExchangeAccountRepository {
	return &ExchangeAccountRepository{db: db}
}

// Create создает новый биржевой аккаунт
func (r *ExchangeAccountRepository) Create(account *models.ExchangeAccount) error {
	query := `
		INSERT INTO exchange_accounts (user_id, exchange, label, api_key, secret_key, passphrase, connected, balance, last_error, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	now := time.Now()
	account.UpdatedAt = now
	account.CreatedAt = now

	err := r.db.QueryRow(
		query,
		account.UserID,
		account.Exchange,
		account.Label,
		account.APIKey,
		account.SecretKey,
		account.Passphrase,
		account.Connected,
		account.Balance,
		account.LastError,
		account.UpdatedAt,
		account.CreatedAt,
	).Scan(&account.ID)

	if err != nil {
		if isAccountUniqueViolation(err) {
			return ErrExchangeAccountExists
		}
		return err
	}

	return nil
}

// GetByID возвращает аккаунт по ID
func (r *ExchangeAccountRepository) GetByID(id int) (*models.ExchangeAccount, error) {
	query := `
		SELECT id, user_id, exchange, label, api_key, secret_key, passphrase, connected, balance, last_error, updated_at, created_at
		FROM exchange_accounts
		WHERE id = $1`

	account := &models.ExchangeAccount{}
	err := r.db.QueryRow(query, id).Scan(
		&account.ID,
		&account.UserID,
		&account.Exchange,
		&account.Label,
		&account.APIKey,
		&account.SecretKey,
		&account.Passphrase,
		&account.Connected,
		&account.Balance,
		&account.LastError,
		&account.UpdatedAt,
		&account.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExchangeAccountNotFound
		}
		return nil, err
	}

	return account, nil
}

// GetByUserID возвращает аккаунты пользователя
func (r *ExchangeAccountRepository) GetByUserID(userID int) ([]*models.ExchangeAccount, error) {
	query := `
		SELECT id, user_id, exchange, label, api_key, secret_key, passphrase, connected, balance, last_error, updated_at, created_at
		FROM exchange_accounts
		WHERE user_id = $1
		ORDER BY id`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExchangeAccounts(rows)
}

// GetAll возвращает все биржевые аккаунты
func (r *ExchangeAccountRepository) GetAll() ([]*models.ExchangeAccount, error) {
	query := `
		SELECT id, user_id, exchange, label, api_key, secret_key, passphrase, connected, balance, last_error, updated_at, created_at
		FROM exchange_accounts
		ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExchangeAccounts(rows)
}

// GetConnected возвращает аккаунты с успешным последним подключением
func (r *ExchangeAccountRepository) GetConnected() ([]*models.ExchangeAccount, error) {
	query := `
		SELECT id, user_id, exchange, label, api_key, secret_key, passphrase, connected, balance, last_error, updated_at, created_at
		FROM exchange_accounts
		WHERE connected = true
		ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExchangeAccounts(rows)
}

// UpdateBalance обновляет баланс аккаунта
func (r *ExchangeAccountRepository) UpdateBalance(id int, balance float64) error {
	query := `UPDATE exchange_accounts SET balance = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, balance, time.Now(), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrExchangeAccountNotFound
	}

	return nil
}

// SetConnected обновляет статус подключения и текст последней ошибки
func (r *ExchangeAccountRepository) SetConnected(id int, connected bool, lastError string) error {
	query := `UPDATE exchange_accounts SET connected = $1, last_error = $2, updated_at = $3 WHERE id = $4`

	result, err := r.db.Exec(query, connected, lastError, time.Now(), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrExchangeAccountNotFound
	}

	return nil
}

// Delete удаляет аккаунт
func (r *ExchangeAccountRepository) Delete(id int) error {
	result, err := r.db.Exec(`DELETE FROM exchange_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrExchangeAccountNotFound
	}

	return nil
}

// CountConnected возвращает число подключенных аккаунтов
func (r *ExchangeAccountRepository) CountConnected() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM exchange_accounts WHERE connected = true`).Scan(&count)
	return count, err
}

// scanExchangeAccounts читает аккаунты из результата запроса
func scanExchangeAccounts(rows *sql.Rows) ([]*models.ExchangeAccount, error) {
	var accounts []*models.ExchangeAccount
	for rows.Next() {
		account := &models.ExchangeAccount{}
		err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.Exchange,
			&account.Label,
			&account.APIKey,
			&account.SecretKey,
			&account.Passphrase,
			&account.Connected,
			&account.Balance,
			&account.LastError,
			&account.UpdatedAt,
			&account.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// isAccountUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isAccountUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
