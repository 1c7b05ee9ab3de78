package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"riskguard/internal/exchange"
	"riskguard/internal/models"
	"riskguard/internal/repository"
	"riskguard/pkg/crypto"
	"riskguard/pkg/utils"
)

// Ошибки сервиса
var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrConnectionFailed   = errors.New("failed to connect to exchange")
)

// BalanceBroadcaster - интерфейс для отправки обновлений балансов через WebSocket
type BalanceBroadcaster interface {
	BroadcastBalanceUpdate(accountID int, balance float64)
}

// accountSession - кэшированная сессия одного биржевого аккаунта.
//
// Мьютекс сессии гарантирует, что credential-сессия аккаунта никогда
// не используется двумя горутинами одновременно: все биржевые операции
// аккаунта выполняются последовательно.
type accountSession struct {
	mu   sync.Mutex
	conn exchange.Exchange
}

// ExchangeService управляет подключениями к биржевым аккаунтам.
//
// Держит кэш живых адаптеров: ключи аккаунта расшифровываются один раз
// при первом обращении, адаптер переиспользуется до InvalidateConnection
// или CloseAll. Единица параллелизма - аккаунт: операции разных аккаунтов
// идут одновременно, операции одного - строго по очереди.
type ExchangeService struct {
	accountRepo   ExchangeAccountRepositoryInterface
	encryptionKey []byte

	// Кэш сессий по id аккаунта
	sessions   map[int]*accountSession
	sessionsMu sync.Mutex

	// WebSocket hub для broadcast балансов
	wsHub BalanceBroadcaster
}

// NewExchangeService создает новый экземпляр сервиса.
// encryptionKey - производный AES-256 ключ (crypto.DeriveKey).
func NewExchangeService(accountRepo ExchangeAccountRepositoryInterface, encryptionKey []byte) *ExchangeService {
	return &ExchangeService{
		accountRepo:   accountRepo,
		encryptionKey: encryptionKey,
		sessions:      make(map[int]*accountSession),
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast балансов.
//
// Вызывается после инициализации Hub в main.go:
//
//	exchangeService := service.NewExchangeService(...)
//	exchangeService.SetWebSocketHub(wsHub)
func (s *ExchangeService) SetWebSocketHub(hub BalanceBroadcaster) {
	s.wsHub = hub
}

// WithConnection выполняет fn с подключением аккаунта, удерживая монопольный
// доступ к сессии на все время выполнения.
//
// Подключение создается лениво при первом обращении: ключи читаются из БД,
// расшифровываются и проверяются тестовым Connect. Пока fn работает, другие
// горутины с этим же accountID ждут.
func (s *ExchangeService) WithConnection(ctx context.Context, accountID int, fn func(conn exchange.Exchange) error) error {
	session := s.getSession(accountID)

	session.mu.Lock()
	defer session.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := s.ensureConnected(session, accountID)
	if err != nil {
		return err
	}

	return fn(conn)
}

// RefreshBalance запрашивает актуальный баланс аккаунта и сохраняет его в БД.
//
// Успешный запрос помечает аккаунт подключенным и очищает last_error,
// ошибка биржи записывается в аккаунт. После обновления отправляется
// broadcast через WebSocket.
func (s *ExchangeService) RefreshBalance(ctx context.Context, accountID int) (float64, error) {
	var balance float64

	err := s.WithConnection(ctx, accountID, func(conn exchange.Exchange) error {
		b, err := conn.GetBalance(ctx)
		if err != nil {
			return errors.Join(ErrConnectionFailed, err)
		}
		balance = b
		return nil
	})
	if err != nil {
		if !errors.Is(err, repository.ErrExchangeAccountNotFound) {
			_ = s.accountRepo.SetConnected(accountID, false, err.Error())
		}
		return 0, err
	}

	if err := s.accountRepo.UpdateBalance(accountID, balance); err != nil {
		return balance, err
	}
	_ = s.accountRepo.SetConnected(accountID, true, "")

	if s.wsHub != nil {
		s.wsHub.BroadcastBalanceUpdate(accountID, balance)
	}

	return balance, nil
}

// RefreshAllBalances обновляет балансы всех аккаунтов.
//
// Вызывается периодически из main.go. Аккаунты опрашиваются параллельно
// с ограничением maxParallel, ошибки отдельных аккаунтов логируются и не
// прерывают остальные. Возвращает количество успешно обновленных.
func (s *ExchangeService) RefreshAllBalances(ctx context.Context, maxParallel int) int {
	accounts, err := s.accountRepo.GetAll()
	if err != nil {
		utils.Error("failed to load exchange accounts", utils.Err(err))
		return 0
	}

	if maxParallel < 1 {
		maxParallel = 1
	}

	var refreshed int64
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for _, account := range accounts {
		wg.Add(1)
		sem <- struct{}{}

		go func(id int, exchangeName string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.RefreshBalance(ctx, id); err != nil {
				utils.Warn("balance refresh failed",
					utils.AccountID(id),
					utils.Exchange(exchangeName),
					utils.Err(err))
				return
			}
			atomic.AddInt64(&refreshed, 1)
		}(account.ID, account.Exchange)
	}

	wg.Wait()
	return int(refreshed)
}

// InvalidateConnection закрывает и сбрасывает кэшированное подключение аккаунта.
//
// Вызывается при смене ключей: следующее обращение создаст подключение заново.
func (s *ExchangeService) InvalidateConnection(accountID int) {
	s.sessionsMu.Lock()
	session, ok := s.sessions[accountID]
	s.sessionsMu.Unlock()

	if !ok {
		return
	}

	session.mu.Lock()
	if session.conn != nil {
		_ = session.conn.Close()
		session.conn = nil
	}
	session.mu.Unlock()
}

// CloseAll закрывает все кэшированные подключения.
// Вызывается при graceful shutdown.
func (s *ExchangeService) CloseAll() {
	s.sessionsMu.Lock()
	sessions := make([]*accountSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[int]*accountSession)
	s.sessionsMu.Unlock()

	for _, session := range sessions {
		session.mu.Lock()
		if session.conn != nil {
			_ = session.conn.Close()
			session.conn = nil
		}
		session.mu.Unlock()
	}
}

// ConnectedCount возвращает количество аккаунтов, помеченных подключенными
func (s *ExchangeService) ConnectedCount() (int, error) {
	return s.accountRepo.CountConnected()
}

// getSession возвращает сессию аккаунта, создавая пустую при первом обращении
func (s *ExchangeService) getSession(accountID int) *accountSession {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	session, ok := s.sessions[accountID]
	if !ok {
		session = &accountSession{}
		s.sessions[accountID] = session
	}
	return session
}

// ensureConnected возвращает живое подключение сессии, создавая его при
// необходимости. Вызывается строго под session.mu.
func (s *ExchangeService) ensureConnected(session *accountSession, accountID int) (exchange.Exchange, error) {
	if session.conn != nil {
		return session.conn, nil
	}

	account, err := s.accountRepo.GetByID(accountID)
	if err != nil {
		return nil, err
	}

	conn, err := s.dial(account)
	if err != nil {
		return nil, err
	}

	session.conn = conn
	return conn, nil
}

// dial расшифровывает ключи аккаунта и устанавливает подключение
func (s *ExchangeService) dial(account *models.ExchangeAccount) (exchange.Exchange, error) {
	// 1. Расшифровываем ключи
	apiKey, err := crypto.Decrypt(account.APIKey, s.encryptionKey)
	if err != nil {
		return nil, err
	}

	secretKey, err := crypto.Decrypt(account.SecretKey, s.encryptionKey)
	if err != nil {
		return nil, err
	}

	var passphrase string
	if account.Passphrase != "" {
		passphrase, err = crypto.Decrypt(account.Passphrase, s.encryptionKey)
		if err != nil {
			return nil, err
		}
	}

	// 2. Создаем адаптер через фабрику
	conn, err := exchange.NewExchange(account.Exchange)
	if err != nil {
		return nil, err
	}

	// 3. Проверяем валидность ключей
	if err := conn.Connect(apiKey, secretKey, passphrase); err != nil {
		return nil, errors.Join(ErrInvalidCredentials, err)
	}

	return conn, nil
}
