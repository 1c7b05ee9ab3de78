package websocket

import (
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"riskguard/internal/models"
	"riskguard/pkg/utils"
)

// ============ ОПТИМИЗАЦИЯ: jsoniter со stream pool ============
// BorrowStream переиспользует внутренние буферы jsoniter,
// убирает аллокации при каждом Broadcast

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для broadcast сообщений всем подключенным клиентам.
// Обеспечивает real-time доставку уведомлений риск-контура на frontend
// без необходимости polling.
//
// Функции:
// - Регистрация новых WebSocket клиентов
// - Отмена регистрации отключенных клиентов
// - Broadcast сообщений всем активным клиентам
// - Маршрутизация сообщений по типам (notification, balanceUpdate)
// - Очистка отключенных и медленных соединений
// - Потокобезопасная работа с клиентами (sync.RWMutex)
// - Graceful остановка через Stop()
//
// Типы сообщений:
// - notification: новое уведомление (принудительное закрытие, алерт леджера, событие монитора)
// - balanceUpdate: обновление баланса биржевого аккаунта
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.BroadcastNotification(notif)
// 4. Остановить: hub.Stop()
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Сигнал остановки главного цикла
	done chan struct{}

	// Гарантирует однократное закрытие done
	stopOnce sync.Once

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex

	// Атомарные счетчики для lock-free чтения
	clientCount int64
	dropped     int64
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast.
// Завершается после вызова Stop(), закрывая каналы всех клиентов.
//
// Race condition при удалении клиентов исключен:
// копируем список под RLock, отправляем без блокировки, удаляем под Write Lock
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			// Останавливаемся: закрываем каналы всех клиентов
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			atomic.StoreInt64(&h.clientCount, 0)
			h.mu.Unlock()
			utils.Info("websocket hub stopped", utils.Component("websocket"))
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			atomic.StoreInt64(&h.clientCount, int64(total))
			utils.Debug("websocket client connected",
				utils.Component("websocket"),
				utils.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			atomic.StoreInt64(&h.clientCount, int64(total))
			utils.Debug("websocket client disconnected",
				utils.Component("websocket"),
				utils.Int("total_clients", total))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			// Отправляем сообщения БЕЗ блокировки (не блокируем register/unregister)
			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
					// Сообщение отправлено успешно
				default:
					// Клиент не успевает обрабатывать сообщения - помечаем для удаления
					toRemove = append(toRemove, client)
				}
			}

			// Удаляем медленных клиентов под Write Lock
			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				atomic.StoreInt64(&h.clientCount, int64(total))
				utils.Warn("removed slow websocket clients",
					utils.Component("websocket"),
					utils.Int("removed", len(toRemove)),
					utils.Int("total_clients", total))
			}
		}
	}
}

// Stop останавливает главный цикл Hub
//
// Безопасен для повторного вызова. После остановки Broadcast
// превращается в no-op (сообщения отбрасываются).
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast сериализует и отправляет сообщение всем подключенным клиентам
// ОПТИМИЗАЦИЯ: BorrowStream переиспользует буферы jsoniter (zero-allocation сериализация)
func (h *Hub) Broadcast(message interface{}) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteVal(message)
	if stream.Error != nil {
		utils.Error("websocket broadcast marshal failed",
			utils.Component("websocket"),
			utils.Err(stream.Error))
		return
	}

	// Копируем данные: буфер стрима вернется в пул jsoniter
	data := stream.Buffer()
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)

	h.BroadcastRaw(msgCopy)
}

// BroadcastRaw отправляет уже сериализованное сообщение всем клиентам
//
// Неблокирующая отправка: если broadcast канал переполнен,
// сообщение отбрасывается и инкрементируется счетчик потерь.
// Hub никогда не блокирует вызывающую сторону (монитор, фоновые задачи).
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		atomic.AddInt64(&h.dropped, 1)
	}
}

// BroadcastNotification отправляет новое уведомление всем клиентам
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	if notif == nil {
		return
	}
	h.Broadcast(NewNotificationMessage(notif))
}

// BroadcastBalanceUpdate отправляет обновление баланса аккаунта
func (h *Hub) BroadcastBalanceUpdate(accountID int, balance float64) {
	h.Broadcast(NewBalanceUpdateMessage(accountID, balance))
}

// ClientCount возвращает количество подключенных клиентов (lock-free)
func (h *Hub) ClientCount() int {
	return int(atomic.LoadInt64(&h.clientCount))
}

// DroppedMessages возвращает количество отброшенных сообщений
// (broadcast канал был переполнен)
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.dropped)
}
