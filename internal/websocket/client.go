package websocket

import (
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"riskguard/pkg/utils"
)

const (
	// Таймаут записи одного сообщения
	writeWait = 10 * time.Second

	// Срок, в который клиент обязан ответить pong
	pongWait = 60 * time.Second

	// Ping уходит раньше, чем истекает pongWait
	pingPeriod = (pongWait * 9) / 10

	// Лимит размера входящего сообщения (64KB)
	maxMessageSize = 65536

	// Ёмкость канала send
	clientSendBufferSize = 512
)

var newline = []byte{'\n'}

// devOrigins - локальные адреса фронтенда на случай режима разработки
var devOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:8080",
	"https://localhost:3000",
	"https://localhost:8080",
}

// OriginChecker решает, пускать ли браузерный Origin на WebSocket endpoint.
// После инициализации структура только читается, блокировки не нужны
type OriginChecker struct {
	allowedOrigins map[string]struct{}
	allowAll       bool
}

// originChecker строится один раз при загрузке пакета
var originChecker = newOriginChecker(os.Getenv("ALLOWED_ORIGINS"))

// newOriginChecker разбирает список origin, разделенных запятыми.
// Пустое значение и "*" включают режим разработки: пропускаем всех
func newOriginChecker(raw string) *OriginChecker {
	oc := &OriginChecker{
		allowedOrigins: make(map[string]struct{}),
	}

	if raw == "" || raw == "*" {
		oc.allowAll = true
		for _, origin := range devOrigins {
			oc.allowedOrigins[origin] = struct{}{}
		}
		return oc
	}

	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			oc.allowedOrigins[origin] = struct{}{}
		}
	}
	return oc
}

// Check выполняет проверку за O(1) по map
func (oc *OriginChecker) Check(origin string) bool {
	// Без заголовка Origin приходят не-браузерные клиенты (curl, healthcheck)
	if origin == "" || oc.allowAll {
		return true
	}
	_, ok := oc.allowedOrigins[origin]
	return ok
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:    4096,
	WriteBufferSize:   4096,
	EnableCompression: true,
	CheckOrigin: func(r *http.Request) bool {
		return originChecker.Check(r.Header.Get("Origin"))
	},
}

// clientPool переиспользует структуры Client между подключениями
var clientPool = sync.Pool{
	New: func() interface{} {
		return &Client{
			send: make(chan []byte, clientSendBufferSize),
		}
	},
}

// Client - одно WebSocket соединение с подписчиком уведомлений
//
// Каждое соединение обслуживают две горутины:
//   - readPump следит за живостью соединения (pong, read deadline)
//   - writePump отправляет сообщения из буфера send и шлет ping
//
// Жизненный цикл:
// ServeWS берет структуру из пула, регистрирует ее в Hub и запускает
// обе горутины. При разрыве соединения readPump снимает регистрацию
// и возвращает структуру в пул.
type Client struct {
	conn *websocket.Conn

	// Хаб, в котором клиент зарегистрирован
	hub *Hub

	// Буфер исходящих сообщений. Закрывает его только хаб
	send chan []byte
}

// ServeWS апгрейдит HTTP запрос до WebSocket и подключает клиента к хабу.
//
// Роутинг:
// router.HandleFunc("/ws", func(w, r) { websocket.ServeWS(hub, w, r) })
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Warn("websocket upgrade failed",
			utils.Component("websocket"),
			utils.Err(err))
		return
	}

	client := clientPool.Get().(*Client)
	client.conn = conn
	client.hub = hub
	// В канале из пула могли остаться сообщения прошлого владельца
	for len(client.send) > 0 {
		<-client.send
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump держит входящую сторону соединения.
//
// Поток данных односторонний (сервер -> клиент), поэтому прочитанные
// сообщения отбрасываются: чтение нужно только для pong и обнаружения
// разрыва.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.release()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.Warn("websocket read error",
					utils.Component("websocket"),
					utils.Err(err))
			}
			return
		}
	}
}

// writePump держит исходящую сторону соединения.
//
// Единственная горутина, которая пишет в conn: сообщения из send
// и периодические ping. Закрытие канала send означает, что хаб снял
// регистрацию, и клиенту отправляется close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			c.flushQueued(w)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flushQueued дописывает накопившиеся в send сообщения в текущий фрейм,
// по одному на строку. len(c.send) и последующее чтение могут разъехаться,
// поэтому только non-blocking select
func (c *Client) flushQueued(w io.Writer) {
	for {
		select {
		case queued, ok := <-c.send:
			if !ok {
				return
			}
			w.Write(newline)
			w.Write(queued)
		default:
			return
		}
	}
}

// release готовит клиента к возврату в пул после отключения
func (c *Client) release() {
	c.conn = nil
	c.hub = nil
	// Хаб закрывает send при отмене регистрации. Закрытый канал
	// переиспользовать нельзя (отправка в него дает панику), поэтому
	// его заменяем свежим; открытый достаточно вычитать досуха
	drained := false
	for !drained {
		select {
		case _, ok := <-c.send:
			if !ok {
				c.send = make(chan []byte, clientSendBufferSize)
				drained = true
			}
		default:
			drained = true
		}
	}
	clientPool.Put(c)
}
